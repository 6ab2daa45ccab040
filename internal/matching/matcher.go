package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/catalog"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
)

var ErrNoMatch = errors.New("no matching flight")

// Segment is one upstream flight leg as reported by the booking.
type Segment struct {
	DepartureAirport string
	ArrivalAirport   string
	DepartureAt      time.Time
	AirlineCode      string
}

// Query scopes a lookup to a supplier and the leg position inside the booking.
type Query struct {
	Segment    Segment
	SupplierID string
	Leg        catalog.LegType
}

// LegForPosition maps the segment index inside a booking to the expected leg:
// the first segment is outbound, every later one is a return.
func LegForPosition(i int) catalog.LegType {
	if i == 0 {
		return catalog.LegOutbound
	}
	return catalog.LegReturn
}

// Strategy is one step of the matching cascade. Find returns catalog.ErrNotFound on a miss.
type Strategy struct {
	Name string
	Find func(ctx context.Context, q Query) (catalog.Flight, error)
}

// Finder is the catalog surface the built-in strategies need.
type Finder interface {
	FindByLegTag(ctx context.Context, supplierID string, date time.Time, airline, tag string) (catalog.Flight, error)
	FindByAirport(ctx context.Context, supplierID string, date time.Time, airport string) (catalog.Flight, error)
	FindByAirline(ctx context.Context, supplierID string, date time.Time, airline string) (catalog.Flight, error)
}

// DefaultStrategies returns exact, airport and airline, in that order.
func DefaultStrategies(f Finder) []Strategy {
	return []Strategy{
		{Name: "exact", Find: func(ctx context.Context, q Query) (catalog.Flight, error) {
			return f.FindByLegTag(ctx, q.SupplierID, q.Segment.DepartureAt, q.Segment.AirlineCode, q.Leg.Tag())
		}},
		{Name: "airport", Find: func(ctx context.Context, q Query) (catalog.Flight, error) {
			return f.FindByAirport(ctx, q.SupplierID, q.Segment.DepartureAt, q.Segment.DepartureAirport)
		}},
		{Name: "airline", Find: func(ctx context.Context, q Query) (catalog.Flight, error) {
			return f.FindByAirline(ctx, q.SupplierID, q.Segment.DepartureAt, q.Segment.AirlineCode)
		}},
	}
}

type Result struct {
	Flight   catalog.Flight
	Strategy string
}

type Matcher struct {
	strategies []Strategy
	log        logger.Logger
}

func NewMatcher(strategies []Strategy, log logger.Logger) *Matcher {
	return &Matcher{strategies: strategies, log: log}
}

// Match evaluates the strategies in order and returns the first hit.
// It returns ErrNoMatch when every strategy misses.
func (m *Matcher) Match(ctx context.Context, q Query) (Result, error) {
	if q.Segment.DepartureAt.IsZero() {
		return Result{}, fmt.Errorf("segment without departure date: %w", ErrNoMatch)
	}
	for _, s := range m.strategies {
		f, err := s.Find(ctx, q)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return Result{}, fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		m.log.Debug("segment matched",
			"strategy", s.Name,
			"flightId", f.ID,
			"supplierId", q.SupplierID,
			"leg", q.Leg,
		)
		return Result{Flight: f, Strategy: s.Name}, nil
	}
	return Result{}, ErrNoMatch
}
