package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/audit"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/catalog"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/events"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/inventory"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/matching"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/middleware"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/sequence"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

// maxLegs is the number of flight links a reservation row can hold.
const maxLegs = 2

type Matcher interface {
	Match(ctx context.Context, q matching.Query) (matching.Result, error)
}

type Cascader interface {
	Run(ctx context.Context, adj inventory.Adjustment) inventory.CascadeResult
}

type PriceValidator interface {
	ValidateTransportPrice(ctx context.Context, transportID string, expected decimal.Decimal, tolerancePercent float64) (upstream.PriceCheck, error)
}

type ReservationEvents interface {
	PublishReservationSynced(ctx context.Context, meta events.EventMeta, payload events.ReservationSyncedPayload) error
}

// Input is one transport service of a booking.
type Input struct {
	BookingReference string
	Service          upstream.Service
}

type Deps struct {
	Store                 Store
	UnitOfWork            UnitOfWork
	Matcher               Matcher
	Cascade               Cascader
	Prices                PriceValidator
	Events                ReservationEvents
	Audit                 audit.Recorder
	Metrics               *metrics.Metrics
	Logger                logger.Logger
	PriceTolerancePercent float64
	PriceCheckTimeout     time.Duration
}

// Service drives the reservation lifecycle: absent -> confirmed -> modified* -> cancelled.
type Service struct {
	store        Store
	uow          UnitOfWork
	matcher      Matcher
	cascade      Cascader
	prices       PriceValidator
	events       ReservationEvents
	audit        audit.Recorder
	metrics      *metrics.Metrics
	log          logger.Logger
	tolerance    float64
	priceTimeout time.Duration
	now          func() time.Time
}

func NewService(d Deps) *Service {
	timeout := d.PriceCheckTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		store:        d.Store,
		uow:          d.UnitOfWork,
		matcher:      d.Matcher,
		cascade:      d.Cascade,
		prices:       d.Prices,
		events:       d.Events,
		audit:        d.Audit,
		metrics:      d.Metrics,
		log:          d.Logger,
		tolerance:    d.PriceTolerancePercent,
		priceTimeout: timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Handle dispatches by event kind. Unknown kinds are processed as create.
func (s *Service) Handle(ctx context.Context, kind EventKind, in Input) (Outcome, error) {
	switch kind {
	case KindCancel:
		return s.Cancel(ctx, in)
	case KindModify:
		return s.Modify(ctx, in)
	default:
		return s.Create(ctx, in)
	}
}

func (s *Service) Create(ctx context.Context, in Input) (Outcome, error) {
	serviceID := in.Service.ID.String()

	if _, err := s.store.GetByServiceID(ctx, serviceID); err == nil {
		return skipped(serviceID, ReasonAlreadyExists), nil
	} else if !errors.Is(err, ErrNotFound) {
		return Outcome{ServiceID: serviceID}, err
	}

	legs, err := s.matchLegs(ctx, in)
	if err != nil {
		return Outcome{ServiceID: serviceID}, err
	}

	res := newFromService(in.BookingReference, in.Service, s.now())
	if len(legs) > 0 {
		res.FlightID = &legs[0].ID
	}
	if len(legs) > 1 {
		res.ReturnFlightID = &legs[1].ID
	}
	total := res.Passengers()

	var (
		inserted    bool
		adjustments []inventory.Adjustment
	)
	err = s.uow.Do(ctx, func(store Store, ledger Ledger) error {
		id, ok, err := store.Insert(ctx, res)
		if err != nil || !ok {
			return err
		}
		inserted = true
		res.ID = id
		if total > 0 {
			adjustments, err = applyToLegs(ctx, ledger, res.FlightIDs(), total)
		}
		return err
	})
	if err != nil {
		return Outcome{ServiceID: serviceID}, err
	}
	if !inserted {
		s.log.Info("reservation inserted concurrently", "serviceId", serviceID)
		return skipped(serviceID, ReasonAlreadyExists), nil
	}

	out := Outcome{
		ServiceID:     serviceID,
		Action:        ActionCreated,
		ReservationID: res.ID,
		FlightIDs:     res.FlightIDs(),
	}
	if len(adjustments) > 0 {
		out.PassengerDelta = total
	}
	s.afterCommit(ctx, in, res, &out, adjustments)
	s.checkPrices(ctx, res, legs, &out)
	return out, nil
}

// Modify applies the passenger difference to the legs linked at creation. A modify for an
// unknown service id is handled as a create.
func (s *Service) Modify(ctx context.Context, in Input) (Outcome, error) {
	serviceID := in.Service.ID.String()

	var (
		found       bool
		cancelled   bool
		res         Reservation
		delta       int
		adjustments []inventory.Adjustment
	)
	err := s.uow.Do(ctx, func(store Store, ledger Ledger) error {
		cur, err := store.GetForUpdate(ctx, serviceID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if cur.Status == StatusCancelled {
			cancelled = true
			return nil
		}

		oldTotal := cur.Passengers()
		cur.applyService(in.Service)
		delta = cur.Passengers() - oldTotal
		now := s.now()
		cur.ModifiedAt = &now
		cur.Status = StatusModified

		if err := store.Update(ctx, cur); err != nil {
			return err
		}
		if delta != 0 {
			if adjustments, err = applyToLegs(ctx, ledger, cur.FlightIDs(), delta); err != nil {
				return err
			}
		}
		res = cur
		return nil
	})
	if err != nil {
		return Outcome{ServiceID: serviceID}, err
	}
	if !found {
		s.log.Info("modify for unknown reservation, creating it", "serviceId", serviceID)
		return s.Create(ctx, in)
	}
	if cancelled {
		return skipped(serviceID, ReasonAlreadyCancelled), nil
	}

	out := Outcome{
		ServiceID:     serviceID,
		Action:        ActionModified,
		ReservationID: res.ID,
		FlightIDs:     res.FlightIDs(),
	}
	if len(adjustments) > 0 {
		out.PassengerDelta = delta
	}
	s.afterCommit(ctx, in, res, &out, adjustments)
	return out, nil
}

// Cancel returns every seat of the reservation to each linked leg.
func (s *Service) Cancel(ctx context.Context, in Input) (Outcome, error) {
	serviceID := in.Service.ID.String()

	var (
		reason      string
		res         Reservation
		delta       int
		adjustments []inventory.Adjustment
	)
	err := s.uow.Do(ctx, func(store Store, ledger Ledger) error {
		cur, err := store.GetForUpdate(ctx, serviceID)
		if errors.Is(err, ErrNotFound) {
			reason = ReasonNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Status == StatusCancelled {
			reason = ReasonAlreadyCancelled
			return nil
		}

		now := s.now()
		cur.Status = StatusCancelled
		cur.CancelledAt = &now
		if err := store.Update(ctx, cur); err != nil {
			return err
		}
		delta = -cur.Passengers()
		if delta != 0 {
			if adjustments, err = applyToLegs(ctx, ledger, cur.FlightIDs(), delta); err != nil {
				return err
			}
		}
		res = cur
		return nil
	})
	if err != nil {
		return Outcome{ServiceID: serviceID}, err
	}
	if reason != "" {
		return skipped(serviceID, reason), nil
	}

	out := Outcome{
		ServiceID:     serviceID,
		Action:        ActionCancelled,
		ReservationID: res.ID,
		FlightIDs:     res.FlightIDs(),
	}
	if len(adjustments) > 0 {
		out.PassengerDelta = delta
	}
	s.afterCommit(ctx, in, res, &out, adjustments)
	return out, nil
}

func applyToLegs(ctx context.Context, ledger Ledger, flightIDs []int64, delta int) ([]inventory.Adjustment, error) {
	adjustments := make([]inventory.Adjustment, 0, len(flightIDs))
	for _, id := range flightIDs {
		adj, err := ledger.ApplyPassengerDelta(ctx, id, delta)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, nil
}

// matchLegs resolves every segment in order and keeps at most maxLegs distinct flights.
// Segments without a match are audited and skipped.
func (s *Service) matchLegs(ctx context.Context, in Input) ([]catalog.Flight, error) {
	svc := in.Service
	if len(svc.Segments) == 0 {
		s.noMatch(ctx, svc, nil, "service has no segments")
		return nil, nil
	}

	var legs []catalog.Flight
	seen := make(map[int64]bool, maxLegs)
	for i, seg := range svc.Segments {
		q := matching.Query{
			Segment: matching.Segment{
				DepartureAirport: seg.DepartureAirport,
				ArrivalAirport:   seg.ArrivalAirport,
				DepartureAt:      seg.DepartureAt.Time,
				AirlineCode:      seg.AirlineCode,
			},
			SupplierID: svc.SupplierID.String(),
			Leg:        matching.LegForPosition(i),
		}
		r, err := s.matcher.Match(ctx, q)
		if errors.Is(err, matching.ErrNoMatch) {
			s.noMatch(ctx, svc, seg, err.Error())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("match segment %d: %w", i, err)
		}
		if seen[r.Flight.ID] {
			continue
		}
		if len(legs) == maxLegs {
			s.log.Warn("extra matched leg ignored", "serviceId", svc.ID.String(), "flightId", r.Flight.ID)
			continue
		}
		seen[r.Flight.ID] = true
		legs = append(legs, r.Flight)
	}
	return legs, nil
}

func (s *Service) noMatch(ctx context.Context, svc upstream.Service, seg any, reason string) {
	s.metrics.UnmatchedSegments.Inc()
	s.log.Warn("NoMatchFound", "serviceId", svc.ID.String(), "supplierId", svc.SupplierID.String(), "reason", reason)
	s.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityReservation,
		EntityID:   svc.ID.String(),
		Action:     "match_flight",
		Status:     audit.StatusWarning,
		Error:      "NoMatchFound: " + reason,
		Request:    seg,
	})
}

// afterCommit reports ledger anomalies, runs the cascade and publishes the sync event.
func (s *Service) afterCommit(ctx context.Context, in Input, res Reservation, out *Outcome, adjustments []inventory.Adjustment) {
	out.Adjustments = adjustments
	for _, adj := range adjustments {
		direction := "increase"
		if adj.Delta < 0 {
			direction = "decrease"
		}
		s.metrics.LedgerAdjustments.WithLabelValues(direction).Inc()

		if adj.Missing {
			s.log.Warn("LedgerRowMissing", "flightId", adj.FlightID, "serviceId", out.ServiceID)
			out.Warnings = append(out.Warnings, fmt.Sprintf("LedgerRowMissing: flight %d", adj.FlightID))
			continue
		}
		if adj.Oversold {
			s.metrics.Oversold.Inc()
			s.log.Warn("flight oversold, sold clamped to quantity",
				"flightId", adj.FlightID,
				"requested", adj.Requested,
				"quantity", adj.Quantity,
				"serviceId", out.ServiceID,
			)
			s.audit.Record(ctx, audit.Entry{
				EntityType: audit.EntityFlight,
				EntityID:   fmt.Sprint(adj.FlightID),
				Action:     "oversold",
				Status:     audit.StatusWarning,
				Error:      fmt.Sprintf("requested %d seats with quantity %d", adj.Requested, adj.Quantity),
				Request:    map[string]any{"serviceId": out.ServiceID, "delta": adj.Delta},
				Response:   adj,
			})
			out.Warnings = append(out.Warnings, fmt.Sprintf("Oversold: flight %d", adj.FlightID))
		}
		if adj.Clamped() && !adj.Oversold {
			s.log.Warn("release below zero, sold clamped to 0",
				"flightId", adj.FlightID,
				"requested", adj.Requested,
				"serviceId", out.ServiceID,
			)
		}
		if adj.SoldOut {
			cr := s.cascade.Run(ctx, adj)
			out.Deactivated = append(out.Deactivated, cr.Deactivated...)
		}
	}

	meta := events.EventMeta{
		CorrelationID: middleware.GetCorrelationID(ctx),
		PartitionKey:  sequence.ReservationPartition(out.ServiceID),
	}
	payload := events.ReservationSyncedPayload{
		ReservationID:     res.ID,
		BookingReference:  in.BookingReference,
		UpstreamServiceID: out.ServiceID,
		Action:            string(out.Action),
		Status:            string(res.Status),
		FlightIDs:         out.FlightIDs,
		PassengerDelta:    out.PassengerDelta,
	}
	if err := s.events.PublishReservationSynced(ctx, meta, payload); err != nil {
		s.log.Warn("publish ReservationSynced failed", "serviceId", out.ServiceID, "error", err)
	}
}

// checkPrices compares the per-passenger, per-leg price paid with the upstream transport
// price. Mismatches are reported, never enforced.
func (s *Service) checkPrices(ctx context.Context, res Reservation, legs []catalog.Flight, out *Outcome) {
	if s.prices == nil || len(legs) == 0 {
		return
	}
	pax := res.Passengers()
	if pax == 0 || res.TotalAmount.IsZero() {
		return
	}
	expected := res.TotalAmount.
		Div(decimal.NewFromInt(int64(pax))).
		Div(decimal.NewFromInt(int64(len(legs)))).
		Round(2)

	for _, f := range legs {
		if !f.HasUpstream() {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, s.priceTimeout)
		check, err := s.prices.ValidateTransportPrice(callCtx, f.UpstreamTransportID, expected, s.tolerance)
		cancel()

		entry := audit.Entry{
			EntityType: audit.EntityReservation,
			EntityID:   res.UpstreamServiceID,
			Action:     "validate_price",
			Direction:  audit.DirectionPush,
			Status:     audit.StatusWarning,
			Request:    map[string]any{"transportId": f.UpstreamTransportID, "expectedPrice": expected},
		}
		switch {
		case err != nil:
			s.log.Warn("price validation failed", "transportId", f.UpstreamTransportID, "error", err)
			entry.Error = err.Error()
			s.audit.Record(ctx, entry)
		case !check.IsValid:
			s.log.Warn("price mismatch",
				"transportId", f.UpstreamTransportID,
				"expected", check.ExpectedPrice.String(),
				"actual", check.ActualPrice.String(),
				"percentDiff", check.PercentDiff.String(),
				"transportFound", check.TransportFound,
			)
			entry.Error = "PriceMismatch"
			entry.Response = check
			s.audit.Record(ctx, entry)
			out.Warnings = append(out.Warnings, fmt.Sprintf("PriceMismatch: flight %d", f.ID))
		}
	}
}
