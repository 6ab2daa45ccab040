package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/audit"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/catalog"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/events"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/middleware"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/sequence"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

const (
	ActionDeactivateLocal    = "deactivate_local"
	ActionDeactivateUpstream = "deactivate_upstream"
)

type FlightStore interface {
	Get(ctx context.Context, id int64) (catalog.Flight, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
}

type TransportDeactivator interface {
	DeleteTransport(ctx context.Context, transportID string) (upstream.DeleteResult, error)
}

type FlightEvents interface {
	PublishFlightDeactivated(ctx context.Context, meta events.EventMeta, payload events.FlightDeactivatedPayload) error
}

// CascadeResult lists what one cascade run changed.
type CascadeResult struct {
	Deactivated      []int64 `json:"deactivated,omitempty"`
	UpstreamFailures []int64 `json:"upstreamFailures,omitempty"`
}

// Cascade switches off sold-out flights locally and upstream, then their still-active pair.
// It never touches seat counts.
type Cascade struct {
	flights  FlightStore
	upstream TransportDeactivator
	audit    audit.Recorder
	events   FlightEvents
	metrics  *metrics.Metrics
	log      logger.Logger
	timeout  time.Duration
}

func NewCascade(flights FlightStore, up TransportDeactivator, rec audit.Recorder, ev FlightEvents, m *metrics.Metrics, log logger.Logger, upstreamTimeout time.Duration) *Cascade {
	return &Cascade{
		flights:  flights,
		upstream: up,
		audit:    rec,
		events:   ev,
		metrics:  m,
		log:      log,
		timeout:  upstreamTimeout,
	}
}

// Run is a no-op unless adj reports a sold-out flight.
func (c *Cascade) Run(ctx context.Context, adj Adjustment) CascadeResult {
	var res CascadeResult
	if !adj.SoldOut {
		return res
	}

	flight, err := c.flights.Get(ctx, adj.FlightID)
	if err != nil {
		c.log.Error("cascade: load sold-out flight", "flightId", adj.FlightID, "error", err)
		c.record(ctx, adj.FlightID, ActionDeactivateLocal, audit.DirectionPull, audit.StatusError, err.Error(), adj, nil)
		return res
	}

	if !c.deactivate(ctx, flight, events.ReasonSoldOut, 0, &res) {
		return res
	}

	if flight.PairedFlightID == nil {
		return res
	}
	pair, err := c.flights.Get(ctx, *flight.PairedFlightID)
	if err != nil {
		c.log.Error("cascade: load paired flight", "flightId", flight.ID, "pairedFlightId", *flight.PairedFlightID, "error", err)
		c.record(ctx, *flight.PairedFlightID, ActionDeactivateLocal, audit.DirectionPull, audit.StatusError, err.Error(), nil, nil)
		return res
	}
	if !pair.Active {
		return res
	}
	c.deactivate(ctx, pair, events.ReasonPaired, flight.ID, &res)
	return res
}

// deactivate reports false when the flight was already inactive or the local update failed;
// in both cases nothing further happens for it.
func (c *Cascade) deactivate(ctx context.Context, f catalog.Flight, reason string, triggeredBy int64, res *CascadeResult) bool {
	target := "self"
	if triggeredBy != 0 {
		target = "pair"
	}
	request := map[string]any{"flightId": f.ID, "reason": reason}

	changed, err := c.flights.Deactivate(ctx, f.ID)
	if err != nil {
		c.metrics.FlightsDeactivated.WithLabelValues(target, "error").Inc()
		c.log.Error("cascade: local deactivation failed", "flightId", f.ID, "error", err)
		c.record(ctx, f.ID, ActionDeactivateLocal, audit.DirectionPull, audit.StatusError, err.Error(), request, nil)
		return false
	}
	if !changed {
		c.log.Info("cascade: flight already inactive", "flightId", f.ID)
		c.record(ctx, f.ID, ActionDeactivateLocal, audit.DirectionPull, audit.StatusSkipped, "", request, map[string]any{"reason": "already inactive"})
		return false
	}

	c.metrics.FlightsDeactivated.WithLabelValues(target, "ok").Inc()
	c.log.Info("flight deactivated", "flightId", f.ID, "reason", reason, "triggeredBy", triggeredBy)
	c.record(ctx, f.ID, ActionDeactivateLocal, audit.DirectionPull, audit.StatusSuccess, "", request, nil)
	res.Deactivated = append(res.Deactivated, f.ID)

	upstreamOK := false
	if f.HasUpstream() {
		upstreamOK = c.deactivateUpstream(ctx, f)
		if !upstreamOK {
			res.UpstreamFailures = append(res.UpstreamFailures, f.ID)
		}
	}

	payload := events.FlightDeactivatedPayload{
		FlightID:            f.ID,
		SupplierID:          f.SupplierID,
		UpstreamTransportID: f.UpstreamTransportID,
		Reason:              reason,
		TriggeredBy:         triggeredBy,
		UpstreamDeactivated: upstreamOK,
	}
	meta := events.EventMeta{
		CorrelationID: middleware.GetCorrelationID(ctx),
		PartitionKey:  sequence.FlightPartition(f.ID),
	}
	if err := c.events.PublishFlightDeactivated(ctx, meta, payload); err != nil {
		c.log.Warn("publish FlightDeactivated failed", "flightId", f.ID, "error", err)
	}
	return true
}

func (c *Cascade) deactivateUpstream(ctx context.Context, f catalog.Flight) bool {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request := map[string]any{"transportId": f.UpstreamTransportID}
	out, err := c.upstream.DeleteTransport(callCtx, f.UpstreamTransportID)
	if err == nil && !out.Success {
		err = fmt.Errorf("upstream refused deactivation: %s", out.Error)
	}
	if err != nil {
		c.metrics.FlightsDeactivated.WithLabelValues("upstream", "error").Inc()
		c.log.Warn("UpstreamDeactivationFailed",
			"flightId", f.ID,
			"upstreamTransportId", f.UpstreamTransportID,
			"error", err,
		)
		c.record(ctx, f.ID, ActionDeactivateUpstream, audit.DirectionPush, audit.StatusError, err.Error(), request, out)
		return false
	}

	c.metrics.FlightsDeactivated.WithLabelValues("upstream", "ok").Inc()
	c.record(ctx, f.ID, ActionDeactivateUpstream, audit.DirectionPush, audit.StatusSuccess, "", request, out)
	return true
}

func (c *Cascade) record(ctx context.Context, flightID int64, action string, dir audit.Direction, status audit.Status, errText string, req, resp any) {
	c.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityFlight,
		EntityID:   strconv.FormatInt(flightID, 10),
		Action:     action,
		Direction:  dir,
		Status:     status,
		Error:      errText,
		Request:    req,
		Response:   resp,
	})
}
