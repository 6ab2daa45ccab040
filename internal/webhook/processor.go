package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/audit"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

type ReservationHandler interface {
	Handle(ctx context.Context, kind reservation.EventKind, in reservation.Input) (reservation.Outcome, error)
}

// Response is the body returned for an accepted delivery.
type Response struct {
	Success          bool                  `json:"success"`
	BookingReference string                `json:"bookingReference"`
	EventKind        reservation.EventKind `json:"eventKind"`
	Processed        int                   `json:"processed"`
	Results          []reservation.Outcome `json:"results"`
}

// Processor runs one webhook delivery end to end. Services are handled one after the
// other and a failure in one is reported in its own result.
type Processor struct {
	normalizer *Normalizer
	filter     *Filter
	handler    ReservationHandler
	audit      audit.Recorder
	metrics    *metrics.Metrics
	log        logger.Logger
}

func NewProcessor(n *Normalizer, f *Filter, h ReservationHandler, rec audit.Recorder, m *metrics.Metrics, log logger.Logger) *Processor {
	return &Processor{normalizer: n, filter: f, handler: h, audit: rec, metrics: m, log: log}
}

func (p *Processor) Process(ctx context.Context, secret string, body []byte) (Response, error) {
	start := time.Now()
	defer func() { p.metrics.ProcessingTime.Observe(time.Since(start).Seconds()) }()

	ev, err := p.normalizer.Normalize(ctx, secret, body)
	if err != nil {
		p.metrics.WebhooksReceived.WithLabelValues(outcomeFor(err)).Inc()
		if !errors.Is(err, ErrUnauthenticated) {
			p.audit.Record(ctx, audit.Entry{
				EntityType: audit.EntityBooking,
				EntityID:   ev.Reference,
				Action:     "fetch_booking",
				Status:     audit.StatusError,
				Error:      err.Error(),
			})
		}
		return Response{}, err
	}
	p.metrics.WebhooksReceived.WithLabelValues("accepted").Inc()

	log := p.log.With("bookingReference", ev.Reference, "eventKind", string(ev.Kind))
	if ev.Kind == reservation.KindUnknown {
		p.metrics.UnknownEventKinds.WithLabelValues(unknownKindReason(ev.Label)).Inc()
		log.Warn("unknown event kind, processing as create", "label", strings.ToValidUTF8(ev.Label, "\uFFFD"))
	}

	services, skipped := p.filter.Split(ctx, ev.Booking.Services)
	resp := Response{
		Success:          true,
		BookingReference: ev.Reference,
		EventKind:        ev.Kind,
		Results:          make([]reservation.Outcome, 0, len(services)+len(skipped)),
	}
	for _, out := range skipped {
		p.metrics.ServicesProcessed.WithLabelValues(string(out.Action)).Inc()
		resp.Results = append(resp.Results, out)
	}

	for _, svc := range services {
		out := p.processService(ctx, ev, svc, log)
		resp.Results = append(resp.Results, out)
		resp.Processed++
	}
	log.Info("webhook processed", "services", len(services), "skipped", len(skipped))
	return resp, nil
}

func (p *Processor) processService(ctx context.Context, ev Event, svc upstream.Service, log logger.Logger) (out reservation.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = reservation.Outcome{ServiceID: svc.ID.String(), Action: reservation.ActionError, Error: fmt.Sprintf("panic: %v", r)}
			log.Error("service processing panicked", "serviceId", svc.ID.String(), "panic", r)
		}
		p.metrics.ServicesProcessed.WithLabelValues(string(out.Action)).Inc()
		p.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityReservation,
			EntityID:   svc.ID.String(),
			Action:     string(ev.Kind),
			Status:     auditStatus(out.Action),
			Error:      out.Error,
			Request:    svc.Raw,
			Response:   out,
		})
	}()

	out, err := p.handler.Handle(ctx, ev.Kind, reservation.Input{BookingReference: ev.Reference, Service: svc})
	if err != nil {
		log.Error("service processing failed", "serviceId", svc.ID.String(), "error", err)
		return reservation.Outcome{ServiceID: svc.ID.String(), Action: reservation.ActionError, Error: err.Error()}
	}
	return out
}

func auditStatus(a reservation.Action) audit.Status {
	switch a {
	case reservation.ActionSkipped:
		return audit.StatusSkipped
	case reservation.ActionError:
		return audit.StatusError
	default:
		return audit.StatusSuccess
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "upstream_unavailable"
	}
}

// unknownKindReason keeps the metric label set closed; the raw label only goes to the log.
func unknownKindReason(label string) string {
	if strings.TrimSpace(label) == "" {
		return "missing"
	}
	return "unrecognized"
}
