package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/audit"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/catalog"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/events"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

type fakeFlights struct {
	flights       map[int64]catalog.Flight
	getErr        error
	deactivateErr error
	deactivated   []int64
}

func newFakeFlights(fs ...catalog.Flight) *fakeFlights {
	m := make(map[int64]catalog.Flight, len(fs))
	for _, f := range fs {
		m[f.ID] = f
	}
	return &fakeFlights{flights: m}
}

func (f *fakeFlights) Get(ctx context.Context, id int64) (catalog.Flight, error) {
	if f.getErr != nil {
		return catalog.Flight{}, f.getErr
	}
	fl, ok := f.flights[id]
	if !ok {
		return catalog.Flight{}, catalog.ErrNotFound
	}
	return fl, nil
}

func (f *fakeFlights) Deactivate(ctx context.Context, id int64) (bool, error) {
	if f.deactivateErr != nil {
		return false, f.deactivateErr
	}
	fl, ok := f.flights[id]
	if !ok || !fl.Active {
		return false, nil
	}
	fl.Active = false
	f.flights[id] = fl
	f.deactivated = append(f.deactivated, id)
	return true, nil
}

type fakeUpstream struct {
	calls  []string
	result upstream.DeleteResult
	err    error
	block  bool
}

func (f *fakeUpstream) DeleteTransport(ctx context.Context, transportID string) (upstream.DeleteResult, error) {
	f.calls = append(f.calls, transportID)
	if f.block {
		<-ctx.Done()
		return upstream.DeleteResult{}, ctx.Err()
	}
	return f.result, f.err
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) byStatus(s audit.Status) []audit.Entry {
	var out []audit.Entry
	for _, e := range r.entries {
		if e.Status == s {
			out = append(out, e)
		}
	}
	return out
}

type recordingEvents struct {
	published []events.FlightDeactivatedPayload
	err       error
}

func (r *recordingEvents) PublishFlightDeactivated(ctx context.Context, meta events.EventMeta, p events.FlightDeactivatedPayload) error {
	r.published = append(r.published, p)
	return r.err
}

type cascadeFixture struct {
	flights *fakeFlights
	up      *fakeUpstream
	audit   *recordingAudit
	events  *recordingEvents
	metrics *metrics.Metrics
	cascade *Cascade
}

func newCascadeFixture(fs ...catalog.Flight) *cascadeFixture {
	fx := &cascadeFixture{
		flights: newFakeFlights(fs...),
		up:      &fakeUpstream{result: upstream.DeleteResult{Success: true}},
		audit:   &recordingAudit{},
		events:  &recordingEvents{},
		metrics: metrics.NewForTest(),
	}
	fx.cascade = NewCascade(fx.flights, fx.up, fx.audit, fx.events, fx.metrics, logger.NewNop(), 50*time.Millisecond)
	return fx
}

func pairID(id int64) *int64 { return &id }

func TestCascadeDeactivatesFlightAndPair(t *testing.T) {
	fx := newCascadeFixture(
		catalog.Flight{ID: 1, Active: true, UpstreamTransportID: "tr-1", PairedFlightID: pairID(2)},
		catalog.Flight{ID: 2, Active: true, UpstreamTransportID: "tr-2", PairedFlightID: pairID(1)},
	)

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

	if len(res.Deactivated) != 2 || res.Deactivated[0] != 1 || res.Deactivated[1] != 2 {
		t.Fatalf("unexpected deactivated: %+v", res.Deactivated)
	}
	if len(fx.up.calls) != 2 || fx.up.calls[0] != "tr-1" || fx.up.calls[1] != "tr-2" {
		t.Fatalf("unexpected upstream calls: %v", fx.up.calls)
	}
	if len(fx.events.published) != 2 || fx.events.published[1].Reason != events.ReasonPaired || fx.events.published[1].TriggeredBy != 1 {
		t.Fatalf("unexpected events: %+v", fx.events.published)
	}
	if got := testutil.ToFloat64(fx.metrics.FlightsDeactivated.WithLabelValues("pair", "ok")); got != 1 {
		t.Fatalf("pair metric = %v", got)
	}
}

func TestCascadeWithoutPairDeactivatesOnlySelf(t *testing.T) {
	fx := newCascadeFixture(
		catalog.Flight{ID: 1, Active: true, UpstreamTransportID: "tr-1"},
		catalog.Flight{ID: 2, Active: true},
	)

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

	if len(res.Deactivated) != 1 || res.Deactivated[0] != 1 {
		t.Fatalf("unexpected deactivated: %+v", res.Deactivated)
	}
	if !fx.flights.flights[2].Active {
		t.Fatalf("unrelated flight must stay active")
	}
}

func TestCascadeAlreadyInactiveMakesNoUpstreamCall(t *testing.T) {
	fx := newCascadeFixture(
		catalog.Flight{ID: 1, Active: false, UpstreamTransportID: "tr-1", PairedFlightID: pairID(2)},
		catalog.Flight{ID: 2, Active: true, PairedFlightID: pairID(1)},
	)

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

	if len(res.Deactivated) != 0 {
		t.Fatalf("nothing should be deactivated: %+v", res.Deactivated)
	}
	if len(fx.up.calls) != 0 {
		t.Fatalf("no upstream call expected, got %v", fx.up.calls)
	}
	if !fx.flights.flights[2].Active {
		t.Fatalf("pair must not be touched when the cascade stops")
	}
	if len(fx.audit.byStatus(audit.StatusSkipped)) != 1 {
		t.Fatalf("expected a skipped audit entry: %+v", fx.audit.entries)
	}
}

func TestCascadeInactivePairIsLeftAlone(t *testing.T) {
	fx := newCascadeFixture(
		catalog.Flight{ID: 1, Active: true, PairedFlightID: pairID(2)},
		catalog.Flight{ID: 2, Active: false, UpstreamTransportID: "tr-2", PairedFlightID: pairID(1)},
	)

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

	if len(res.Deactivated) != 1 {
		t.Fatalf("unexpected deactivated: %+v", res.Deactivated)
	}
	if len(fx.up.calls) != 0 {
		t.Fatalf("flight without transport id and inactive pair need no upstream call: %v", fx.up.calls)
	}
}

func TestCascadeUpstreamFailureKeepsLocalState(t *testing.T) {
	tests := map[string]*fakeUpstream{
		"transport error": {err: errors.New("connection refused")},
		"refused":         {result: upstream.DeleteResult{Success: false, Error: "locked"}},
		"timeout":         {block: true},
	}

	for name, up := range tests {
		t.Run(name, func(t *testing.T) {
			fx := newCascadeFixture(catalog.Flight{ID: 1, Active: true, UpstreamTransportID: "tr-1"})
			fx.cascade.upstream = up

			res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

			if fx.flights.flights[1].Active {
				t.Fatalf("local deactivation must not be rolled back")
			}
			if len(res.UpstreamFailures) != 1 {
				t.Fatalf("expected upstream failure recorded: %+v", res)
			}
			errs := fx.audit.byStatus(audit.StatusError)
			if len(errs) != 1 || errs[0].Action != ActionDeactivateUpstream || errs[0].Direction != audit.DirectionPush {
				t.Fatalf("expected one upstream error entry: %+v", fx.audit.entries)
			}
			if len(fx.events.published) != 1 || fx.events.published[0].UpstreamDeactivated {
				t.Fatalf("event should report local-only deactivation: %+v", fx.events.published)
			}
		})
	}
}

func TestCascadeNotSoldOutIsNoop(t *testing.T) {
	fx := newCascadeFixture(catalog.Flight{ID: 1, Active: true})

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, Remaining: 3})

	if len(res.Deactivated) != 0 || len(fx.audit.entries) != 0 {
		t.Fatalf("expected no-op, got %+v / %+v", res, fx.audit.entries)
	}
}

func TestCascadeLocalFailureStops(t *testing.T) {
	fx := newCascadeFixture(catalog.Flight{ID: 1, Active: true, UpstreamTransportID: "tr-1"})
	fx.flights.deactivateErr = errors.New("db down")

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

	if len(res.Deactivated) != 0 || len(fx.up.calls) != 0 {
		t.Fatalf("nothing should proceed after local failure: %+v calls=%v", res, fx.up.calls)
	}
}

func TestCascadePublishFailureIsNonFatal(t *testing.T) {
	fx := newCascadeFixture(catalog.Flight{ID: 1, Active: true})
	fx.events.err = errors.New("channel closed")

	res := fx.cascade.Run(context.Background(), Adjustment{FlightID: 1, SoldOut: true})

	if len(res.Deactivated) != 1 {
		t.Fatalf("publish failure must not affect deactivation: %+v", res)
	}
}
