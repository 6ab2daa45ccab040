package webhook

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/audit"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

type scriptedHandler struct {
	calls []string
	kinds []reservation.EventKind
}

func (h *scriptedHandler) Handle(ctx context.Context, kind reservation.EventKind, in reservation.Input) (reservation.Outcome, error) {
	id := in.Service.ID.String()
	h.calls = append(h.calls, id)
	h.kinds = append(h.kinds, kind)
	switch id {
	case "fail":
		return reservation.Outcome{}, errors.New("ledger unavailable")
	case "panic":
		panic("boom")
	}
	return reservation.Outcome{ServiceID: id, Action: reservation.ActionCreated}, nil
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func newTestProcessor(booking *upstream.Booking, fetchErr error) (*Processor, *scriptedHandler, *recordingAudit, *metrics.Metrics) {
	log := logger.NewNop()
	h := &scriptedHandler{}
	rec := &recordingAudit{}
	m := metrics.NewForTest()
	n := NewNormalizer("s3cret", &fakeFetcher{booking: booking, err: fetchErr}, time.Second, log)
	f := NewFilter([]string{"10"}, nil, log)
	return NewProcessor(n, f, h, rec, m, log), h, rec, m
}

func TestProcessIsolatesServiceFailures(t *testing.T) {
	booking := &upstream.Booking{Reference: "BK-1", Services: []upstream.Service{
		{ID: "ok-1", Type: "transport", SupplierID: "10"},
		{ID: "fail", Type: "transport", SupplierID: "10"},
		{ID: "panic", Type: "transport", SupplierID: "10"},
		{ID: "ok-2", Type: "transport", SupplierID: "10"},
		{ID: "other", Type: "transport", SupplierID: "99"},
	}}
	p, h, rec, m := newTestProcessor(booking, nil)

	resp, err := p.Process(context.Background(), "s3cret", []byte(`{"bookingReference":"BK-1","event":"BOOKING_CREATED"}`))
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "BK-1", resp.BookingReference)
	require.Equal(t, reservation.KindCreate, resp.EventKind)
	require.Equal(t, 4, resp.Processed)
	require.Equal(t, []string{"ok-1", "fail", "panic", "ok-2"}, h.calls)

	byID := make(map[string]reservation.Outcome)
	for _, out := range resp.Results {
		byID[out.ServiceID] = out
	}
	require.Equal(t, reservation.ActionSkipped, byID["other"].Action)
	require.Equal(t, ReasonSupplierNotManaged, byID["other"].Reason)
	require.Equal(t, reservation.ActionError, byID["fail"].Action)
	require.Equal(t, "ledger unavailable", byID["fail"].Error)
	require.Equal(t, reservation.ActionError, byID["panic"].Action)
	require.Equal(t, reservation.ActionCreated, byID["ok-2"].Action)

	require.Len(t, rec.entries, 4)
	require.Equal(t, audit.StatusError, rec.entries[1].Status)
	require.Equal(t, audit.StatusSuccess, rec.entries[3].Status)
	require.Equal(t, 2.0, testutil.ToFloat64(m.ServicesProcessed.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.WebhooksReceived.WithLabelValues("accepted")))
}

func TestProcessUnknownKindRunsAsCreate(t *testing.T) {
	booking := &upstream.Booking{Reference: "BK-2", Services: []upstream.Service{
		{ID: "s1", Type: "transport", SupplierID: "10"},
	}}
	p, h, _, m := newTestProcessor(booking, nil)

	resp, err := p.Process(context.Background(), "s3cret", []byte(`{"reference":"BK-2","event":"PAYMENT_RECEIVED"}`))
	require.NoError(t, err)
	require.Equal(t, reservation.KindUnknown, resp.EventKind)
	require.Equal(t, []reservation.EventKind{reservation.KindUnknown}, h.kinds)
	require.Equal(t, 1.0, testutil.ToFloat64(m.UnknownEventKinds.WithLabelValues("unrecognized")))
}

func TestProcessUnknownKindWithMultiByteLabel(t *testing.T) {
	booking := &upstream.Booking{Reference: "BK-9", Services: []upstream.Service{
		{ID: "s1", Type: "transport", SupplierID: "10"},
	}}
	p, h, _, m := newTestProcessor(booking, nil)

	label := strings.Repeat("A", 63) + "é"
	body := []byte(`{"reference":"BK-9","event":"` + label + `"}`)

	resp, err := p.Process(context.Background(), "s3cret", body)
	require.NoError(t, err)
	require.Equal(t, reservation.KindUnknown, resp.EventKind)
	require.Equal(t, 1, resp.Processed)
	require.Equal(t, []string{"s1"}, h.calls)
	require.Equal(t, 1.0, testutil.ToFloat64(m.UnknownEventKinds.WithLabelValues("unrecognized")))
}

func TestProcessMissingEventLabel(t *testing.T) {
	booking := &upstream.Booking{Reference: "BK-10", Services: []upstream.Service{
		{ID: "s1", Type: "transport", SupplierID: "10"},
	}}
	p, h, _, m := newTestProcessor(booking, nil)

	resp, err := p.Process(context.Background(), "s3cret", []byte(`{"reference":"BK-10"}`))
	require.NoError(t, err)
	require.Equal(t, reservation.KindUnknown, resp.EventKind)
	require.Equal(t, []string{"s1"}, h.calls)
	require.Equal(t, 1.0, testutil.ToFloat64(m.UnknownEventKinds.WithLabelValues("missing")))
}

func TestProcessUpstreamFailureIsFatal(t *testing.T) {
	p, h, rec, m := newTestProcessor(nil, errors.New("circuit open"))

	_, err := p.Process(context.Background(), "s3cret", []byte(`{"reference":"BK-3"}`))
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.Empty(t, h.calls)
	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.EntityBooking, rec.entries[0].EntityType)
	require.Equal(t, "BK-3", rec.entries[0].EntityID)
	require.Equal(t, 1.0, testutil.ToFloat64(m.WebhooksReceived.WithLabelValues("upstream_unavailable")))
}

func TestProcessUnauthenticatedIsNotAudited(t *testing.T) {
	p, _, rec, _ := newTestProcessor(nil, nil)

	_, err := p.Process(context.Background(), "wrong", []byte(`{"reference":"BK-4"}`))
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Empty(t, rec.entries)
}
