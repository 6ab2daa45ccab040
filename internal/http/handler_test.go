package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/inventory"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/middleware"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/webhook"
)

type fakeProcessor struct {
	resp          webhook.Response
	err           error
	gotSecret     string
	gotBody       string
	correlationID string
}

func (p *fakeProcessor) Process(ctx context.Context, secret string, body []byte) (webhook.Response, error) {
	p.gotSecret = secret
	p.gotBody = string(body)
	p.correlationID = middleware.GetCorrelationID(ctx)
	return p.resp, p.err
}

type fakeInventory struct {
	rows map[int64]inventory.Inventory
	err  error
}

func (f *fakeInventory) Get(ctx context.Context, flightID int64) (inventory.Inventory, error) {
	if f.err != nil {
		return inventory.Inventory{}, f.err
	}
	inv, ok := f.rows[flightID]
	if !ok {
		return inventory.Inventory{}, inventory.ErrLedgerRowMissing
	}
	return inv, nil
}

type fakeReservations struct {
	rows map[string]reservation.Reservation
}

func (f *fakeReservations) GetByServiceID(ctx context.Context, serviceID string) (reservation.Reservation, error) {
	res, ok := f.rows[serviceID]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	return res, nil
}

func newTestRouter(p *fakeProcessor) http.Handler {
	inv := &fakeInventory{rows: map[int64]inventory.Inventory{
		7: {FlightID: 7, ModalityID: 70, Quantity: 10, Sold: 4, Remaining: 6, Active: true},
	}}
	res := &fakeReservations{rows: map[string]reservation.Reservation{
		"SIV-1": {ID: 1, UpstreamServiceID: "SIV-1", Status: reservation.StatusConfirmed},
	}}
	return NewRouter(NewHandler(p, inv, res, "X-Webhook-Secret", logger.NewNop()))
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "ok" {
		t.Fatalf("expected body \"ok\", got %q", body)
	}
}

func TestBookingWebhookSuccess(t *testing.T) {
	p := &fakeProcessor{resp: webhook.Response{
		Success:          true,
		BookingReference: "BK-1",
		EventKind:        reservation.KindCreate,
		Processed:        1,
		Results:          []reservation.Outcome{{ServiceID: "SIV-1", Action: reservation.ActionCreated}},
	}}
	router := newTestRouter(p)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bookings", strings.NewReader(`{"bookingReference":"BK-1"}`))
	req.Header.Set("X-Webhook-Secret", "s3cret")
	req.Header.Set(middleware.HeaderCorrelationID, "corr-1")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if p.gotSecret != "s3cret" || p.gotBody != `{"bookingReference":"BK-1"}` {
		t.Fatalf("processor got secret %q body %q", p.gotSecret, p.gotBody)
	}
	if p.correlationID != "corr-1" {
		t.Fatalf("expected correlation id to reach processor, got %q", p.correlationID)
	}

	var got webhook.Response
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || got.Processed != 1 || got.Results[0].Action != reservation.ActionCreated {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestBookingWebhookErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w", webhook.ErrUnauthenticated), http.StatusUnauthorized},
		{fmt.Errorf("%w: booking reference missing", webhook.ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: timeout", webhook.ErrUpstreamUnavailable), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		router := newTestRouter(&fakeProcessor{err: tt.err})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bookings", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["success"] != false || body["error"] == "" {
			t.Fatalf("unexpected error body %v", body)
		}
	}
}

func TestGetFlightInventory(t *testing.T) {
	router := newTestRouter(&fakeProcessor{})

	tests := []struct {
		path string
		want int
	}{
		{"/api/flights/7/inventory", http.StatusOK},
		{"/api/flights/8/inventory", http.StatusNotFound},
		{"/api/flights/abc/inventory", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.path, tt.want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights/7/inventory", nil))
	var inv inventory.Inventory
	if err := json.NewDecoder(rec.Body).Decode(&inv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inv.Remaining != 6 {
		t.Fatalf("expected remaining 6, got %d", inv.Remaining)
	}
}

func TestGetFlightInventoryInternalError(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, &fakeInventory{err: errors.New("db down")}, &fakeReservations{}, "X-Webhook-Secret", logger.NewNop())
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights/7/inventory", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetReservation(t *testing.T) {
	router := newTestRouter(&fakeProcessor{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reservations/SIV-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reservations/SIV-404", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
