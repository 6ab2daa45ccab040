package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/inventory"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/webhook"
)

const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	Process(ctx context.Context, secret string, body []byte) (webhook.Response, error)
}

type InventoryReader interface {
	Get(ctx context.Context, flightID int64) (inventory.Inventory, error)
}

type ReservationReader interface {
	GetByServiceID(ctx context.Context, serviceID string) (reservation.Reservation, error)
}

type Handler struct {
	webhooks     WebhookProcessor
	inventory    InventoryReader
	reservations ReservationReader
	secretHeader string
	log          logger.Logger
}

func NewHandler(webhooks WebhookProcessor, inv InventoryReader, res ReservationReader, secretHeader string, log logger.Logger) *Handler {
	return &Handler{
		webhooks:     webhooks,
		inventory:    inv,
		reservations: res,
		secretHeader: secretHeader,
		log:          log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) BookingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	resp, err := h.webhooks.Process(r.Context(), r.Header.Get(h.secretHeader), body)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, webhook.ErrBadRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("webhook failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetFlightInventory(w http.ResponseWriter, r *http.Request) {
	flightID, err := strconv.ParseInt(chi.URLParam(r, "flightId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid flight id")
		return
	}

	inv, err := h.inventory.Get(r.Context(), flightID)
	if err != nil {
		if errors.Is(err, inventory.ErrLedgerRowMissing) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.log.Error("get inventory failed", "flightId", flightID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceId")
	res, err := h.reservations.GetByServiceID(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.log.Error("get reservation failed", "serviceId", serviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
