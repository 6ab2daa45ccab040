package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

var (
	ErrUnauthenticated     = errors.New("invalid webhook secret")
	ErrBadRequest          = errors.New("invalid webhook payload")
	ErrUpstreamUnavailable = errors.New("booking not available upstream")
)

var (
	referenceKeys = []string{"bookingReference", "booking_reference", "reference", "bookingRef", "locator", "bookingId", "booking_id"}
	eventKeys     = []string{"event", "action", "eventType", "event_type", "type", "status"}
	nestedKeys    = []string{"data", "booking", "payload"}
)

type BookingFetcher interface {
	GetBooking(ctx context.Context, reference string) (*upstream.Booking, error)
}

// Event is a webhook delivery after authentication, parsing and the upstream fetch.
type Event struct {
	Reference string
	Label     string
	Kind      reservation.EventKind
	Booking   *upstream.Booking
}

type Normalizer struct {
	secret       string
	fetcher      BookingFetcher
	fetchTimeout time.Duration
	log          logger.Logger
}

func NewNormalizer(secret string, fetcher BookingFetcher, fetchTimeout time.Duration, log logger.Logger) *Normalizer {
	return &Normalizer{secret: secret, fetcher: fetcher, fetchTimeout: fetchTimeout, log: log}
}

// Authenticate fails closed: an unconfigured secret rejects every delivery.
func (n *Normalizer) Authenticate(provided string) error {
	if n.secret == "" || provided == "" {
		return ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(n.secret)) != 1 {
		return ErrUnauthenticated
	}
	return nil
}

func (n *Normalizer) Normalize(ctx context.Context, secret string, body []byte) (Event, error) {
	if err := n.Authenticate(secret); err != nil {
		return Event{}, err
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	ev := Event{
		Reference: lookup(payload, referenceKeys),
		Label:     lookup(payload, eventKeys),
	}
	if ev.Reference == "" {
		return Event{}, fmt.Errorf("%w: booking reference missing", ErrBadRequest)
	}
	ev.Kind = reservation.ClassifyEvent(ev.Label)

	fetchCtx, cancel := context.WithTimeout(ctx, n.fetchTimeout)
	defer cancel()
	booking, err := n.fetcher.GetBooking(fetchCtx, ev.Reference)
	if err != nil {
		n.log.Error("fetch booking failed", "reference", ev.Reference, "error", err)
		return ev, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if booking.Empty() {
		return ev, fmt.Errorf("%w: booking %s not found", ErrUpstreamUnavailable, ev.Reference)
	}
	ev.Booking = booking
	return ev, nil
}

// lookup returns the first non-empty value among keys, at the top level first and then
// inside the known envelope objects.
func lookup(payload map[string]any, keys []string) string {
	if v := firstScalar(payload, keys); v != "" {
		return v
	}
	for _, nk := range nestedKeys {
		nested, ok := payload[nk].(map[string]any)
		if !ok {
			continue
		}
		if v := firstScalar(nested, keys); v != "" {
			return v
		}
	}
	return ""
}

func firstScalar(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
