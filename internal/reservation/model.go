package reservation

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

// Reservation is the local record of one upstream transport service.
type Reservation struct {
	ID                int64           `json:"id"`
	BookingReference  string          `json:"bookingReference"`
	UpstreamServiceID string          `json:"upstreamServiceId"`
	SupplierID        string          `json:"supplierId"`
	FlightID          *int64          `json:"flightId"`
	ReturnFlightID    *int64          `json:"returnFlightId,omitempty"`
	Status            Status          `json:"status"`
	Adults            int             `json:"adults"`
	Children          int             `json:"children"`
	Infants           int             `json:"infants"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	Currency          string          `json:"currency"`
	TravelDate        *time.Time      `json:"travelDate,omitempty"`
	RawPayload        json.RawMessage `json:"rawPayload,omitempty"`
	ReservedAt        time.Time       `json:"reservedAt"`
	ModifiedAt        *time.Time      `json:"modifiedAt,omitempty"`
	CancelledAt       *time.Time      `json:"cancelledAt,omitempty"`
}

func (r Reservation) Passengers() int {
	return r.Adults + r.Children + r.Infants
}

// FlightIDs returns the linked legs, outbound first.
func (r Reservation) FlightIDs() []int64 {
	var ids []int64
	if r.FlightID != nil {
		ids = append(ids, *r.FlightID)
	}
	if r.ReturnFlightID != nil {
		ids = append(ids, *r.ReturnFlightID)
	}
	return ids
}

// applyService copies the mutable fields of an upstream service onto r.
func (r *Reservation) applyService(svc upstream.Service) {
	r.Adults = svc.Passengers.Adults
	r.Children = svc.Passengers.Children
	r.Infants = svc.Passengers.Infants
	r.TotalAmount = svc.TotalAmount
	r.Currency = svc.Currency
	r.RawPayload = svc.Raw
	if d := travelDate(svc); d != nil {
		r.TravelDate = d
	}
}

func newFromService(reference string, svc upstream.Service, now time.Time) Reservation {
	r := Reservation{
		BookingReference:  reference,
		UpstreamServiceID: svc.ID.String(),
		SupplierID:        svc.SupplierID.String(),
		Status:            StatusConfirmed,
		ReservedAt:        now,
	}
	r.applyService(svc)
	return r
}

func travelDate(svc upstream.Service) *time.Time {
	t := svc.TravelDate.Time
	if t.IsZero() && len(svc.Segments) > 0 {
		t = svc.Segments[0].DepartureAt.Time
	}
	if t.IsZero() {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}
