package events

import "time"

const (
	EventTypeReservationSynced = "ReservationSynced"
	reservationSyncedSchema    = "travelhub.reservation.synced.v1"
)

type ReservationSyncedPayload struct {
	ReservationID     int64     `json:"reservationId"`
	BookingReference  string    `json:"bookingReference"`
	UpstreamServiceID string    `json:"upstreamServiceId"`
	Action            string    `json:"action"`
	Status            string    `json:"status"`
	FlightIDs         []int64   `json:"flightIds,omitempty"`
	PassengerDelta    int       `json:"passengerDelta"`
	Timestamp         time.Time `json:"timestamp"`
}

// LegacyReservationSynced is the flat, non-enveloped form.
type LegacyReservationSynced struct {
	EventType string `json:"eventType"`
	ReservationSyncedPayload
}

type ReservationSyncedEvent struct {
	EventEnvelope
	Payload ReservationSyncedPayload `json:"payload"`
}
