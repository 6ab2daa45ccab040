package events

import "time"

const (
	EventTypeFlightDeactivated = "FlightDeactivated"
	flightDeactivatedSchema    = "travelhub.flight.deactivated.v1"
)

const (
	ReasonSoldOut = "sold_out"
	ReasonPaired  = "paired_sold_out"
)

type FlightDeactivatedPayload struct {
	FlightID            int64     `json:"flightId"`
	SupplierID          string    `json:"supplierId"`
	UpstreamTransportID string    `json:"upstreamTransportId,omitempty"`
	Reason              string    `json:"reason"`
	TriggeredBy         int64     `json:"triggeredBy,omitempty"`
	UpstreamDeactivated bool      `json:"upstreamDeactivated"`
	Timestamp           time.Time `json:"timestamp"`
}

// LegacyFlightDeactivated is the flat, non-enveloped form.
type LegacyFlightDeactivated struct {
	EventType string `json:"eventType"`
	FlightDeactivatedPayload
}

type FlightDeactivatedEvent struct {
	EventEnvelope
	Payload FlightDeactivatedPayload `json:"payload"`
}
