package reservation

import "github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/inventory"

type Action string

const (
	ActionCreated   Action = "created"
	ActionModified  Action = "modified"
	ActionCancelled Action = "cancelled"
	ActionSkipped   Action = "skipped"
	ActionError     Action = "error"
)

const (
	ReasonAlreadyExists    = "Reservation already exists"
	ReasonAlreadyCancelled = "Reservation already cancelled"
	ReasonNotFound         = "Reservation not found"
)

// Outcome is the per-service result reported back to the webhook caller.
type Outcome struct {
	ServiceID      string                 `json:"serviceId"`
	Action         Action                 `json:"action"`
	Reason         string                 `json:"reason,omitempty"`
	ReservationID  int64                  `json:"reservationId,omitempty"`
	FlightIDs      []int64                `json:"flightIds,omitempty"`
	PassengerDelta int                    `json:"passengerDelta"`
	Adjustments    []inventory.Adjustment `json:"adjustments,omitempty"`
	Deactivated    []int64                `json:"deactivated,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

func skipped(serviceID, reason string) Outcome {
	return Outcome{ServiceID: serviceID, Action: ActionSkipped, Reason: reason}
}
