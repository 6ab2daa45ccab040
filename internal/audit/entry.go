package audit

import (
	"context"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
	StatusWarning Status = "warning"
)

// Direction is push when we call the upstream platform and pull when it calls us.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

const (
	EntityReservation = "reservation"
	EntityFlight      = "flight"
	EntityBooking     = "booking"
)

// Entry is one append-only sync log record.
type Entry struct {
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	Action        string    `json:"action"`
	Direction     Direction `json:"direction"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Request       any       `json:"request,omitempty"`
	Response      any       `json:"response,omitempty"`
	CorrelationID string    `json:"correlationId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Sink persists entries. Implementations return errors; Logger decides what to do with them.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Recorder is what the reconciliation flow depends on. Record never fails.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}
