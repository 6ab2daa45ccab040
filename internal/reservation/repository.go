package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("reservation not found")

// Executor represents the subset of pgx methods required for reservation operations.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	executor Executor
}

func NewRepository(exec Executor) *Repository {
	return &Repository{executor: exec}
}

// WithExecutor returns a shallow copy using the provided executor (e.g., a transaction).
func (r *Repository) WithExecutor(exec Executor) *Repository {
	return &Repository{executor: exec}
}

const selectColumns = `
	id, booking_reference, upstream_service_id, supplier_id, flight_id, return_flight_id,
	status, adults, children, infants, total_amount::text, currency, travel_date,
	raw_payload, reserved_at, modified_at, cancelled_at
`

func (r *Repository) GetByServiceID(ctx context.Context, serviceID string) (Reservation, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM reservations WHERE upstream_service_id = $1`, serviceID)
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, serviceID string) (Reservation, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM reservations WHERE upstream_service_id = $1 FOR UPDATE`, serviceID)
}

func (r *Repository) get(ctx context.Context, sql, serviceID string) (Reservation, error) {
	var (
		res    Reservation
		status string
		amount string
		raw    []byte
	)
	err := r.executor.QueryRow(ctx, sql, serviceID).Scan(
		&res.ID, &res.BookingReference, &res.UpstreamServiceID, &res.SupplierID, &res.FlightID, &res.ReturnFlightID,
		&status, &res.Adults, &res.Children, &res.Infants, &amount, &res.Currency, &res.TravelDate,
		&raw, &res.ReservedAt, &res.ModifiedAt, &res.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, fmt.Errorf("select reservation %s: %w", serviceID, err)
	}
	res.Status = Status(status)
	res.RawPayload = raw
	if res.TotalAmount, err = decimal.NewFromString(amount); err != nil {
		return Reservation{}, fmt.Errorf("parse total amount %q: %w", amount, err)
	}
	return res, nil
}

// Insert creates the reservation unless one already exists for its upstream service id.
// The boolean is false when another delivery got there first.
func (r *Repository) Insert(ctx context.Context, res Reservation) (int64, bool, error) {
	var id int64
	err := r.executor.QueryRow(ctx, `
		INSERT INTO reservations
			(booking_reference, upstream_service_id, supplier_id, flight_id, return_flight_id,
			 status, adults, children, infants, total_amount, currency, travel_date,
			 raw_payload, reserved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text::numeric, $11, $12, $13, $14)
		ON CONFLICT (upstream_service_id) DO NOTHING
		RETURNING id
	`, res.BookingReference, res.UpstreamServiceID, res.SupplierID, res.FlightID, res.ReturnFlightID,
		string(res.Status), res.Adults, res.Children, res.Infants, res.TotalAmount.String(), res.Currency, res.TravelDate,
		payload(res.RawPayload), res.ReservedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("insert reservation %s: %w", res.UpstreamServiceID, err)
	}
	return id, true, nil
}

// Update persists status, passenger counts, amounts and timestamps. Flight links are never
// rewritten after creation.
func (r *Repository) Update(ctx context.Context, res Reservation) error {
	tag, err := r.executor.Exec(ctx, `
		UPDATE reservations
		SET status = $2, adults = $3, children = $4, infants = $5,
			total_amount = $6::text::numeric, currency = $7, travel_date = $8,
			raw_payload = $9, modified_at = $10, cancelled_at = $11
		WHERE id = $1
	`, res.ID, string(res.Status), res.Adults, res.Children, res.Infants,
		res.TotalAmount.String(), res.Currency, res.TravelDate,
		payload(res.RawPayload), res.ModifiedAt, res.CancelledAt)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", res.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func payload(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
