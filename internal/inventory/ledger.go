package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrLedgerRowMissing = errors.New("ledger row missing")

// Executor matches both *pgxpool.Pool and pgx.Tx.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger applies passenger deltas through the apply_passenger_delta stored procedure,
// which locks the modality row and clamps sold to [0, quantity] in one statement.
type Ledger struct {
	exec Executor
}

func NewLedger(exec Executor) *Ledger {
	return &Ledger{exec: exec}
}

// WithExecutor returns a shallow copy using the provided executor (e.g., a transaction).
func (l *Ledger) WithExecutor(exec Executor) *Ledger {
	return &Ledger{exec: exec}
}

// ApplyPassengerDelta adds delta to the flight's sold count. A flight without a ledger row
// is not an error: it reports remaining=0 and soldOut=false with Missing set.
func (l *Ledger) ApplyPassengerDelta(ctx context.Context, flightID int64, delta int) (Adjustment, error) {
	adj, err := l.apply(ctx, flightID, delta)
	if errors.Is(err, ErrLedgerRowMissing) {
		return Adjustment{FlightID: flightID, Delta: delta, Missing: true}, nil
	}
	return adj, err
}

func (l *Ledger) apply(ctx context.Context, flightID int64, delta int) (Adjustment, error) {
	var (
		modalityID int64
		active     bool
	)
	adj := Adjustment{FlightID: flightID, Delta: delta}

	err := l.exec.QueryRow(ctx, `
		SELECT modality_id, quantity, sold, requested, active, COALESCE(upstream_transport_id, '')
		FROM apply_passenger_delta($1, $2)
	`, flightID, delta).Scan(&modalityID, &adj.Quantity, &adj.Sold, &adj.Requested, &active, &adj.UpstreamTransportID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return adj, ErrLedgerRowMissing
		}
		return adj, fmt.Errorf("apply passenger delta to flight %d: %w", flightID, err)
	}

	adj.Remaining = adj.Quantity - adj.Sold
	adj.SoldOut = adj.Remaining == 0 && active
	adj.Oversold = adj.Requested > adj.Quantity
	return adj, nil
}

// Get reads the ledger row without locking it.
func (l *Ledger) Get(ctx context.Context, flightID int64) (Inventory, error) {
	inv := Inventory{FlightID: flightID}
	err := l.exec.QueryRow(ctx, `
		SELECT m.id, m.quantity, m.sold, f.active
		FROM flight_modalities m
		JOIN flights f ON f.id = m.flight_id
		WHERE m.flight_id = $1
		ORDER BY (f.start_date BETWEEN m.start_date AND m.end_date) DESC, m.start_date, m.id
		LIMIT 1
	`, flightID).Scan(&inv.ModalityID, &inv.Quantity, &inv.Sold, &inv.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Inventory{}, ErrLedgerRowMissing
		}
		return Inventory{}, fmt.Errorf("get inventory for flight %d: %w", flightID, err)
	}
	inv.Remaining = inv.Quantity - inv.Sold
	return inv, nil
}
