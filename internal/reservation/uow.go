package reservation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/inventory"
)

// Store is the reservation persistence used by the state machine.
type Store interface {
	GetByServiceID(ctx context.Context, serviceID string) (Reservation, error)
	GetForUpdate(ctx context.Context, serviceID string) (Reservation, error)
	Insert(ctx context.Context, res Reservation) (int64, bool, error)
	Update(ctx context.Context, res Reservation) error
}

type Ledger interface {
	ApplyPassengerDelta(ctx context.Context, flightID int64, delta int) (inventory.Adjustment, error)
}

// UnitOfWork runs fn with a store and ledger bound to one transaction. Returning an error
// from fn rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(store Store, ledger Ledger) error) error
}

type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgxUnitOfWork struct {
	db     Beginner
	repo   *Repository
	ledger *inventory.Ledger
}

func NewPgxUnitOfWork(db Beginner, repo *Repository, ledger *inventory.Ledger) *PgxUnitOfWork {
	return &PgxUnitOfWork{db: db, repo: repo, ledger: ledger}
}

func (u *PgxUnitOfWork) Do(ctx context.Context, fn func(store Store, ledger Ledger) error) error {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(u.repo.WithExecutor(tx), u.ledger.WithExecutor(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
