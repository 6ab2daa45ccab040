//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/db"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
)

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "travel"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/travel?sslmode=disable", host, mappedPort.Port())
	return container, dsn
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}

// migratedPool starts a fresh database with every migration applied.
func migratedPool(ctx context.Context, t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	pgC, dsn := startPostgres(ctx, t)
	t.Cleanup(func() { terminateContainer(t, pgC) })

	require.NoError(t, db.RunMigrations(dsn, logger.NewNop()))

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, dsn
}

type seedFlight struct {
	supplierID  string
	transportID *string
	airline     string
	baseID      string
	startDate   time.Time
	leg         string
	quantity    int
	sold        int
}

// seedPair inserts an outbound and a return flight linked to each other, each with one
// modality, and returns their ids.
func seedPair(ctx context.Context, t *testing.T, pool *pgxpool.Pool, out, ret seedFlight) (int64, int64) {
	t.Helper()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]int64, 0, 2)
	for _, f := range []seedFlight{out, ret} {
		var id int64
		require.NoError(t, tx.QueryRow(ctx, `
			INSERT INTO flights (supplier_id, upstream_transport_id, airline_code, base_id, name, start_date, end_date, leg_type)
			VALUES ($1, $2, $3, $4, $4, $5, $5, $6)
			RETURNING id
		`, f.supplierID, f.transportID, f.airline, f.baseID, f.startDate, f.leg).Scan(&id))

		_, err := tx.Exec(ctx, `
			INSERT INTO flight_modalities (flight_id, start_date, end_date, quantity, sold)
			VALUES ($1, $2, $2, $3, $4)
		`, id, f.startDate, f.quantity, f.sold)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err = tx.Exec(ctx, `UPDATE flights SET paired_flight_id = $2 WHERE id = $1`, ids[0], ids[1])
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `UPDATE flights SET paired_flight_id = $2 WHERE id = $1`, ids[1], ids[0])
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	return ids[0], ids[1]
}

func soldOf(ctx context.Context, t *testing.T, pool *pgxpool.Pool, flightID int64) int {
	t.Helper()
	var sold int
	require.NoError(t, pool.QueryRow(ctx, `SELECT sold FROM flight_modalities WHERE flight_id = $1`, flightID).Scan(&sold))
	return sold
}

func activeOf(ctx context.Context, t *testing.T, pool *pgxpool.Pool, flightID int64) bool {
	t.Helper()
	var active bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT active FROM flights WHERE id = $1`, flightID).Scan(&active))
	return active
}
