package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresSink appends entries to the sync_logs table.
type PostgresSink struct {
	exec Executor
}

func NewPostgresSink(exec Executor) *PostgresSink {
	return &PostgresSink{exec: exec}
}

func (s *PostgresSink) Append(ctx context.Context, e Entry) error {
	req, err := jsonPayload(e.Request)
	if err != nil {
		return fmt.Errorf("encode request payload: %w", err)
	}
	resp, err := jsonPayload(e.Response)
	if err != nil {
		return fmt.Errorf("encode response payload: %w", err)
	}

	var errText any
	if e.Error != "" {
		errText = e.Error
	}

	_, err = s.exec.Exec(ctx, `
		INSERT INTO sync_logs
			(entity_type, entity_id, action, direction, status, error,
			 request_payload, response_payload, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.EntityType, e.EntityID, e.Action, string(e.Direction), string(e.Status), errText,
		req, resp, e.CorrelationID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// jsonPayload returns nil for an absent payload so the column stays NULL.
func jsonPayload(v any) (any, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 {
			return nil, nil
		}
		return []byte(p), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
