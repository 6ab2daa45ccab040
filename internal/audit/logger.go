package audit

import (
	"context"
	"time"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/middleware"
)

// Logger writes entries to a Sink and swallows write failures after logging them.
type Logger struct {
	sink    Sink
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewLogger(sink Sink, log logger.Logger, m *metrics.Metrics) *Logger {
	return &Logger{sink: sink, log: log, metrics: m, now: time.Now}
}

func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.CorrelationID == "" {
		e.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.Direction == "" {
		e.Direction = DirectionPull
	}

	if err := l.sink.Append(ctx, e); err != nil {
		l.metrics.AuditWriteFailures.Inc()
		l.log.Error("audit write failed",
			"error", err,
			"entityType", e.EntityType,
			"entityId", e.EntityID,
			"action", e.Action,
			"status", e.Status,
			"correlationId", e.CorrelationID,
		)
	}
}
