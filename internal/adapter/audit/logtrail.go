// Package audit provides a structured-log audit trail used when no
// Kafka brokers are configured.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// LogTrail implements domain.AuditTrail by writing events to the
// application log. Append-only and best-effort, like every trail.
type LogTrail struct {
	logger *zap.Logger
}

// NewLogTrail creates a logging audit trail
func NewLogTrail(logger *zap.Logger) *LogTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTrail{logger: logger.Named("audit")}
}

// Log writes the event at info level
func (t *LogTrail) Log(_ context.Context, event domain.AuditEvent) error {
	t.logger.Info(string(event.Kind),
		zap.String("subject", event.Subject),
		zap.String("subject_id", event.SubjectID.String()),
		zap.Any("attributes", event.Attributes),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
