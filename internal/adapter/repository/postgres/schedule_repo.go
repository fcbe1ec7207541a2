package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// scheduleRepository implements domain.ScheduleRepository
type scheduleRepository struct {
	db *DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *DB) domain.ScheduleRepository {
	return &scheduleRepository{db: db}
}

// GetByID resolves a schedule and its owning business id
func (r *scheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `
		SELECT id, business_id, kind, status
		FROM schedules
		WHERE id = $1
	`

	var sched domain.Schedule
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sched.ID,
		&sched.BusinessID,
		&sched.Kind,
		&sched.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule by ID: %w", err)
	}

	return &sched, nil
}
