package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// jobRepository implements domain.JobRepository
type jobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) domain.JobRepository {
	return &jobRepository{db: db}
}

// GetByID retrieves a job by its ID
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, schedule_id, kind, amount, status, created_at
		FROM jobs
		WHERE id = $1
	`

	var job domain.Job
	var scheduleID sql.NullString
	var amountStr string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&scheduleID,
		&job.Kind,
		&amountStr,
		&job.Status,
		&job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}

	// schedule_id is NULL for jobs admitted through the fail-open bypass
	if scheduleID.Valid {
		parsed, err := uuid.Parse(scheduleID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule_id: %w", err)
		}
		job.ScheduleID = parsed
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	job.Amount = amount

	return &job, nil
}

// UpdateStatus moves a job between statuses as a compare-and-set
func (r *jobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $1
		WHERE id = $2 AND status = $3
	`

	res, err := r.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}
