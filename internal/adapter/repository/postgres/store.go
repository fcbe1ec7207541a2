package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// lockNotAvailable is the postgres SQLSTATE raised when lock_timeout
// expires before FOR UPDATE could acquire the row lock.
const lockNotAvailable = pq.ErrorCode("55P03")

// DefaultLockTimeout bounds how long an admission attempt waits on a
// business row held by another transaction.
const DefaultLockTimeout = 3 * time.Second

// Store implements domain.AdmissionStore on postgres. Each WithinTx call
// is one ACID transaction: the FOR UPDATE lock taken by LockBusiness is
// held until commit or rollback.
type Store struct {
	db          *DB
	lockTimeout time.Duration
}

// NewStore creates a new admission store. A non-positive lockTimeout
// falls back to DefaultLockTimeout.
func NewStore(db *DB, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{db: db, lockTimeout: lockTimeout}
}

// WithinTx runs fn inside a database transaction with the configured
// lock_timeout applied. If fn returns an error the transaction is rolled
// back and nothing is persisted.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.AdmissionTx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := dbTx.ExecContext(ctx, timeout); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if err := fn(&admissionTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// admissionTx implements domain.AdmissionTx over one open *sql.Tx
type admissionTx struct {
	tx *sql.Tx
}

// LockBusiness acquires the exclusive row lock on the business and
// returns its snapshot. Concurrent admissions for the same business
// block here until the holding transaction ends.
func (t *admissionTx) LockBusiness(ctx context.Context, businessID uuid.UUID) (*domain.BusinessSnapshot, error) {
	query := `
		SELECT id, escrow_balance, provisioned_fee, status
		FROM businesses
		WHERE id = $1
		FOR UPDATE
	`

	var snap domain.BusinessSnapshot
	var balanceStr sql.NullString
	var feeStr string

	err := t.tx.QueryRowContext(ctx, query, businessID).Scan(
		&snap.ID,
		&balanceStr,
		&feeStr,
		&snap.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBusinessNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == lockNotAvailable {
			return nil, fmt.Errorf("business %s: %w", businessID, domain.ErrLockNotAvailable)
		}
		return nil, fmt.Errorf("failed to lock business: %w", err)
	}

	// escrow_balance is nullable: null is an error state the guard must
	// observe, never coerced to zero.
	if balanceStr.Valid {
		balance, err := decimal.NewFromString(balanceStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse escrow_balance: %w", err)
		}
		snap.EscrowBalance = &balance
	}

	fee, err := decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provisioned_fee: %w", err)
	}
	snap.ProvisionedFee = fee

	return &snap, nil
}

// SumPendingJobs aggregates PENDING job amounts for the business. Runs
// inside the same transaction as LockBusiness, so racing admissions for
// the same business cannot interleave between the two reads.
func (t *admissionTx) SumPendingJobs(ctx context.Context, businessID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(j.amount), 0)
		FROM jobs j
		JOIN schedules s ON s.id = j.schedule_id
		WHERE s.business_id = $1
		  AND j.status = $2
	`

	var sumStr string
	err := t.tx.QueryRowContext(ctx, query, businessID, string(domain.JobStatusPending)).Scan(&sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending jobs: %w", err)
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse pending sum: %w", err)
	}
	return sum, nil
}

// InsertJob persists a job row. A zero ScheduleID (fail-open bypass of
// an unresolvable relation) is stored as NULL.
func (t *admissionTx) InsertJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, schedule_id, kind, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var scheduleID interface{}
	if job.ScheduleID != uuid.Nil {
		scheduleID = job.ScheduleID
	}

	_, err := t.tx.ExecContext(ctx, query,
		job.ID,
		scheduleID,
		string(job.Kind),
		job.Amount.String(),
		string(job.Status),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}
