package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdmissionTx exposes the operations available while an admission
// transaction is open. The business row lock taken by LockBusiness is
// held until the enclosing transaction commits or rolls back, so every
// read through the same AdmissionTx sees a consistent snapshot.
type AdmissionTx interface {
	// LockBusiness acquires an exclusive row lock on the business and
	// returns its snapshot. Blocks while another transaction holds the
	// lock for the same business; independent businesses do not contend.
	// Returns ErrBusinessNotFound if no such business exists and
	// ErrLockNotAvailable if the lock could not be acquired within the
	// store's lock timeout.
	LockBusiness(ctx context.Context, businessID uuid.UUID) (*BusinessSnapshot, error)

	// SumPendingJobs returns the total amount of PENDING jobs whose
	// schedule belongs to businessID. Must be called with the business
	// lock held to avoid read skew between racing admissions.
	SumPendingJobs(ctx context.Context, businessID uuid.UUID) (decimal.Decimal, error)

	// InsertJob persists a job row. Only the admission guard calls this,
	// and only with jobs in PENDING state.
	InsertJob(ctx context.Context, job *Job) error
}

// AdmissionStore runs a function inside one ACID transaction. If fn
// returns an error the transaction is rolled back and nothing is
// persisted; otherwise it commits, releasing any row locks.
type AdmissionStore interface {
	WithinTx(ctx context.Context, fn func(tx AdmissionTx) error) error
}

// ScheduleRepository defines the interface for schedule lookups
type ScheduleRepository interface {
	// GetByID resolves a schedule, including its owning business id.
	// Returns ErrScheduleNotFound if the schedule does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
}

// JobRepository defines the interface for job persistence outside the
// admission transaction (lifecycle transitions, lookups).
type JobRepository interface {
	// GetByID retrieves a job by its ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// UpdateStatus moves a job from one status to another as a single
	// compare-and-set. Returns ErrStaleTransition if the job was no
	// longer in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to JobStatus) error
}
