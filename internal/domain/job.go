package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus represents the state of a disbursement job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
// Terminal and cancelled jobs no longer reserve escrow funds.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
// Legal transitions: PENDING -> PROCESSING, PENDING -> CANCELLED,
// PROCESSING -> SUCCEEDED, PROCESSING -> FAILED.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusSucceeded || next == JobStatusFailed
	}
	return false
}

// Job represents a disbursement job (payment or payroll) in the domain layer.
// Jobs are created exclusively by the admission guard, always in PENDING.
type Job struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Kind       ScheduleKind
	Amount     decimal.Decimal
	Status     JobStatus
	CreatedAt  time.Time
}

// CandidateJob is a proposed job that has not yet passed admission.
// ScheduleID is how the candidate attaches to its owning schedule; a
// zero ScheduleID means the creation path never attached the relation.
type CandidateJob struct {
	ScheduleID uuid.UUID
	Kind       ScheduleKind
	Amount     decimal.Decimal
}

// Validate ensures the candidate adheres to domain rules
func (c *CandidateJob) Validate() error {
	if c.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("job amount must be positive")
	}
	if c.Kind != ScheduleKindPayment && c.Kind != ScheduleKindPayroll {
		return errors.New("job kind must be PAYMENT or PAYROLL")
	}
	return nil
}

// NewPendingJob materializes an admitted candidate as a PENDING job
func NewPendingJob(c CandidateJob) *Job {
	return &Job{
		ID:         uuid.New(),
		ScheduleID: c.ScheduleID,
		Kind:       c.Kind,
		Amount:     c.Amount,
		Status:     JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// TransitionTo moves the job to next, enforcing the state machine
func (j *Job) TransitionTo(next JobStatus) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.Status, next)
	}
	j.Status = next
	return nil
}
