// Package lifecycle moves admitted jobs through their state machine:
// PENDING -> PROCESSING -> {SUCCEEDED, FAILED}, PENDING -> CANCELLED.
// Moving a job out of PENDING (or into a terminal state) releases its
// escrow reservation, since only PENDING jobs count toward the pending
// aggregate the admission guard checks.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// Service applies job status transitions
type Service struct {
	jobs   domain.JobRepository
	trail  domain.AuditTrail
	logger *zap.Logger
}

// NewService creates a new lifecycle service
func NewService(jobs domain.JobRepository, trail domain.AuditTrail, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{jobs: jobs, trail: trail, logger: logger}
}

// Claim marks a PENDING job as PROCESSING on behalf of a settlement worker
func (s *Service) Claim(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.transition(ctx, jobID, domain.JobStatusProcessing, domain.AuditJobClaimed)
}

// Complete marks a PROCESSING job as SUCCEEDED
func (s *Service) Complete(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.transition(ctx, jobID, domain.JobStatusSucceeded, domain.AuditJobSucceeded)
}

// Fail marks a PROCESSING job as FAILED
func (s *Service) Fail(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.transition(ctx, jobID, domain.JobStatusFailed, domain.AuditJobFailed)
}

// Cancel withdraws a PENDING job, releasing its reservation
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.transition(ctx, jobID, domain.JobStatusCancelled, domain.AuditJobCancelled)
}

func (s *Service) transition(
	ctx context.Context,
	jobID uuid.UUID,
	to domain.JobStatus,
	eventKind domain.AuditEventKind,
) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	from := job.Status
	if err := job.TransitionTo(to); err != nil {
		return nil, err
	}

	// Compare-and-set so a concurrent transition loses cleanly instead
	// of overwriting.
	if err := s.jobs.UpdateStatus(ctx, jobID, from, to); err != nil {
		return nil, fmt.Errorf("update job %s status: %w", jobID, err)
	}

	s.audit(ctx, domain.AuditEvent{
		Kind:      eventKind,
		Subject:   domain.AuditSubjectJob,
		SubjectID: jobID,
		Attributes: map[string]any{
			"schedule_id": job.ScheduleID.String(),
			"amount":      job.Amount.String(),
			"from":        string(from),
			"to":          string(to),
		},
		OccurredAt: time.Now().UTC(),
	})
	return job, nil
}

func (s *Service) audit(ctx context.Context, event domain.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("audit trail panicked", zap.Any("panic", r))
		}
	}()
	if err := s.trail.Log(ctx, event); err != nil {
		s.logger.Warn("audit trail write failed",
			zap.String("event_kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
