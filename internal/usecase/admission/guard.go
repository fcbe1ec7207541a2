// Package admission implements the escrow-balance admission guard that
// gates creation of disbursement jobs. It is the final application-level
// defense for the invariant that a business's pending obligations never
// exceed its available balance; a storage-level constraint may exist as
// defense-in-depth but is never relied upon exclusively.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/balance"
)

// ResolutionPolicy decides what happens when a candidate's owning
// schedule cannot be resolved, which makes the balance checks impossible.
type ResolutionPolicy int

const (
	// FailClosed rejects candidates whose schedule cannot be resolved.
	// This is the default.
	FailClosed ResolutionPolicy = iota
	// FailOpen admits such candidates without balance checks and flags
	// the bypass on the audit trail at warning severity. Meant only for
	// legacy bulk-insert paths that create jobs before attaching the
	// schedule relation.
	FailOpen
)

// Config tunes the guard's lock-wait policy and resolution behavior
type Config struct {
	Policy ResolutionPolicy
	// LockRetries is how many times an attempt is replayed after the
	// business row lock times out. Zero means a single attempt.
	LockRetries int
	// LockBackoffBase is the base delay for exponential backoff with
	// full jitter between lock retries.
	LockBackoffBase time.Duration
}

// DefaultConfig bounds lock waits to a handful of short retries rather
// than queueing callers indefinitely behind a stuck transaction.
func DefaultConfig() Config {
	return Config{
		Policy:          FailClosed,
		LockRetries:     3,
		LockBackoffBase: 100 * time.Millisecond,
	}
}

// Guard admits or rejects candidate disbursement jobs against the owning
// business's escrow balance. Safe for concurrent use; all per-business
// serialization happens through the store's row lock.
type Guard struct {
	store     domain.AdmissionStore
	schedules domain.ScheduleRepository
	balances  *balance.Service
	trail     domain.AuditTrail
	logger    *zap.Logger
	cfg       Config
}

// NewGuard creates a new admission guard
func NewGuard(
	store domain.AdmissionStore,
	schedules domain.ScheduleRepository,
	balances *balance.Service,
	trail domain.AuditTrail,
	logger *zap.Logger,
	cfg Config,
) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		store:     store,
		schedules: schedules,
		balances:  balances,
		trail:     trail,
		logger:    logger,
		cfg:       cfg,
	}
}

// BatchResult is the per-candidate outcome of AdmitBatch, aligned with
// the input slice. Exactly one of Job and Err is set.
type BatchResult struct {
	Job *domain.Job
	Err error
}

// Admit evaluates a single candidate job inside one transaction.
// On success the returned job has been persisted in PENDING state. On
// rejection nothing is persisted and the error is an *AdmissionError,
// or an infrastructure error such as domain.ErrLockNotAvailable once
// the bounded lock wait is exhausted. Re-submitting the same candidate
// after a rejection is safe: every attempt is a fresh, self-contained
// transaction.
func (g *Guard) Admit(ctx context.Context, candidate domain.CandidateJob) (*domain.Job, error) {
	results, err := g.AdmitBatch(ctx, []domain.CandidateJob{candidate})
	if err != nil {
		return nil, err
	}
	return results[0].Job, results[0].Err
}

// AdmitBatch evaluates a batch of candidates submitted together. All
// candidates resolving to the same business are evaluated under a single
// business lock against the aggregate of the whole batch plus existing
// pending jobs; a balance captured before the batch is never reused
// blindly across candidates. Rejected candidates do not abort the rest:
// admitted ones commit, rejected ones carry their error in the aligned
// result slot.
//
// The returned error is non-nil only for failures that invalidate a
// whole group (context cancellation, storage errors, lock-wait
// exhaustion); per-candidate rejections live in the results.
func (g *Guard) AdmitBatch(ctx context.Context, candidates []domain.CandidateJob) ([]BatchResult, error) {
	results := make([]BatchResult, len(candidates))

	// Resolve every candidate's schedule up front, grouping indices by
	// owning business so each business is locked exactly once.
	groups := make(map[uuid.UUID][]int)
	order := make([]uuid.UUID, 0, 1)

	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			results[i].Err = err
			continue
		}

		sched, err := g.resolveSchedule(ctx, c.ScheduleID)
		if err != nil {
			results[i].Err = err
			continue
		}
		if sched == nil {
			g.admitUnresolved(ctx, c, &results[i])
			continue
		}
		if !sched.Admittable() {
			results[i].Err = &domain.AdmissionError{
				Kind:       domain.ScheduleInactive,
				BusinessID: sched.BusinessID,
				Required:   c.Amount,
			}
			g.auditRejection(ctx, sched.BusinessID, results[i].Err)
			continue
		}

		if _, seen := groups[sched.BusinessID]; !seen {
			order = append(order, sched.BusinessID)
		}
		groups[sched.BusinessID] = append(groups[sched.BusinessID], i)
	}

	var firstErr error
	for _, businessID := range order {
		if err := g.admitGroup(ctx, businessID, groups[businessID], candidates, results); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return results, firstErr
}

// resolveSchedule maps "schedule not found" and the never-attached
// relation (zero schedule id) to a nil schedule, keeping the bypass
// policy decision in one place.
func (g *Guard) resolveSchedule(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error) {
	if scheduleID == uuid.Nil {
		return nil, nil
	}
	sched, err := g.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve schedule %s: %w", scheduleID, err)
	}
	return sched, nil
}

// admitUnresolved applies the configured ResolutionPolicy to a candidate
// whose owning business cannot be determined. Never a silent bypass:
// fail-open admissions are flagged on the audit trail at warning level.
func (g *Guard) admitUnresolved(ctx context.Context, c domain.CandidateJob, res *BatchResult) {
	if g.cfg.Policy == FailClosed {
		res.Err = &domain.AdmissionError{
			Kind:     domain.ScheduleUnresolved,
			Required: c.Amount,
		}
		g.logger.Warn("rejected candidate with unresolvable schedule",
			zap.String("schedule_id", c.ScheduleID.String()),
			zap.String("amount", c.Amount.String()),
		)
		g.auditRejection(ctx, uuid.Nil, res.Err)
		return
	}

	job := domain.NewPendingJob(c)
	err := g.store.WithinTx(ctx, func(tx domain.AdmissionTx) error {
		return tx.InsertJob(ctx, job)
	})
	if err != nil {
		res.Err = fmt.Errorf("persist unresolved candidate: %w", err)
		return
	}
	res.Job = job

	g.logger.Warn("admitted candidate without balance checks: schedule unresolvable",
		zap.String("job_id", job.ID.String()),
		zap.String("amount", job.Amount.String()),
	)
	g.audit(ctx, domain.AuditEvent{
		Kind:      domain.AuditJobBypassed,
		Subject:   domain.AuditSubjectJob,
		SubjectID: job.ID,
		Attributes: map[string]any{
			"amount": job.Amount.String(),
			"reason": "schedule_unresolved",
		},
		OccurredAt: time.Now().UTC(),
	})
}

// admitGroup runs the ordered checks for all of one business's
// candidates inside a single locking transaction. indices is never
// empty and results slots for indices are owned by this call.
func (g *Guard) admitGroup(
	ctx context.Context,
	businessID uuid.UUID,
	indices []int,
	candidates []domain.CandidateJob,
	results []BatchResult,
) error {
	attempt := 0
	for {
		for _, i := range indices {
			results[i] = BatchResult{}
		}

		err := g.store.WithinTx(ctx, func(tx domain.AdmissionTx) error {
			return g.evaluateLocked(ctx, tx, businessID, indices, candidates, results)
		})
		if err == nil {
			g.auditGroup(ctx, businessID, indices, results)
			return nil
		}
		if !errors.Is(err, domain.ErrLockNotAvailable) || attempt >= g.cfg.LockRetries {
			for _, i := range indices {
				results[i] = BatchResult{Err: err}
			}
			return err
		}

		delay := backoff.ExponentialWithJitter(g.cfg.LockBackoffBase, attempt)
		g.logger.Debug("business lock busy, backing off",
			zap.String("business_id", businessID.String()),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1),
		)
		if err := backoff.SleepWithContext(ctx, delay); err != nil {
			for _, i := range indices {
				results[i] = BatchResult{Err: err}
			}
			return err
		}
		attempt++
	}
}

// evaluateLocked applies the ordered, fail-fast admission checks with
// the business row lock held. Per-candidate rejections are recorded in
// results and do not abort the transaction: admitted candidates in the
// same batch still commit. A non-nil return rolls everything back.
func (g *Guard) evaluateLocked(
	ctx context.Context,
	tx domain.AdmissionTx,
	businessID uuid.UUID,
	indices []int,
	candidates []domain.CandidateJob,
	results []BatchResult,
) error {
	snap, err := tx.LockBusiness(ctx, businessID)
	if err != nil {
		return err
	}

	if snap.Status != domain.BusinessStatusActive {
		rejectAll(indices, candidates, results, func(c domain.CandidateJob) *domain.AdmissionError {
			return &domain.AdmissionError{
				Kind:       domain.BusinessInactive,
				BusinessID: businessID,
				Required:   c.Amount,
			}
		})
		return nil
	}

	if snap.EscrowBalance == nil {
		g.logger.Error("escrow balance uninitialized for active business",
			zap.String("business_id", businessID.String()),
		)
		rejectAll(indices, candidates, results, func(c domain.CandidateJob) *domain.AdmissionError {
			return &domain.AdmissionError{
				Kind:       domain.BalanceUninitialized,
				BusinessID: businessID,
				Required:   c.Amount,
			}
		})
		return nil
	}

	available := g.balances.Available(snap, balance.DefaultOptions())

	if available.IsZero() {
		rejectAll(indices, candidates, results, func(c domain.CandidateJob) *domain.AdmissionError {
			return &domain.AdmissionError{
				Kind:       domain.ZeroBalance,
				BusinessID: businessID,
				Available:  available,
				Required:   c.Amount,
				Shortfall:  c.Amount,
			}
		})
		return nil
	}

	if available.IsNegative() {
		g.logger.Error("negative available balance, upstream accounting inconsistency",
			zap.String("business_id", businessID.String()),
			zap.String("available", available.String()),
		)
		rejectAll(indices, candidates, results, func(c domain.CandidateJob) *domain.AdmissionError {
			return &domain.AdmissionError{
				Kind:       domain.NegativeBalance,
				BusinessID: businessID,
				Available:  available,
				Required:   c.Amount,
			}
		})
		return nil
	}

	pending, err := tx.SumPendingJobs(ctx, businessID)
	if err != nil {
		return err
	}

	// Running total: existing pending reservations plus every candidate
	// admitted so far in this batch. Each candidate is evaluated against
	// the aggregate, never against the pre-batch balance alone.
	running := pending
	for _, i := range indices {
		c := candidates[i]

		if available.LessThan(c.Amount) {
			results[i].Err = &domain.AdmissionError{
				Kind:       domain.InsufficientBalance,
				BusinessID: businessID,
				Available:  available,
				Required:   c.Amount,
				Shortfall:  c.Amount.Sub(available),
			}
			continue
		}

		hypothetical := running.Add(c.Amount)
		if available.LessThan(hypothetical) {
			results[i].Err = &domain.AdmissionError{
				Kind:       domain.PendingOvercommit,
				BusinessID: businessID,
				Available:  available,
				Required:   c.Amount,
				Shortfall:  hypothetical.Sub(available),
			}
			continue
		}

		job := domain.NewPendingJob(c)
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}
		results[i].Job = job
		running = hypothetical
	}
	return nil
}

func rejectAll(
	indices []int,
	candidates []domain.CandidateJob,
	results []BatchResult,
	build func(domain.CandidateJob) *domain.AdmissionError,
) {
	for _, i := range indices {
		results[i].Err = build(candidates[i])
	}
}

// auditGroup emits one audit event per decided candidate after the
// transaction has committed.
func (g *Guard) auditGroup(ctx context.Context, businessID uuid.UUID, indices []int, results []BatchResult) {
	for _, i := range indices {
		if results[i].Job != nil {
			job := results[i].Job
			g.audit(ctx, domain.AuditEvent{
				Kind:      domain.AuditJobAdmitted,
				Subject:   domain.AuditSubjectJob,
				SubjectID: job.ID,
				Attributes: map[string]any{
					"business_id": businessID.String(),
					"schedule_id": job.ScheduleID.String(),
					"amount":      job.Amount.String(),
				},
				OccurredAt: time.Now().UTC(),
			})
			continue
		}
		g.auditRejection(ctx, businessID, results[i].Err)
	}
}

func (g *Guard) auditRejection(ctx context.Context, businessID uuid.UUID, err error) {
	attrs := map[string]any{}
	if ae, ok := domain.AsAdmissionError(err); ok {
		attrs["error_kind"] = string(ae.Kind)
		attrs["available"] = ae.Available.String()
		attrs["required"] = ae.Required.String()
		attrs["shortfall"] = ae.Shortfall.String()
	} else if err != nil {
		attrs["error"] = err.Error()
	}
	g.audit(ctx, domain.AuditEvent{
		Kind:       domain.AuditJobRejected,
		Subject:    domain.AuditSubjectBusiness,
		SubjectID:  businessID,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	})
}

// audit is fire-and-forget: a failing or panicking trail must never
// affect the admission outcome.
func (g *Guard) audit(ctx context.Context, event domain.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("audit trail panicked", zap.Any("panic", r))
		}
	}()
	if err := g.trail.Log(ctx, event); err != nil {
		g.logger.Warn("audit trail write failed",
			zap.String("event_kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
