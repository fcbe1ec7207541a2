package admission

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// memStore is an in-memory AdmissionStore with the same serialization
// shape as the postgres store: an exclusive per-business lock held until
// the transaction ends, unlimited cross-business concurrency, and
// all-or-nothing visibility of inserted jobs.
type memStore struct {
	mu         sync.Mutex
	rowLocks   map[uuid.UUID]*sync.Mutex
	businesses map[uuid.UUID]domain.BusinessSnapshot
	schedules  map[uuid.UUID]domain.Schedule
	jobs       []*domain.Job

	// insertErr, when set, makes InsertJob fail to exercise rollback.
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		rowLocks:   make(map[uuid.UUID]*sync.Mutex),
		businesses: make(map[uuid.UUID]domain.BusinessSnapshot),
		schedules:  make(map[uuid.UUID]domain.Schedule),
	}
}

func (s *memStore) addBusiness(snap domain.BusinessSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[snap.ID] = snap
	s.rowLocks[snap.ID] = &sync.Mutex{}
}

func (s *memStore) addSchedule(sched domain.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
}

func (s *memStore) pendingJobs() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Job, 0)
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusPending {
			out = append(out, j)
		}
	}
	return out
}

func (s *memStore) WithinTx(_ context.Context, fn func(tx domain.AdmissionTx) error) error {
	tx := &memTx{store: s}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err // rollback: tx.inserted is discarded
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, tx.inserted...)
	s.mu.Unlock()
	return nil
}

type memTx struct {
	store    *memStore
	held     []*sync.Mutex
	inserted []*domain.Job
}

func (tx *memTx) releaseLocks() {
	for _, l := range tx.held {
		l.Unlock()
	}
	tx.held = nil
}

func (tx *memTx) LockBusiness(_ context.Context, businessID uuid.UUID) (*domain.BusinessSnapshot, error) {
	tx.store.mu.Lock()
	lock, ok := tx.store.rowLocks[businessID]
	tx.store.mu.Unlock()
	if !ok {
		return nil, domain.ErrBusinessNotFound
	}

	lock.Lock()
	tx.held = append(tx.held, lock)

	tx.store.mu.Lock()
	snap := tx.store.businesses[businessID]
	tx.store.mu.Unlock()
	return &snap, nil
}

func (tx *memTx) SumPendingJobs(_ context.Context, businessID uuid.UUID) (decimal.Decimal, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	sum := decimal.Zero
	for _, j := range tx.store.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		sched, ok := tx.store.schedules[j.ScheduleID]
		if ok && sched.BusinessID == businessID {
			sum = sum.Add(j.Amount)
		}
	}
	return sum, nil
}

func (tx *memTx) InsertJob(_ context.Context, job *domain.Job) error {
	if tx.store.insertErr != nil {
		return tx.store.insertErr
	}
	tx.inserted = append(tx.inserted, job)
	return nil
}

// lockTimeoutStore fails WithinTx with ErrLockNotAvailable a fixed
// number of times before delegating to the wrapped store.
type lockTimeoutStore struct {
	inner    domain.AdmissionStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *lockTimeoutStore) WithinTx(ctx context.Context, fn func(tx domain.AdmissionTx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return domain.ErrLockNotAvailable
	}
	return s.inner.WithinTx(ctx, fn)
}

// recordingTrail captures audit events for assertions
type recordingTrail struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (t *recordingTrail) Log(_ context.Context, event domain.AuditEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
	return nil
}

func (t *recordingTrail) byKind(kind domain.AuditEventKind) []domain.AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.AuditEvent, 0)
	for _, e := range t.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
