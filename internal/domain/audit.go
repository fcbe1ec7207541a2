package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEventKind identifies what happened. One constant per admission
// outcome and per job lifecycle transition.
type AuditEventKind string

const (
	AuditJobAdmitted  AuditEventKind = "job.admitted"
	AuditJobRejected  AuditEventKind = "job.rejected"
	AuditJobBypassed  AuditEventKind = "job.admission_bypassed"
	AuditJobClaimed   AuditEventKind = "job.claimed"
	AuditJobSucceeded AuditEventKind = "job.succeeded"
	AuditJobFailed    AuditEventKind = "job.failed"
	AuditJobCancelled AuditEventKind = "job.cancelled"
)

// AuditEvent is the record sent to the audit trail after an admission
// decision or a job status change.
type AuditEvent struct {
	Kind       AuditEventKind `json:"kind"`
	Subject    string         `json:"subject"`
	SubjectID  uuid.UUID      `json:"subject_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Audit subject entity names
const (
	AuditSubjectJob      = "job"
	AuditSubjectBusiness = "business"
)

// AuditTrail is an append-only, best-effort sink of admission decisions
// and job lifecycle events. Implementations must be safe for concurrent
// use. Callers treat it as fire-and-forget: a Log error is logged and
// dropped, never propagated into the admission transaction.
type AuditTrail interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditTrail discards every event. Useful in tests.
type NopAuditTrail struct{}

func (NopAuditTrail) Log(context.Context, AuditEvent) error { return nil }
