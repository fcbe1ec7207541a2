package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared across repositories and services
var (
	ErrBusinessNotFound  = errors.New("business not found")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrIllegalTransition = errors.New("illegal job status transition")
	// ErrStaleTransition means the job's status changed between read and
	// update; the caller should re-read and decide again.
	ErrStaleTransition = errors.New("job status changed concurrently")
	// ErrLockNotAvailable means the business row lock could not be acquired
	// within the configured lock_timeout. The attempt is safe to retry.
	ErrLockNotAvailable = errors.New("business lock not available")
)

// AdmissionErrorKind classifies why a candidate job was rejected
type AdmissionErrorKind string

const (
	// BalanceUninitialized: the business escrow balance is null. This is a
	// data-integrity bug for an active business, not a user error.
	BalanceUninitialized AdmissionErrorKind = "BALANCE_UNINITIALIZED"
	ZeroBalance          AdmissionErrorKind = "ZERO_BALANCE"
	// NegativeBalance signals an upstream accounting inconsistency.
	NegativeBalance     AdmissionErrorKind = "NEGATIVE_BALANCE"
	InsufficientBalance AdmissionErrorKind = "INSUFFICIENT_BALANCE"
	// PendingOvercommit: total pending obligations including the candidate
	// would exceed available balance, even though the candidate alone fits.
	PendingOvercommit AdmissionErrorKind = "PENDING_OVERCOMMIT"
	// ScheduleUnresolved: the candidate's owning schedule (and therefore its
	// business) could not be resolved and the guard runs fail-closed.
	ScheduleUnresolved AdmissionErrorKind = "SCHEDULE_UNRESOLVED"
	ScheduleInactive   AdmissionErrorKind = "SCHEDULE_INACTIVE"
	BusinessInactive   AdmissionErrorKind = "BUSINESS_INACTIVE"
)

// AdmissionError is the structured rejection returned by the admission guard.
// It carries enough detail for the caller to build an actionable message
// without re-querying: business id, computed available balance, required
// amount and shortfall.
type AdmissionError struct {
	Kind       AdmissionErrorKind
	BusinessID uuid.UUID
	Available  decimal.Decimal
	Required   decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *AdmissionError) Error() string {
	switch e.Kind {
	case InsufficientBalance, PendingOvercommit:
		return fmt.Sprintf("admission rejected (%s): business %s requires %s, available %s, shortfall %s",
			e.Kind, e.BusinessID, e.Required, e.Available, e.Shortfall)
	default:
		return fmt.Sprintf("admission rejected (%s): business %s", e.Kind, e.BusinessID)
	}
}

// Fatal reports whether the rejection indicates a data-integrity or
// accounting bug rather than a recoverable per-candidate condition.
func (e *AdmissionError) Fatal() bool {
	return e.Kind == BalanceUninitialized || e.Kind == NegativeBalance
}

// AsAdmissionError unwraps err into an *AdmissionError if it is one
func AsAdmissionError(err error) (*AdmissionError, bool) {
	var ae *AdmissionError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
