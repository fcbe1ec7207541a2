package domain

import "github.com/google/uuid"

// ScheduleKind represents the type of disbursement a schedule produces
type ScheduleKind string

const (
	ScheduleKindPayment ScheduleKind = "PAYMENT"
	ScheduleKindPayroll ScheduleKind = "PAYROLL"
)

// ScheduleStatus represents the lifecycle status of a schedule
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "ACTIVE"
	ScheduleStatusPaused    ScheduleStatus = "PAUSED"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
)

// Schedule represents a recurring or one-off configuration that spawns
// disbursement jobs against its owning business's escrow account.
type Schedule struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Kind       ScheduleKind
	Status     ScheduleStatus
}

// Admittable reports whether the schedule may currently spawn new jobs
func (s *Schedule) Admittable() bool {
	return s.Status == ScheduleStatusActive
}
