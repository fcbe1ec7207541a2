package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BusinessStatus represents the lifecycle status of a business account
type BusinessStatus string

const (
	BusinessStatusActive    BusinessStatus = "ACTIVE"
	BusinessStatusSuspended BusinessStatus = "SUSPENDED"
	BusinessStatusClosed    BusinessStatus = "CLOSED"
)

// Business represents a business entity owning an escrow account.
// EscrowBalance is nullable: a nil balance on an active business is a
// data-integrity error state, never a valid zero.
type Business struct {
	ID             uuid.UUID
	Name           string
	EscrowBalance  *decimal.Decimal
	ProvisionedFee decimal.Decimal
	Status         BusinessStatus
}

// BusinessSnapshot is the consistent view of a business read under the
// row lock. It is valid only for the duration of the locking transaction.
type BusinessSnapshot struct {
	ID             uuid.UUID
	EscrowBalance  *decimal.Decimal
	ProvisionedFee decimal.Decimal
	Status         BusinessStatus
}
