// Package balance computes the available balance of a business from a
// locked snapshot. The computation is deterministic and performs no I/O,
// so it can be called any number of times within one admission attempt
// with identical results.
package balance

import (
	"github.com/shopspring/decimal"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// Options controls which deductions the inquiry applies
type Options struct {
	// IncludeProvisionedFee subtracts the fee amount provisioned for the
	// business from its escrow balance.
	IncludeProvisionedFee bool
}

// DefaultOptions is what the admission guard uses: available balance is
// escrow balance net of provisioned fees.
func DefaultOptions() Options {
	return Options{IncludeProvisionedFee: true}
}

// Service answers available-balance inquiries
type Service struct{}

// NewService creates a new balance inquiry service
func NewService() *Service {
	return &Service{}
}

// Available computes the available balance from a locked business snapshot.
// The snapshot's EscrowBalance must be non-nil; callers check for the null
// error state before asking.
func (s *Service) Available(snap *domain.BusinessSnapshot, opts Options) decimal.Decimal {
	available := *snap.EscrowBalance
	if opts.IncludeProvisionedFee {
		available = available.Sub(snap.ProvisionedFee)
	}
	return available
}
