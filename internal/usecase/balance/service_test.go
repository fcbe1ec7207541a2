package balance

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

func snapshot(balance, fee string) *domain.BusinessSnapshot {
	b := decimal.RequireFromString(balance)
	return &domain.BusinessSnapshot{
		ID:             uuid.New(),
		EscrowBalance:  &b,
		ProvisionedFee: decimal.RequireFromString(fee),
		Status:         domain.BusinessStatusActive,
	}
}

func TestAvailable_SubtractsProvisionedFee(t *testing.T) {
	svc := NewService()

	got := svc.Available(snapshot("1000.00", "12.50"), DefaultOptions())
	assert.True(t, got.Equal(decimal.RequireFromString("987.50")), "got %s", got)
}

func TestAvailable_GrossWhenFeeExcluded(t *testing.T) {
	svc := NewService()

	got := svc.Available(snapshot("1000.00", "12.50"), Options{IncludeProvisionedFee: false})
	assert.True(t, got.Equal(decimal.RequireFromString("1000.00")))
}

func TestAvailable_Deterministic(t *testing.T) {
	svc := NewService()
	snap := snapshot("250.75", "0.25")

	first := svc.Available(snap, DefaultOptions())
	for i := 0; i < 5; i++ {
		assert.True(t, first.Equal(svc.Available(snap, DefaultOptions())))
	}
}

func TestAvailable_PreservesPrecision(t *testing.T) {
	svc := NewService()

	got := svc.Available(snapshot("0.03", "0.01"), DefaultOptions())
	assert.True(t, got.Equal(decimal.RequireFromString("0.02")), "got %s", got)
}

func TestAvailable_CanGoNegative(t *testing.T) {
	// A fee provision larger than the balance must surface as negative,
	// not clamp to zero: the guard rejects the two cases differently.
	svc := NewService()

	got := svc.Available(snapshot("5.00", "10.00"), DefaultOptions())
	assert.True(t, got.IsNegative())
}
