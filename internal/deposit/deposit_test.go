package deposit

import (
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
)

func TestAmount(t *testing.T) {
	assert.Equal(t, int64(2700), Amount(10800, 25))
	assert.Equal(t, int64(3333), Amount(6666, 50))
	assert.Equal(t, int64(1), Amount(5, 10))
	assert.Zero(t, Amount(0, 25))
	assert.Zero(t, Amount(10000, 0))
	assert.Equal(t, int64(100), Amount(100, 150))
}

func TestValidatePercent(t *testing.T) {
	allowed := []int{10, 25, 50}
	pct := 25
	assert.NoError(t, ValidatePercent(nil, allowed))
	assert.NoError(t, ValidatePercent(&pct, allowed))

	bad := 33
	assert.True(t, errors.Is(ValidatePercent(&bad, allowed), domain.ErrValidation))
}

func TestRefreshFreezesPaidDeposit(t *testing.T) {
	pct := 25
	paid := time.Now()
	inv := &domain.Invoice{TotalCents: 20000, DepositPercent: &pct, DepositAmountCents: 2700, DepositPaidAt: &paid}
	Refresh(inv)
	assert.Equal(t, int64(2700), inv.DepositAmountCents)
	assert.True(t, errors.Is(CanChange(inv), domain.ErrDepositLocked))

	inv.DepositPaidAt = nil
	Refresh(inv)
	assert.Equal(t, int64(5000), inv.DepositAmountCents)
	assert.NoError(t, CanChange(inv))

	inv.DepositPercent = nil
	Refresh(inv)
	assert.Zero(t, inv.DepositAmountCents)
}

func TestClassifyAndAmountDue(t *testing.T) {
	pct := 25
	inv := &domain.Invoice{
		Status:             domain.StatusSent,
		TotalCents:         10800,
		DepositPercent:     &pct,
		DepositAmountCents: 2700,
		BalanceDueCents:    10800,
	}
	assert.Equal(t, StageDepositDue, Classify(inv))
	assert.Equal(t, int64(2700), AmountDue(inv))

	now := time.Now()
	inv.AmountPaidCents = 2700
	inv.BalanceDueCents = 8100
	inv.DepositPaidAt = &now
	assert.Equal(t, StageDepositPaid, Classify(inv))
	assert.Equal(t, int64(8100), AmountDue(inv))

	inv.AmountPaidCents = 10800
	inv.BalanceDueCents = 0
	inv.Status = domain.StatusPaid
	assert.Equal(t, StagePaid, Classify(inv))

	assert.Equal(t, StageNone, Classify(&domain.Invoice{Status: domain.StatusSent, BalanceDueCents: 500}))
}
