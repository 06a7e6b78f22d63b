package deposit

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

// Stage classifies where an invoice sits relative to its deposit.
type Stage string

const (
	StageNone        Stage = "none"
	StageDepositDue  Stage = "deposit_due"
	StageDepositPaid Stage = "deposit_paid"
	StagePaid        Stage = "paid"
)

// Amount returns round_half_up(total * percent / 100) clamped to [0, total].
func Amount(totalCents int64, percent int) int64 {
	if totalCents <= 0 || percent <= 0 {
		return 0
	}
	amount := decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	if amount > totalCents {
		return totalCents
	}
	return amount
}

// ValidatePercent accepts nil (no deposit) or a member of allowed.
func ValidatePercent(percent *int, allowed []int) error {
	if percent == nil {
		return nil
	}
	for _, p := range allowed {
		if p == *percent {
			return nil
		}
	}
	return domain.NewValidationError("deposit_percent", strconv.Itoa(*percent)+" is not an allowed deposit percentage")
}

// CanChange rejects percent changes once the deposit was collected.
func CanChange(inv *domain.Invoice) error {
	if inv.DepositPaidAt != nil {
		return domain.ErrDepositLocked
	}
	return nil
}

// Refresh recomputes the deposit amount from the current total unless it is frozen.
func Refresh(inv *domain.Invoice) {
	if inv.DepositPaidAt != nil {
		return
	}
	if inv.DepositPercent == nil {
		inv.DepositAmountCents = 0
		return
	}
	inv.DepositAmountCents = Amount(inv.TotalCents, *inv.DepositPercent)
}

func Classify(inv *domain.Invoice) Stage {
	if inv.Status == domain.StatusPaid || (inv.BalanceDueCents == 0 && inv.AmountPaidCents > 0) {
		return StagePaid
	}
	if inv.DepositPercent == nil || inv.DepositAmountCents == 0 {
		return StageNone
	}
	if inv.DepositPaidAt != nil || inv.AmountPaidCents >= inv.DepositAmountCents {
		return StageDepositPaid
	}
	return StageDepositDue
}

// AmountDue is what the customer is asked to pay next: the outstanding
// deposit while it is due, the balance otherwise.
func AmountDue(inv *domain.Invoice) int64 {
	if Classify(inv) == StageDepositDue {
		due := inv.DepositAmountCents - inv.AmountPaidCents
		if due > inv.BalanceDueCents {
			return inv.BalanceDueCents
		}
		return due
	}
	return inv.BalanceDueCents
}
