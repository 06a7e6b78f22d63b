package totals

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicecore/internal/deposit"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

var (
	hundred    = decimal.NewFromInt(100)
	maxTaxRate = decimal.NewFromInt(100)
)

type Totals struct {
	SubtotalCents       int64 `json:"subtotal_cents"`
	LineDiscountCents   int64 `json:"line_discount_cents"`
	CouponDiscountCents int64 `json:"coupon_discount_cents"`
	TaxCents            int64 `json:"tax_cents"`
	TotalCents          int64 `json:"total_cents"`
}

// DiscountedBase is the taxable amount, never negative.
func (t Totals) DiscountedBase() int64 {
	return t.TotalCents - t.TaxCents
}

// Compute derives invoice totals from line items, a frozen coupon discount and a
// tax rate expressed in percent. It has no side effects.
func Compute(lines []domain.LineItem, couponDiscountCents int64, taxRatePercent decimal.Decimal) (Totals, error) {
	if err := domain.ValidateLineItems(lines); err != nil {
		return Totals{}, err
	}
	if couponDiscountCents < 0 {
		return Totals{}, domain.NewValidationError("coupon_discount_cents", "must not be negative")
	}
	if err := ValidateTaxRate(taxRatePercent); err != nil {
		return Totals{}, err
	}

	var out Totals
	for _, line := range lines {
		if line.IsDiscount() {
			if !addCents(&out.LineDiscountCents, -line.AmountCents) {
				return Totals{}, domain.NewValidationError("line_discount_cents", "overflows")
			}
			continue
		}
		if !addCents(&out.SubtotalCents, line.AmountCents) {
			return Totals{}, domain.NewValidationError("subtotal_cents", "overflows")
		}
	}
	out.CouponDiscountCents = couponDiscountCents

	base := out.SubtotalCents - out.LineDiscountCents - couponDiscountCents
	if base < 0 {
		base = 0
	}

	out.TaxCents = RoundHalfUp(decimal.NewFromInt(base).Mul(taxRatePercent).Div(hundred))
	out.TotalCents = base
	if !addCents(&out.TotalCents, out.TaxCents) {
		return Totals{}, domain.NewValidationError("total_cents", "overflows")
	}
	return out, nil
}

// addCents adds v to *sum unless the result would leave the int64 range.
func addCents(sum *int64, v int64) bool {
	if v > 0 && *sum > math.MaxInt64-v {
		return false
	}
	*sum += v
	return true
}

func ValidateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		return domain.NewValidationError("tax_rate_percent", "must be between 0 and 100")
	}
	if rate.Exponent() < -2 && !rate.Equal(rate.Round(2)) {
		return domain.NewValidationError("tax_rate_percent", "at most two decimal places")
	}
	return nil
}

// RoundHalfUp rounds a non-negative cents amount to the nearest whole cent,
// halves going up.
func RoundHalfUp(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// Percent returns round_half_up(amount * percent / 100).
func Percent(amountCents int64, percent int64) int64 {
	return RoundHalfUp(decimal.NewFromInt(amountCents).Mul(decimal.NewFromInt(percent)).Div(hundred))
}

// Refresh recomputes every derived money field on inv in place: totals,
// deposit amount and balance due. A total below the amount already paid is rejected.
func Refresh(inv *domain.Invoice) error {
	var coupon int64
	if inv.AppliedCoupon != nil {
		coupon = inv.AppliedCoupon.DiscountCents
	}
	t, err := Compute(inv.Items(), coupon, inv.TaxRatePercent)
	if err != nil {
		return err
	}
	if t.TotalCents < inv.AmountPaidCents {
		return domain.NewValidationError("total_cents", "cannot drop below the amount already paid")
	}

	inv.SubtotalCents = t.SubtotalCents
	inv.LineDiscountCents = t.LineDiscountCents
	inv.CouponDiscountCents = t.CouponDiscountCents
	inv.TaxCents = t.TaxCents
	inv.TotalCents = t.TotalCents
	deposit.Refresh(inv)
	inv.BalanceDueCents = t.TotalCents - inv.AmountPaidCents
	return nil
}
