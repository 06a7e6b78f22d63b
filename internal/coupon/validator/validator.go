package validator

import (
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	coupondomain "github.com/smallbiznis/invoicecore/internal/coupon/domain"
	"github.com/smallbiznis/invoicecore/internal/events"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/internal/invoice/totals"
)

const (
	ReasonNotFound       = "Coupon code not found"
	ReasonInactive       = "This coupon is no longer active"
	ReasonExpired        = "This coupon has expired"
	ReasonUsageLimit     = "This coupon has reached its usage limit"
	ReasonNotApplicable  = "This coupon is not applicable to any items in your invoice"
	ReasonNoEligibleItem = "No eligible items found in invoice"
)

type Result struct {
	EligibleLines         int
	EligibleSubtotalCents int64
	DiscountCents         int64
}

func reject(code, reason string) error {
	return &invoicedomain.CouponRejectedError{Code: code, Reason: reason}
}

// Validate runs the full admission checks for applying coupon to lines at now.
func Validate(coupon *coupondomain.Coupon, lines []invoicedomain.LineItem, now time.Time) (Result, error) {
	return validate(coupon, lines, now, true)
}

func validate(coupon *coupondomain.Coupon, lines []invoicedomain.LineItem, now time.Time, consumesUse bool) (Result, error) {
	if coupon == nil {
		return Result{}, reject("", ReasonNotFound)
	}
	if !coupon.Active {
		return Result{}, reject(coupon.Code, ReasonInactive)
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now) {
		return Result{}, reject(coupon.Code, ReasonExpired)
	}
	if consumesUse && coupon.MaxUses != nil && *coupon.MaxUses > 0 && coupon.CurrentUses >= *coupon.MaxUses {
		return Result{}, reject(coupon.Code, ReasonUsageLimit)
	}
	return Evaluate(coupon.Terms(), lines)
}

// Evaluate checks line eligibility and computes the discount for terms.
// Activity, expiry and usage are not considered.
func Evaluate(terms invoicedomain.AppliedCoupon, lines []invoicedomain.LineItem) (Result, error) {
	if err := ValidateTerms(terms); err != nil {
		return Result{}, err
	}

	res := eligible(terms, lines)
	if res.EligibleLines == 0 {
		return Result{}, reject(terms.Code, noEligibleReason(terms))
	}
	if terms.MinPurchaseCents > 0 && res.EligibleSubtotalCents < terms.MinPurchaseCents {
		return Result{}, reject(terms.Code, fmt.Sprintf(
			"Minimum purchase of $%d.%02d required to use this coupon",
			terms.MinPurchaseCents/100, terms.MinPurchaseCents%100,
		))
	}

	switch terms.DiscountType {
	case invoicedomain.DiscountPercent:
		res.DiscountCents = totals.Percent(res.EligibleSubtotalCents, terms.DiscountValue)
	case invoicedomain.DiscountFixed:
		res.DiscountCents = min(terms.DiscountValue, res.EligibleSubtotalCents)
	}
	if terms.MaxDiscountCents != nil && *terms.MaxDiscountCents > 0 && res.DiscountCents > *terms.MaxDiscountCents {
		res.DiscountCents = *terms.MaxDiscountCents
	}
	return res, nil
}

func eligible(terms invoicedomain.AppliedCoupon, lines []invoicedomain.LineItem) Result {
	var res Result
	for _, line := range lines {
		if line.IsDiscount() || line.IsBlank() {
			continue
		}
		if terms.Restricted() && !matches(terms, line) {
			continue
		}
		res.EligibleLines++
		res.EligibleSubtotalCents += line.AmountCents
	}
	return res
}

func noEligibleReason(terms invoicedomain.AppliedCoupon) string {
	if terms.Restricted() {
		return ReasonNotApplicable
	}
	return ReasonNoEligibleItem
}

func ValidateTerms(terms invoicedomain.AppliedCoupon) error {
	switch terms.DiscountType {
	case invoicedomain.DiscountPercent:
		if terms.DiscountValue <= 0 || terms.DiscountValue > 100 {
			return fmt.Errorf("%w: percent discount must be between 1 and 100", coupondomain.ErrInvalidCouponTerms)
		}
	case invoicedomain.DiscountFixed:
		if terms.DiscountValue <= 0 {
			return fmt.Errorf("%w: fixed discount must be positive", coupondomain.ErrInvalidCouponTerms)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", coupondomain.ErrInvalidCouponTerms, terms.DiscountType)
	}
	if terms.MinPurchaseCents < 0 {
		return fmt.Errorf("%w: minimum purchase must not be negative", coupondomain.ErrInvalidCouponTerms)
	}
	return nil
}

func matches(terms invoicedomain.AppliedCoupon, line invoicedomain.LineItem) bool {
	if line.ServiceID != nil && slices.Contains(terms.ApplicableServiceIDs, *line.ServiceID) {
		return true
	}
	if line.PackageID != nil && slices.Contains(terms.ApplicablePackageIDs, *line.PackageID) {
		return true
	}
	return false
}

// Apply freezes the coupon onto inv. The caller refreshes totals afterwards.
// Re-applying the coupon inv already holds does not count against MaxUses.
func Apply(inv *invoicedomain.Invoice, coupon *coupondomain.Coupon, now time.Time) (Result, error) {
	held := coupon != nil && inv.AppliedCoupon != nil && inv.AppliedCoupon.CouponID == coupon.ID
	res, err := validate(coupon, inv.Items(), now, !held)
	if err != nil {
		return Result{}, err
	}
	applied := coupon.Terms()
	applied.DiscountCents = res.DiscountCents
	applied.AppliedAt = now
	inv.AppliedCoupon = &applied
	return res, nil
}

// Reevaluate re-checks the applied coupon after a line item change. The
// discount stays frozen at its applied value, clamped to the eligible
// subtotal. A coupon with no eligible line left is removed and reported.
func Reevaluate(inv *invoicedomain.Invoice) (events.Event, bool) {
	if inv.AppliedCoupon == nil {
		return nil, false
	}
	res := eligible(*inv.AppliedCoupon, inv.Items())
	if res.EligibleLines == 0 || res.EligibleSubtotalCents <= 0 {
		evt := events.CouponInvalidated{
			InvoiceID: inv.ID,
			Code:      inv.AppliedCoupon.Code,
			Reason:    noEligibleReason(*inv.AppliedCoupon),
		}
		inv.AppliedCoupon = nil
		return evt, true
	}
	if inv.AppliedCoupon.DiscountCents > res.EligibleSubtotalCents {
		inv.AppliedCoupon.DiscountCents = res.EligibleSubtotalCents
	}
	return nil, false
}

// AppliedCouponID is a small helper for callers releasing usage counts.
func AppliedCouponID(inv *invoicedomain.Invoice) (snowflake.ID, bool) {
	if inv.AppliedCoupon == nil {
		return 0, false
	}
	return inv.AppliedCoupon.CouponID, true
}
