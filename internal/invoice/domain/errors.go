package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation_error")
	ErrCouponRejected         = errors.New("coupon_rejected")
	ErrOverpayment            = errors.New("overpayment")
	ErrIllegalTransition      = errors.New("illegal_transition")
	ErrBookingAlreadyInvoiced = errors.New("booking_already_invoiced")
	ErrConcurrentModification = errors.New("concurrent_modification")

	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrUnknownStatus       = errors.New("unknown_invoice_status")
	ErrFieldReadOnly       = errors.New("field_read_only")
	ErrDepositLocked       = errors.New("deposit_locked")
	ErrAmendmentNotAllowed = errors.New("amendment_not_allowed")
	ErrContactNotFound     = errors.New("contact_not_found")
	ErrBookingNotFound     = errors.New("booking_not_found")
	ErrCatalogItemNotFound = errors.New("catalog_item_not_found")
	ErrCatalogItemInactive = errors.New("catalog_item_inactive")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrDeleteRequiresDraft = errors.New("delete_requires_draft")
)

// ValidationError reports malformed numeric or structural input.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CouponRejectedError carries the human-readable reason shown to the operator.
type CouponRejectedError struct {
	Code   string
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

func (e *CouponRejectedError) Is(target error) bool { return target == ErrCouponRejected }

type OverpaymentError struct {
	AmountCents     int64
	BalanceDueCents int64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %d cents exceeds balance due of %d cents", e.AmountCents, e.BalanceDueCents)
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }

// IllegalTransitionError describes a refused status change or an action the current status forbids.
type IllegalTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("illegal transition from %s", e.From)
	if e.To != "" {
		msg += " to " + string(e.To)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }
