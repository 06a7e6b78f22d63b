package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// LineKind tags the LineItem variant.
type LineKind string

const (
	LineKindService  LineKind = "service"
	LineKindPackage  LineKind = "package"
	LineKindCustom   LineKind = "custom"
	LineKindDiscount LineKind = "discount"
)

func (k LineKind) Valid() bool {
	switch k {
	case LineKindService, LineKindPackage, LineKindCustom, LineKindDiscount:
		return true
	}
	return false
}

// LineItem is one billable (or discount) row on an invoice.
// Service and package lines reference a catalog entry, custom and discount
// lines never do. Discount lines carry a negative AmountCents.
type LineItem struct {
	ID             snowflake.ID  `json:"id"`
	Kind           LineKind      `json:"kind"`
	Description    string        `json:"description"`
	Memo           string        `json:"memo,omitempty"`
	Quantity       int64         `json:"quantity"`
	UnitPriceCents int64         `json:"unit_price_cents"`
	AmountCents    int64         `json:"amount_cents"`
	ServiceID      *snowflake.ID `json:"service_id,omitempty"`
	PackageID      *snowflake.ID `json:"package_id,omitempty"`
	BookingID      *snowflake.ID `json:"booking_id,omitempty"`
}

func ServiceLine(serviceID snowflake.ID, description string, quantity, unitPriceCents int64) LineItem {
	id := serviceID
	item := LineItem{
		Kind:           LineKindService,
		Description:    description,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		ServiceID:      &id,
	}
	item.AmountCents = item.ExpectedAmount()
	return item
}

func PackageLine(packageID snowflake.ID, description string, quantity, unitPriceCents int64) LineItem {
	id := packageID
	item := LineItem{
		Kind:           LineKindPackage,
		Description:    description,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		PackageID:      &id,
	}
	item.AmountCents = item.ExpectedAmount()
	return item
}

func CustomLine(description string, quantity, unitPriceCents int64) LineItem {
	item := LineItem{
		Kind:           LineKindCustom,
		Description:    description,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
	}
	item.AmountCents = item.ExpectedAmount()
	return item
}

// DiscountLine takes a positive unit price and stores the amount negated.
func DiscountLine(description string, quantity, unitPriceCents int64) LineItem {
	item := LineItem{
		Kind:           LineKindDiscount,
		Description:    description,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
	}
	item.AmountCents = item.ExpectedAmount()
	return item
}

// BlankLine is the placeholder left behind when a booking is unlinked.
func BlankLine() LineItem {
	return CustomLine("", 1, 0)
}

func (l LineItem) WithMemo(memo string) LineItem {
	l.Memo = memo
	return l
}

func (l LineItem) WithBooking(bookingID snowflake.ID) LineItem {
	id := bookingID
	l.BookingID = &id
	return l
}

func (l LineItem) IsDiscount() bool { return l.Kind == LineKindDiscount }

func (l LineItem) IsBlank() bool {
	return l.Kind == LineKindCustom &&
		strings.TrimSpace(l.Description) == "" &&
		l.UnitPriceCents == 0
}

// ExpectedAmount derives quantity * unit price, negated for discounts.
// It returns 0 when the product would overflow; Validate reports that case.
func (l LineItem) ExpectedAmount() int64 {
	if multiplyOverflows(l.Quantity, l.UnitPriceCents) {
		return 0
	}
	amount := l.Quantity * l.UnitPriceCents
	if l.Kind == LineKindDiscount {
		return -amount
	}
	return amount
}

// Normalize trims text and recomputes the derived amount.
func (l LineItem) Normalize() LineItem {
	l.Description = strings.TrimSpace(l.Description)
	l.Memo = strings.TrimSpace(l.Memo)
	l.AmountCents = l.ExpectedAmount()
	return l
}

func (l LineItem) Validate() error {
	if !l.Kind.Valid() {
		return NewValidationError("kind", "unknown line item kind")
	}
	if l.Quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	if l.UnitPriceCents < 0 {
		return NewValidationError("unit_price_cents", "must not be negative")
	}
	if multiplyOverflows(l.Quantity, l.UnitPriceCents) {
		return NewValidationError("amount_cents", "quantity times unit price overflows")
	}
	if l.AmountCents != l.ExpectedAmount() {
		return NewValidationError("amount_cents", "does not equal quantity times unit price")
	}

	switch l.Kind {
	case LineKindService:
		if l.ServiceID == nil || *l.ServiceID == 0 {
			return NewValidationError("service_id", "required for service lines")
		}
		if l.PackageID != nil {
			return NewValidationError("package_id", "not allowed on service lines")
		}
	case LineKindPackage:
		if l.PackageID == nil || *l.PackageID == 0 {
			return NewValidationError("package_id", "required for package lines")
		}
		if l.ServiceID != nil {
			return NewValidationError("service_id", "not allowed on package lines")
		}
	case LineKindCustom, LineKindDiscount:
		if l.ServiceID != nil || l.PackageID != nil {
			return NewValidationError("kind", "custom and discount lines cannot reference the catalog")
		}
		if l.Kind == LineKindDiscount && l.BookingID != nil {
			return NewValidationError("booking_id", "not allowed on discount lines")
		}
	}
	return nil
}

// ValidateLineItems checks every row and reports the first failure with its index.
func ValidateLineItems(items []LineItem) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return NewValidationError(
					"line_items["+strconv.Itoa(i)+"]."+verr.Field,
					verr.Reason,
				)
			}
			return err
		}
	}
	return nil
}

// HasBillableLine reports whether at least one row is not a blank placeholder.
func HasBillableLine(items []LineItem) bool {
	for _, item := range items {
		if !item.IsBlank() {
			return true
		}
	}
	return false
}

func multiplyOverflows(a, b int64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	return a > math.MaxInt64/b
}
