package statemachine

import (
	"fmt"

	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

// Field names an invoice attribute guarded by status.
type Field string

const (
	FieldLineItems Field = "line_items"
	FieldCoupon    Field = "coupon"
	FieldTaxRate   Field = "tax_rate"
	FieldDeposit   Field = "deposit"
	FieldContact   Field = "contact"
	FieldCurrency  Field = "currency"
	FieldDueDate   Field = "due_date"
	FieldNotes     Field = "notes"
	FieldTerms     Field = "terms"
	FieldTags      Field = "tags"
	FieldBooking   Field = "booking"
	FieldAmendment Field = "amendment"
)

var writable = map[domain.Status]map[Field]bool{
	domain.StatusDraft: fieldSet(
		FieldLineItems, FieldCoupon, FieldTaxRate, FieldDeposit, FieldContact,
		FieldCurrency, FieldDueDate, FieldNotes, FieldTerms, FieldTags, FieldBooking,
	),
	domain.StatusSent:    openFields(),
	domain.StatusViewed:  openFields(),
	domain.StatusOverdue: openFields(),
	domain.StatusPaid:    fieldSet(FieldNotes, FieldTerms, FieldTags, FieldBooking, FieldAmendment),
	domain.StatusVoid:    fieldSet(FieldTags),
}

func openFields() map[Field]bool {
	return fieldSet(
		FieldLineItems, FieldCoupon, FieldTaxRate, FieldDeposit, FieldContact,
		FieldDueDate, FieldNotes, FieldTerms, FieldTags, FieldBooking,
	)
}

func fieldSet(fields ...Field) map[Field]bool {
	out := make(map[Field]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// CheckEditable returns ErrFieldReadOnly when status freezes field.
func CheckEditable(status domain.Status, field Field) error {
	if writable[status][field] {
		return nil
	}
	if field == FieldAmendment {
		return fmt.Errorf("%w: amendments are only recorded on paid invoices", domain.ErrAmendmentNotAllowed)
	}
	return fmt.Errorf("%w: %s is read-only while the invoice is %s", domain.ErrFieldReadOnly, field, status)
}
