package linkage

import (
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/invoicecore/internal/booking/domain"
	"github.com/smallbiznis/invoicecore/internal/coupon/validator"
	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/invoice/amendment"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/internal/invoice/statemachine"
	"github.com/smallbiznis/invoicecore/internal/invoice/totals"
)

const fallbackDescription = "Booking Service"

// IDGen allocates identifiers for new line items and amendments.
type IDGen func() snowflake.ID

// LinesFromBooking derives one line per booked service and package. A booking
// with neither falls back to a single line for its total price.
func LinesFromBooking(b *bookingdomain.Booking, newID IDGen) []invoicedomain.LineItem {
	memo := "Booking #" + b.ShortID()
	lines := make([]invoicedomain.LineItem, 0, len(b.Services)+len(b.Packages))
	for _, svc := range b.Services {
		line := invoicedomain.ServiceLine(svc.ID, svc.Name, 1, svc.PriceCents).WithMemo(memo).WithBooking(b.ID)
		line.ID = newID()
		lines = append(lines, line)
	}
	for _, pkg := range b.Packages {
		line := invoicedomain.PackageLine(pkg.ID, pkg.Name, 1, pkg.PriceCents).WithMemo(memo).WithBooking(b.ID)
		line.ID = newID()
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		line := invoicedomain.CustomLine(fallbackDescription, 1, max(b.TotalPriceCents, 0)).WithMemo(memo).WithBooking(b.ID)
		line.ID = newID()
		lines = append(lines, line)
	}
	return lines
}

// Link attaches b to inv. holder is the invoice currently holding the booking, if any.
func Link(inv *invoicedomain.Invoice, b *bookingdomain.Booking, holder *snowflake.ID, newID IDGen, now time.Time) ([]events.Event, error) {
	if inv.IsVoid() {
		return nil, &invoicedomain.IllegalTransitionError{From: inv.Status, Reason: "void invoices cannot be linked to a booking"}
	}
	if holder != nil && *holder != inv.ID {
		return nil, invoicedomain.ErrBookingAlreadyInvoiced
	}
	if inv.BookingID != nil && *inv.BookingID == b.ID {
		return nil, nil
	}
	if inv.ContactID != nil && *inv.ContactID != b.ContactID {
		return nil, invoicedomain.NewValidationError("booking_id", "booking belongs to a different contact")
	}

	bookingID := b.ID
	if inv.IsPaid() {
		description := "Linked booking #" + b.ShortID()
		if inv.BookingID != nil {
			description = "Booking link changed from #" + ShortID(*inv.BookingID) + " to #" + b.ShortID()
		}
		inv.BookingID = &bookingID
		evt, err := amendment.Record(inv, newID(), description, now)
		if err != nil {
			return nil, err
		}
		return []events.Event{evt}, nil
	}

	inv.BookingID = &bookingID
	if inv.ContactID == nil {
		contactID := b.ContactID
		inv.ContactID = &contactID
	}
	inv.LineItems = LinesFromBooking(b, newID)
	return refresh(inv, now)
}

// Unlink detaches the booking. Unpaid invoices fall back to one blank line.
func Unlink(inv *invoicedomain.Invoice, newID IDGen, now time.Time) ([]events.Event, error) {
	if inv.IsVoid() {
		return nil, &invoicedomain.IllegalTransitionError{From: inv.Status, Reason: "void invoices cannot be unlinked"}
	}
	if inv.BookingID == nil {
		return nil, nil
	}

	previous := *inv.BookingID
	inv.BookingID = nil
	if inv.IsPaid() {
		evt, err := amendment.Record(inv, newID(), "Unlinked booking #"+ShortID(previous), now)
		if err != nil {
			return nil, err
		}
		return []events.Event{evt}, nil
	}

	blank := invoicedomain.BlankLine()
	blank.ID = newID()
	inv.LineItems = []invoicedomain.LineItem{blank}
	return refresh(inv, now)
}

func refresh(inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
	var out []events.Event
	if evt, invalidated := validator.Reevaluate(inv); invalidated {
		out = append(out, evt)
	}
	if err := totals.Refresh(inv); err != nil {
		return nil, err
	}
	settled, err := statemachine.Reconcile(inv, now)
	if err != nil {
		return nil, err
	}
	return append(out, settled...), nil
}

func ShortID(id snowflake.ID) string {
	return (&bookingdomain.Booking{ID: id}).ShortID()
}
