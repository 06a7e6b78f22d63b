package statemachine

import (
	"strings"
	"time"

	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

func illegal(from, to domain.Status, reason string) error {
	return &domain.IllegalTransitionError{From: from, To: to, Reason: reason}
}

func transition(inv *domain.Invoice, to domain.Status) []events.Event {
	from := inv.Status
	inv.Status = to
	return []events.Event{events.InvoiceStatusChanged{InvoiceID: inv.ID, From: from, To: to}}
}

// Send moves a draft to sent once it has a contact and at least one real line.
func Send(inv *domain.Invoice, now time.Time) ([]events.Event, error) {
	if inv.Status != domain.StatusDraft {
		return nil, illegal(inv.Status, domain.StatusSent, "only draft invoices can be sent")
	}
	if err := SendPrerequisites(inv); err != nil {
		return nil, err
	}
	inv.SentAt = &now
	return transition(inv, domain.StatusSent), nil
}

func SendPrerequisites(inv *domain.Invoice) error {
	if inv.ContactID == nil || *inv.ContactID == 0 {
		return illegal(inv.Status, domain.StatusSent, "a contact is required")
	}
	if !domain.HasBillableLine(inv.Items()) {
		return illegal(inv.Status, domain.StatusSent, "at least one line item is required")
	}
	return nil
}

// MarkViewed records the first customer view. Overdue and paid invoices keep
// their status and only get the timestamp.
func MarkViewed(inv *domain.Invoice, now time.Time) ([]events.Event, error) {
	switch inv.Status {
	case domain.StatusSent:
		if inv.ViewedAt == nil {
			inv.ViewedAt = &now
		}
		return transition(inv, domain.StatusViewed), nil
	case domain.StatusViewed, domain.StatusOverdue, domain.StatusPaid:
		if inv.ViewedAt == nil {
			inv.ViewedAt = &now
		}
		return nil, nil
	default:
		return nil, illegal(inv.Status, domain.StatusViewed, "invoice has not been sent")
	}
}

// IsPastDue reports whether a sent or viewed invoice qualifies for overdue at now.
func IsPastDue(inv *domain.Invoice, now time.Time) bool {
	if inv.Status != domain.StatusSent && inv.Status != domain.StatusViewed {
		return false
	}
	return inv.DueDate != nil && now.After(*inv.DueDate) && inv.BalanceDueCents > 0
}

func MarkOverdue(inv *domain.Invoice, now time.Time) ([]events.Event, error) {
	switch inv.Status {
	case domain.StatusOverdue:
		return nil, nil
	case domain.StatusSent, domain.StatusViewed:
		if !IsPastDue(inv, now) {
			return nil, illegal(inv.Status, domain.StatusOverdue, "invoice is not past due")
		}
		inv.OverdueAt = &now
		return transition(inv, domain.StatusOverdue), nil
	default:
		return nil, illegal(inv.Status, domain.StatusOverdue, "")
	}
}

// Settle is the only way into paid.
func Settle(inv *domain.Invoice, now time.Time) ([]events.Event, error) {
	switch inv.Status {
	case domain.StatusPaid:
		return nil, nil
	case domain.StatusSent, domain.StatusViewed, domain.StatusOverdue:
	default:
		return nil, illegal(inv.Status, domain.StatusPaid, "")
	}
	if inv.BalanceDueCents != 0 || inv.AmountPaidCents <= 0 {
		return nil, illegal(inv.Status, domain.StatusPaid, "balance is still outstanding")
	}
	inv.PaidAt = &now
	return transition(inv, domain.StatusPaid), nil
}

// Reconcile settles an open invoice whose balance reached zero through an edit.
func Reconcile(inv *domain.Invoice, now time.Time) ([]events.Event, error) {
	switch inv.Status {
	case domain.StatusSent, domain.StatusViewed, domain.StatusOverdue:
		if inv.BalanceDueCents == 0 && inv.AmountPaidCents > 0 {
			return Settle(inv, now)
		}
	}
	return nil, nil
}

func Void(inv *domain.Invoice, reason string, now time.Time) ([]events.Event, error) {
	switch inv.Status {
	case domain.StatusDraft:
		return nil, illegal(inv.Status, domain.StatusVoid, "delete draft invoices instead")
	case domain.StatusVoid:
		return nil, illegal(inv.Status, domain.StatusVoid, "invoice is already void")
	}
	inv.VoidedAt = &now
	inv.VoidReason = strings.TrimSpace(reason)
	return transition(inv, domain.StatusVoid), nil
}

// CanDelete allows physical deletion of unpaid drafts only.
func CanDelete(inv *domain.Invoice) error {
	if inv.Status != domain.StatusDraft || inv.AmountPaidCents > 0 {
		return domain.ErrDeleteRequiresDraft
	}
	return nil
}
