package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/invoicecore/internal/events"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/internal/invoice/statemachine"
	"github.com/smallbiznis/invoicecore/internal/payment/domain"
)

// ErrMismatch reports an invoice whose paid amount disagrees with its payment rows.
var ErrMismatch = errors.New("ledger_mismatch")

// Apply records payment against inv in memory. It refuses the whole payment
// rather than applying part of it.
func Apply(inv *invoicedomain.Invoice, payment *domain.Payment, now time.Time) ([]events.Event, error) {
	if inv.Status == invoicedomain.StatusVoid {
		return nil, &invoicedomain.IllegalTransitionError{
			From:   inv.Status,
			Reason: "void invoices cannot accept payments",
		}
	}
	if payment.AmountCents <= 0 {
		return nil, invoicedomain.NewValidationError("amount_cents", "must be positive")
	}
	if !payment.Channel.Valid() {
		return nil, invoicedomain.NewValidationError("channel", fmt.Sprintf("unknown channel %q", payment.Channel))
	}
	if payment.AmountCents > inv.BalanceDueCents {
		return nil, &invoicedomain.OverpaymentError{
			AmountCents:     payment.AmountCents,
			BalanceDueCents: inv.BalanceDueCents,
		}
	}
	if payment.IsDeposit {
		if inv.DepositPercent == nil {
			return nil, invoicedomain.NewValidationError("is_deposit", "invoice has no deposit configured")
		}
		if inv.DepositPaidAt != nil {
			return nil, invoicedomain.NewValidationError("is_deposit", "deposit has already been paid")
		}
	}

	var out []events.Event
	if inv.Status == invoicedomain.StatusDraft {
		evts, err := statemachine.Send(inv, now)
		if err != nil {
			return nil, err
		}
		out = append(out, evts...)
	}

	inv.AmountPaidCents += payment.AmountCents
	inv.BalanceDueCents = inv.TotalCents - inv.AmountPaidCents
	if payment.IsDeposit {
		inv.DepositPaidAt = &now
	}
	out = append(out, events.PaymentApplied{
		InvoiceID:   inv.ID,
		PaymentID:   payment.ID,
		AmountCents: payment.AmountCents,
		Channel:     string(payment.Channel),
		IsDeposit:   payment.IsDeposit,
	})

	if inv.BalanceDueCents == 0 {
		evts, err := statemachine.Settle(inv, now)
		if err != nil {
			return nil, err
		}
		out = append(out, evts...)
	}
	return out, nil
}

// CheckAcceptable runs the admission checks of Apply without mutating inv.
// Used before creating a pending session for an external channel.
func CheckAcceptable(inv *invoicedomain.Invoice, amountCents int64, isDeposit bool) error {
	trial := inv.Clone()
	_, err := Apply(trial, &domain.Payment{
		AmountCents: amountCents,
		Channel:     domain.ChannelCard,
		IsDeposit:   isDeposit,
	}, time.Time{})
	return err
}

// Sum adds up recorded payment amounts.
func Sum(payments []domain.Payment) int64 {
	var total int64
	for _, p := range payments {
		total += p.AmountCents
	}
	return total
}

// Verify checks that the invoice's paid amount matches its recorded payments.
func Verify(inv *invoicedomain.Invoice, payments []domain.Payment) error {
	if paid := Sum(payments); paid != inv.AmountPaidCents {
		return fmt.Errorf("%w: invoice records %d cents paid, payments sum to %d", ErrMismatch, inv.AmountPaidCents, paid)
	}
	if inv.BalanceDueCents != max(0, inv.TotalCents-inv.AmountPaidCents) {
		return fmt.Errorf("%w: balance %d does not match total %d minus paid %d",
			ErrMismatch, inv.BalanceDueCents, inv.TotalCents, inv.AmountPaidCents)
	}
	return nil
}
