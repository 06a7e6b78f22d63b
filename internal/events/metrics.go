package events

import (
	"context"

	obsmetrics "github.com/smallbiznis/invoicecore/internal/observability/metrics"
)

// Observe returns a Handler that counts committed events.
func Observe(m *obsmetrics.Metrics) Handler {
	return func(ctx context.Context, evt Event) error {
		switch e := evt.(type) {
		case InvoiceStatusChanged:
			m.RecordStatusTransition(ctx, e.From.String(), e.To.String())
		case PaymentApplied:
			m.RecordPaymentApplied(ctx, e.Channel, e.IsDeposit)
		case CouponInvalidated:
			m.RecordCouponInvalidated(ctx)
		}
		return nil
	}
}
