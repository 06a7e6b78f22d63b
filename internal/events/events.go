package events

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

const (
	TopicCouponInvalidated    = "invoice.coupon_invalidated"
	TopicInvoiceStatusChanged = "invoice.status_changed"
	TopicPaymentApplied       = "invoice.payment_applied"
	TopicAmendmentRecorded    = "invoice.amendment_recorded"
)

// Event is emitted by invoice mutations and delivered after commit.
type Event interface {
	Topic() string
	Invoice() snowflake.ID
}

type CouponInvalidated struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	Code      string       `json:"code"`
	Reason    string       `json:"reason"`
}

func (e CouponInvalidated) Topic() string         { return TopicCouponInvalidated }
func (e CouponInvalidated) Invoice() snowflake.ID { return e.InvoiceID }

type InvoiceStatusChanged struct {
	InvoiceID snowflake.ID  `json:"invoice_id"`
	From      domain.Status `json:"from"`
	To        domain.Status `json:"to"`
}

func (e InvoiceStatusChanged) Topic() string         { return TopicInvoiceStatusChanged }
func (e InvoiceStatusChanged) Invoice() snowflake.ID { return e.InvoiceID }

type PaymentApplied struct {
	InvoiceID   snowflake.ID `json:"invoice_id"`
	PaymentID   snowflake.ID `json:"payment_id"`
	AmountCents int64        `json:"amount_cents"`
	Channel     string       `json:"channel"`
	IsDeposit   bool         `json:"is_deposit"`
}

func (e PaymentApplied) Topic() string         { return TopicPaymentApplied }
func (e PaymentApplied) Invoice() snowflake.ID { return e.InvoiceID }

type AmendmentRecorded struct {
	InvoiceID   snowflake.ID `json:"invoice_id"`
	Description string       `json:"description"`
}

func (e AmendmentRecorded) Topic() string         { return TopicAmendmentRecorded }
func (e AmendmentRecorded) Invoice() snowflake.ID { return e.InvoiceID }
