package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

type RecordOfflinePaymentRequest struct {
	InvoiceID       snowflake.ID  `validate:"required"`
	AmountCents     int64         `validate:"gt=0"`
	Method          OfflineMethod `validate:"required"`
	IsDeposit       bool
	Note            string `validate:"max=500"`
	ExpectedVersion int64
}

// AmountCents zero charges whatever is due next (outstanding deposit or balance).
type CardChargeRequest struct {
	InvoiceID          snowflake.ID `validate:"required"`
	AmountCents        int64        `validate:"gte=0"`
	IsDeposit          bool
	PaymentMethodToken string `validate:"required"`
}

type CheckoutLinkRequest struct {
	InvoiceID   snowflake.ID `validate:"required"`
	AmountCents int64        `validate:"gte=0"`
	IsDeposit   bool
}

type TerminalSessionRequest struct {
	InvoiceID   snowflake.ID `validate:"required"`
	AmountCents int64        `validate:"gte=0"`
	IsDeposit   bool
	TerminalID  string `validate:"required"`
}

type PaymentResult struct {
	Payment *Payment               `json:"payment,omitempty"`
	Session *Session               `json:"session,omitempty"`
	Invoice *invoicedomain.Invoice `json:"invoice,omitempty"`
	// Replayed is set when the settlement had already been applied.
	Replayed bool `json:"replayed"`
}

type Service interface {
	RecordOfflinePayment(ctx context.Context, req RecordOfflinePaymentRequest) (*PaymentResult, error)
	BeginCardCharge(ctx context.Context, req CardChargeRequest) (*PaymentResult, error)
	ConfirmCardCharge(ctx context.Context, reference string) (*PaymentResult, error)
	CreateCheckoutLink(ctx context.Context, req CheckoutLinkRequest) (*Session, error)
	StartTerminalSession(ctx context.Context, req TerminalSessionRequest) (*Session, error)
	Settle(ctx context.Context, event SettlementEvent) (*PaymentResult, error)
	FailSession(ctx context.Context, reference, reason string) (*Session, error)
	Abandon(ctx context.Context, reference string) (*Session, error)
	// AbandonStale closes open sessions untouched since olderThan.
	AbandonStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
	ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}

// WebhookService verifies provider callbacks and turns them into settlements.
// ErrEventAlreadyProcessed means the callback was handled before and should be acknowledged.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
