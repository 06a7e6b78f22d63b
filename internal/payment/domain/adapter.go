package domain

import (
	"context"
	"net/http"
)

type AdapterConfig struct {
	Provider        string
	MerchantAccount string
	Config          map[string]any
}

// AdapterFactory builds an adapter bound to one merchant account.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (WebhookAdapter, error)
}

// WebhookAdapter verifies and parses settlement callbacks.
type WebhookAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*SettlementEvent, error)
}

// PaymentAdapter is implemented by adapters that can also originate charges.
type PaymentAdapter interface {
	WebhookAdapter
	CreateIntent(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	ConfirmIntent(ctx context.Context, providerIntentID string) (ChargeResult, error)
	CreateCheckoutLink(ctx context.Context, req ChargeRequest) (CheckoutLink, error)
	PushToTerminal(ctx context.Context, req TerminalRequest) (ChargeResult, error)
	Cancel(ctx context.Context, providerIntentID string) error
}

type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "succeeded"
	ChargeRequiresAction ChargeStatus = "requires_action"
	ChargePending        ChargeStatus = "pending"
	ChargeFailed         ChargeStatus = "failed"
)

type ChargeRequest struct {
	Reference          string
	InvoiceNumber      string
	AmountCents        int64
	Currency           string
	PaymentMethodToken string
	Description        string
	Metadata           map[string]string
}

type ChargeResult struct {
	ProviderIntentID  string
	ProviderPaymentID string
	Status            ChargeStatus
	ClientSecret      string
	NextActionURL     string
	CardBrand         string
	CardLast4         string
	FailureReason     string
}

type CheckoutLink struct {
	ProviderIntentID string
	URL              string
}

type TerminalRequest struct {
	ChargeRequest
	TerminalID string
}
