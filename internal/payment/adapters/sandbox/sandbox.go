// Package sandbox is a deterministic in-process payment adapter. Outcomes
// are chosen by the payment method token so every channel can be exercised
// without a network dependency.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
)

const (
	ProviderName    = "sandbox"
	SignatureHeader = "Sandbox-Signature"

	TokenVisa       = "tok_visa"
	TokenMastercard = "tok_mastercard"
	Token3DS        = "tok_3ds"
	Token3DSFail    = "tok_3ds_fail"
	TokenDecline    = "tok_decline"

	defaultSecret  = "sandbox_secret"
	defaultBaseURL = "https://sandbox.invoicecore.local"

	intentPrefix      = "sbx_pi_"
	intent3DSPrefix   = "sbx_pi3ds_"
	intent3DSFailPref = "sbx_pi3dsx_"
	checkoutPrefix    = "sbx_cs_"
	terminalPrefix    = "sbx_tm_"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret := readString(cfg.Config, "webhook_secret", defaultSecret)
	baseURL := strings.TrimRight(readString(cfg.Config, "base_url", defaultBaseURL), "/")
	return &Adapter{
		account: cfg.MerchantAccount,
		secret:  secret,
		baseURL: baseURL,
	}, nil
}

type Adapter struct {
	account string
	secret  string
	baseURL string
}

var _ paymentdomain.PaymentAdapter = (*Adapter)(nil)

func (a *Adapter) CreateIntent(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	if req.AmountCents <= 0 || strings.TrimSpace(req.Reference) == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrInvalidPayload
	}
	token := strings.ToLower(strings.TrimSpace(req.PaymentMethodToken))
	switch token {
	case TokenDecline:
		return paymentdomain.ChargeResult{
			ProviderIntentID: intentPrefix + req.Reference,
			Status:           paymentdomain.ChargeFailed,
			FailureReason:    "Your card was declined.",
		}, nil
	case Token3DS, Token3DSFail:
		prefix := intent3DSPrefix
		if token == Token3DSFail {
			prefix = intent3DSFailPref
		}
		id := prefix + req.Reference
		return paymentdomain.ChargeResult{
			ProviderIntentID: id,
			Status:           paymentdomain.ChargeRequiresAction,
			ClientSecret:     id + "_secret",
			NextActionURL:    a.baseURL + "/3ds/" + id,
		}, nil
	default:
		brand, last4 := cardFor(token)
		id := intentPrefix + req.Reference
		return paymentdomain.ChargeResult{
			ProviderIntentID:  id,
			ProviderPaymentID: "sbx_ch_" + req.Reference,
			Status:            paymentdomain.ChargeSucceeded,
			CardBrand:         brand,
			CardLast4:         last4,
		}, nil
	}
}

func (a *Adapter) ConfirmIntent(ctx context.Context, providerIntentID string) (paymentdomain.ChargeResult, error) {
	switch {
	case strings.HasPrefix(providerIntentID, intent3DSFailPref):
		return paymentdomain.ChargeResult{
			ProviderIntentID: providerIntentID,
			Status:           paymentdomain.ChargeFailed,
			FailureReason:    "Card authentication failed.",
		}, nil
	case strings.HasPrefix(providerIntentID, intent3DSPrefix):
		ref := strings.TrimPrefix(providerIntentID, intent3DSPrefix)
		return paymentdomain.ChargeResult{
			ProviderIntentID:  providerIntentID,
			ProviderPaymentID: "sbx_ch_" + ref,
			Status:            paymentdomain.ChargeSucceeded,
			CardBrand:         "visa",
			CardLast4:         "3184",
		}, nil
	case strings.HasPrefix(providerIntentID, intentPrefix):
		ref := strings.TrimPrefix(providerIntentID, intentPrefix)
		return paymentdomain.ChargeResult{
			ProviderIntentID:  providerIntentID,
			ProviderPaymentID: "sbx_ch_" + ref,
			Status:            paymentdomain.ChargeSucceeded,
			CardBrand:         "visa",
			CardLast4:         "4242",
		}, nil
	}
	return paymentdomain.ChargeResult{}, paymentdomain.ErrInvalidEvent
}

func (a *Adapter) CreateCheckoutLink(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.CheckoutLink, error) {
	if req.AmountCents <= 0 || strings.TrimSpace(req.Reference) == "" {
		return paymentdomain.CheckoutLink{}, paymentdomain.ErrInvalidPayload
	}
	id := checkoutPrefix + req.Reference
	return paymentdomain.CheckoutLink{
		ProviderIntentID: id,
		URL:              a.baseURL + "/pay/" + id,
	}, nil
}

func (a *Adapter) PushToTerminal(ctx context.Context, req paymentdomain.TerminalRequest) (paymentdomain.ChargeResult, error) {
	if req.AmountCents <= 0 || strings.TrimSpace(req.TerminalID) == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrInvalidPayload
	}
	return paymentdomain.ChargeResult{
		ProviderIntentID: terminalPrefix + req.Reference,
		Status:           paymentdomain.ChargePending,
	}, nil
}

func (a *Adapter) Cancel(ctx context.Context, providerIntentID string) error {
	if strings.TrimSpace(providerIntentID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(a.secret, payload))) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature header value for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Callback is the sandbox webhook body.
type Callback struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Reference         string `json:"reference"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	CardBrand         string `json:"card_brand,omitempty"`
	CardLast4         string `json:"card_last4,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
	OccurredAt        int64  `json:"occurred_at"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.SettlementEvent, error) {
	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(cb.ID) == "" || strings.TrimSpace(cb.Reference) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch cb.Type {
	case "payment.succeeded":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "payment.failed":
		eventType = paymentdomain.EventTypePaymentFailed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := time.Now().UTC()
	if cb.OccurredAt > 0 {
		occurredAt = time.Unix(cb.OccurredAt, 0).UTC()
	}
	return &paymentdomain.SettlementEvent{
		Provider:          ProviderName,
		ProviderEventID:   cb.ID,
		ProviderPaymentID: cb.ProviderPaymentID,
		Reference:         cb.Reference,
		Type:              eventType,
		AmountCents:       cb.AmountCents,
		Currency:          strings.ToUpper(strings.TrimSpace(cb.Currency)),
		CardBrand:         cb.CardBrand,
		CardLast4:         cb.CardLast4,
		FailureReason:     cb.FailureReason,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func cardFor(token string) (string, string) {
	if token == TokenMastercard {
		return "mastercard", "4444"
	}
	return "visa", "4242"
}

func readString(config map[string]any, key, fallback string) string {
	if config == nil {
		return fallback
	}
	value, ok := config[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
