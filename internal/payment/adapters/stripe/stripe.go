package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
)

const (
	providerName = "stripe"
	// referenceKey is the metadata key carrying the session reference.
	referenceKey = "invoicecore_reference"
	// signatureTolerance bounds how old a signed callback may be.
	signatureTolerance = 5 * time.Minute
)

type Factory struct {
	now func() time.Time
}

func NewFactory() *Factory {
	return &Factory{now: time.Now}
}

func (f *Factory) Provider() string {
	return providerName
}

// NewAdapter returns a webhook-only adapter. Charges through Stripe are
// created by the hosted integration and settle here by reference.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		account:       cfg.MerchantAccount,
		webhookSecret: secret,
		now:           f.now,
	}, nil
}

type Adapter struct {
	account       string
	webhookSecret string
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	ts, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if a.now != nil {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return paymentdomain.ErrInvalidSignature
		}
		if age := a.now().Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	expected := sign(a.webhookSecret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func sign(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", ts, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.SettlementEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parsePaymentIntent(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "payment_intent.payment_failed":
		return a.parsePaymentIntent(event, payload, paymentdomain.EventTypePaymentFailed)
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Account string          `json:"account"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID               string         `json:"id"`
	Amount           int64          `json:"amount"`
	AmountReceived   int64          `json:"amount_received"`
	Currency         string         `json:"currency"`
	Created          int64          `json:"created"`
	Metadata         map[string]any `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Charges struct {
		Data []stripeCharge `json:"data"`
	} `json:"charges"`
}

type stripeCharge struct {
	ID                   string `json:"id"`
	PaymentMethodDetails struct {
		Card struct {
			Brand string `json:"brand"`
			Last4 string `json:"last4"`
		} `json:"card"`
	} `json:"payment_method_details"`
}

type stripeCheckoutSession struct {
	ID            string         `json:"id"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	PaymentIntent string         `json:"payment_intent"`
	PaymentStatus string         `json:"payment_status"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

func (a *Adapter) parsePaymentIntent(event stripeEvent, payload []byte, eventType string) (*paymentdomain.SettlementEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	reference := readMetadataValue(intent.Metadata, referenceKey)
	if reference == "" {
		return nil, paymentdomain.ErrEventIgnored
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	out := &paymentdomain.SettlementEvent{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderPaymentID: intent.ID,
		Reference:         reference,
		Type:              eventType,
		AmountCents:       amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:        timestamp(intent.Created, event.Created),
		RawPayload:        payload,
	}
	if len(intent.Charges.Data) > 0 {
		card := intent.Charges.Data[0].PaymentMethodDetails.Card
		out.CardBrand = strings.TrimSpace(card.Brand)
		out.CardLast4 = strings.TrimSpace(card.Last4)
	}
	if eventType == paymentdomain.EventTypePaymentFailed && intent.LastPaymentError != nil {
		out.FailureReason = intent.LastPaymentError.Message
	}
	return out, nil
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*paymentdomain.SettlementEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if session.PaymentStatus != "paid" {
		return nil, paymentdomain.ErrEventIgnored
	}
	reference := readMetadataValue(session.Metadata, referenceKey)
	if reference == "" {
		return nil, paymentdomain.ErrEventIgnored
	}
	providerPaymentID := session.PaymentIntent
	if providerPaymentID == "" {
		providerPaymentID = session.ID
	}
	return &paymentdomain.SettlementEvent{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderPaymentID: providerPaymentID,
		Reference:         reference,
		Type:              paymentdomain.EventTypePaymentSucceeded,
		AmountCents:       session.AmountTotal,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:        timestamp(session.Created, event.Created),
		RawPayload:        payload,
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var ts string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			ts = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case json.Number:
		return cast.String()
	}
	return ""
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	return cast, ok
}
