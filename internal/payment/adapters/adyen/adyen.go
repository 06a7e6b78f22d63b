package adyen

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
)

const providerName = "adyen"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

// NewAdapter accepts either "hmac_key" or the shared "webhook_secret" as the
// hex encoded notification key.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	raw := strings.TrimSpace(readString(cfg.Config, "hmac_key"))
	if raw == "" {
		raw = strings.TrimSpace(readString(cfg.Config, "webhook_secret"))
	}
	if raw == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{account: strings.TrimSpace(cfg.MerchantAccount), key: key}, nil
}

type Adapter struct {
	account string
	key     []byte
}

// Verify checks the hmacSignature carried by every notification item.
// Adyen signs items, not the HTTP body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	items, err := decodeItems(payload)
	if err != nil {
		return err
	}
	for _, item := range items {
		signature := item.AdditionalData["hmacSignature"]
		if signature == "" {
			return paymentdomain.ErrInvalidSignature
		}
		expected := a.sign(item)
		if !hmac.Equal([]byte(signature), []byte(expected)) {
			return paymentdomain.ErrInvalidSignature
		}
		if a.account != "" && item.MerchantAccountCode != a.account {
			return paymentdomain.ErrInvalidSignature
		}
	}
	return nil
}

func (a *Adapter) sign(item notificationItem) string {
	fields := []string{
		item.PspReference,
		item.OriginalReference,
		item.MerchantAccountCode,
		item.MerchantReference,
		strconv.FormatInt(item.Amount.Value, 10),
		item.Amount.Currency,
		item.EventCode,
		item.Success,
	}
	escaped := make([]string, len(fields))
	for i, field := range fields {
		field = strings.ReplaceAll(field, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(field, ":", `\:`)
	}
	mac := hmac.New(sha256.New, a.key)
	_, _ = mac.Write([]byte(strings.Join(escaped, ":")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Parse maps the first notification item. Adyen batches at most one item
// per delivery for standard webhooks. The merchant reference carries the
// payment session reference.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.SettlementEvent, error) {
	items, err := decodeItems(payload)
	if err != nil {
		return nil, err
	}
	item := items[0]

	succeeded := item.Success == "true"
	var eventType string
	switch item.EventCode {
	case "AUTHORISATION":
		eventType = paymentdomain.EventTypePaymentFailed
		if succeeded {
			eventType = paymentdomain.EventTypePaymentSucceeded
		}
	case "CANCELLATION", "OFFER_CLOSED":
		if item.EventCode == "CANCELLATION" && !succeeded {
			return nil, paymentdomain.ErrEventIgnored
		}
		eventType = paymentdomain.EventTypePaymentFailed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	reference := strings.TrimSpace(item.MerchantReference)
	if reference == "" {
		return nil, paymentdomain.ErrEventIgnored
	}
	if strings.TrimSpace(item.PspReference) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.SettlementEvent{
		Provider:          providerName,
		ProviderEventID:   item.PspReference + ":" + item.EventCode,
		ProviderPaymentID: item.PspReference,
		Reference:         reference,
		Type:              eventType,
		AmountCents:       item.Amount.Value,
		Currency:          strings.ToUpper(strings.TrimSpace(item.Amount.Currency)),
		CardBrand:         strings.TrimSpace(item.AdditionalData["paymentMethod"]),
		CardLast4:         strings.TrimSpace(item.AdditionalData["cardSummary"]),
		OccurredAt:        eventDate(item.EventDate),
		RawPayload:        payload,
	}
	if eventType == paymentdomain.EventTypePaymentFailed {
		out.FailureReason = strings.TrimSpace(item.Reason)
		if out.FailureReason == "" {
			out.FailureReason = strings.ToLower(item.EventCode)
		}
	}
	return out, nil
}

func decodeItems(payload []byte) ([]notificationItem, error) {
	var root notification
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if len(root.NotificationItems) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}
	items := make([]notificationItem, 0, len(root.NotificationItems))
	for _, wrapper := range root.NotificationItems {
		items = append(items, wrapper.Item)
	}
	return items, nil
}

func eventDate(value string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

func readString(config map[string]any, key string) string {
	value, _ := config[key].(string)
	return value
}

type notification struct {
	NotificationItems []struct {
		Item notificationItem `json:"NotificationRequestItem"`
	} `json:"notificationItems"`
}

type notificationItem struct {
	AdditionalData      map[string]string `json:"additionalData"`
	Amount              amount            `json:"amount"`
	EventCode           string            `json:"eventCode"`
	EventDate           string            `json:"eventDate"`
	MerchantAccountCode string            `json:"merchantAccountCode"`
	MerchantReference   string            `json:"merchantReference"`
	OriginalReference   string            `json:"originalReference"`
	PspReference        string            `json:"pspReference"`
	Reason              string            `json:"reason"`
	Success             string            `json:"success"`
}

type amount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}
