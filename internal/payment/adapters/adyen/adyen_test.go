package adyen

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
)

const testKey = "44782def547aaa06c910c43932b1eb0c71fc68d9d0c057550c48ec2acf6ba056"

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		MerchantAccount: "ShopAccount",
		Config:          map[string]any{"hmac_key": testKey},
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter)
}

func buildPayload(t *testing.T, a *Adapter, item notificationItem, sign bool) []byte {
	t.Helper()
	if item.AdditionalData == nil {
		item.AdditionalData = map[string]string{}
	}
	if sign {
		item.AdditionalData["hmacSignature"] = a.sign(item)
	}
	root := map[string]any{
		"live": "false",
		"notificationItems": []any{
			map[string]any{"NotificationRequestItem": item},
		},
	}
	payload, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func authorisation(success string) notificationItem {
	return notificationItem{
		AdditionalData:      map[string]string{"paymentMethod": "visa", "cardSummary": "4242"},
		Amount:              amount{Currency: "usd", Value: 12500},
		EventCode:           "AUTHORISATION",
		EventDate:           "2026-03-01T12:00:00+01:00",
		MerchantAccountCode: "ShopAccount",
		MerchantReference:   "ps_ref_1",
		PspReference:        "8816178952380553",
		Success:             success,
	}
}

func TestFactoryValidatesKey(t *testing.T) {
	factory := NewFactory()
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"hmac_key": "not-hex"}}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for non-hex key, got %v", err)
	}
	adapter, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"webhook_secret": testKey}})
	if err != nil {
		t.Fatalf("webhook_secret fallback: %v", err)
	}
	if _, ok := adapter.(paymentdomain.PaymentAdapter); ok {
		t.Fatalf("adyen adapter should be webhook-only")
	}
}

func TestVerifyItemSignatures(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	valid := buildPayload(t, a, authorisation("true"), true)
	if err := a.Verify(ctx, valid, nil); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	unsigned := buildPayload(t, a, authorisation("true"), false)
	if err := a.Verify(ctx, unsigned, nil); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing signature to fail, got %v", err)
	}

	tampered := authorisation("true")
	tampered.AdditionalData["hmacSignature"] = a.sign(tampered)
	tampered.Amount.Value = 1
	if err := a.Verify(ctx, buildPayload(t, a, tampered, false), nil); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected tampered amount to fail, got %v", err)
	}

	other := authorisation("true")
	other.MerchantAccountCode = "OtherAccount"
	if err := a.Verify(ctx, buildPayload(t, a, other, true), nil); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected foreign merchant account to fail, got %v", err)
	}

	if err := a.Verify(ctx, []byte(`{"notificationItems":[]}`), nil); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected empty batch to be invalid, got %v", err)
	}
}

func TestParseAuthorisation(t *testing.T) {
	a := newTestAdapter(t)

	event, err := a.Parse(context.Background(), buildPayload(t, a, authorisation("true"), true))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentSucceeded {
		t.Fatalf("expected succeeded, got %s", event.Type)
	}
	if event.Reference != "ps_ref_1" || event.AmountCents != 12500 || event.Currency != "USD" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.ProviderEventID != "8816178952380553:AUTHORISATION" || event.CardLast4 != "4242" {
		t.Fatalf("unexpected identifiers: %+v", event)
	}
	if event.OccurredAt.Hour() != 11 {
		t.Fatalf("expected UTC event date, got %s", event.OccurredAt)
	}

	refused := authorisation("false")
	refused.Reason = "Refused"
	event, err = a.Parse(context.Background(), buildPayload(t, a, refused, true))
	if err != nil {
		t.Fatalf("parse refused: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentFailed || event.FailureReason != "Refused" {
		t.Fatalf("unexpected refused event: %+v", event)
	}
}

func TestParseIgnoresUnmappedEvents(t *testing.T) {
	a := newTestAdapter(t)

	refund := authorisation("true")
	refund.EventCode = "REFUND"
	if _, err := a.Parse(context.Background(), buildPayload(t, a, refund, true)); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected refund to be ignored, got %v", err)
	}

	noReference := authorisation("true")
	noReference.MerchantReference = ""
	if _, err := a.Parse(context.Background(), buildPayload(t, a, noReference, true)); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected missing reference to be ignored, got %v", err)
	}
}
