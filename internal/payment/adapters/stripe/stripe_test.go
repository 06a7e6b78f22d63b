package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","data":{"object":{}}}`)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	header := buildStripeSignatureHeader(secret, payload, now.Unix())
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret, now: func() time.Time { return now }}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	stale := now.Add(-10 * time.Minute).Unix()
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, stale))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected stale signature to be rejected, got %v", err)
	}
}

func TestFactoryRequiresWebhookSecret(t *testing.T) {
	factory := NewFactory()
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	adapter, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"webhook_secret": "whsec"}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, ok := adapter.(paymentdomain.PaymentAdapter); ok {
		t.Fatalf("stripe adapter should be webhook-only")
	}
}

func TestParseSettlementEvents(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name      string
		event     any
		wantType  string
		amount    int64
		wantBrand string
	}{{
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id":      "evt_pi",
			"type":    "payment_intent.succeeded",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":              "pi_1",
					"amount":          2500,
					"amount_received": 2500,
					"currency":        "usd",
					"created":         created,
					"metadata":        map[string]any{referenceKey: "card_ref_1"},
					"charges": map[string]any{
						"data": []any{map[string]any{
							"id": "ch_1",
							"payment_method_details": map[string]any{
								"card": map[string]any{"brand": "visa", "last4": "4242"},
							},
						}},
					},
				},
			},
		},
		wantType:  paymentdomain.EventTypePaymentSucceeded,
		amount:    2500,
		wantBrand: "visa",
	}, {
		name: "payment_intent.payment_failed",
		event: map[string]any{
			"id":      "evt_fail",
			"type":    "payment_intent.payment_failed",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":                 "pi_2",
					"amount":             900,
					"currency":           "usd",
					"metadata":           map[string]any{referenceKey: "card_ref_1"},
					"last_payment_error": map[string]any{"message": "card declined"},
				},
			},
		},
		wantType: paymentdomain.EventTypePaymentFailed,
		amount:   900,
	}, {
		name: "checkout.session.completed",
		event: map[string]any{
			"id":      "evt_cs",
			"type":    "checkout.session.completed",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":             "cs_1",
					"amount_total":   10800,
					"currency":       "usd",
					"payment_intent": "pi_3",
					"payment_status": "paid",
					"metadata":       map[string]any{referenceKey: "link_ref_1"},
				},
			},
		},
		wantType: paymentdomain.EventTypePaymentSucceeded,
		amount:   10800,
	}}

	adapter := &Adapter{webhookSecret: "whsec"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal event: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.Type)
			}
			if event.AmountCents != tt.amount {
				t.Fatalf("expected amount %d, got %d", tt.amount, event.AmountCents)
			}
			if event.Reference == "" {
				t.Fatalf("expected reference to be parsed")
			}
			if event.Currency != "USD" {
				t.Fatalf("expected USD, got %s", event.Currency)
			}
			if event.CardBrand != tt.wantBrand {
				t.Fatalf("expected brand %q, got %q", tt.wantBrand, event.CardBrand)
			}
		})
	}
}

func TestParseIgnoresEventsWithoutReference(t *testing.T) {
	adapter := &Adapter{webhookSecret: "whsec"}
	payload := []byte(`{"id":"evt_x","type":"payment_intent.succeeded","data":{"object":{"id":"pi","amount":100}}}`)
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}
	unknown := []byte(`{"id":"evt_y","type":"customer.created","data":{"object":{}}}`)
	if _, err := adapter.Parse(context.Background(), unknown); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, ts int64) string {
	stamp := strconv.FormatInt(ts, 10)
	return "t=" + stamp + ",v1=" + sign(secret, stamp, payload)
}
