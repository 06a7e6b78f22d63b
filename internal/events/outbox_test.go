package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/testutil"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	delivered    []events.OutboxEvent
	correlations []string
	failAt       int
}

func (s *captureSink) Deliver(ctx context.Context, evt events.OutboxEvent) error {
	if s.failAt > 0 && len(s.delivered)+1 == s.failAt {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, evt)
	s.correlations = append(s.correlations, correlation.ExtractCorrelationID(ctx))
	return nil
}

func TestOutboxRelayDeliversInOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-outbox")
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	outbox := events.NewOutbox(node)
	require.NoError(t, outbox.Append(ctx, db, now,
		events.InvoiceStatusChanged{InvoiceID: 1, From: "draft", To: "sent"},
		events.PaymentApplied{InvoiceID: 1, PaymentID: 9, AmountCents: 500, Channel: "offline"},
		events.AmendmentRecorded{InvoiceID: 2, Description: "PO added"},
	))

	sink := &captureSink{failAt: 3}
	relay := events.NewRelay(db, zap.NewNop(), sink)

	published, err := relay.ProcessPending(ctx, now)
	assert.Error(t, err)
	assert.Equal(t, 2, published)
	require.Len(t, sink.delivered, 2)
	assert.Equal(t, events.TopicInvoiceStatusChanged, sink.delivered[0].Topic)
	assert.Equal(t, events.TopicPaymentApplied, sink.delivered[1].Topic)
	assert.Equal(t, "corr-outbox", sink.delivered[0].CorrelationID)
	assert.Equal(t, []string{"corr-outbox", "corr-outbox"}, sink.correlations)

	sink.failAt = 0
	published, err = relay.ProcessPending(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, events.TopicAmendmentRecorded, sink.delivered[2].Topic)

	published, err = relay.ProcessPending(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, published)

	var pending int64
	require.NoError(t, db.Model(&events.OutboxEvent{}).Where("published = ?", false).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestBusRoutesByTopic(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	all := &events.Recorder{}
	payments := &events.Recorder{}
	bus.Subscribe(all.Handle)
	bus.Subscribe(payments.Handle, events.TopicPaymentApplied)
	bus.Subscribe(func(context.Context, events.Event) error { return errors.New("ignored") })

	bus.Publish(context.Background(),
		events.CouponInvalidated{InvoiceID: 1, Code: "X", Reason: "gone"},
		nil,
		events.PaymentApplied{InvoiceID: 1, AmountCents: 100},
	)

	assert.Equal(t, []string{events.TopicCouponInvalidated, events.TopicPaymentApplied}, all.Topics())
	assert.Equal(t, []string{events.TopicPaymentApplied}, payments.Topics())

	var nilBus *events.Bus
	assert.NotPanics(t, func() { nilBus.Publish(context.Background(), events.PaymentApplied{}) })
}
