package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const relayBatchSize = 100

// OutboxEvent is the durable copy of an Event written in the mutating transaction.
type OutboxEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	InvoiceID snowflake.ID   `gorm:"not null;index"`
	Topic     string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	// CorrelationID is copied from the writing request so delivery can be traced back to it.
	CorrelationID string     `gorm:"type:text"`
	Published     bool       `gorm:"not null;default:false;index"`
	PublishedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null"`
}

func (OutboxEvent) TableName() string { return "invoice_events" }

type Outbox struct {
	genID *snowflake.Node
}

func NewOutbox(genID *snowflake.Node) *Outbox {
	return &Outbox{genID: genID}
}

// Append stores evts inside tx. Snowflake IDs keep insertion order.
func (o *Outbox) Append(ctx context.Context, tx *gorm.DB, now time.Time, evts ...Event) error {
	for _, evt := range evts {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", evt.Topic(), err)
		}
		err = tx.WithContext(ctx).Exec(
			`INSERT INTO invoice_events (id, invoice_id, topic, payload, correlation_id, published, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.genID.Generate(),
			evt.Invoice(),
			evt.Topic(),
			datatypes.JSON(payload),
			correlation.ExtractCorrelationID(ctx),
			false,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Sink delivers outbox rows to an external consumer.
type Sink interface {
	Deliver(ctx context.Context, evt OutboxEvent) error
}

type logSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) Sink {
	return &logSink{log: log.Named("events.sink")}
}

func (s *logSink) Deliver(_ context.Context, evt OutboxEvent) error {
	s.log.Info("invoice event",
		zap.String("event_id", evt.ID.String()),
		zap.String("invoice_id", evt.InvoiceID.String()),
		zap.String("topic", evt.Topic),
		zap.String("correlation_id", evt.CorrelationID),
		zap.ByteString("payload", evt.Payload),
	)
	return nil
}

// Relay drains unpublished outbox rows to a Sink.
type Relay struct {
	db   *gorm.DB
	log  *zap.Logger
	sink Sink
}

func NewRelay(db *gorm.DB, log *zap.Logger, sink Sink) *Relay {
	return &Relay{
		db:   db,
		log:  log.Named("events.relay"),
		sink: sink,
	}
}

// ProcessPending delivers up to one batch and returns how many rows were published.
// A failed delivery stops the batch so ordering per invoice is preserved.
func (r *Relay) ProcessPending(ctx context.Context, now time.Time) (int, error) {
	var rows []OutboxEvent
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, topic, payload, correlation_id, published, published_at, created_at
		 FROM invoice_events
		 WHERE published = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		false,
		relayBatchSize,
	).Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		if err := r.sink.Deliver(correlation.ContextWithCorrelationID(ctx, row.CorrelationID), row); err != nil {
			r.log.Warn("event delivery failed",
				zap.String("event_id", row.ID.String()),
				zap.String("topic", row.Topic),
				zap.Error(err),
			)
			return published, err
		}
		err := r.db.WithContext(ctx).Exec(
			`UPDATE invoice_events SET published = ?, published_at = ? WHERE id = ?`,
			true,
			now,
			row.ID,
		).Error
		if err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
