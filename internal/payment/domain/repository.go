package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertPayment reports false when a payment with the same reference already exists.
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindPaymentByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	ListPaymentsByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	InsertAllocation(ctx context.Context, db *gorm.DB, allocation *Allocation) error

	InsertSession(ctx context.Context, db *gorm.DB, session *Session) error
	FindSessionByReference(ctx context.Context, db *gorm.DB, reference string) (*Session, error)
	// TransitionSession moves a session out of an open status. It reports false
	// when the session was no longer open.
	TransitionSession(ctx context.Context, db *gorm.DB, session *Session, to SessionStatus, now time.Time) (bool, error)
	ListStaleSessions(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]Session, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
