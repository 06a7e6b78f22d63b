package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, invoice_id, reference, channel, method, is_deposit, amount_cents, currency,
			card_brand, card_last4, provider, provider_payment_id, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING`,
		payment.ID,
		payment.InvoiceID,
		payment.Reference,
		payment.Channel,
		payment.Method,
		payment.IsDeposit,
		payment.AmountCents,
		payment.Currency,
		payment.CardBrand,
		payment.CardLast4,
		payment.Provider,
		payment.ProviderPaymentID,
		payment.Note,
		payment.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindPaymentByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Where("reference = ?", reference).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListPaymentsByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertAllocation(ctx context.Context, db *gorm.DB, allocation *domain.Allocation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_payments (id, payment_id, invoice_id, amount_applied_cents, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		allocation.ID,
		allocation.PaymentID,
		allocation.InvoiceID,
		allocation.AmountAppliedCents,
		allocation.CreatedAt,
	).Error
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindSessionByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).Where("reference = ?", reference).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repo) TransitionSession(ctx context.Context, db *gorm.DB, session *domain.Session, to domain.SessionStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_sessions
		 SET status = ?, failure_reason = ?, payment_id = ?, provider_intent_id = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		to,
		session.FailureReason,
		session.PaymentID,
		session.ProviderIntentID,
		now,
		session.ID,
		domain.SessionPending,
		domain.SessionRequiresAction,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	session.Status = to
	session.UpdatedAt = now
	return true, nil
}

func (r *repo) ListStaleSessions(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []domain.Session
	err := db.WithContext(ctx).
		Where("status IN ?", []domain.SessionStatus{domain.SessionPending, domain.SessionRequiresAction}).
		Where("updated_at < ?", olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, reference,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, reference,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Reference,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
