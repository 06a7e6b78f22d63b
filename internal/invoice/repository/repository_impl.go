package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"gorm.io/gorm"
)

const sequenceAttempts = 5

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if invoice.Version == 0 {
		invoice.Version = 1
	}
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ContactID != nil {
		stmt = stmt.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.BookingID != nil {
		stmt = stmt.Where("booking_id = ?", *filter.BookingID)
	}
	if filter.DueBefore != nil {
		stmt = stmt.Where("due_date IS NOT NULL AND due_date < ?", *filter.DueBefore)
	}
	before, err := pagination.DecodeID(page.PageToken)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	if before != 0 {
		stmt = stmt.Where("id < ?", before)
	}
	limit := pagination.Size(page.PageSize)

	// Tags live in a JSON column; filter them after the query so the same
	// statement works on every dialect. Fetch one extra row for HasMore.
	if err := stmt.Order("id desc").Limit(limit + 1).Find(&invoices).Error; err != nil {
		return nil, err
	}
	if filter.Tag == "" {
		return invoices, nil
	}
	out := invoices[:0]
	for _, inv := range invoices {
		for _, tag := range inv.Tags {
			if tag == filter.Tag {
				out = append(out, inv)
				break
			}
		}
	}
	return out, nil
}

func (r *repo) UpdateVersioned(ctx context.Context, db *gorm.DB, inv *domain.Invoice, expectedVersion int64) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			contact_id = ?, contact_name = ?, contact_email = ?, booking_id = ?,
			line_items = ?, applied_coupon = ?, tax_rate_percent = ?,
			deposit_percent = ?, deposit_amount_cents = ?, deposit_paid_at = ?,
			currency = ?, status = ?, due_date = ?, notes = ?, terms = ?, tags = ?,
			subtotal_cents = ?, line_discount_cents = ?, coupon_discount_cents = ?,
			tax_cents = ?, total_cents = ?, amount_paid_cents = ?, balance_due_cents = ?,
			sent_at = ?, viewed_at = ?, overdue_at = ?, paid_at = ?, voided_at = ?, void_reason = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		inv.ContactID, inv.ContactName, inv.ContactEmail, inv.BookingID,
		inv.LineItems, inv.AppliedCoupon, inv.TaxRatePercent,
		inv.DepositPercent, inv.DepositAmountCents, inv.DepositPaidAt,
		inv.Currency, inv.Status, inv.DueDate, inv.Notes, inv.Terms, inv.Tags,
		inv.SubtotalCents, inv.LineDiscountCents, inv.CouponDiscountCents,
		inv.TaxCents, inv.TotalCents, inv.AmountPaidCents, inv.BalanceDueCents,
		inv.SentAt, inv.ViewedAt, inv.OverdueAt, inv.PaidAt, inv.VoidedAt, inv.VoidReason,
		inv.UpdatedAt,
		inv.ID, expectedVersion,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	inv.Version = expectedVersion + 1
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64) error {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM invoices WHERE id = ? AND version = ? AND status = ? AND amount_paid_cents = 0`,
		id,
		expectedVersion,
		domain.StatusDraft,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// NextSequence hands out monotonically increasing numbers per name using a
// compare-and-swap on the counter row.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, name string) (int64, error) {
	now := time.Now().UTC()
	err := db.WithContext(ctx).Exec(
		`INSERT INTO invoice_sequences (name, next_value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		name,
		1,
		now,
	).Error
	if err != nil {
		return 0, err
	}

	for attempt := 0; attempt < sequenceAttempts; attempt++ {
		var current int64
		err := db.WithContext(ctx).Raw(
			`SELECT next_value FROM invoice_sequences WHERE name = ?`,
			name,
		).Scan(&current).Error
		if err != nil {
			return 0, err
		}
		res := db.WithContext(ctx).Exec(
			`UPDATE invoice_sequences SET next_value = ?, updated_at = ?
			 WHERE name = ? AND next_value = ?`,
			current+1,
			now,
			name,
			current,
		)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return current, nil
		}
	}
	return 0, fmt.Errorf("allocate %s sequence: %w", name, domain.ErrConcurrentModification)
}

func (r *repo) InsertAmendments(ctx context.Context, db *gorm.DB, amendments []domain.Amendment) error {
	for _, a := range amendments {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_amendments (id, invoice_id, description, edited_at)
			 VALUES (?, ?, ?, ?)`,
			a.ID,
			a.InvoiceID,
			a.Description,
			a.EditedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListAmendments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Amendment, error) {
	var out []domain.Amendment
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("edited_at asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListOverdueCandidates(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM invoices
		 WHERE status IN (?, ?)
		   AND due_date IS NOT NULL
		   AND due_date < ?
		   AND balance_due_cents > 0
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		domain.StatusSent,
		domain.StatusViewed,
		asOf,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
