package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListInvoiceFilter struct {
	Status    Status
	ContactID *snowflake.ID
	BookingID *snowflake.ID
	Tag       string
	DueBefore *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	// UpdateVersioned writes every mutable column when the stored version
	// still equals expectedVersion and bumps it by one.
	UpdateVersioned(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64) error
	NextSequence(ctx context.Context, db *gorm.DB, name string) (int64, error)
	InsertAmendments(ctx context.Context, db *gorm.DB, amendments []Amendment) error
	ListAmendments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Amendment, error)
	ListOverdueCandidates(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]snowflake.ID, error)
}

// InvoiceSequence backs invoice number allocation.
type InvoiceSequence struct {
	Name      string    `gorm:"primaryKey;type:text"`
	NextValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
