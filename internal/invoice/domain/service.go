package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
)

type CreateInvoiceRequest struct {
	ContactID      *snowflake.ID
	BookingID      *snowflake.ID
	LineItems      []LineItem
	TaxRatePercent decimal.Decimal
	DepositPercent *int
	Currency       string `validate:"omitempty,len=3,alpha"`
	DueDate        *time.Time
	Notes          string   `validate:"max=4000"`
	Terms          string   `validate:"max=4000"`
	Tags           []string `validate:"max=32,dive,min=1,max=64"`
}

type ListInvoiceRequest struct {
	PageToken string
	PageSize  int32 `validate:"omitempty,gte=1,lte=250"`
	Status    string
	ContactID string
	BookingID string
	Tag       string
	DueBefore *time.Time
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// ExpectedVersion, when non-zero, fails the call with ErrConcurrentModification
// if the invoice changed since the caller read it.
type ReplaceLineItemsRequest struct {
	InvoiceID       snowflake.ID
	LineItems       []LineItem
	ExpectedVersion int64
}

type AddCatalogItemRequest struct {
	InvoiceID     snowflake.ID
	CatalogItemID snowflake.ID
	Quantity      int64 `validate:"gte=1"`
	Memo          string
}

type ApplyCouponRequest struct {
	InvoiceID       snowflake.ID
	Code            string `validate:"required,max=64"`
	ExpectedVersion int64
}

type SetTaxRateRequest struct {
	InvoiceID       snowflake.ID
	TaxRatePercent  decimal.Decimal
	ExpectedVersion int64
}

// SetDepositRequest clears the deposit when Percent is nil.
type SetDepositRequest struct {
	InvoiceID       snowflake.ID
	Percent         *int
	ExpectedVersion int64
}

// UpdateDetailsRequest only touches non-nil fields.
type UpdateDetailsRequest struct {
	InvoiceID       snowflake.ID
	ContactID       *snowflake.ID
	DueDate         *time.Time
	Currency        *string `validate:"omitempty,len=3,alpha"`
	Notes           *string `validate:"omitempty,max=4000"`
	Terms           *string `validate:"omitempty,max=4000"`
	Tags            *[]string
	ExpectedVersion int64
}

type SweepResult struct {
	Scanned int
	Marked  int
	Skipped int
	// SkipErrs holds the error behind each skipped invoice.
	SkipErrs []error
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)

	ReplaceLineItems(ctx context.Context, req ReplaceLineItemsRequest) (*Invoice, error)
	AddCatalogItem(ctx context.Context, req AddCatalogItemRequest) (*Invoice, error)
	ApplyCoupon(ctx context.Context, req ApplyCouponRequest) (*Invoice, error)
	RemoveCoupon(ctx context.Context, id snowflake.ID) (*Invoice, error)
	SetTaxRate(ctx context.Context, req SetTaxRateRequest) (*Invoice, error)
	SetDeposit(ctx context.Context, req SetDepositRequest) (*Invoice, error)
	UpdateDetails(ctx context.Context, req UpdateDetailsRequest) (*Invoice, error)

	Send(ctx context.Context, id snowflake.ID) (*Invoice, error)
	MarkViewed(ctx context.Context, id snowflake.ID) (*Invoice, error)
	MarkOverdue(ctx context.Context, id snowflake.ID) (*Invoice, error)
	SweepOverdue(ctx context.Context, limit int) (SweepResult, error)
	Void(ctx context.Context, id snowflake.ID, reason string) (*Invoice, error)
	Delete(ctx context.Context, id snowflake.ID) error

	LinkBooking(ctx context.Context, id, bookingID snowflake.ID) (*Invoice, error)
	UnlinkBooking(ctx context.Context, id snowflake.ID) (*Invoice, error)
	Amend(ctx context.Context, id snowflake.ID, description string) (*Invoice, error)

	ExportPDF(ctx context.Context, id snowflake.ID) ([]byte, error)
}
