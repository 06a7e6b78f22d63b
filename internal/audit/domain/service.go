package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"gorm.io/gorm"
)

type Entry struct {
	Action         string
	InvoiceID      snowflake.ID
	InvoiceVersion int64
	Metadata       map[string]any
}

type HistoryRequest struct {
	pagination.Pagination
	InvoiceID snowflake.ID
	Action    string
}

type HistoryResponse struct {
	pagination.PageInfo
	Entries []AuditLog `json:"entries"`
}

type Service interface {
	// Record writes through tx so the entry commits or rolls back with the change it describes.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidInvoice   = errors.New("invalid_invoice")
)
