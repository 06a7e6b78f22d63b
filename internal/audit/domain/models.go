package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is one committed change to an invoice or one of its payment sessions.
// InvoiceVersion is the version the write produced, or zero when the invoice row
// itself was not touched.
type AuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID      snowflake.ID      `gorm:"not null;index:idx_audit_logs_invoice,priority:1" json:"invoice_id"`
	InvoiceVersion int64             `gorm:"not null;default:0" json:"invoice_version"`
	Action         string            `gorm:"type:text;not null;index" json:"action"`
	ActorType      string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID        *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index:idx_audit_logs_invoice,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type HistoryFilter struct {
	InvoiceID snowflake.ID
	Action    string
	BeforeID  snowflake.ID
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByInvoice(ctx context.Context, db *gorm.DB, filter HistoryFilter) ([]*AuditLog, error)
}
