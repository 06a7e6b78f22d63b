package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BookedItem is a service or package selected on a booking, priced at booking time.
type BookedItem struct {
	ID         snowflake.ID `json:"id"`
	Name       string       `json:"name"`
	PriceCents int64        `json:"price_cents"`
}

type Booking struct {
	ID              snowflake.ID                    `gorm:"primaryKey" json:"id"`
	ContactID       snowflake.ID                    `gorm:"not null;index" json:"contact_id"`
	ScheduledAt     time.Time                       `gorm:"not null" json:"scheduled_at"`
	TotalPriceCents int64                           `gorm:"not null;default:0" json:"total_price_cents"`
	Services        datatypes.JSONSlice[BookedItem] `gorm:"type:jsonb" json:"services,omitempty"`
	Packages        datatypes.JSONSlice[BookedItem] `gorm:"type:jsonb" json:"packages,omitempty"`
	CreatedAt       time.Time                       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                       `gorm:"not null" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// ShortID is the human-facing suffix shown as "Booking #ABC123".
func (b *Booking) ShortID() string {
	s := b.ID.String()
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return strings.ToUpper(s)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
}
