package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Kind string

const (
	KindService Kind = "service"
	KindPackage Kind = "package"
)

// Item is a sellable service or package.
type Item struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Kind        Kind         `json:"kind" gorm:"type:text;not null;index"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description,omitempty" gorm:"type:text"`
	PriceCents  int64        `json:"price_cents" gorm:"not null"`
	Active      bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Item) TableName() string { return "catalog_items" }

var ErrInvalidKind = errors.New("invalid_catalog_kind")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Item, error)
	ListActive(ctx context.Context, db *gorm.DB, kind Kind) ([]Item, error)
}
