package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	if item.Kind != domain.KindService && item.Kind != domain.KindPackage {
		return domain.ErrInvalidKind
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO catalog_items (id, kind, name, description, price_cents, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Kind,
		item.Name,
		item.Description,
		item.PriceCents,
		item.Active,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, name, description, price_cents, active, created_at, updated_at
		 FROM catalog_items WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, kind domain.Kind) ([]domain.Item, error) {
	var items []domain.Item
	stmt := db.WithContext(ctx).Model(&domain.Item{}).Where("active = ?", true)
	if kind != "" {
		stmt = stmt.Where("kind = ?", kind)
	}
	if err := stmt.Order("name asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
