package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/coupon/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, coupon *domain.Coupon) error {
	coupon.Code = domain.NormalizeCode(coupon.Code)
	// Select all columns so an inactive coupon is not flipped by the column default.
	return db.WithContext(ctx).Select("*").Create(coupon).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := db.WithContext(ctx).
		Where("code = ?", domain.NormalizeCode(code)).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repo) IncrementUses(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE coupons
		 SET current_uses = current_uses + 1
		 WHERE id = ? AND (max_uses IS NULL OR max_uses <= 0 OR current_uses < max_uses)`,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUsageLimitReached
	}
	return nil
}

func (r *repo) ReleaseUse(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE coupons SET current_uses = current_uses - 1 WHERE id = ? AND current_uses > 0`,
		id,
	).Error
}
