package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound     = errors.New("coupon_not_found")
	ErrUsageLimitReached  = errors.New("coupon_usage_limit_reached")
	ErrInvalidCouponTerms = errors.New("invalid_coupon_terms")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Coupon, error)
	// IncrementUses consumes one use, failing with ErrUsageLimitReached when exhausted.
	IncrementUses(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ReleaseUse(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
