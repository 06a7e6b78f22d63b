package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"gorm.io/datatypes"
)

// Coupon is reference data. Codes are stored upper-cased and matched case-insensitively.
type Coupon struct {
	ID                   snowflake.ID                      `gorm:"primaryKey" json:"id"`
	Code                 string                            `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Description          string                            `gorm:"type:text" json:"description,omitempty"`
	DiscountType         invoicedomain.DiscountType        `gorm:"type:text;not null" json:"discount_type"`
	DiscountValue        int64                             `gorm:"not null" json:"discount_value"`
	ApplicableServiceIDs datatypes.JSONSlice[snowflake.ID] `gorm:"type:jsonb" json:"applicable_service_ids,omitempty"`
	ApplicablePackageIDs datatypes.JSONSlice[snowflake.ID] `gorm:"type:jsonb" json:"applicable_package_ids,omitempty"`
	MinPurchaseCents     int64                             `gorm:"not null;default:0" json:"min_purchase_cents,omitempty"`
	MaxDiscountCents     *int64                            `json:"max_discount_cents,omitempty"`
	MaxUses              *int64                            `json:"max_uses,omitempty"`
	CurrentUses          int64                             `gorm:"not null;default:0" json:"current_uses"`
	Active               bool                              `gorm:"not null;default:true" json:"active"`
	ExpiresAt            *time.Time                        `json:"expires_at,omitempty"`
	CreatedAt            time.Time                         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time                         `gorm:"not null" json:"updated_at"`
}

func (Coupon) TableName() string { return "coupons" }

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Terms returns the snapshot shape frozen onto an invoice, without a discount amount.
func (c *Coupon) Terms() invoicedomain.AppliedCoupon {
	return invoicedomain.AppliedCoupon{
		CouponID:             c.ID,
		Code:                 c.Code,
		DiscountType:         c.DiscountType,
		DiscountValue:        c.DiscountValue,
		ApplicableServiceIDs: append([]snowflake.ID(nil), c.ApplicableServiceIDs...),
		ApplicablePackageIDs: append([]snowflake.ID(nil), c.ApplicablePackageIDs...),
		MinPurchaseCents:     c.MinPurchaseCents,
		MaxDiscountCents:     c.MaxDiscountCents,
	}
}
