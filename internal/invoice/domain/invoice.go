package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DiscountType identifies how a coupon computes its discount.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountFixed
}

// AppliedCoupon is the snapshot of a coupon frozen onto an invoice.
// DiscountValue is whole percent points for percent coupons and cents for fixed ones.
type AppliedCoupon struct {
	CouponID             snowflake.ID   `json:"coupon_id"`
	Code                 string         `json:"code"`
	DiscountType         DiscountType   `json:"discount_type"`
	DiscountValue        int64          `json:"discount_value"`
	ApplicableServiceIDs []snowflake.ID `json:"applicable_service_ids,omitempty"`
	ApplicablePackageIDs []snowflake.ID `json:"applicable_package_ids,omitempty"`
	MinPurchaseCents     int64          `json:"min_purchase_cents,omitempty"`
	MaxDiscountCents     *int64         `json:"max_discount_cents,omitempty"`
	DiscountCents        int64          `json:"discount_cents"`
	AppliedAt            time.Time      `json:"applied_at"`
}

// Restricted reports whether the coupon only discounts specific catalog entries.
func (c AppliedCoupon) Restricted() bool {
	return len(c.ApplicableServiceIDs) > 0 || len(c.ApplicablePackageIDs) > 0
}

func (c AppliedCoupon) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *AppliedCoupon) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("applied coupon: unsupported type %T", value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, c)
}

// Invoice is the aggregate root. Money fields are integer cents.
// Totals, deposit amount and balance are derived and refreshed on every mutation.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceNumber string        `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	ContactID     *snowflake.ID `gorm:"index" json:"contact_id,omitempty"`
	ContactName   string        `gorm:"type:text" json:"contact_name,omitempty"`
	ContactEmail  string        `gorm:"type:text" json:"contact_email,omitempty"`
	BookingID     *snowflake.ID `gorm:"uniqueIndex" json:"booking_id,omitempty"`

	LineItems      datatypes.JSONSlice[LineItem] `gorm:"type:jsonb;not null" json:"line_items"`
	AppliedCoupon  *AppliedCoupon                `gorm:"type:jsonb" json:"applied_coupon,omitempty"`
	TaxRatePercent decimal.Decimal               `gorm:"type:numeric(5,2);not null;default:0" json:"tax_rate_percent"`

	DepositPercent     *int       `json:"deposit_percent,omitempty"`
	DepositAmountCents int64      `gorm:"not null;default:0" json:"deposit_amount_cents"`
	DepositPaidAt      *time.Time `json:"deposit_paid_at,omitempty"`

	Currency string                      `gorm:"type:text;not null" json:"currency"`
	Status   Status                      `gorm:"type:text;not null;index" json:"status"`
	DueDate  *time.Time                  `gorm:"index" json:"due_date,omitempty"`
	Notes    string                      `gorm:"type:text" json:"notes,omitempty"`
	Terms    string                      `gorm:"type:text" json:"terms,omitempty"`
	Tags     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags,omitempty"`

	SubtotalCents       int64 `gorm:"not null;default:0" json:"subtotal_cents"`
	LineDiscountCents   int64 `gorm:"not null;default:0" json:"line_discount_cents"`
	CouponDiscountCents int64 `gorm:"not null;default:0" json:"coupon_discount_cents"`
	TaxCents            int64 `gorm:"not null;default:0" json:"tax_cents"`
	TotalCents          int64 `gorm:"not null;default:0" json:"total_cents"`
	AmountPaidCents     int64 `gorm:"not null;default:0" json:"amount_paid_cents"`
	BalanceDueCents     int64 `gorm:"not null;default:0" json:"balance_due_cents"`

	SentAt     *time.Time `json:"sent_at,omitempty"`
	ViewedAt   *time.Time `json:"viewed_at,omitempty"`
	OverdueAt  *time.Time `json:"overdue_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidReason string     `gorm:"type:text" json:"void_reason,omitempty"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	EditHistory []Amendment `gorm:"-" json:"edit_history,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// Clone returns a deep copy so pure operations never alias the caller's slices.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	out := *inv
	out.LineItems = append(datatypes.JSONSlice[LineItem](nil), inv.LineItems...)
	out.Tags = append(datatypes.JSONSlice[string](nil), inv.Tags...)
	out.EditHistory = append([]Amendment(nil), inv.EditHistory...)
	if inv.AppliedCoupon != nil {
		c := *inv.AppliedCoupon
		c.ApplicableServiceIDs = append([]snowflake.ID(nil), c.ApplicableServiceIDs...)
		c.ApplicablePackageIDs = append([]snowflake.ID(nil), c.ApplicablePackageIDs...)
		out.AppliedCoupon = &c
	}
	if inv.DepositPercent != nil {
		p := *inv.DepositPercent
		out.DepositPercent = &p
	}
	return &out
}

func (inv *Invoice) Items() []LineItem { return []LineItem(inv.LineItems) }

func (inv *Invoice) IsPaid() bool { return inv.Status == StatusPaid }

func (inv *Invoice) IsVoid() bool { return inv.Status == StatusVoid }

// Amendment is an append-only note attached to a paid invoice.
type Amendment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Description string       `gorm:"type:text;not null" json:"description"`
	EditedAt    time.Time    `gorm:"not null" json:"edited_at"`
}

func (Amendment) TableName() string { return "invoice_amendments" }

// ParseInvoiceID accepts the decimal string form used by external callers.
func ParseInvoiceID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, errors.Join(ErrInvalidInvoiceID, err)
	}
	return id, nil
}
