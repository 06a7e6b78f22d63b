package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Channel is how money reached the merchant.
type Channel string

const (
	ChannelCard         Channel = "card"
	ChannelOffline      Channel = "offline"
	ChannelCheckoutLink Channel = "checkout_link"
	ChannelTerminal     Channel = "terminal"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelCard, ChannelOffline, ChannelCheckoutLink, ChannelTerminal:
		return true
	}
	return false
}

// OfflineMethod is the free-form tender recorded for manual payments.
type OfflineMethod string

const (
	MethodCash         OfflineMethod = "cash"
	MethodCheck        OfflineMethod = "check"
	MethodVenmo        OfflineMethod = "venmo"
	MethodZelle        OfflineMethod = "zelle"
	MethodBankTransfer OfflineMethod = "bank_transfer"
	MethodOther        OfflineMethod = "other"
)

func (m OfflineMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCheck, MethodVenmo, MethodZelle, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

// Payment is immutable once written.
type Payment struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID         snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Reference         string       `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	Channel           Channel      `gorm:"type:text;not null" json:"channel"`
	Method            string       `gorm:"type:text" json:"method,omitempty"`
	IsDeposit         bool         `gorm:"not null;default:false" json:"is_deposit"`
	AmountCents       int64        `gorm:"not null" json:"amount_cents"`
	Currency          string       `gorm:"type:text;not null" json:"currency"`
	CardBrand         string       `gorm:"type:text" json:"card_brand,omitempty"`
	CardLast4         string       `gorm:"type:text" json:"card_last4,omitempty"`
	Provider          string       `gorm:"type:text" json:"provider,omitempty"`
	ProviderPaymentID string       `gorm:"type:text" json:"provider_payment_id,omitempty"`
	Note              string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

// Allocation applies a payment to one invoice.
type Allocation struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	PaymentID          snowflake.ID `gorm:"not null;uniqueIndex:ux_invoice_payment,priority:2" json:"payment_id"`
	InvoiceID          snowflake.ID `gorm:"not null;uniqueIndex:ux_invoice_payment,priority:1" json:"invoice_id"`
	AmountAppliedCents int64        `gorm:"not null" json:"amount_applied_cents"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
}

func (Allocation) TableName() string { return "invoice_payments" }

type SessionStatus string

const (
	SessionPending        SessionStatus = "pending"
	SessionRequiresAction SessionStatus = "requires_action"
	SessionSettled        SessionStatus = "settled"
	SessionFailed         SessionStatus = "failed"
	SessionAbandoned      SessionStatus = "abandoned"
)

// Open reports whether the session can still settle.
func (s SessionStatus) Open() bool {
	return s == SessionPending || s == SessionRequiresAction
}

// Session is a pending charge created through an external channel. It
// settles into at most one Payment carrying the same reference.
type Session struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceID        snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	Reference        string        `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	Channel          Channel       `gorm:"type:text;not null" json:"channel"`
	Provider         string        `gorm:"type:text;not null" json:"provider"`
	Status           SessionStatus `gorm:"type:text;not null;index" json:"status"`
	AmountCents      int64         `gorm:"not null" json:"amount_cents"`
	Currency         string        `gorm:"type:text;not null" json:"currency"`
	IsDeposit        bool          `gorm:"not null;default:false" json:"is_deposit"`
	ProviderIntentID string        `gorm:"type:text" json:"provider_intent_id,omitempty"`
	ClientSecret     string        `gorm:"type:text" json:"-"`
	NextActionURL    string        `gorm:"type:text" json:"next_action_url,omitempty"`
	CheckoutURL      string        `gorm:"type:text" json:"checkout_url,omitempty"`
	TerminalID       string        `gorm:"type:text" json:"terminal_id,omitempty"`
	FailureReason    string        `gorm:"type:text" json:"failure_reason,omitempty"`
	PaymentID        *snowflake.ID `json:"payment_id,omitempty"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`
}

func (Session) TableName() string { return "payment_sessions" }

// EventRecord stores a raw provider callback, deduplicated per provider event id.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_event,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	Reference       string         `gorm:"type:text;index" json:"reference"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// SettlementEvent is the canonical callback parsed by adapters, keyed by reference.
type SettlementEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Reference         string
	Type              string
	AmountCents       int64
	Currency          string
	CardBrand         string
	CardLast4         string
	FailureReason     string
	OccurredAt        time.Time
	RawPayload        []byte
}
