package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BalanceStatus marks whether a balance may be drawn from.
type BalanceStatus string

const (
	BalanceStatusActive  BalanceStatus = "active"
	BalanceStatusExpired BalanceStatus = "expired"
)

// Membership tiers mirror the subscription products sold upstream.
type Membership string

const (
	MembershipFree    Membership = "free"
	MembershipStarter Membership = "starter"
	MembershipPro     Membership = "pro"
)

// CreditBalance is the per-creator spendable balance. All mutations go through
// the credits service; the guarded UPDATE keeps it non-negative.
type CreditBalance struct {
	UserID     snowflake.ID  `gorm:"primaryKey" json:"user_id"`
	Credits    int64         `gorm:"not null" json:"credits"`
	Status     BalanceStatus `gorm:"type:text;not null;default:active" json:"status"`
	Membership Membership    `gorm:"type:text;not null;default:free" json:"membership"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// ReservationStatus tracks the lifecycle of a provisional hold.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusRefunded  ReservationStatus = "refunded"
)

// CreditReservation is an eager-deduct hold against a balance. It is persisted
// so the reconciler can sweep holds orphaned by a crash mid-generation.
type CreditReservation struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID      `gorm:"not null;index" json:"user_id"`
	Amount     int64             `gorm:"not null" json:"amount"`
	Stage      string            `gorm:"type:text;not null" json:"stage"`
	Status     ReservationStatus `gorm:"type:text;not null;index" json:"status"`
	Reason     string            `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// TableName sets the database table name.
func (CreditReservation) TableName() string { return "credit_reservations" }

// CreditGrant records credits added to a balance (purchase, promo, goodwill).
// ExternalEventID deduplicates webhook redeliveries.
type CreditGrant struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID          snowflake.ID `gorm:"not null;index" json:"user_id"`
	Amount          int64        `gorm:"not null" json:"amount"`
	Source          string       `gorm:"type:text;not null" json:"source"`
	ExternalEventID string       `gorm:"type:text;uniqueIndex:ux_credit_grants_event" json:"external_event_id,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CreditGrant) TableName() string { return "credit_grants" }
