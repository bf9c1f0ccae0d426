package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount types. A balance code grants up to its remaining balance.
const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"
	DiscountTypeBalance = "balance"
)

// DiscountCode is a promotional or referral code. Codes are never deleted.
type DiscountCode struct {
	Code             string          `json:"code"`
	OwnerUserID      *string         `json:"owner_user_id,omitempty"`
	IsReferral       bool            `json:"is_referral"`
	DiscountType     string          `json:"discount_type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	UsageCount       int             `json:"usage_count"`
	MaxUsage         int             `json:"max_usage"`
	HasBalanceLimit  bool            `json:"has_balance_limit"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	UsedBy           *string         `json:"used_by,omitempty"`
	UsedAt           *time.Time      `json:"used_at,omitempty"`
	ValidFrom        time.Time       `json:"valid_from"`
	ValidUntil       *time.Time      `json:"valid_until,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasUsageLeft reports whether the code can be used again.
func (d *DiscountCode) HasUsageLeft() bool {
	return d.UsageCount < d.MaxUsage
}

// ActiveAt reports whether now falls inside the validity window.
func (d *DiscountCode) ActiveAt(now time.Time) bool {
	if now.Before(d.ValidFrom) {
		return false
	}
	return d.ValidUntil == nil || now.Before(*d.ValidUntil)
}

// ReferralUsage records one successful paid referral, keyed by order id.
type ReferralUsage struct {
	OrderID        string    `json:"order_id"`
	ReferralCode   string    `json:"referral_code"`
	ReferrerUserID string    `json:"referrer_user_id"`
	ReferredUserID string    `json:"referred_user_id"`
	RewardCode     *string   `json:"reward_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
