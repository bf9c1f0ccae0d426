package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order. Transitions: pending -> completed | failed.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Payment method tags.
const (
	PaymentMethodFree    = "free"
	PaymentMethodGateway = "gateway"
	// PaymentMethodWebhook marks orders recorded from processor webhooks; DeferredSync scans for it.
	PaymentMethodWebhook = "gateway_webhook"
)

// OrderMetadata is the custom JSON stored alongside an order.
type OrderMetadata struct {
	UserID        string            `json:"user_id,omitempty"`
	IdentityKind  string            `json:"identity_kind,omitempty"`
	Locale        string            `json:"locale,omitempty"`
	BuyerName     string            `json:"buyer_name,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	Discounts     []AppliedDiscount `json:"discounts,omitempty"`
	ReferralCode  string            `json:"referral_code,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`

	// Gateway grant, kept for reference after a successful callback.
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TokenExpiresIn int64  `json:"token_expires_in,omitempty"`
}

// AppliedDiscount is one code's share of an order's discount, redeemed after payment.
type AppliedDiscount struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// Order is a single purchase attempt, paid or free. Orders are never deleted.
type Order struct {
	ID             string          `json:"id"`
	CourseID       string          `json:"course_id"`
	CourseName     string          `json:"course_name"`
	Email          string          `json:"email"`
	Amount         decimal.Decimal `json:"amount"`
	Status         OrderStatus     `json:"status"`
	PaymentMethod  string          `json:"payment_method"`
	Metadata       OrderMetadata   `json:"metadata"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Enrolled       bool            `json:"enrolled"`
	EnrollmentID   *string         `json:"enrollment_id,omitempty"`
	ClientIP       string          `json:"client_ip,omitempty"`
	UserAgent      string          `json:"user_agent,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsFree reports whether the order bypasses the payment gateway.
func (o *Order) IsFree() bool {
	return o.Amount.IsZero()
}
