package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is a catalog entry that can be purchased.
type Course struct {
	ID               string          `json:"id"`
	Slug             string          `json:"slug"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	Level            string          `json:"level"`
	Locale           string          `json:"locale"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	GatewayProductID *string         `json:"gateway_product_id,omitempty"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CourseFilter narrows catalog listings. Zero values match everything.
type CourseFilter struct {
	Category string
	Level    string
	Locale   string
	Query    string
	FreeOnly bool
	Limit    int
	Offset   int
}
