package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	CouponTypeDiscount    = "Discount"
	CouponTypeFreeTickets = "Free Tickets"

	DiscountTypePercentage = "Percentage"
	DiscountTypeFlatAmount = "Flat Amount"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	Code       string `bun:"code,pk" json:"code"`
	CouponType string `bun:"coupon_type,notnull" json:"coupon_type"`

	// Discount parameters (CouponTypeDiscount only).
	DiscountType  string  `bun:"discount_type" json:"discount_type"`
	DiscountValue float64 `bun:"discount_value" json:"discount_value"`

	// Scope: at most one of EventID / EventCategory. Neither set = global.
	EventID       string `bun:"event_id,nullzero" json:"event_id"`
	EventCategory string `bun:"event_category,nullzero" json:"event_category"`

	IsActive      bool `bun:"is_active" json:"is_active"`
	MaxUsageCount int  `bun:"max_usage_count" json:"max_usage_count"`

	// Free-ticket parameters (CouponTypeFreeTickets only).
	TicketTypeID        string `bun:"ticket_type_id,nullzero" json:"ticket_type_id"`
	NumberOfFreeTickets int    `bun:"number_of_free_tickets" json:"number_of_free_tickets"`

	FreeAddOns []*CouponFreeAddOn `bun:"rel:has-many,join:code=coupon_code" json:"free_add_ons,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero" json:"created_at"`
}

// CouponFreeAddOn marks an add-on as waived for attendees consuming one of
// the coupon's free ticket slots.
type CouponFreeAddOn struct {
	bun.BaseModel `bun:"table:coupon_free_add_ons"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	CouponCode string `bun:"coupon_code,notnull" json:"coupon_code"`
	AddOnID    string `bun:"add_on_id,notnull" json:"add_on_id"`
}

// NewCouponCode returns an 8-character uppercase code, used when a coupon is
// saved without an explicit code.
func NewCouponCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Validate enforces the coupon's save-time rules. Redemption does not
// re-check these.
func (c *Coupon) Validate() error {
	if c.CouponType == CouponTypeDiscount {
		if c.DiscountValue <= 0 {
			return Validationf("discount value must be greater than 0")
		}
		if c.DiscountType == DiscountTypePercentage && c.DiscountValue > 100 {
			return Validationf("percentage discount cannot exceed 100%%")
		}
	}
	if c.EventID != "" && c.EventCategory != "" {
		return Validationf("select either event or category, not both")
	}
	if c.CouponType == CouponTypeFreeTickets && c.EventID == "" {
		return Validationf("event is required for a free tickets coupon")
	}
	return nil
}
