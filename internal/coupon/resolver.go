// Package coupon validates coupon codes against scope and usage limits and
// resolves them into the discount terms the pricing calculator applies.
package coupon

import (
	"context"
	"errors"
	"fmt"

	"buzz/internal/models"
	"buzz/internal/pricing"
)

type Store interface {
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	TimesUsed(ctx context.Context, code string) (int, error)
	FreeTicketsClaimed(ctx context.Context, code string) (int, error)
}

// Resolution is the outcome of resolving a coupon code. An invalid coupon is
// a result, not an error: Valid is false and Reason says why.
type Resolution struct {
	Valid  bool
	Reason string

	Coupon *models.Coupon
	// FreeTicketsRemaining is the quota left after earlier finalized
	// bookings, for free-ticket coupons.
	FreeTicketsRemaining int
}

// Terms converts a valid resolution into the calculator's coupon descriptor.
func (r *Resolution) Terms() *pricing.CouponTerms {
	if !r.Valid {
		return nil
	}
	terms := &pricing.CouponTerms{
		Type:          r.Coupon.CouponType,
		DiscountType:  r.Coupon.DiscountType,
		DiscountValue: r.Coupon.DiscountValue,
	}
	if r.Coupon.CouponType == models.CouponTypeFreeTickets {
		terms.FreeTicketTypeID = r.Coupon.TicketTypeID
		terms.FreeSlots = r.FreeTicketsRemaining
		terms.FreeAddOnIDs = make(map[string]bool, len(r.Coupon.FreeAddOns))
		for _, free := range r.Coupon.FreeAddOns {
			terms.FreeAddOnIDs[free.AddOnID] = true
		}
	}
	return terms
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve validates a coupon code for an event. Checks short-circuit in
// order: existence, active flag, scope, usage limit. The returned Resolution
// claims nothing; the claim happens inside the booking submit transaction.
func (r *Resolver) Resolve(ctx context.Context, code string, event *models.Event) (*Resolution, error) {
	coupon, err := r.store.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &Resolution{Reason: "Invalid coupon code"}, nil
		}
		return nil, fmt.Errorf("fetch coupon %s: %w", code, err)
	}

	if !coupon.IsActive {
		return &Resolution{Reason: "Coupon is not active"}, nil
	}

	if reason := scopeMismatch(coupon, event); reason != "" {
		return &Resolution{Reason: reason}, nil
	}

	if coupon.MaxUsageCount > 0 {
		used, err := r.store.TimesUsed(ctx, coupon.Code)
		if err != nil {
			return nil, fmt.Errorf("count coupon usage: %w", err)
		}
		if used >= coupon.MaxUsageCount {
			return &Resolution{Reason: "Coupon usage limit reached"}, nil
		}
	}

	resolution := &Resolution{Valid: true, Coupon: coupon}

	if coupon.CouponType == models.CouponTypeFreeTickets {
		claimed, err := r.store.FreeTicketsClaimed(ctx, coupon.Code)
		if err != nil {
			return nil, fmt.Errorf("count free tickets claimed: %w", err)
		}
		remaining := coupon.NumberOfFreeTickets - claimed
		if remaining < 0 {
			remaining = 0
		}
		resolution.FreeTicketsRemaining = remaining
	}

	return resolution, nil
}

// scopeMismatch returns a rejection reason when the coupon's scope excludes
// the event, or "" when it applies. No scope at all means global.
func scopeMismatch(coupon *models.Coupon, event *models.Event) string {
	if coupon.EventID == "" && coupon.EventCategory == "" {
		return ""
	}
	if coupon.EventID != "" && coupon.EventID != event.ID {
		return "Coupon is not valid for this event"
	}
	if coupon.EventCategory != "" && coupon.EventCategory != event.Category {
		return "Coupon is not valid for this event category"
	}
	return ""
}
