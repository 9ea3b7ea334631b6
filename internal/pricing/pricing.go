// Package pricing computes net, discount, tax and total amounts for a
// booking. Calculate is a pure function: everything it needs arrives in its
// arguments, nothing is read from storage.
package pricing

import (
	"math"

	"buzz/internal/models"
)

// AddOnCharge is one selected add-on on an attendee line, already resolved
// to a unit price by the catalog.
type AddOnCharge struct {
	AddOnID string
	Price   float64
}

// Line is one attendee of a booking with a resolved ticket price.
type Line struct {
	TicketTypeID string
	TicketPrice  float64
	AddOns       []AddOnCharge
}

// CouponTerms is the resolved coupon descriptor the calculator applies.
// A nil *CouponTerms means no coupon.
type CouponTerms struct {
	Type          string
	DiscountType  string
	DiscountValue float64

	// Free-ticket parameters. FreeSlots is the number of free tickets this
	// booking may still claim (quota minus what earlier submitted bookings
	// consumed), not the coupon's configured total.
	FreeTicketTypeID string
	FreeSlots        int
	FreeAddOnIDs     map[string]bool
}

// TaxConfig carries the event's tax settings into the calculator.
type TaxConfig struct {
	ApplyTax      bool
	TaxInclusive  bool
	TaxLabel      string
	TaxPercentage float64
}

// Amounts is the computed money breakdown for a booking.
type Amounts struct {
	Net           float64
	Discount      float64
	Tax           float64
	Total         float64
	TaxLabel      string
	TaxPercentage float64
	// FreeTicketsClaimed is how many free slots this booking consumed.
	FreeTicketsClaimed int
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Calculate prices a booking. Discounts use exact arithmetic; rounding to two
// decimals happens only at the tax back-calculation step so percentage and
// flat discounts do not compound rounding error.
func Calculate(lines []Line, coupon *CouponTerms, tax TaxConfig) Amounts {
	var amounts Amounts

	var net float64
	for _, line := range lines {
		net += line.TicketPrice
		for _, a := range line.AddOns {
			net += a.Price
		}
	}
	amounts.Net = net

	var discount float64
	if coupon != nil {
		switch coupon.Type {
		case models.CouponTypeDiscount:
			switch coupon.DiscountType {
			case models.DiscountTypePercentage:
				discount = net * coupon.DiscountValue / 100
			case models.DiscountTypeFlatAmount:
				discount = coupon.DiscountValue
			}
		case models.CouponTypeFreeTickets:
			discount, amounts.FreeTicketsClaimed = freeTicketDiscount(lines, coupon)
		}
	}
	if discount > net {
		discount = net
	}
	amounts.Discount = discount

	if tax.ApplyTax {
		amounts.TaxLabel = tax.TaxLabel
		amounts.TaxPercentage = tax.TaxPercentage
		taxable := net - discount
		if tax.TaxInclusive {
			// Price already contains tax; back-calculate it for reporting
			// without changing what the attendee pays.
			amounts.Tax = round2(taxable * tax.TaxPercentage / (100 + tax.TaxPercentage))
			amounts.Total = round2(taxable)
		} else {
			amounts.Tax = round2(taxable * tax.TaxPercentage / 100)
			amounts.Total = round2(taxable + amounts.Tax)
		}
	} else {
		amounts.Total = round2(net - discount)
	}

	return amounts
}

// freeTicketDiscount waives the ticket price for up to FreeSlots attendees of
// the coupon's ticket type, in line order. Add-ons in the coupon's free list
// are waived only for attendees occupying a free slot; attendees beyond the
// quota pay full price for both ticket and add-ons.
func freeTicketDiscount(lines []Line, coupon *CouponTerms) (float64, int) {
	var discount float64
	remaining := coupon.FreeSlots
	claimed := 0

	for _, line := range lines {
		if remaining <= 0 {
			break
		}
		if line.TicketTypeID != coupon.FreeTicketTypeID {
			continue
		}
		discount += line.TicketPrice
		for _, a := range line.AddOns {
			if coupon.FreeAddOnIDs[a.AddOnID] {
				discount += a.Price
			}
		}
		remaining--
		claimed++
	}

	return discount, claimed
}
