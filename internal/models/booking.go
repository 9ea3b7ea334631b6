package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	BookingStatusDraft           = "Draft"
	BookingStatusApprovalPending = "Approval Pending"
	BookingStatusApproved        = "Approved"
	BookingStatusRejected        = "Rejected"
	BookingStatusSubmitted       = "Submitted"
	BookingStatusCancelled       = "Cancelled"

	PaymentStatusUnpaid              = "Unpaid"
	PaymentStatusVerificationPending = "Verification Pending"
	PaymentStatusPaid                = "Paid"

	PaymentMethodOffline = "Offline"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         string `bun:"id,pk" json:"id"`
	EventID    string `bun:"event_id,notnull" json:"event_id"`
	UserID     string `bun:"user_id,notnull" json:"user_id"`
	CouponCode string `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`

	NetAmount      float64 `bun:"net_amount" json:"net_amount"`
	DiscountAmount float64 `bun:"discount_amount" json:"discount_amount"`
	TaxAmount      float64 `bun:"tax_amount" json:"tax_amount"`
	TotalAmount    float64 `bun:"total_amount" json:"total_amount"`
	TaxLabel       string  `bun:"tax_label" json:"tax_label"`
	TaxPercentage  float64 `bun:"tax_percentage" json:"tax_percentage"`

	Status        string `bun:"status,notnull" json:"status"`
	PaymentStatus string `bun:"payment_status,notnull" json:"payment_status"`
	PaymentMethod string `bun:"payment_method,nullzero" json:"payment_method,omitempty"`

	PaymentIntentID string `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`

	Attendees     []*Attendee     `bun:"rel:has-many,join:id=booking_id" json:"attendees,omitempty"`
	UTMParameters []*UTMParameter `bun:"rel:has-many,join:id=booking_id" json:"utm_parameters,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero" json:"created_at"`
}

// Finalized reports whether the booking reached a submitted-equivalent state
// and therefore counts against coupon usage and capacity.
func (b *Booking) Finalized() bool {
	switch b.Status {
	case BookingStatusSubmitted, BookingStatusApproved, BookingStatusCancelled:
		return true
	}
	return false
}

type Attendee struct {
	bun.BaseModel `bun:"table:booking_attendees"`

	ID           string `bun:"id,pk" json:"id"`
	BookingID    string `bun:"booking_id,notnull" json:"booking_id"`
	FullName     string `bun:"full_name,notnull" json:"full_name"`
	Email        string `bun:"email,notnull" json:"email"`
	TicketTypeID string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`

	AddOns []*AttendeeAddOn `bun:"rel:has-many,join:id=attendee_id" json:"add_ons,omitempty"`
}

// AttendeeAddOn is one selected add-on for an attendee, with the chosen
// option value ("XL" for a t-shirt, say).
type AttendeeAddOn struct {
	bun.BaseModel `bun:"table:attendee_add_ons"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	AttendeeID string `bun:"attendee_id,notnull" json:"attendee_id"`
	AddOnID    string `bun:"add_on_id,notnull" json:"add_on_id"`
	Value      string `bun:"value" json:"value,omitempty"`
}

// UTMParameter is a keyed attribute attached to a booking for campaign
// attribution. Outside the pricing core.
type UTMParameter struct {
	bun.BaseModel `bun:"table:booking_utm_parameters"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	BookingID string `bun:"booking_id,notnull" json:"booking_id"`
	Name      string `bun:"utm_name,notnull" json:"utm_name"`
	Value     string `bun:"value" json:"value"`
}
