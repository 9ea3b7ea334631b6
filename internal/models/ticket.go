package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TicketStatusIssued    = "Issued"
	TicketStatusCancelled = "Cancelled"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string `bun:"id,pk" json:"id"`
	BookingID    string `bun:"booking_id,notnull" json:"booking_id"`
	EventID      string `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`

	// Attendee identity is immutable once the ticket is issued.
	AttendeeName  string `bun:"attendee_name,notnull" json:"attendee_name"`
	AttendeeEmail string `bun:"attendee_email,notnull" json:"attendee_email"`

	CouponCode      string  `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`
	PriceAtPurchase float64 `bun:"price_at_purchase" json:"price_at_purchase"`

	QRCode []byte `bun:"qr_code" json:"qr_code,omitempty"`

	Status        string    `bun:"status,notnull" json:"status"`
	IssuedAt      time.Time `bun:"issued_at,nullzero" json:"issued_at"`
	CheckedIn     bool      `bun:"checked_in" json:"checked_in"`
	CheckedInTime time.Time `bun:"checked_in_time,nullzero" json:"checked_in_time"`
}
