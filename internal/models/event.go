package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Category  string    `bun:"category" json:"category"`
	Venue     string    `bun:"venue" json:"venue"`
	StartDate time.Time `bun:"start_date" json:"start_date"`
	EndDate   time.Time `bun:"end_date" json:"end_date"`

	// Tax configuration. When TaxInclusive is set the ticket prices already
	// contain tax and the tax amount is only back-calculated for reporting.
	ApplyTax      bool    `bun:"apply_tax" json:"apply_tax"`
	TaxInclusive  bool    `bun:"tax_inclusive" json:"tax_inclusive"`
	TaxLabel      string  `bun:"tax_label" json:"tax_label"`
	TaxPercentage float64 `bun:"tax_percentage" json:"tax_percentage"`

	EnableOfflinePayments bool `bun:"enable_offline_payments" json:"enable_offline_payments"`

	SendTicketEmail      bool   `bun:"send_ticket_email" json:"send_ticket_email"`
	TicketEmailTemplate  string `bun:"ticket_email_template" json:"ticket_email_template"`
	AttachCalendarInvite bool   `bun:"attach_calendar_invite" json:"attach_calendar_invite"`

	CreatedAt time.Time `bun:"created_at,nullzero" json:"created_at"`
}

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID      string  `bun:"id,pk" json:"id"`
	EventID string  `bun:"event_id,notnull" json:"event_id"`
	Title   string  `bun:"title,notnull" json:"title"`
	Price   float64 `bun:"price" json:"price"`

	IsPublished bool `bun:"is_published" json:"is_published"`
	// MaxTicketsAvailable caps issued (non-cancelled) tickets of this type.
	// Zero means unlimited.
	MaxTicketsAvailable int `bun:"max_tickets_available" json:"max_tickets_available"`

	CreatedAt time.Time `bun:"created_at,nullzero" json:"created_at"`
}

type AddOn struct {
	bun.BaseModel `bun:"table:add_ons"`

	ID      string  `bun:"id,pk" json:"id"`
	EventID string  `bun:"event_id,notnull" json:"event_id"`
	Title   string  `bun:"title,notnull" json:"title"`
	Price   float64 `bun:"price" json:"price"`
	Enabled bool    `bun:"enabled" json:"enabled"`
	// Options holds the user-selectable variants, one per line ("S\nM\nL").
	Options string `bun:"options" json:"options"`

	CreatedAt time.Time `bun:"created_at,nullzero" json:"created_at"`
}

// OptionList splits the newline-delimited option field, dropping blanks.
func (a *AddOn) OptionList() []string {
	var out []string
	for _, line := range strings.Split(a.Options, "\n") {
		if v := strings.TrimSpace(line); v != "" {
			out = append(out, v)
		}
	}
	return out
}
