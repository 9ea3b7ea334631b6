// Package report builds the registrations report for an event: one row per
// attendee of a finalized booking, with one dynamic column per event add-on.
package report

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"buzz/internal/models"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Column describes one report column. Fieldname keys the row map.
type Column struct {
	Fieldname string `json:"fieldname"`
	Label     string `json:"label"`
	Fieldtype string `json:"fieldtype"`
}

type Registrations struct {
	EventID string           `json:"event_id"`
	Columns []Column         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Registrations runs the report in two passes: first the column list is fixed
// from the event's add-on configuration, then every attendee row is mapped
// through that list. Attendees without a value for an add-on column get an
// empty cell rather than a ragged row.
func (s *Service) Registrations(ctx context.Context, eventID string) (*Registrations, error) {
	exists, err := s.db.NewSelect().
		Model((*models.Event)(nil)).
		Where("id = ?", eventID).
		Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
	}

	// Pass 1: column definitions.
	var addOns []models.AddOn
	err = s.db.NewSelect().
		Model(&addOns).
		Where("event_id = ?", eventID).
		Order("title ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	columns := []Column{
		{Fieldname: "booking", Label: "Booking", Fieldtype: "Link"},
		{Fieldname: "booking_status", Label: "Booking Status", Fieldtype: "Data"},
		{Fieldname: "full_name", Label: "Attendee Name", Fieldtype: "Data"},
		{Fieldname: "email", Label: "Email", Fieldtype: "Data"},
		{Fieldname: "ticket_type", Label: "Ticket Type", Fieldtype: "Link"},
		{Fieldname: "coupon_code", Label: "Coupon", Fieldtype: "Data"},
	}
	for _, addOn := range addOns {
		columns = append(columns, Column{
			Fieldname: "add_on_" + addOn.ID,
			Label:     addOn.Title,
			Fieldtype: "Data",
		})
	}

	// Pass 2: attendee rows of finalized, non-cancelled bookings.
	var bookings []models.Booking
	err = s.db.NewSelect().
		Model(&bookings).
		Relation("Attendees").
		Relation("Attendees.AddOns").
		Where("booking.event_id = ?", eventID).
		Where("booking.status IN (?)", bun.In([]string{
			models.BookingStatusSubmitted,
			models.BookingStatusApproved,
		})).
		Order("booking.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0)
	for _, booking := range bookings {
		for _, attendee := range booking.Attendees {
			row := make(map[string]any, len(columns))
			row["booking"] = booking.ID
			row["booking_status"] = booking.Status
			row["full_name"] = attendee.FullName
			row["email"] = attendee.Email
			row["ticket_type"] = attendee.TicketTypeID
			row["coupon_code"] = booking.CouponCode

			selected := make(map[string]string, len(attendee.AddOns))
			for _, sel := range attendee.AddOns {
				value := sel.Value
				if value == "" {
					value = "Yes"
				}
				selected[sel.AddOnID] = value
			}
			for _, addOn := range addOns {
				row["add_on_"+addOn.ID] = selected[addOn.ID]
			}
			rows = append(rows, row)
		}
	}

	return &Registrations{EventID: eventID, Columns: columns, Rows: rows}, nil
}
