package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"buzz/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CountIssued returns the number of non-cancelled tickets held against a
// ticket type. Callers inside a submit transaction pass the tx as idb so
// the count reflects row locks taken earlier in that tx.
func CountIssued(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error) {
	return idb.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("ticket_type_id = ?", ticketTypeID).
		Where("status != ?", models.TicketStatusCancelled).
		Count(ctx)
}

// InsertTickets writes a batch of freshly issued tickets, normally inside
// the booking submit transaction.
func InsertTickets(ctx context.Context, idb bun.IDB, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) TicketsForBooking(ctx context.Context, bookingID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("booking_id = ?", bookingID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewUpdate().
		Model(ticket).
		Column("status", "checked_in", "checked_in_time").
		Where("id = ?", ticket.ID).
		Exec(ctx)
	return err
}

// CancelForBooking marks every issued ticket of a booking as cancelled
// and returns the affected tickets so callers can notify attendees.
func CancelForBooking(ctx context.Context, idb bun.IDB, bookingID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := idb.NewSelect().
		Model(&tickets).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.TicketStatusIssued).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	_, err = idb.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusCancelled).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.TicketStatusIssued).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		tickets[i].Status = models.TicketStatusCancelled
	}
	return tickets, nil
}
