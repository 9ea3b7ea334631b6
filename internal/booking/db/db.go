package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	coupondb "buzz/internal/coupon/db"
	"buzz/internal/models"
	ticketdb "buzz/internal/tickets/db"
)

type DB struct {
	Bun *bun.DB

	// IncludeCancelled matches the coupon store's usage counting policy.
	IncludeCancelled bool
}

// SubmitGuard carries the invariants FinalizeSubmission re-checks under row
// locks: coupon usage, free-ticket quota, and per-type capacity.
type SubmitGuard struct {
	CouponCode    string
	MaxUsageCount int

	FreeTicketCoupon    bool
	NumberOfFreeTickets int
	// PricedFreeSlots is how many free slots the pricing pass assumed. If a
	// concurrent booking consumed quota since then, the submit must fail
	// rather than charge a different amount than was shown.
	PricedFreeSlots int

	// Capacities maps ticket type IDs to their max_tickets_available. Zero
	// means unlimited and is never included here.
	Capacities map[string]int
	// Requested maps ticket type IDs to the number of tickets this booking
	// wants to issue.
	Requested map[string]int
}

func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		for _, attendee := range booking.Attendees {
			attendee.BookingID = booking.ID
			if _, err := tx.NewInsert().Model(attendee).Exec(ctx); err != nil {
				return fmt.Errorf("insert attendee: %w", err)
			}
			for _, addOn := range attendee.AddOns {
				addOn.AttendeeID = attendee.ID
			}
			if len(attendee.AddOns) > 0 {
				if _, err := tx.NewInsert().Model(&attendee.AddOns).Exec(ctx); err != nil {
					return fmt.Errorf("insert attendee add-ons: %w", err)
				}
			}
		}
		if len(booking.UTMParameters) > 0 {
			for _, utm := range booking.UTMParameters {
				utm.BookingID = booking.ID
			}
			if _, err := tx.NewInsert().Model(&booking.UTMParameters).Exec(ctx); err != nil {
				return fmt.Errorf("insert utm parameters: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Relation("Attendees").
		Relation("Attendees.AddOns").
		Relation("UTMParameters").
		Where("booking.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBooking writes the mutable booking columns.
func (d *DB) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	_, err := d.Bun.NewUpdate().
		Model(booking).
		Column("status", "payment_status", "payment_method", "payment_intent_id",
			"net_amount", "discount_amount", "tax_amount", "total_amount",
			"tax_label", "tax_percentage", "coupon_code").
		Where("id = ?", booking.ID).
		Exec(ctx)
	return err
}

// GetBookingByPaymentIntent locates the booking a Stripe webhook refers to.
func (d *DB) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Relation("Attendees").
		Relation("Attendees.AddOns").
		Where("booking.payment_intent_id = ?", intentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking for payment intent %s: %w", intentID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// IssuedCount reports how many non-cancelled tickets exist for a ticket
// type, outside any transaction. The submit transaction recounts under its
// row lock.
func (d *DB) IssuedCount(ctx context.Context, ticketTypeID string) (int, error) {
	return ticketdb.CountIssued(ctx, d.Bun, ticketTypeID)
}

// FinalizeSubmission commits a booking into a finalized status together with
// its tickets. Coupon usage, free-ticket quota and ticket type capacity are
// re-checked inside the transaction under row locks, so two concurrent
// submissions cannot both pass a limit with one slot left.
func (d *DB) FinalizeSubmission(ctx context.Context, booking *models.Booking, tickets []*models.Ticket, guard SubmitGuard) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if guard.CouponCode != "" {
			if err := d.lockCoupon(ctx, tx, guard.CouponCode); err != nil {
				return err
			}
			if guard.MaxUsageCount > 0 {
				used, err := coupondb.TimesUsed(ctx, tx, guard.CouponCode, d.IncludeCancelled)
				if err != nil {
					return fmt.Errorf("recount coupon usage: %w", err)
				}
				if used >= guard.MaxUsageCount {
					return models.Validationf("coupon %s usage limit reached", guard.CouponCode)
				}
			}
			if guard.FreeTicketCoupon && guard.PricedFreeSlots > 0 {
				claimed, err := coupondb.FreeTicketsClaimed(ctx, tx, guard.CouponCode, d.IncludeCancelled)
				if err != nil {
					return fmt.Errorf("recount free tickets: %w", err)
				}
				if guard.NumberOfFreeTickets-claimed < guard.PricedFreeSlots {
					return models.Validationf("free tickets for coupon %s were claimed by another booking, please start over", guard.CouponCode)
				}
			}
		}

		if err := d.checkCapacity(ctx, tx, guard); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model(booking).
			Column("status", "payment_status", "payment_method", "payment_intent_id",
				"net_amount", "discount_amount", "tax_amount", "total_amount",
				"tax_label", "tax_percentage").
			Where("id = ?", booking.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}

		if err := ticketdb.InsertTickets(ctx, tx, tickets); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		return nil
	})
}

// CancelFinalized flips a finalized booking to cancelled and cancels its
// issued tickets in one transaction. Returns the cancelled tickets.
func (d *DB) CancelFinalized(ctx context.Context, booking *models.Booking) ([]models.Ticket, error) {
	var cancelled []models.Ticket
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model(booking).
			Column("status", "payment_status").
			Where("id = ?", booking.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		var err error
		cancelled, err = ticketdb.CancelForBooking(ctx, tx, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (d *DB) lockCoupon(ctx context.Context, tx bun.Tx, code string) error {
	q := tx.NewSelect().
		Model((*models.Coupon)(nil)).
		Column("code").
		Where("code = ?", code)
	if d.supportsRowLocks() {
		q = q.For("UPDATE")
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return fmt.Errorf("lock coupon %s: %w", code, err)
	}
	if !exists {
		return models.Validationf("coupon %s no longer exists", code)
	}
	return nil
}

func (d *DB) checkCapacity(ctx context.Context, tx bun.Tx, guard SubmitGuard) error {
	if len(guard.Capacities) == 0 {
		return nil
	}

	// Deterministic lock order so concurrent submits on overlapping ticket
	// types cannot deadlock.
	ids := make([]string, 0, len(guard.Capacities))
	for id := range guard.Capacities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lock := tx.NewSelect().
		Model((*models.TicketType)(nil)).
		Column("id").
		Where("id IN (?)", bun.In(ids))
	if d.supportsRowLocks() {
		lock = lock.For("UPDATE")
	}
	if err := lock.Scan(ctx, &ids); err != nil {
		return fmt.Errorf("lock ticket types: %w", err)
	}

	for _, id := range ids {
		max := guard.Capacities[id]
		issued, err := ticketdb.CountIssued(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("count issued tickets: %w", err)
		}
		if issued+guard.Requested[id] > max {
			return models.Validationf("ticket type %s is sold out", id)
		}
	}
	return nil
}

// SQLite has no SELECT ... FOR UPDATE; its writes serialize anyway.
func (d *DB) supportsRowLocks() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}
