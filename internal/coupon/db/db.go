package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"buzz/internal/models"

	"github.com/uptrace/bun"
)

// DB is the coupon store. IncludeCancelled controls whether cancelled
// bookings still count against usage and free-ticket quotas; the default
// policy keeps counting them (cancellation does not refund coupon usage).
type DB struct {
	Bun              *bun.DB
	IncludeCancelled bool
}

// UsageStatuses lists the booking statuses that consume coupon quota.
func UsageStatuses(includeCancelled bool) []string {
	statuses := []string{models.BookingStatusSubmitted, models.BookingStatusApproved}
	if includeCancelled {
		statuses = append(statuses, models.BookingStatusCancelled)
	}
	return statuses
}

// TimesUsed counts finalized bookings referencing the coupon. It accepts any
// bun.IDB so the booking submit transaction can recount under its row lock.
func TimesUsed(ctx context.Context, idb bun.IDB, code string, includeCancelled bool) (int, error) {
	return idb.NewSelect().
		Model((*models.Booking)(nil)).
		Where("coupon_code = ?", code).
		Where("status IN (?)", bun.In(UsageStatuses(includeCancelled))).
		Count(ctx)
}

// FreeTicketsClaimed sums attendee rows across finalized bookings using the
// coupon.
func FreeTicketsClaimed(ctx context.Context, idb bun.IDB, code string, includeCancelled bool) (int, error) {
	return idb.NewSelect().
		Table("booking_attendees").
		Join("JOIN bookings ON bookings.id = booking_attendees.booking_id").
		Where("bookings.coupon_code = ?", code).
		Where("bookings.status IN (?)", bun.In(UsageStatuses(includeCancelled))).
		Count(ctx)
}

// GetCoupon fetches a coupon with its free add-on list, or models.ErrNotFound.
func (d *DB) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupon).
		Relation("FreeAddOns").
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("coupon %s: %w", code, models.ErrNotFound)
		}
		return nil, err
	}
	return &coupon, nil
}

// SaveCoupon validates and inserts a coupon with its free add-on rows in one
// transaction, generating a code when absent.
func (d *DB) SaveCoupon(ctx context.Context, coupon *models.Coupon) error {
	if coupon.Code == "" {
		coupon.Code = models.NewCouponCode()
	}
	if err := coupon.Validate(); err != nil {
		return err
	}
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(coupon).Exec(ctx); err != nil {
			return err
		}
		for _, free := range coupon.FreeAddOns {
			free.CouponCode = coupon.Code
			if _, err := tx.NewInsert().Model(free).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) TimesUsed(ctx context.Context, code string) (int, error) {
	return TimesUsed(ctx, d.Bun, code, d.IncludeCancelled)
}

func (d *DB) FreeTicketsClaimed(ctx context.Context, code string) (int, error) {
	return FreeTicketsClaimed(ctx, d.Bun, code, d.IncludeCancelled)
}
