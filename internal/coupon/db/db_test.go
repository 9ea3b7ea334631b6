package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"buzz/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range []any{
		(*models.Coupon)(nil),
		(*models.CouponFreeAddOn)(nil),
		(*models.Booking)(nil),
		(*models.Attendee)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	t.Cleanup(func() { bunDB.Close() })
	return &DB{Bun: bunDB, IncludeCancelled: true}
}

func seedUsage(t *testing.T, d *DB, bookingID, status, code string, attendees int) {
	t.Helper()
	ctx := context.Background()
	booking := &models.Booking{
		ID: bookingID, EventID: "evt-1", CouponCode: code, Status: status,
	}
	_, err := d.Bun.NewInsert().Model(booking).Exec(ctx)
	require.NoError(t, err)
	for i := 0; i < attendees; i++ {
		attendee := &models.Attendee{
			ID:           bookingID + "-att-" + string(rune('a'+i)),
			BookingID:    bookingID,
			FullName:     "Attendee",
			TicketTypeID: "tt-1",
		}
		_, err := d.Bun.NewInsert().Model(attendee).Exec(ctx)
		require.NoError(t, err)
	}
}

func TestSaveCouponGeneratesCode(t *testing.T) {
	d := setupTestDB(t)

	coupon := &models.Coupon{
		EventID:       "evt-1",
		CouponType:    models.CouponTypeDiscount,
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 10,
		IsActive:      true,
	}
	require.NoError(t, d.SaveCoupon(context.Background(), coupon))
	assert.Len(t, coupon.Code, 8)

	loaded, err := d.GetCoupon(context.Background(), coupon.Code)
	require.NoError(t, err)
	assert.Equal(t, 10.0, loaded.DiscountValue)
}

func TestSaveCouponRejectsInvalid(t *testing.T) {
	d := setupTestDB(t)

	err := d.SaveCoupon(context.Background(), &models.Coupon{
		CouponType:   models.CouponTypeDiscount,
		DiscountType: models.DiscountTypePercentage,
		// Percentage over 100 never makes sense.
		DiscountValue: 150,
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestSaveCouponWithFreeAddOns(t *testing.T) {
	d := setupTestDB(t)

	coupon := &models.Coupon{
		Code:                "FREEBIE",
		EventID:             "evt-1",
		CouponType:          models.CouponTypeFreeTickets,
		NumberOfFreeTickets: 3,
		TicketTypeID:        "tt-1",
		IsActive:            true,
		FreeAddOns:          []*models.CouponFreeAddOn{{AddOnID: "ao-1"}},
	}
	require.NoError(t, d.SaveCoupon(context.Background(), coupon))

	loaded, err := d.GetCoupon(context.Background(), "FREEBIE")
	require.NoError(t, err)
	require.Len(t, loaded.FreeAddOns, 1)
	assert.Equal(t, "ao-1", loaded.FreeAddOns[0].AddOnID)
}

func TestSaveCouponRollsBackOnFreeAddOnFailure(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	// Occupy the primary key the coupon's add-on row will try to use.
	_, err := d.Bun.NewInsert().Model(&models.CouponFreeAddOn{
		ID: 1, CouponCode: "OTHER", AddOnID: "ao-x",
	}).Exec(ctx)
	require.NoError(t, err)

	err = d.SaveCoupon(ctx, &models.Coupon{
		Code:                "HALF",
		EventID:             "evt-1",
		CouponType:          models.CouponTypeFreeTickets,
		NumberOfFreeTickets: 1,
		TicketTypeID:        "tt-1",
		IsActive:            true,
		FreeAddOns:          []*models.CouponFreeAddOn{{ID: 1, AddOnID: "ao-1"}},
	})
	require.Error(t, err)

	// The coupon row must not survive the failed add-on insert.
	_, err = d.GetCoupon(ctx, "HALF")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetCouponNotFound(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.GetCoupon(context.Background(), "NOPE")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestTimesUsedCountsFinalizedOnly(t *testing.T) {
	d := setupTestDB(t)

	seedUsage(t, d, "bk-1", models.BookingStatusSubmitted, "SAVE10", 1)
	seedUsage(t, d, "bk-2", models.BookingStatusApproved, "SAVE10", 1)
	seedUsage(t, d, "bk-3", models.BookingStatusDraft, "SAVE10", 1)
	seedUsage(t, d, "bk-4", models.BookingStatusRejected, "SAVE10", 1)
	seedUsage(t, d, "bk-5", models.BookingStatusCancelled, "SAVE10", 1)
	seedUsage(t, d, "bk-6", models.BookingStatusSubmitted, "OTHER", 1)

	used, err := d.TimesUsed(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 3, used, "submitted, approved and cancelled count")

	liberal := &DB{Bun: d.Bun, IncludeCancelled: false}
	used, err = liberal.TimesUsed(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 2, used, "cancellation refunds the use under the liberal policy")
}

func TestFreeTicketsClaimedSumsAttendees(t *testing.T) {
	d := setupTestDB(t)

	seedUsage(t, d, "bk-1", models.BookingStatusSubmitted, "FREEBIE", 2)
	seedUsage(t, d, "bk-2", models.BookingStatusApproved, "FREEBIE", 1)
	seedUsage(t, d, "bk-3", models.BookingStatusDraft, "FREEBIE", 4)

	claimed, err := d.FreeTicketsClaimed(context.Background(), "FREEBIE")
	require.NoError(t, err)
	assert.Equal(t, 3, claimed)
}
