package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"buzz/internal/models"
	ticketdb "buzz/internal/tickets/db"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range []any{
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.AddOn)(nil),
		(*models.Coupon)(nil),
		(*models.CouponFreeAddOn)(nil),
		(*models.Booking)(nil),
		(*models.Attendee)(nil),
		(*models.AttendeeAddOn)(nil),
		(*models.UTMParameter)(nil),
		(*models.Ticket)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	t.Cleanup(func() { bunDB.Close() })
	return &DB{Bun: bunDB, IncludeCancelled: true}
}

func seedBooking(t *testing.T, d *DB, id, status string, couponCode string, attendees int) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:            id,
		EventID:       "evt-1",
		UserID:        "user-1",
		CouponCode:    couponCode,
		Status:        status,
		PaymentStatus: models.PaymentStatusUnpaid,
		CreatedAt:     time.Now(),
	}
	for i := 0; i < attendees; i++ {
		booking.Attendees = append(booking.Attendees, &models.Attendee{
			ID:           id + "-att-" + string(rune('a'+i)),
			FullName:     "Attendee",
			Email:        "a@example.com",
			TicketTypeID: "tt-1",
		})
	}
	require.NoError(t, d.CreateBooking(context.Background(), booking))
	return booking
}

func TestCreateAndGetBooking(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	booking := &models.Booking{
		ID:            "bk-1",
		EventID:       "evt-1",
		UserID:        "user-1",
		Status:        models.BookingStatusDraft,
		PaymentStatus: models.PaymentStatusUnpaid,
		CreatedAt:     time.Now(),
		Attendees: []*models.Attendee{
			{
				ID: "att-1", FullName: "Ada Lovelace", Email: "ada@example.com", TicketTypeID: "tt-1",
				AddOns: []*models.AttendeeAddOn{{AddOnID: "ao-1", Value: "XL"}},
			},
		},
		UTMParameters: []*models.UTMParameter{
			{Name: "utm_source", Value: "newsletter"},
		},
	}
	require.NoError(t, d.CreateBooking(ctx, booking))

	got, err := d.GetBookingByID(ctx, "bk-1")
	require.NoError(t, err)
	require.Len(t, got.Attendees, 1)
	require.Equal(t, "Ada Lovelace", got.Attendees[0].FullName)
	require.Len(t, got.Attendees[0].AddOns, 1)
	require.Equal(t, "XL", got.Attendees[0].AddOns[0].Value)
	require.Len(t, got.UTMParameters, 1)
	require.Equal(t, "newsletter", got.UTMParameters[0].Value)
}

func TestGetBookingNotFound(t *testing.T) {
	d := setupTestDB(t)
	_, err := d.GetBookingByID(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestFinalizeSubmissionIssuesTickets(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	booking := seedBooking(t, d, "bk-1", models.BookingStatusDraft, "", 2)
	booking.Status = models.BookingStatusSubmitted
	booking.PaymentStatus = models.PaymentStatusPaid

	tickets := []*models.Ticket{
		{ID: "tk-1", BookingID: "bk-1", EventID: "evt-1", TicketTypeID: "tt-1",
			AttendeeName: "A", Status: models.TicketStatusIssued, IssuedAt: time.Now()},
		{ID: "tk-2", BookingID: "bk-1", EventID: "evt-1", TicketTypeID: "tt-1",
			AttendeeName: "B", Status: models.TicketStatusIssued, IssuedAt: time.Now()},
	}
	err := d.FinalizeSubmission(ctx, booking, tickets, SubmitGuard{})
	require.NoError(t, err)

	got, err := d.GetBookingByID(ctx, "bk-1")
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusSubmitted, got.Status)
	require.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)

	issued, err := ticketdb.CountIssued(ctx, d.Bun, "tt-1")
	require.NoError(t, err)
	require.Equal(t, 2, issued)
}

func TestFinalizeSubmissionCouponLimit(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	_, err := d.Bun.NewInsert().Model(&models.Coupon{
		Code: "LIMIT2", CouponType: models.CouponTypeDiscount,
		DiscountType: models.DiscountTypePercentage, DiscountValue: 10,
		IsActive: true, MaxUsageCount: 2,
	}).Exec(ctx)
	require.NoError(t, err)

	seedBooking(t, d, "bk-1", models.BookingStatusSubmitted, "LIMIT2", 1)
	seedBooking(t, d, "bk-2", models.BookingStatusSubmitted, "LIMIT2", 1)

	third := seedBooking(t, d, "bk-3", models.BookingStatusDraft, "LIMIT2", 1)
	third.Status = models.BookingStatusSubmitted
	err = d.FinalizeSubmission(ctx, third, nil, SubmitGuard{
		CouponCode:    "LIMIT2",
		MaxUsageCount: 2,
	})
	require.Error(t, err)
	require.True(t, models.IsValidation(err))

	// The booking must not have been finalized.
	got, err := d.GetBookingByID(ctx, "bk-3")
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusDraft, got.Status)
}

func TestFinalizeSubmissionCancelledStillCounts(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	_, err := d.Bun.NewInsert().Model(&models.Coupon{
		Code: "ONCE", CouponType: models.CouponTypeDiscount,
		DiscountType: models.DiscountTypeFlatAmount, DiscountValue: 5,
		IsActive: true, MaxUsageCount: 1,
	}).Exec(ctx)
	require.NoError(t, err)

	seedBooking(t, d, "bk-1", models.BookingStatusCancelled, "ONCE", 1)

	next := seedBooking(t, d, "bk-2", models.BookingStatusDraft, "ONCE", 1)
	next.Status = models.BookingStatusSubmitted
	err = d.FinalizeSubmission(ctx, next, nil, SubmitGuard{CouponCode: "ONCE", MaxUsageCount: 1})
	require.Error(t, err)
	require.True(t, models.IsValidation(err))
}

func TestFinalizeSubmissionCapacityExceeded(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	_, err := d.Bun.NewInsert().Model(&models.TicketType{
		ID: "tt-1", EventID: "evt-1", Title: "General", Price: 100,
		IsPublished: true, MaxTicketsAvailable: 2,
	}).Exec(ctx)
	require.NoError(t, err)

	existing := seedBooking(t, d, "bk-1", models.BookingStatusSubmitted, "", 2)
	_, err = d.Bun.NewInsert().Model(&[]*models.Ticket{
		{ID: "tk-1", BookingID: existing.ID, EventID: "evt-1", TicketTypeID: "tt-1",
			AttendeeName: "A", Status: models.TicketStatusIssued, IssuedAt: time.Now()},
		{ID: "tk-2", BookingID: existing.ID, EventID: "evt-1", TicketTypeID: "tt-1",
			AttendeeName: "B", Status: models.TicketStatusIssued, IssuedAt: time.Now()},
	}).Exec(ctx)
	require.NoError(t, err)

	next := seedBooking(t, d, "bk-2", models.BookingStatusDraft, "", 1)
	next.Status = models.BookingStatusSubmitted
	err = d.FinalizeSubmission(ctx, next, []*models.Ticket{
		{ID: "tk-3", BookingID: "bk-2", EventID: "evt-1", TicketTypeID: "tt-1",
			AttendeeName: "C", Status: models.TicketStatusIssued, IssuedAt: time.Now()},
	}, SubmitGuard{
		Capacities: map[string]int{"tt-1": 2},
		Requested:  map[string]int{"tt-1": 1},
	})
	require.Error(t, err)
	require.True(t, models.IsValidation(err), "sold-out must be a validation failure")
}

func TestCancelFinalizedReleasesCapacity(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	booking := seedBooking(t, d, "bk-1", models.BookingStatusSubmitted, "", 1)
	_, err := d.Bun.NewInsert().Model(&models.Ticket{
		ID: "tk-1", BookingID: booking.ID, EventID: "evt-1", TicketTypeID: "tt-1",
		AttendeeName: "A", Status: models.TicketStatusIssued, IssuedAt: time.Now(),
	}).Exec(ctx)
	require.NoError(t, err)

	booking.Status = models.BookingStatusCancelled
	cancelled, err := d.CancelFinalized(ctx, booking)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Equal(t, models.TicketStatusCancelled, cancelled[0].Status)

	issued, err := ticketdb.CountIssued(ctx, d.Bun, "tt-1")
	require.NoError(t, err)
	require.Equal(t, 0, issued)

	got, err := d.GetBookingByID(ctx, "bk-1")
	require.NoError(t, err)
	require.Equal(t, models.BookingStatusCancelled, got.Status)
}

func TestFinalizeSubmissionFreeTicketQuotaMoved(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	_, err := d.Bun.NewInsert().Model(&models.Coupon{
		Code: "FREE3", CouponType: models.CouponTypeFreeTickets,
		EventID: "evt-1", IsActive: true,
		TicketTypeID: "tt-1", NumberOfFreeTickets: 3,
	}).Exec(ctx)
	require.NoError(t, err)

	// Two attendees already claimed under this coupon.
	seedBooking(t, d, "bk-1", models.BookingStatusSubmitted, "FREE3", 2)

	// This booking was priced assuming 2 free slots, but only 1 remains.
	next := seedBooking(t, d, "bk-2", models.BookingStatusDraft, "FREE3", 2)
	next.Status = models.BookingStatusSubmitted
	err = d.FinalizeSubmission(ctx, next, nil, SubmitGuard{
		CouponCode:          "FREE3",
		FreeTicketCoupon:    true,
		NumberOfFreeTickets: 3,
		PricedFreeSlots:     2,
	})
	require.Error(t, err)
	require.True(t, models.IsValidation(err))
}
