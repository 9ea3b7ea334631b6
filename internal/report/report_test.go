package report

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"buzz/internal/models"
)

func setupTestDB(t *testing.T) *Service {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range []any{
		(*models.Event)(nil),
		(*models.AddOn)(nil),
		(*models.Booking)(nil),
		(*models.Attendee)(nil),
		(*models.AttendeeAddOn)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	seed := []any{
		&models.Event{ID: "evt-1", Title: "GopherConf"},
		&models.AddOn{ID: "ao-shirt", EventID: "evt-1", Title: "T-Shirt", Enabled: true, Options: "S\nM\nL"},
		&models.AddOn{ID: "ao-dinner", EventID: "evt-1", Title: "Dinner", Enabled: true},

		&models.Booking{ID: "bk-1", EventID: "evt-1", Status: models.BookingStatusSubmitted,
			CouponCode: "SAVE10", CreatedAt: time.Now().Add(-time.Hour)},
		&models.Attendee{ID: "att-1", BookingID: "bk-1", FullName: "Ada", Email: "ada@example.com", TicketTypeID: "tt-1"},
		&models.AttendeeAddOn{AttendeeID: "att-1", AddOnID: "ao-shirt", Value: "M"},
		&models.AttendeeAddOn{AttendeeID: "att-1", AddOnID: "ao-dinner"},

		&models.Booking{ID: "bk-2", EventID: "evt-1", Status: models.BookingStatusApproved, CreatedAt: time.Now()},
		&models.Attendee{ID: "att-2", BookingID: "bk-2", FullName: "Grace", Email: "grace@example.com", TicketTypeID: "tt-2"},

		// Draft and cancelled bookings never show up.
		&models.Booking{ID: "bk-3", EventID: "evt-1", Status: models.BookingStatusDraft, CreatedAt: time.Now()},
		&models.Attendee{ID: "att-3", BookingID: "bk-3", FullName: "Nobody", TicketTypeID: "tt-1"},
		&models.Booking{ID: "bk-4", EventID: "evt-1", Status: models.BookingStatusCancelled, CreatedAt: time.Now()},
		&models.Attendee{ID: "att-4", BookingID: "bk-4", FullName: "Gone", TicketTypeID: "tt-1"},
	}
	for _, row := range seed {
		_, err := bunDB.NewInsert().Model(row).Exec(ctx)
		require.NoError(t, err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return NewService(bunDB)
}

func TestRegistrationsColumnsAndRows(t *testing.T) {
	svc := setupTestDB(t)

	report, err := svc.Registrations(context.Background(), "evt-1")
	require.NoError(t, err)

	fieldnames := make([]string, 0, len(report.Columns))
	for _, col := range report.Columns {
		fieldnames = append(fieldnames, col.Fieldname)
	}
	// Add-on columns follow the base ones, ordered by title.
	assert.Equal(t, []string{
		"booking", "booking_status", "full_name", "email", "ticket_type", "coupon_code",
		"add_on_ao-dinner", "add_on_ao-shirt",
	}, fieldnames)

	require.Len(t, report.Rows, 2)

	ada := report.Rows[0]
	assert.Equal(t, "bk-1", ada["booking"])
	assert.Equal(t, "Ada", ada["full_name"])
	assert.Equal(t, "SAVE10", ada["coupon_code"])
	assert.Equal(t, "M", ada["add_on_ao-shirt"])
	assert.Equal(t, "Yes", ada["add_on_ao-dinner"], "optionless add-on selection reads Yes")

	grace := report.Rows[1]
	assert.Equal(t, "Grace", grace["full_name"])
	assert.Equal(t, "", grace["add_on_ao-shirt"], "unselected add-on is an empty cell")
}

func TestRegistrationsUnknownEvent(t *testing.T) {
	svc := setupTestDB(t)

	_, err := svc.Registrations(context.Background(), "nope")
	require.ErrorIs(t, err, models.ErrNotFound)
}
