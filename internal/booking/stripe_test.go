package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzz/internal/models"
)

func TestAmountInCents(t *testing.T) {
	assert.Equal(t, int64(1999), amountInCents(19.99))
	assert.Equal(t, int64(10000), amountInCents(100))
	assert.Equal(t, int64(0), amountInCents(0))
	assert.Equal(t, int64(1), amountInCents(0.005))
}

func TestCreatePaymentIntentRefusesCancelled(t *testing.T) {
	svc := newTestService(newMockDB(), paidTicketCatalog(), &mockKafka{})

	_, err := svc.CreatePaymentIntent(context.Background(), &models.Booking{
		ID: "bk-1", Status: models.BookingStatusCancelled,
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCreatePaymentIntentRefusesPaid(t *testing.T) {
	svc := newTestService(newMockDB(), paidTicketCatalog(), &mockKafka{})

	_, err := svc.CreatePaymentIntent(context.Background(), &models.Booking{
		ID: "bk-1", Status: models.BookingStatusSubmitted, PaymentStatus: models.PaymentStatusPaid,
	})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}
