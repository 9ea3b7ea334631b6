package coupon_test

import (
	"context"
	"testing"

	"buzz/internal/coupon"
	"buzz/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockStore) TimesUsed(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) FreeTicketsClaimed(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

var testEvent = &models.Event{ID: "gophercon", Category: "Tech"}

func TestResolveUnknownCode(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "NOPE").Return(nil, models.ErrNotFound)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "NOPE", testEvent)

	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Invalid coupon code", res.Reason)
}

func TestResolveInactiveCoupon(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "OLD").Return(&models.Coupon{
		Code:       "OLD",
		CouponType: models.CouponTypeDiscount,
		IsActive:   false,
	}, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "OLD", testEvent)

	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Coupon is not active", res.Reason)
}

func TestResolveEventScope(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "SCOPED").Return(&models.Coupon{
		Code:       "SCOPED",
		CouponType: models.CouponTypeDiscount,
		IsActive:   true,
		EventID:    "other-event",
	}, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "SCOPED", testEvent)

	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Coupon is not valid for this event", res.Reason)
}

func TestResolveCategoryScope(t *testing.T) {
	store := new(MockStore)
	matching := &models.Coupon{
		Code:          "CAT",
		CouponType:    models.CouponTypeDiscount,
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 10,
		IsActive:      true,
		EventCategory: "Tech",
	}
	store.On("GetCoupon", mock.Anything, "CAT").Return(matching, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "CAT", testEvent)
	assert.NoError(t, err)
	assert.True(t, res.Valid)

	otherEvent := &models.Event{ID: "foodfest", Category: "Food"}
	res, err = coupon.NewResolver(store).Resolve(context.Background(), "CAT", otherEvent)
	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Coupon is not valid for this event category", res.Reason)
}

func TestResolveGlobalScope(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "ANY").Return(&models.Coupon{
		Code:          "ANY",
		CouponType:    models.CouponTypeDiscount,
		DiscountType:  models.DiscountTypeFlatAmount,
		DiscountValue: 50,
		IsActive:      true,
	}, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "ANY", testEvent)

	assert.NoError(t, err)
	assert.True(t, res.Valid)

	terms := res.Terms()
	assert.Equal(t, models.CouponTypeDiscount, terms.Type)
	assert.Equal(t, 50.0, terms.DiscountValue)
}

func TestResolveUsageLimitReached(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "LIMITED").Return(&models.Coupon{
		Code:          "LIMITED",
		CouponType:    models.CouponTypeDiscount,
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 10,
		IsActive:      true,
		MaxUsageCount: 2,
	}, nil)
	store.On("TimesUsed", mock.Anything, "LIMITED").Return(2, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "LIMITED", testEvent)

	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Coupon usage limit reached", res.Reason)
}

func TestResolveUnlimitedUsageSkipsCount(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "FOREVER").Return(&models.Coupon{
		Code:          "FOREVER",
		CouponType:    models.CouponTypeDiscount,
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 5,
		IsActive:      true,
		MaxUsageCount: 0,
	}, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "FOREVER", testEvent)

	assert.NoError(t, err)
	assert.True(t, res.Valid)
	store.AssertNotCalled(t, "TimesUsed", mock.Anything, mock.Anything)
}

func TestResolveFreeTicketsRemaining(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "SPEAKERS").Return(&models.Coupon{
		Code:                "SPEAKERS",
		CouponType:          models.CouponTypeFreeTickets,
		EventID:             "gophercon",
		TicketTypeID:        "vip",
		NumberOfFreeTickets: 5,
		IsActive:            true,
		FreeAddOns:          []*models.CouponFreeAddOn{{AddOnID: "tshirt"}},
	}, nil)
	store.On("FreeTicketsClaimed", mock.Anything, "SPEAKERS").Return(3, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "SPEAKERS", testEvent)

	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.FreeTicketsRemaining)

	terms := res.Terms()
	assert.Equal(t, "vip", terms.FreeTicketTypeID)
	assert.Equal(t, 2, terms.FreeSlots)
	assert.True(t, terms.FreeAddOnIDs["tshirt"])
}

func TestResolveFreeTicketsExhaustedStillValid(t *testing.T) {
	store := new(MockStore)
	store.On("GetCoupon", mock.Anything, "USEDUP").Return(&models.Coupon{
		Code:                "USEDUP",
		CouponType:          models.CouponTypeFreeTickets,
		EventID:             "gophercon",
		TicketTypeID:        "vip",
		NumberOfFreeTickets: 2,
		IsActive:            true,
	}, nil)
	store.On("FreeTicketsClaimed", mock.Anything, "USEDUP").Return(4, nil)

	res, err := coupon.NewResolver(store).Resolve(context.Background(), "USEDUP", testEvent)

	// Exhausted quota is not a rejection: attendees just pay full price.
	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.FreeTicketsRemaining)
}

func TestInvalidResolutionHasNoTerms(t *testing.T) {
	res := &coupon.Resolution{Valid: false, Reason: "Coupon is not active"}
	assert.Nil(t, res.Terms())
}
