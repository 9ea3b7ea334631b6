package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"buzz/internal/models"
)

// InitStripe sets the API key for the package-level Stripe bindings.
func InitStripe(secretKey string) {
	stripe.Key = secretKey
}

func stripeEnabled() bool {
	return stripe.Key != ""
}

// amountInCents rounds instead of truncating: 19.99 is 1998.999... in
// float64 arithmetic.
func amountInCents(total float64) int64 {
	return int64(math.Round(total * 100))
}

// CreatePaymentIntent opens a Stripe payment intent for a draft booking and
// stores its ID on the booking so the webhook can find it later. If the
// booking already holds a usable intent, that one is returned.
func (s *Service) CreatePaymentIntent(ctx context.Context, booking *models.Booking) (*stripe.PaymentIntent, error) {
	if booking.Status == models.BookingStatusCancelled {
		return nil, models.Validationf("booking %s is cancelled", booking.ID)
	}
	if booking.PaymentStatus == models.PaymentStatusPaid {
		return nil, models.Validationf("booking %s is already paid", booking.ID)
	}

	if booking.PaymentIntentID != "" {
		intent, err := paymentintent.Get(booking.PaymentIntentID, nil)
		if err != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("retrieve payment intent %s: %v", booking.PaymentIntentID, err))
		} else if intent.Status != stripe.PaymentIntentStatusCanceled && intent.Status != stripe.PaymentIntentStatusSucceeded {
			return intent, nil
		}
	}

	currency := s.StripeCurrency
	if currency == "" {
		currency = "usd"
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents(booking.TotalAmount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", booking.ID)

	intent, err := paymentintent.New(params)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("create payment intent for booking %s: %v", booking.ID, err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	booking.PaymentIntentID = intent.ID
	if err := s.DB.UpdateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("store payment intent id: %w", err)
	}

	s.Logger.LogBooking("PAYMENT", booking.ID, fmt.Sprintf("payment intent %s for %.2f %s",
		intent.ID, booking.TotalAmount, currency))
	return intent, nil
}

// WebhookError distinguishes what can be told to Stripe from what belongs in
// the logs.
type WebhookError struct {
	StatusCode    int
	PublicError   string
	InternalError string
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook verifies and processes a Stripe event. A succeeded
// payment submits the booking; a failed one leaves it in draft.
func (s *Service) HandleStripeWebhook(r *http.Request) error {
	if s.StripeWebhookSecret == "" {
		return &WebhookError{
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("read webhook payload: %v", err),
		}
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.StripeWebhookSecret, opts)
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("verify webhook signature: %v", err),
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("processing stripe event %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("unmarshal payment intent: %v", err),
			}
		}
		if err := s.MarkPaidByIntent(r.Context(), intent.ID); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("finalize booking for intent %s: %v", intent.ID, err),
			}
		}

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return &WebhookError{
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("unmarshal payment intent: %v", err),
			}
		}
		// The booking stays in draft; the customer can retry payment.
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("payment failed for intent %s (booking %s)",
			intent.ID, intent.Metadata["booking_id"]))

	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("unhandled event type %s", event.Type))
	}

	return nil
}
