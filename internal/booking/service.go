package booking

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"buzz/internal/booking/db"
	"buzz/internal/coupon"
	"buzz/internal/logger"
	"buzz/internal/models"
	"buzz/internal/pricing"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error)
	IssuedCount(ctx context.Context, ticketTypeID string) (int, error)
	FinalizeSubmission(ctx context.Context, booking *models.Booking, tickets []*models.Ticket, guard db.SubmitGuard) error
	CancelFinalized(ctx context.Context, booking *models.Booking) ([]models.Ticket, error)
}

type Catalog interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ResolveTicketType(ctx context.Context, eventID, ticketTypeID string) (*models.TicketType, error)
	ResolveAddOns(ctx context.Context, eventID string, addOnIDs []string) (map[string]*models.AddOn, error)
}

type CouponResolver interface {
	Resolve(ctx context.Context, code string, event *models.Event) (*coupon.Resolution, error)
}

type RedisLock interface {
	LockClaims(ticketTypeIDs []string, bookingID string) (bool, error)
	UnlockClaims(ticketTypeIDs []string, bookingID string) error
}

type KafkaPublisher interface {
	Publish(topic, key string, payload any) error
}

type TicketBuilder interface {
	BuildTickets(booking *models.Booking, prices map[string]float64) ([]*models.Ticket, error)
}

type Notifier interface {
	SendTicketEmail(event *models.Event, ticket models.Ticket) error
	SendCancellationEmail(event *models.Event, ticket models.Ticket) error
}

type Service struct {
	DB      DBLayer
	Catalog Catalog
	Coupons CouponResolver
	Redis   RedisLock
	Kafka   KafkaPublisher
	Tickets TicketBuilder
	Mailer  Notifier
	Logger  *logger.Logger

	// Topic names are injected so tests can assert on publishes without
	// importing the kafka package.
	Topics Topics

	// Stripe settings; empty Currency falls back to "usd".
	StripeCurrency      string
	StripeWebhookSecret string
}

type Topics struct {
	BookingSubmitted string
	BookingApproved  string
	BookingRejected  string
	BookingCancelled string
	TicketIssued     string
	TicketCancelled  string
}

func NewService(dbl DBLayer, catalog Catalog, coupons CouponResolver, redis RedisLock,
	kafka KafkaPublisher, tickets TicketBuilder, mailer Notifier, log *logger.Logger, topics Topics) *Service {
	return &Service{
		DB: dbl, Catalog: catalog, Coupons: coupons, Redis: redis,
		Kafka: kafka, Tickets: tickets, Mailer: mailer, Logger: log, Topics: topics,
	}
}

type AddOnSelection struct {
	AddOnID string `json:"add_on"`
	Value   string `json:"value,omitempty"`
}

type AttendeeRequest struct {
	FullName     string           `json:"full_name"`
	Email        string           `json:"email"`
	TicketTypeID string           `json:"ticket_type"`
	AddOns       []AddOnSelection `json:"add_ons,omitempty"`
}

type ProcessBookingRequest struct {
	EventID       string            `json:"event"`
	UserID        string            `json:"-"`
	Attendees     []AttendeeRequest `json:"attendees"`
	CouponCode    string            `json:"coupon_code,omitempty"`
	UTMParameters map[string]string `json:"utm_parameters,omitempty"`
	IsOffline     bool              `json:"is_offline,omitempty"`
}

type ProcessBookingResponse struct {
	BookingName     string  `json:"booking_name"`
	OfflinePayment  bool    `json:"offline_payment,omitempty"`
	TotalAmount     float64 `json:"total_amount"`
	PaymentRequired bool    `json:"payment_required"`
	ClientSecret    string  `json:"client_secret,omitempty"`
}

// quote is everything a booking's money depends on, resolved in one pass.
type quote struct {
	event      *models.Event
	resolution *coupon.Resolution
	amounts    pricing.Amounts
	// prices maps ticket type IDs to their unit price at booking time.
	prices map[string]float64
	// capacities maps capacity-limited ticket type IDs to max available.
	capacities map[string]int
	// requested maps ticket type IDs to attendee counts.
	requested map[string]int
}

// ProcessBooking creates a booking from an attendee list: resolves prices and
// coupon terms, computes the amounts, and either routes it to offline
// verification, submits it directly when nothing is due, or leaves it in
// draft awaiting payment.
func (s *Service) ProcessBooking(ctx context.Context, req ProcessBookingRequest) (*ProcessBookingResponse, *models.Booking, error) {
	if len(req.Attendees) == 0 {
		return nil, nil, models.Validationf("a booking needs at least one attendee")
	}
	for _, a := range req.Attendees {
		if a.FullName == "" || a.TicketTypeID == "" {
			return nil, nil, models.Validationf("every attendee needs a name and a ticket type")
		}
	}

	event, err := s.Catalog.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, nil, err
	}
	if req.IsOffline && !event.EnableOfflinePayments {
		return nil, nil, models.Validationf("offline payments are not enabled for %s", event.Title)
	}

	booking := &models.Booking{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		UserID:        req.UserID,
		CouponCode:    req.CouponCode,
		Status:        models.BookingStatusDraft,
		PaymentStatus: models.PaymentStatusUnpaid,
		CreatedAt:     time.Now(),
	}
	for _, a := range req.Attendees {
		attendee := &models.Attendee{
			ID:           uuid.New().String(),
			BookingID:    booking.ID,
			FullName:     a.FullName,
			Email:        a.Email,
			TicketTypeID: a.TicketTypeID,
		}
		for _, sel := range a.AddOns {
			attendee.AddOns = append(attendee.AddOns, &models.AttendeeAddOn{
				AttendeeID: attendee.ID,
				AddOnID:    sel.AddOnID,
				Value:      sel.Value,
			})
		}
		booking.Attendees = append(booking.Attendees, attendee)
	}
	for name, value := range req.UTMParameters {
		booking.UTMParameters = append(booking.UTMParameters, &models.UTMParameter{
			BookingID: booking.ID,
			Name:      name,
			Value:     value,
		})
	}

	q, err := s.quoteBooking(ctx, event, booking)
	if err != nil {
		return nil, nil, err
	}
	applyAmounts(booking, q.amounts)

	if err := s.DB.CreateBooking(ctx, booking); err != nil {
		return nil, nil, fmt.Errorf("create booking: %w", err)
	}
	s.Logger.LogBooking("CREATE", booking.ID, fmt.Sprintf("event %s, %d attendees, total %.2f",
		event.ID, len(booking.Attendees), booking.TotalAmount))

	if req.IsOffline {
		booking.Status = models.BookingStatusApprovalPending
		booking.PaymentStatus = models.PaymentStatusVerificationPending
		booking.PaymentMethod = models.PaymentMethodOffline
		if err := s.DB.UpdateBooking(ctx, booking); err != nil {
			return nil, nil, fmt.Errorf("mark booking for verification: %w", err)
		}
		s.Logger.LogBooking("OFFLINE", booking.ID, "awaiting payment verification")
		return &ProcessBookingResponse{
			BookingName:    booking.ID,
			OfflinePayment: true,
			TotalAmount:    booking.TotalAmount,
		}, booking, nil
	}

	if err := s.finalize(ctx, booking, models.BookingStatusSubmitted); err != nil {
		return nil, nil, err
	}

	resp := &ProcessBookingResponse{
		BookingName: booking.ID,
		TotalAmount: booking.TotalAmount,
	}
	if booking.TotalAmount > 0 {
		resp.PaymentRequired = true
		if stripeEnabled() {
			// The booking is already submitted with tickets issued, so an
			// intent failure must not fail the request. The client retries
			// through the payment-intent endpoint.
			intent, err := s.CreatePaymentIntent(ctx, booking)
			if err != nil {
				s.Logger.Error("PAYMENT", fmt.Sprintf("create payment intent for %s: %v", booking.ID, err))
			} else {
				resp.ClientSecret = intent.ClientSecret
			}
		} else {
			s.Logger.Warn("PAYMENT", "Stripe not configured, booking awaits manual payment handling")
		}
	}
	return resp, booking, nil
}

// SubmitBooking finalizes a draft booking. Offline bookings must go through
// approval instead.
func (s *Service) SubmitBooking(ctx context.Context, id string) error {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if booking.Finalized() {
		return models.Validationf("booking %s is already %s", id, booking.Status)
	}
	if booking.PaymentMethod == models.PaymentMethodOffline {
		return models.Validationf("offline payment bookings must be approved, not submitted directly")
	}
	if booking.Status == models.BookingStatusRejected {
		return models.Validationf("booking %s was rejected", id)
	}
	return s.finalize(ctx, booking, models.BookingStatusSubmitted)
}

// ApproveBooking confirms an offline payment was received and finalizes the
// booking, issuing its tickets.
func (s *Service) ApproveBooking(ctx context.Context, id string) error {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusApprovalPending {
		return models.Validationf("booking %s is not awaiting approval", id)
	}
	return s.finalize(ctx, booking, models.BookingStatusApproved)
}

// RejectBooking turns down an offline payment claim. The booking keeps its
// data but never issues tickets and stops counting toward anything.
func (s *Service) RejectBooking(ctx context.Context, id string) error {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusApprovalPending {
		return models.Validationf("booking %s is not awaiting approval", id)
	}

	booking.Status = models.BookingStatusRejected
	booking.PaymentStatus = models.PaymentStatusUnpaid
	if err := s.DB.UpdateBooking(ctx, booking); err != nil {
		return fmt.Errorf("reject booking: %w", err)
	}
	s.Logger.LogBooking("REJECT", booking.ID, "offline payment rejected")
	s.publish(s.Topics.BookingRejected, booking.ID, booking)
	return nil
}

// CancelBooking voids a finalized booking and cancels its issued tickets.
// Capacity is released; coupon usage counting follows the configured policy.
func (s *Service) CancelBooking(ctx context.Context, id string) error {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status == models.BookingStatusCancelled {
		return models.Validationf("booking %s is already cancelled", id)
	}
	if !booking.Finalized() {
		return models.Validationf("only submitted or approved bookings can be cancelled")
	}

	booking.Status = models.BookingStatusCancelled
	cancelled, err := s.DB.CancelFinalized(ctx, booking)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	s.Logger.LogBooking("CANCEL", booking.ID, fmt.Sprintf("%d tickets cancelled", len(cancelled)))

	s.publish(s.Topics.BookingCancelled, booking.ID, booking)
	for _, ticket := range cancelled {
		s.publish(s.Topics.TicketCancelled, ticket.ID, ticket)
	}

	if s.Mailer != nil && len(cancelled) > 0 {
		event, err := s.Catalog.GetEvent(ctx, booking.EventID)
		if err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("event lookup for cancellation emails: %v", err))
			return nil
		}
		go s.sendCancellationEmails(event, cancelled)
	}
	return nil
}

// MarkPaidByIntent is the Stripe webhook path: the payment for a draft
// booking succeeded, so submit it. Idempotent for replayed events.
func (s *Service) MarkPaidByIntent(ctx context.Context, intentID string) error {
	booking, err := s.DB.GetBookingByPaymentIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if booking.Status == models.BookingStatusCancelled {
		return models.Validationf("booking %s was cancelled before payment completed", booking.ID)
	}
	booking.PaymentStatus = models.PaymentStatusPaid
	if booking.Finalized() {
		return s.DB.UpdateBooking(ctx, booking)
	}
	return s.finalize(ctx, booking, models.BookingStatusSubmitted)
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.DB.GetBookingByID(ctx, id)
}

// finalize runs the submit pipeline: re-quote, claim-lock capacity-limited
// ticket types, then commit status, amounts and tickets in one transaction
// that re-checks coupon and capacity limits under row locks.
func (s *Service) finalize(ctx context.Context, booking *models.Booking, status string) error {
	event, err := s.Catalog.GetEvent(ctx, booking.EventID)
	if err != nil {
		return err
	}

	q, err := s.quoteBooking(ctx, event, booking)
	if err != nil {
		return err
	}
	applyAmounts(booking, q.amounts)
	booking.Status = status
	// Approval confirms an offline payment; free bookings have nothing to
	// pay. Everything else stays Unpaid until the payment webhook.
	if status == models.BookingStatusApproved || booking.TotalAmount == 0 {
		booking.PaymentStatus = models.PaymentStatusPaid
	} else if booking.PaymentStatus != models.PaymentStatusPaid {
		booking.PaymentStatus = models.PaymentStatusUnpaid
	}

	tickets, err := s.Tickets.BuildTickets(booking, q.prices)
	if err != nil {
		return fmt.Errorf("build tickets: %w", err)
	}

	limited := make([]string, 0, len(q.capacities))
	for id := range q.capacities {
		limited = append(limited, id)
	}
	slices.Sort(limited)
	if len(limited) > 0 && s.Redis != nil {
		ok, err := s.Redis.LockClaims(limited, booking.ID)
		if err != nil {
			return fmt.Errorf("claim lock: %w", err)
		}
		if !ok {
			return models.Validationf("tickets are being claimed by another booking, please retry")
		}
		defer func() {
			if err := s.Redis.UnlockClaims(limited, booking.ID); err != nil {
				s.Logger.Error("BOOKING", fmt.Sprintf("release claim locks for %s: %v", booking.ID, err))
			}
		}()
	}

	guard := db.SubmitGuard{
		Capacities: q.capacities,
		Requested:  q.requested,
	}
	if q.resolution != nil {
		guard.CouponCode = q.resolution.Coupon.Code
		guard.MaxUsageCount = q.resolution.Coupon.MaxUsageCount
		if q.resolution.Coupon.CouponType == models.CouponTypeFreeTickets {
			guard.FreeTicketCoupon = true
			guard.NumberOfFreeTickets = q.resolution.Coupon.NumberOfFreeTickets
			guard.PricedFreeSlots = q.amounts.FreeTicketsClaimed
		}
	}

	if err := s.DB.FinalizeSubmission(ctx, booking, tickets, guard); err != nil {
		return err
	}
	s.Logger.LogBooking("SUBMIT", booking.ID, fmt.Sprintf("%s with %d tickets, total %.2f",
		status, len(tickets), booking.TotalAmount))

	topic := s.Topics.BookingSubmitted
	if status == models.BookingStatusApproved {
		topic = s.Topics.BookingApproved
	}
	s.publish(topic, booking.ID, booking)
	for _, ticket := range tickets {
		s.publish(s.Topics.TicketIssued, ticket.ID, ticket)
	}

	if s.Mailer != nil {
		go s.sendTicketEmails(event, tickets)
	}
	return nil
}

// quoteBooking resolves every price the booking depends on and computes its
// amounts. Used both at creation and again at submit time, so a booking that
// sat in draft while prices or coupon quotas moved is re-priced consistently.
func (s *Service) quoteBooking(ctx context.Context, event *models.Event, booking *models.Booking) (*quote, error) {
	q := &quote{
		event:      event,
		prices:     make(map[string]float64),
		capacities: make(map[string]int),
		requested:  make(map[string]int),
	}

	addOnIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, attendee := range booking.Attendees {
		for _, sel := range attendee.AddOns {
			if !seen[sel.AddOnID] {
				seen[sel.AddOnID] = true
				addOnIDs = append(addOnIDs, sel.AddOnID)
			}
		}
	}
	addOns, err := s.Catalog.ResolveAddOns(ctx, event.ID, addOnIDs)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, 0, len(booking.Attendees))
	for _, attendee := range booking.Attendees {
		if _, ok := q.prices[attendee.TicketTypeID]; !ok {
			tt, err := s.Catalog.ResolveTicketType(ctx, event.ID, attendee.TicketTypeID)
			if err != nil {
				return nil, err
			}
			q.prices[tt.ID] = tt.Price
			if tt.MaxTicketsAvailable > 0 {
				q.capacities[tt.ID] = tt.MaxTicketsAvailable
			}
		}
		q.requested[attendee.TicketTypeID]++

		line := pricing.Line{
			TicketTypeID: attendee.TicketTypeID,
			TicketPrice:  q.prices[attendee.TicketTypeID],
		}
		for _, sel := range attendee.AddOns {
			addOn := addOns[sel.AddOnID]
			if options := addOn.OptionList(); len(options) > 0 && !slices.Contains(options, sel.Value) {
				return nil, models.Validationf("%q is not an option for add-on %s", sel.Value, addOn.Title)
			}
			line.AddOns = append(line.AddOns, pricing.AddOnCharge{
				AddOnID: sel.AddOnID,
				Price:   addOn.Price,
			})
		}
		lines = append(lines, line)
	}

	// Advisory capacity check so a sold-out request is refused at the door
	// rather than at finalize. The transactional re-check under row locks
	// stays authoritative.
	limited := make([]string, 0, len(q.capacities))
	for id := range q.capacities {
		limited = append(limited, id)
	}
	slices.Sort(limited)
	for _, id := range limited {
		issued, err := s.DB.IssuedCount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count issued tickets: %w", err)
		}
		if issued+q.requested[id] > q.capacities[id] {
			return nil, models.Validationf("ticket type %s is sold out", id)
		}
	}

	var terms *pricing.CouponTerms
	if booking.CouponCode != "" {
		resolution, err := s.Coupons.Resolve(ctx, booking.CouponCode, event)
		if err != nil {
			return nil, fmt.Errorf("resolve coupon: %w", err)
		}
		if !resolution.Valid {
			return nil, models.Validationf("%s", resolution.Reason)
		}
		q.resolution = resolution
		terms = resolution.Terms()
	}

	q.amounts = pricing.Calculate(lines, terms, pricing.TaxConfig{
		ApplyTax:      event.ApplyTax,
		TaxInclusive:  event.TaxInclusive,
		TaxLabel:      event.TaxLabel,
		TaxPercentage: event.TaxPercentage,
	})
	return q, nil
}

func applyAmounts(booking *models.Booking, amounts pricing.Amounts) {
	booking.NetAmount = amounts.Net
	booking.DiscountAmount = amounts.Discount
	booking.TaxAmount = amounts.Tax
	booking.TotalAmount = amounts.Total
	booking.TaxLabel = amounts.TaxLabel
	booking.TaxPercentage = amounts.TaxPercentage
}

func (s *Service) publish(topic, key string, payload any) {
	if s.Kafka == nil || topic == "" {
		return
	}
	if err := s.Kafka.Publish(topic, key, payload); err != nil {
		s.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("failed for %s: %v", key, err))
	}
}

func (s *Service) sendTicketEmails(event *models.Event, tickets []*models.Ticket) {
	for _, ticket := range tickets {
		if err := s.Mailer.SendTicketEmail(event, *ticket); err != nil {
			s.Logger.Error("EMAIL", fmt.Sprintf("ticket email for %s: %v", ticket.ID, err))
		}
	}
}

func (s *Service) sendCancellationEmails(event *models.Event, tickets []models.Ticket) {
	for _, ticket := range tickets {
		if err := s.Mailer.SendCancellationEmail(event, ticket); err != nil {
			s.Logger.Error("EMAIL", fmt.Sprintf("cancellation email for %s: %v", ticket.ID, err))
		}
	}
}
