package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"buzz/internal/booking"
	"buzz/internal/catalog"
	"buzz/internal/coupon"
	coupondb "buzz/internal/coupon/db"
	"buzz/internal/logger"
	"buzz/internal/models"
	"buzz/internal/report"
	"buzz/internal/tickets"
	"buzz/internal/utils"
)

type Handler struct {
	BookingService *booking.Service
	TicketService  *tickets.Service
	ReportService  *report.Service
	Catalog        *catalog.Service
	Coupons        *coupon.Resolver
	CouponStore    *coupondb.DB
	Logger         *logger.Logger
}

func NewHandler(bookingService *booking.Service, ticketService *tickets.Service,
	reportService *report.Service, cat *catalog.Service, resolver *coupon.Resolver,
	couponStore *coupondb.DB, log *logger.Logger) *Handler {
	return &Handler{
		BookingService: bookingService,
		TicketService:  ticketService,
		ReportService:  reportService,
		Catalog:        cat,
		Coupons:        resolver,
		CouponStore:    couponStore,
		Logger:         log,
	}
}

// CreateBooking handles POST /api/bookings.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.ProcessBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: decode request: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	req.UserID = userIDFromContext(r)

	resp, _, err := h.BookingService.ProcessBooking(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		h.writeError(w, "Could not create booking", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", resp))
}

// GetBooking handles GET /api/bookings/{bookingID}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	b, err := h.BookingService.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "Booking not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// SubmitBooking handles POST /api/bookings/{bookingID}/submit. Offline
// bookings are refused here; they go through approve instead.
func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	if err := h.BookingService.SubmitBooking(r.Context(), bookingID); err != nil {
		h.writeError(w, "Could not submit booking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking submitted", nil))
}

// ApproveBooking handles POST /api/bookings/{bookingID}/approve.
func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	h.Logger.Info("API", fmt.Sprintf("ApproveBooking: bookingID=%s", bookingID))

	if err := h.BookingService.ApproveBooking(r.Context(), bookingID); err != nil {
		h.writeError(w, "Could not approve booking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking approved", nil))
}

// RejectBooking handles POST /api/bookings/{bookingID}/reject.
func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	h.Logger.Info("API", fmt.Sprintf("RejectBooking: bookingID=%s", bookingID))

	if err := h.BookingService.RejectBooking(r.Context(), bookingID); err != nil {
		h.writeError(w, "Could not reject booking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking rejected", nil))
}

// CreatePaymentIntent handles POST /api/bookings/{bookingID}/payment-intent.
// Retry path for a submitted booking whose intent creation failed at booking
// time; an existing usable intent is returned as-is.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	b, err := h.BookingService.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "Booking not found", err)
		return
	}

	intent, err := h.BookingService.CreatePaymentIntent(r.Context(), b)
	if err != nil {
		h.writeError(w, "Could not create payment intent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment intent ready",
		map[string]string{"client_secret": intent.ClientSecret}))
}

// CancelBooking handles DELETE /api/bookings/{bookingID}.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingID=%s", bookingID))

	if err := h.BookingService.CancelBooking(r.Context(), bookingID); err != nil {
		h.writeError(w, "Could not cancel booking", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateCouponResponse struct {
	Valid            bool    `json:"valid"`
	CouponType       string  `json:"coupon_type,omitempty"`
	DiscountType     string  `json:"discount_type,omitempty"`
	DiscountValue    float64 `json:"discount_value,omitempty"`
	RemainingTickets *int    `json:"remaining_tickets,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// ValidateCoupon handles GET /api/coupons/validate?code=&event=.
// Read-only: it reports what the coupon would do without claiming anything.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	eventID := r.URL.Query().Get("event")
	if code == "" || eventID == "" {
		h.writeJSON(w, http.StatusBadRequest, validateCouponResponse{
			Valid: false, Error: "code and event are required",
		})
		return
	}

	event, err := h.Catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "Event not found", err)
		return
	}

	resolution, err := h.Coupons.Resolve(r.Context(), code, event)
	if err != nil {
		h.writeError(w, "Could not validate coupon", err)
		return
	}

	if !resolution.Valid {
		h.writeJSON(w, http.StatusOK, validateCouponResponse{Valid: false, Error: resolution.Reason})
		return
	}

	resp := validateCouponResponse{
		Valid:      true,
		CouponType: resolution.Coupon.CouponType,
	}
	switch resolution.Coupon.CouponType {
	case models.CouponTypeDiscount:
		resp.DiscountType = resolution.Coupon.DiscountType
		resp.DiscountValue = resolution.Coupon.DiscountValue
	case models.CouponTypeFreeTickets:
		remaining := resolution.FreeTicketsRemaining
		resp.RemainingTickets = &remaining
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CreateCoupon handles POST /api/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var c models.Coupon
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	if err := h.CouponStore.SaveCoupon(r.Context(), &c); err != nil {
		h.writeError(w, "Could not create coupon", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Coupon created", map[string]string{"code": c.Code}))
}

// Registrations handles GET /api/events/{eventID}/registrations.
func (h *Handler) Registrations(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	rep, err := h.ReportService.Registrations(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "Could not build registrations report", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// GetTicket handles GET /api/tickets/{ticketID}.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.writeError(w, "Ticket not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ticket)
}

// CheckinTicket handles POST /api/tickets/{ticketID}/checkin.
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.TicketService.Checkin(r.Context(), ticketID)
	if err != nil {
		h.writeError(w, "Could not check in ticket", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Ticket checked in", ticket))
}

// StripeWebhook handles POST /api/payments/webhook.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.BookingService.HandleStripeWebhook(r); err != nil {
		var webhookErr *booking.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", webhookErr.InternalError)
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		h.Logger.Error("WEBHOOK", err.Error())
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("encode response: %v", err))
	}
}

// writeError maps domain errors onto HTTP statuses: validation failures are
// the client's problem, missing references are 404, sold-out or unpublished
// inventory is 409.
func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnavailable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", message, err))
	}
	h.writeJSON(w, status, utils.ErrorResponse(message, err.Error()))
}
