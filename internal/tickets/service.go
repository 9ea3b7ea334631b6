package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"buzz/internal/logger"
	"buzz/internal/models"
	"buzz/internal/tickets/qr"
)

type TicketDBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	TicketsForBooking(ctx context.Context, bookingID string) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
}

type Service struct {
	DB     TicketDBLayer
	QR     *qr.Generator
	Logger *logger.Logger
}

func NewService(db TicketDBLayer, qrGen *qr.Generator, log *logger.Logger) *Service {
	return &Service{DB: db, QR: qrGen, Logger: log}
}

// BuildTickets materializes one ticket per attendee of a booking, with an
// encrypted QR code each. The caller persists them inside its own
// transaction so issuance and capacity checks commit together.
func (s *Service) BuildTickets(booking *models.Booking, prices map[string]float64) ([]*models.Ticket, error) {
	tickets := make([]*models.Ticket, 0, len(booking.Attendees))
	now := time.Now()

	for _, attendee := range booking.Attendees {
		ticket := &models.Ticket{
			ID:              uuid.New().String(),
			BookingID:       booking.ID,
			EventID:         booking.EventID,
			TicketTypeID:    attendee.TicketTypeID,
			AttendeeName:    attendee.FullName,
			AttendeeEmail:   attendee.Email,
			CouponCode:      booking.CouponCode,
			PriceAtPurchase: prices[attendee.TicketTypeID],
			Status:          models.TicketStatusIssued,
			IssuedAt:        now,
		}

		qrBytes, err := s.QR.GenerateEncryptedQR(*ticket)
		if err != nil {
			return nil, fmt.Errorf("generate QR for attendee %s: %w", attendee.FullName, err)
		}
		ticket.QRCode = qrBytes
		tickets = append(tickets, ticket)
	}

	return tickets, nil
}

func (s *Service) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, id)
}

func (s *Service) TicketsForBooking(ctx context.Context, bookingID string) ([]models.Ticket, error) {
	return s.DB.TicketsForBooking(ctx, bookingID)
}

// Checkin marks a ticket as checked in. Cancelled tickets are refused.
func (s *Service) Checkin(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketStatusCancelled {
		return nil, models.Validationf("ticket %s is cancelled", id)
	}
	if ticket.CheckedIn {
		return nil, models.Validationf("ticket %s is already checked in", id)
	}

	ticket.CheckedIn = true
	ticket.CheckedInTime = time.Now()
	if err := s.DB.UpdateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("update ticket: %w", err)
	}

	s.Logger.LogTicket("CHECKIN", ticket.ID, fmt.Sprintf("checked in for event %s", ticket.EventID))
	return ticket, nil
}

// CheckinFromQR decrypts a scanned QR payload and checks the referenced
// ticket in.
func (s *Service) CheckinFromQR(ctx context.Context, encoded string) (*models.Ticket, error) {
	payload, err := s.QR.DecryptPayload(encoded)
	if err != nil {
		return nil, models.Validationf("unreadable QR payload")
	}
	return s.Checkin(ctx, payload.TicketID)
}
