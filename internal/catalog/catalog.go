// Package catalog resolves ticket-type and add-on prices for an event.
// Read-only; the booking service consumes its output as pricing line items.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"buzz/internal/models"

	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// GetEvent fetches an event or models.ErrNotFound.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := s.db.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
		}
		return nil, err
	}
	return &event, nil
}

// ResolveTicketType returns the ticket type if it belongs to the event and is
// published. Unpublished types fail with models.ErrUnavailable since new
// bookings may not use them.
func (s *Service) ResolveTicketType(ctx context.Context, eventID, ticketTypeID string) (*models.TicketType, error) {
	var tt models.TicketType
	err := s.db.NewSelect().
		Model(&tt).
		Where("id = ?", ticketTypeID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket type %s for event %s: %w", ticketTypeID, eventID, models.ErrNotFound)
		}
		return nil, err
	}
	if !tt.IsPublished {
		return nil, fmt.Errorf("ticket type %s: %w", tt.Title, models.ErrUnavailable)
	}
	return &tt, nil
}

// ResolveAddOns returns the enabled add-ons for the given IDs. A reference
// outside the event, or a disabled add-on, fails the whole lookup.
func (s *Service) ResolveAddOns(ctx context.Context, eventID string, addOnIDs []string) (map[string]*models.AddOn, error) {
	resolved := make(map[string]*models.AddOn, len(addOnIDs))
	if len(addOnIDs) == 0 {
		return resolved, nil
	}

	var addOns []*models.AddOn
	err := s.db.NewSelect().
		Model(&addOns).
		Where("event_id = ?", eventID).
		Where("id IN (?)", bun.In(addOnIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range addOns {
		resolved[a.ID] = a
	}
	for _, id := range addOnIDs {
		a, ok := resolved[id]
		if !ok {
			return nil, fmt.Errorf("add-on %s for event %s: %w", id, eventID, models.ErrNotFound)
		}
		if !a.Enabled {
			return nil, fmt.Errorf("add-on %s: %w", a.Title, models.ErrUnavailable)
		}
	}
	return resolved, nil
}
