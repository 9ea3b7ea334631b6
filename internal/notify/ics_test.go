package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"buzz/internal/models"
)

func TestBuildICS(t *testing.T) {
	ics := BuildICS(&models.Event{
		ID:        "evt-1",
		Title:     "GopherConf; Day 1",
		Venue:     "Town Hall",
		StartDate: time.Date(2026, 9, 12, 9, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, ics, "BEGIN:VCALENDAR\r\n")
	assert.Contains(t, ics, "UID:evt-1@buzz\r\n")
	assert.Contains(t, ics, "DTSTART:20260912T090000Z\r\n")
	assert.Contains(t, ics, "DTEND:20260912T180000Z\r\n")
	assert.Contains(t, ics, "SUMMARY:GopherConf\\; Day 1\r\n")
	assert.Contains(t, ics, "LOCATION:Town Hall\r\n")
	assert.Contains(t, ics, "END:VCALENDAR\r\n")
}

func TestBuildICSOmitsEmptyFields(t *testing.T) {
	ics := BuildICS(&models.Event{
		ID:        "evt-2",
		Title:     "Meetup",
		StartDate: time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC),
	})

	assert.NotContains(t, ics, "DTEND")
	assert.NotContains(t, ics, "LOCATION")
}
