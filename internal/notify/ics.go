package notify

import (
	"fmt"
	"strings"
	"time"

	"buzz/internal/models"
)

const icsTimeLayout = "20060102T150405Z"

// BuildICS renders a minimal iCalendar invite for an event, suitable for
// attaching to ticket emails.
func BuildICS(event *models.Event) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//buzz//ticketing//EN\r\n")
	b.WriteString("METHOD:PUBLISH\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(&b, "UID:%s@buzz\r\n", event.ID)
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", time.Now().UTC().Format(icsTimeLayout))
	fmt.Fprintf(&b, "DTSTART:%s\r\n", event.StartDate.UTC().Format(icsTimeLayout))
	if !event.EndDate.IsZero() {
		fmt.Fprintf(&b, "DTEND:%s\r\n", event.EndDate.UTC().Format(icsTimeLayout))
	}
	fmt.Fprintf(&b, "SUMMARY:%s\r\n", escapeICS(event.Title))
	if event.Venue != "" {
		fmt.Fprintf(&b, "LOCATION:%s\r\n", escapeICS(event.Venue))
	}
	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func escapeICS(s string) string {
	r := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n")
	return r.Replace(s)
}
