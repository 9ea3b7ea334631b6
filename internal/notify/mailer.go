package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"buzz/internal/config"
	"buzz/internal/logger"
	"buzz/internal/models"
)

// defaultTicketTemplate is used when neither the event nor the global
// configuration carries a custom template.
const defaultTicketTemplate = `<p>Hi {{.AttendeeName}},</p>
<p>Your ticket for <b>{{.EventTitle}}</b> is attached.</p>
<p>Venue: {{.Venue}}<br>Starts: {{.StartDate}}</p>
<p>Show the attached QR code at the entrance.</p>`

const cancellationTemplate = `<p>Hi {{.AttendeeName}},</p>
<p>Your ticket for <b>{{.EventTitle}}</b> has been cancelled.</p>
<p>If you believe this is a mistake, reply to this email.</p>`

type templateData struct {
	AttendeeName string
	EventTitle   string
	Venue        string
	StartDate    string
}

type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

type Mailer struct {
	cfg    config.EmailConfig
	defTpl string
	Logger *logger.Logger
}

func NewMailer(cfg config.EmailConfig, defaultTemplate string, log *logger.Logger) *Mailer {
	return &Mailer{cfg: cfg, defTpl: defaultTemplate, Logger: log}
}

// SendTicketEmail mails one attendee their QR ticket, with an optional
// calendar invite. Template resolution order: event template, configured
// default, built-in fallback.
func (m *Mailer) SendTicketEmail(event *models.Event, ticket models.Ticket) error {
	if !event.SendTicketEmail || ticket.AttendeeEmail == "" {
		return nil
	}

	body, err := m.renderBody(m.ticketTemplate(event), event, ticket)
	if err != nil {
		return fmt.Errorf("render ticket email: %w", err)
	}

	attachments := []Attachment{{
		Filename: fmt.Sprintf("ticket-%s.png", ticket.ID),
		MIMEType: "image/png",
		Content:  ticket.QRCode,
	}}
	if event.AttachCalendarInvite {
		attachments = append(attachments, Attachment{
			Filename: "invite.ics",
			MIMEType: "text/calendar",
			Content:  []byte(BuildICS(event)),
		})
	}

	subject := fmt.Sprintf("Your ticket for %s", event.Title)
	return m.send(ticket.AttendeeEmail, subject, body, attachments)
}

// SendCancellationEmail notifies an attendee their ticket was cancelled.
func (m *Mailer) SendCancellationEmail(event *models.Event, ticket models.Ticket) error {
	if ticket.AttendeeEmail == "" {
		return nil
	}
	body, err := m.renderBody(cancellationTemplate, event, ticket)
	if err != nil {
		return fmt.Errorf("render cancellation email: %w", err)
	}
	subject := fmt.Sprintf("Ticket cancelled for %s", event.Title)
	return m.send(ticket.AttendeeEmail, subject, body, nil)
}

func (m *Mailer) ticketTemplate(event *models.Event) string {
	if event.TicketEmailTemplate != "" {
		return event.TicketEmailTemplate
	}
	if m.defTpl != "" {
		return m.defTpl
	}
	return defaultTicketTemplate
}

func (m *Mailer) renderBody(tpl string, event *models.Event, ticket models.Ticket) (string, error) {
	t, err := template.New("email").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, templateData{
		AttendeeName: ticket.AttendeeName,
		EventTitle:   event.Title,
		Venue:        event.Venue,
		StartDate:    event.StartDate.Format("Mon, 02 Jan 2006 15:04"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (m *Mailer) send(to, subject, htmlBody string, attachments []Attachment) error {
	var msg bytes.Buffer
	writer := multipart.NewWriter(&msg)

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%s\r\n\r\n",
		m.cfg.FromAddress, to, subject, writer.Boundary())

	bodyPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return err
	}
	if _, err := bodyPart.Write([]byte(htmlBody)); err != nil {
		return err
	}

	for _, a := range attachments {
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {a.MIMEType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
		})
		if err != nil {
			return err
		}
		encoded := base64.StdEncoding.EncodeToString(a.Content)
		// wrap at 76 chars per RFC 2045
		for len(encoded) > 76 {
			if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
				return err
			}
			encoded = encoded[76:]
		}
		if _, err := part.Write([]byte(encoded)); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}
	payload := append([]byte(headers), msg.Bytes()...)
	if err := smtp.SendMail(addr, auth, m.cfg.FromAddress, []string{to}, payload); err != nil {
		return fmt.Errorf("smtp send to %s: %w", strings.ToLower(to), err)
	}
	return nil
}
