package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// Booking and ticket lifecycle topics.
const (
	TopicBookingSubmitted = "buzz.booking.submitted"
	TopicBookingApproved  = "buzz.booking.approved"
	TopicBookingRejected  = "buzz.booking.rejected"
	TopicBookingCancelled = "buzz.booking.cancelled"
	TopicTicketIssued     = "buzz.ticket.issued"
	TopicTicketCancelled  = "buzz.ticket.cancelled"
)

// AllTopics lists the topics the service publishes to, so they can be
// created up front at startup.
func AllTopics() []string {
	return []string{
		TopicBookingSubmitted,
		TopicBookingApproved,
		TopicBookingRejected,
		TopicBookingCancelled,
		TopicTicketIssued,
		TopicTicketCancelled,
	}
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer}
}

// Publish sends one JSON-encoded event. Callers treat failures as
// best-effort: log and move on, never roll back the booking.
func (p *Producer) Publish(topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
