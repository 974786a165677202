package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ln-ticketing/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

func (p *Producer) Publish(topic, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

type orderSettledEvent struct {
	EventReferenceID string   `json:"event_reference_id"`
	TicketIDs        []string `json:"ticket_ids"`
	TicketType       string   `json:"ticket_type"`
	SettledVia       string   `json:"settled_via"`
	SettledAt        int64    `json:"settled_at"`
}

// PublishOrderSettled streams a first-time settlement to the ops topic.
func (p *Producer) PublishOrderSettled(topic, reference, via, ticketType string, tickets []models.Ticket) error {
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.TicketID
	}
	value, err := json.Marshal(orderSettledEvent{
		EventReferenceID: reference,
		TicketIDs:        ids,
		TicketType:       ticketType,
		SettledVia:       via,
		SettledAt:        time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return p.Publish(topic, reference, value)
}

// PublishTicketCheckedIn streams a first-time check-in to the ops topic.
func (p *Producer) PublishTicketCheckedIn(topic string, ticket models.Ticket) error {
	value, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return p.Publish(topic, ticket.TicketID, value)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
