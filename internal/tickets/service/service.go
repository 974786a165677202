package service

import (
	"context"
	"errors"
	"fmt"

	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/models"
)

var ErrValidation = errors.New("invalid request")

type DBLayer interface {
	GetTicketByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error)
	CheckIn(ctx context.Context, ticketID string) (alreadyCheckedIn bool, err error)
	MaxSerialByType(ctx context.Context, ticketType string) (int, error)
	ListTicketsWithUsers(ctx context.Context) ([]models.TicketWithUser, error)
	CreateInviteTickets(ctx context.Context, invites []models.Invite, ticketType string) ([]models.InviteResult, error)
}

type MailSender interface {
	SendTicketEmail(ctx context.Context, email, ticketID, ticketType string, serial int) error
}

type KafkaPublisher interface {
	PublishTicketCheckedIn(topic string, ticket models.Ticket) error
}

type TicketService struct {
	DB         DBLayer
	Mailer     MailSender
	Kafka      KafkaPublisher
	Topic      string
	TicketType string
	Logger     *logger.Logger
}

func NewTicketService(db DBLayer, mailer MailSender, kafka KafkaPublisher, topic, ticketType string, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:         db,
		Mailer:     mailer,
		Kafka:      kafka,
		Topic:      topic,
		TicketType: ticketType,
		Logger:     log,
	}
}

// CheckIn marks a ticket as used at the door. Scanning the same ticket twice
// reports the repeat instead of failing, so staff can tell a double scan from
// a forged ticket.
func (s *TicketService) CheckIn(ctx context.Context, ticketID string) (*models.CheckInResponse, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("%w: ticket_id is required", ErrValidation)
	}

	already, err := s.DB.CheckIn(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if !already {
		s.Logger.Info("CHECKIN", fmt.Sprintf("ticket %s checked in", ticketID))
		if s.Kafka != nil {
			ticket, err := s.DB.GetTicketByTicketID(ctx, ticketID)
			if err == nil {
				if err := s.Kafka.PublishTicketCheckedIn(s.Topic, *ticket); err != nil {
					s.Logger.Warn("KAFKA", fmt.Sprintf("publish ticket checked in: %v", err))
				}
			}
		}
	}

	return &models.CheckInResponse{AlreadyCheckedIn: already, CheckIn: true}, nil
}

// GetTicket looks a single ticket up by its public id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("%w: ticketId is required", ErrValidation)
	}
	return s.DB.GetTicketByTicketID(ctx, ticketID)
}

// CountByType reports how many tickets of a type exist. An empty type means
// the configured sale type. Serials are contiguous from 1, so the highest
// serial is the count.
func (s *TicketService) CountByType(ctx context.Context, ticketType string) (int, error) {
	if ticketType == "" {
		ticketType = s.TicketType
	}
	return s.DB.MaxSerialByType(ctx, ticketType)
}

func (s *TicketService) ListAll(ctx context.Context) ([]models.TicketWithUser, error) {
	return s.DB.ListTicketsWithUsers(ctx)
}

// Invite hands out comp tickets outside the paid flow. Each invitee gets a
// serial-zero ticket by email; email failures are reported per invitee
// without aborting the batch.
func (s *TicketService) Invite(ctx context.Context, req models.InviteRequest) ([]models.InviteResult, error) {
	if len(req.List) == 0 {
		return nil, fmt.Errorf("%w: empty invite list", ErrValidation)
	}
	for _, invite := range req.List {
		if invite.Email == "" {
			return nil, fmt.Errorf("%w: invite without email", ErrValidation)
		}
	}

	results, err := s.DB.CreateInviteTickets(ctx, req.List, s.TicketType)
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		if err := s.Mailer.SendTicketEmail(ctx, result.Email, result.TicketID, s.TicketType, 0); err != nil {
			s.Logger.Error("EMAIL", fmt.Sprintf("invite ticket %s to %s: %v", result.TicketID, result.Email, err))
		}
	}

	s.Logger.Info("INVITE", fmt.Sprintf("created %d invite ticket(s)", len(results)))
	return results, nil
}
