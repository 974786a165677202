package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"ln-ticketing/internal/config"
	"ln-ticketing/internal/lightning"
	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/models"
	orderdb "ln-ticketing/internal/order/db"
	"ln-ticketing/internal/pricing"
	"ln-ticketing/internal/zap"
)

var (
	ErrValidation    = errors.New("invalid request")
	ErrSoldOut       = errors.New("no tickets left")
	ErrEmailDelivery = errors.New("ticket email delivery failed")
)

const maxTicketsPerOrder = 9

type DBLayer interface {
	CreateOrder(ctx context.Context, fullname, email string, ticketQuantity int, totalMilliSats int64) (*models.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	SetVerifyURL(ctx context.Context, reference, verifyURL string) error
	SettleOrder(ctx context.Context, reference, zapReceiptID, code, ticketType string) (*orderdb.SettlementResult, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type TicketCounter interface {
	MaxSerialByType(ctx context.Context, ticketType string) (int, error)
}

type InvoiceIssuer interface {
	ResolveWalias(ctx context.Context, walias string) (string, error)
	GenerateInvoice(ctx context.Context, callback string, amountMilliSats int64, zapRequest *nostr.Event) (*lightning.Invoice, error)
	VerifySettled(ctx context.Context, verifyURL string) (bool, error)
}

type MailSender interface {
	SendTicketEmail(ctx context.Context, email, ticketID, ticketType string, serial int) error
	SendNewsletterWelcome(ctx context.Context, email string) error
}

type NewsletterClient interface {
	Subscribe(ctx context.Context, fullname, email string) (alreadySubscribed bool, err error)
}

type KafkaPublisher interface {
	PublishOrderSettled(topic, reference, via, ticketType string, tickets []models.Ticket) error
}

type ReceiptListener interface {
	Listen(reference string, onReceipt func(event nostr.Event))
}

type SettlementPoller interface {
	Start(ctx context.Context, eventReferenceID, code string)
}

type OrderService struct {
	DB         DBLayer
	Tickets    TicketCounter
	Lightning  InvoiceIssuer
	Mailer     MailSender
	Newsletter NewsletterClient
	Kafka      KafkaPublisher
	Signer     *zap.Signer
	Listener   ReceiptListener
	Pricing    *pricing.Calculator
	Config     config.LightningConfig
	Topic      string
	Logger     *logger.Logger

	// Poller is set after construction because it polls back into this
	// service via VerifyAndSettle.
	Poller SettlementPoller
}

func NewOrderService(db DBLayer, tickets TicketCounter, ln InvoiceIssuer, mailer MailSender, newsletter NewsletterClient, kafka KafkaPublisher, signer *zap.Signer, listener ReceiptListener, calc *pricing.Calculator, cfg config.LightningConfig, topic string, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:         db,
		Tickets:    tickets,
		Lightning:  ln,
		Mailer:     mailer,
		Newsletter: newsletter,
		Kafka:      kafka,
		Signer:     signer,
		Listener:   listener,
		Pricing:    calc,
		Config:     cfg,
		Topic:      topic,
		Logger:     log,
	}
}

// RequestTicket runs the whole purchase entry: validate, price, persist the
// pending order, subscribe for the zap receipt, fetch the invoice and start
// the LUD-21 poller. The caller gets back the invoice to display.
func (s *OrderService) RequestTicket(ctx context.Context, req models.OrderRequest) (*models.OrderRequestResponse, error) {
	fullname := strings.TrimSpace(req.Fullname)
	email := strings.TrimSpace(req.Email)
	if fullname == "" {
		return nil, fmt.Errorf("%w: fullname is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if req.TicketQuantity < 1 || req.TicketQuantity > maxTicketsPerOrder {
		return nil, fmt.Errorf("%w: ticket quantity must be between 1 and %d", ErrValidation, maxTicketsPerOrder)
	}

	sold, err := s.Tickets.MaxSerialByType(ctx, s.Config.TicketType)
	if err != nil {
		return nil, fmt.Errorf("failed to count sold tickets: %w", err)
	}
	if s.Config.MaxTickets > 0 && sold+req.TicketQuantity > s.Config.MaxTickets {
		return nil, ErrSoldOut
	}

	price, err := s.Pricing.ComputePrice(ctx, s.Config.TicketType, s.Config.TicketPrice, s.Config.Currency, req.TicketQuantity, req.Code, sold)
	if err != nil {
		return nil, fmt.Errorf("failed to price order: %w", err)
	}

	order, err := s.DB.CreateOrder(ctx, fullname, email, req.TicketQuantity, price.TotalMilliSats)
	if err != nil {
		return nil, err
	}
	s.Logger.LogOrder("CREATE", order.EventReferenceID, fmt.Sprintf("%d ticket(s) for %s, %d msat", req.TicketQuantity, email, price.TotalMilliSats))

	if req.Newsletter && s.Newsletter != nil {
		already, err := s.Newsletter.Subscribe(ctx, fullname, email)
		if err != nil {
			return nil, fmt.Errorf("newsletter subscription failed: %w", err)
		}
		if !already {
			if err := s.Mailer.SendNewsletterWelcome(ctx, email); err != nil {
				s.Logger.Warn("EMAIL", fmt.Sprintf("newsletter welcome to %s failed: %v", email, err))
			}
		}
	}

	zapRequest, err := s.Signer.BuildZapRequest(order.EventReferenceID, price.TotalMilliSats)
	if err != nil {
		return nil, err
	}

	// Both confirmation channels race toward the same settlement; the
	// conditional paid update makes whichever lands second a no-op.
	code := req.Code
	s.Listener.Listen(order.EventReferenceID, func(event nostr.Event) {
		if err := s.SettleFromZapReceipt(context.Background(), event, code); err != nil {
			s.Logger.Error("ZAP", fmt.Sprintf("settlement from receipt failed: %v", err))
		}
	})

	callback, err := s.Lightning.ResolveWalias(ctx, s.Config.Walias)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve walias: %w", err)
	}
	invoice, err := s.Lightning.GenerateInvoice(ctx, callback, price.TotalMilliSats, zapRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invoice: %w", err)
	}

	if invoice.Verify != "" {
		if err := s.DB.SetVerifyURL(ctx, order.EventReferenceID, invoice.Verify); err != nil {
			return nil, err
		}
		if s.Poller != nil {
			// Polling is bounded the same way the relay subscription is:
			// an invoice still unpaid after the listener window stops
			// being watched.
			pollCtx, cancel := context.WithTimeout(context.Background(), s.Config.ListenerWindow)
			go func() {
				defer cancel()
				s.Poller.Start(pollCtx, order.EventReferenceID, code)
			}()
		}
	}

	return &models.OrderRequestResponse{
		PR:               invoice.PR,
		Verify:           invoice.Verify,
		EventReferenceID: order.EventReferenceID,
		Code:             code,
	}, nil
}

// SettleFromZapReceipt settles the order a kind-9735 receipt points at. It is
// shared by the relay listener and the claim endpoint.
func (s *OrderService) SettleFromZapReceipt(ctx context.Context, receipt nostr.Event, code string) error {
	reference, ok := zap.OrderReference(receipt)
	if !ok {
		return fmt.Errorf("%w: receipt has no order reference", zap.ErrInvalidReceipt)
	}

	order, err := s.DB.GetOrderByReference(ctx, reference)
	if err != nil {
		return err
	}
	if order.Paid {
		s.Logger.LogOrder("SETTLE", reference, "already paid, receipt ignored")
		return nil
	}

	if err := zap.ValidateReceipt(receipt, s.Config.ZapEmitterPubkey, s.Signer.PublicKey, reference, order.TotalMilliSats); err != nil {
		return err
	}

	result, err := s.DB.SettleOrder(ctx, reference, receipt.ID, code, s.Config.TicketType)
	if err != nil {
		return err
	}
	if result.AlreadyPaid {
		return nil
	}
	return s.deliverTickets(ctx, order.UserID, reference, "zap", result.Tickets)
}

// VerifyAndSettle is the LUD-21 entry: ask the wallet whether the invoice is
// settled and, when it is, run the same settlement as the zap path. Returns
// true once the order is paid, regardless of which channel got there first.
func (s *OrderService) VerifyAndSettle(ctx context.Context, reference, code string) (bool, error) {
	order, err := s.DB.GetOrderByReference(ctx, reference)
	if err != nil {
		return false, err
	}
	if order.Paid {
		return true, nil
	}
	if order.VerifyURL == "" {
		return false, nil
	}

	settled, err := s.Lightning.VerifySettled(ctx, order.VerifyURL)
	if err != nil {
		return false, err
	}
	if !settled {
		return false, nil
	}

	result, err := s.DB.SettleOrder(ctx, reference, "", code, s.Config.TicketType)
	if err != nil {
		return false, err
	}
	if result.AlreadyPaid {
		return true, nil
	}
	if err := s.deliverTickets(ctx, order.UserID, reference, "lud21", result.Tickets); err != nil {
		return true, err
	}
	return true, nil
}

func (s *OrderService) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	return s.DB.GetOrderByReference(ctx, reference)
}

func (s *OrderService) deliverTickets(ctx context.Context, userID, reference, via string, tickets []models.Ticket) error {
	user, err := s.DB.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load purchaser: %w", err)
	}

	s.Logger.LogOrder("SETTLE", reference, fmt.Sprintf("minted %d ticket(s) via %s", len(tickets), via))

	if s.Kafka != nil {
		if err := s.Kafka.PublishOrderSettled(s.Topic, reference, via, s.Config.TicketType, tickets); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("publish order settled: %v", err))
		}
	}

	var failed bool
	for _, ticket := range tickets {
		if err := s.Mailer.SendTicketEmail(ctx, user.Email, ticket.TicketID, ticket.Type, ticket.Serial); err != nil {
			s.Logger.Error("EMAIL", fmt.Sprintf("ticket %s to %s: %v", ticket.TicketID, user.Email, err))
			failed = true
		}
	}
	if failed {
		return ErrEmailDelivery
	}
	return nil
}
