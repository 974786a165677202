package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ln-ticketing/internal/config"
	"ln-ticketing/internal/kafka"
	"ln-ticketing/internal/lightning"
	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/mailer"
	"ln-ticketing/internal/newsletter"
	"ln-ticketing/internal/order"
	orderdb "ln-ticketing/internal/order/db"
	"ln-ticketing/internal/order/order_api"
	"ln-ticketing/internal/payments"
	"ln-ticketing/internal/pricing"
	ticketdb "ln-ticketing/internal/tickets/db"
	tickets "ln-ticketing/internal/tickets/service"
	"ln-ticketing/internal/tickets/ticket_api"
	"ln-ticketing/internal/zap"
)

const rateCacheTTL = 60 * time.Second

func connectPostgres(cfg config.DatabaseConfig, logger *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Ticket Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	client := &http.Client{
		Timeout: time.Second * 10,
	}
	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, logger)
	defer bunDB.Close()

	if err := runMigrations(ctx, bunDB, cfg.Lightning.DiscountCodes); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	logger.Info("DATABASE", "Schema migrations applied")

	// The BTC rate cache lives in Redis when one is configured so multiple
	// instances share it; otherwise it falls back to an in-process cache.
	var rates pricing.RateSource = pricing.NewYadioClient(client)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
		}
		defer redisClient.Close()
		logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
		rates = pricing.NewRedisRateSource(redisClient, rates, rateCacheTTL)
	} else {
		logger.Info("CONFIG", "REDIS_ADDR not set, using in-process rate cache")
		rates = pricing.NewCachedRateSource(rates, rateCacheTTL, time.Now)
	}

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		kafkaProducer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer kafkaProducer.Close()
		requiredTopics := []string{
			cfg.Kafka.Topics.OrderSettled,
			cfg.Kafka.Topics.TicketCheckedIn,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		logger.Info("CONFIG", "Kafka disabled, settlement events will not be published")
	}

	signer, err := zap.NewSigner(cfg.Lightning.SignerPrivateKey, cfg.Lightning.Relays)
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid signer key: %v", err))
	}

	mailSender := mailer.New(cfg.Email, logger)
	lnClient := lightning.NewClient(client, logger)
	listener := zap.NewListener(cfg.Lightning.Relays, cfg.Lightning.ListenerWindow, logger)
	calculator := pricing.NewCalculator(rates, pricing.StaticCodes(cfg.Lightning.DiscountCodes))

	var newsClient order.NewsletterClient
	if cfg.Newsletter.URL != "" {
		newsClient = newsletter.New(cfg.Newsletter, client, logger)
	}

	ticketStore := &ticketdb.DB{Bun: bunDB}
	orderStore := &orderdb.DB{Bun: bunDB}

	var orderKafka order.KafkaPublisher
	var ticketKafka tickets.KafkaPublisher
	if kafkaProducer != nil {
		orderKafka = kafkaProducer
		ticketKafka = kafkaProducer
	}

	ticketService := tickets.NewTicketService(
		ticketStore,
		mailSender,
		ticketKafka,
		cfg.Kafka.Topics.TicketCheckedIn,
		cfg.Lightning.TicketType,
		logger,
	)

	orderService := order.NewOrderService(
		orderStore,
		ticketStore,
		lnClient,
		mailSender,
		newsClient,
		orderKafka,
		signer,
		listener,
		calculator,
		cfg.Lightning,
		cfg.Kafka.Topics.OrderSettled,
		logger,
	)
	orderService.Poller = payments.NewPoller(orderService, cfg.Lightning.PollInterval, logger)

	handler := order_api.NewHandler(orderService, logger)
	ticketHandler := ticket_api.NewHandler(ticketService, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Route("/api/ticket", func(r chi.Router) {
		r.Post("/request", handler.RequestTicket)
		r.Post("/claim", handler.ClaimOrder)
		r.Post("/verify", handler.VerifyOrder)
		r.Post("/checkin", ticketHandler.CheckinTicket)
		r.Post("/invite", ticketHandler.CreateInvite)
		r.Get("/", ticketHandler.GetTicket)
		r.Get("/count", ticketHandler.GetTicketCount)
		r.Get("/all", ticketHandler.ListTickets)
	})
	logger.Info("ROUTER", "Ticket routes registered under /api/ticket")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Ticket Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Ticket Service shutdown complete")
	}
}
