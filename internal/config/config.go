package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Email      EmailConfig
	Lightning  LightningConfig
	Newsletter NewsletterConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderSettled    string
	TicketCheckedIn string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
	EventTitle   string
	EventDate    string
}

// LightningConfig carries everything the payment side needs: the receiving
// wallet alias, the Nostr signer key, the trusted zap emitter, relays, and
// the ticket pricing parameters.
type LightningConfig struct {
	Walias           string
	SignerPrivateKey string
	ZapEmitterPubkey string
	Relays           []string
	TicketPrice      float64
	Currency         string
	TicketType       string
	MaxTickets       int
	DiscountCodes    map[string]int
	ListenerWindow   time.Duration
	PollInterval     time.Duration
}

type NewsletterConfig struct {
	URL    string
	APIKey string
	ListID string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				OrderSettled:    getEnv("KAFKA_TOPIC_ORDER_SETTLED", "tickets.order.settled"),
				TicketCheckedIn: getEnv("KAFKA_TOPIC_TICKET_CHECKEDIN", "tickets.ticket.checkedin"),
			},
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("EMAIL_FROM", "tickets@example.com"),
			EventTitle:   getEnv("EVENT_TITLE", "Bitcoin Pizza Day"),
			EventDate:    getEnv("EVENT_DATE", ""),
		},
		Lightning: LightningConfig{
			Walias:           getEnv("POS_WALIAS", ""),
			SignerPrivateKey: getEnv("SIGNER_PRIVATE_KEY", ""),
			ZapEmitterPubkey: getEnv("ZAP_EMITTER_PUBKEY", ""),
			Relays:           strings.Split(getEnv("NOSTR_RELAYS", "wss://relay.lawallet.ar,wss://nostr-pub.wellorder.net"), ","),
			TicketPrice:      getEnvFloat("TICKET_PRICE", 15),
			Currency:         getEnv("TICKET_CURRENCY", "ARS"),
			TicketType:       getEnv("TICKET_TYPE", "general"),
			MaxTickets:       getEnvInt("MAX_TICKETS", 0),
			DiscountCodes:    getEnvJSONMap("DISCOUNT_CODES"),
			ListenerWindow:   time.Duration(getEnvInt("LISTENER_WINDOW_MINUTES", 5)) * time.Minute,
			PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)) * time.Second,
		},
		Newsletter: NewsletterConfig{
			URL:    getEnv("SENDY_URL", ""),
			APIKey: getEnv("SENDY_API_KEY", ""),
			ListID: getEnv("SENDY_LIST_ID", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvJSONMap parses a {"code": percent} JSON object. Bad JSON means no
// discount codes rather than a startup failure.
func getEnvJSONMap(key string) map[string]int {
	codes := map[string]int{}
	if value := os.Getenv(key); value != "" {
		_ = json.Unmarshal([]byte(value), &codes)
	}
	return codes
}
