package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	MQBackendNone     = "none"
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"
)

// Config is built once at startup and handed to every component that needs it.
// Nothing mutates it after Load returns.
type Config struct {
	Env        string `validate:"required,oneof=development staging production test"`
	ServerPort int    `validate:"gte=1,lte=65535"`
	LogLevel   string `validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat  string `validate:"required,oneof=json console"`
	BcryptCost int    `validate:"gte=4,lte=31"`

	Database DatabaseConfig
	JWT      JWTConfig
	HTTP     HTTPConfig
	MQ       MQConfig
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type DatabaseConfig struct {
	URI            string        `validate:"required,uri"`
	Name           string        `validate:"required"`
	ConnectTimeout time.Duration `validate:"gt=0"`
}

// JWTConfig carries separate keys for access and refresh tokens so that a leak
// of one cannot be used to mint the other.
type JWTConfig struct {
	AccessSecret  string        `validate:"required"`
	AccessTTL     time.Duration `validate:"gt=0"`
	RefreshSecret string        `validate:"required,nefield=AccessSecret"`
	RefreshTTL    time.Duration `validate:"gt=0"`
}

type HTTPConfig struct {
	CORSOrigin     string
	RateLimitRPS   float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=0"`
}

type MQConfig struct {
	Backend string `validate:"oneof=none rabbitmq pubsub"`
	Channel string `validate:"required"`
}

type RabbitMQConfig struct {
	URL             string `validate:"required_if=Enabled true"`
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
	Enabled         bool
}

type PubSubConfig struct {
	ProjectID          string `validate:"required_if=Enabled true"`
	CredentialsFile    string
	SubscriptionSuffix string
	Enabled            bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from the environment (and .env / config.yaml when
// present), applies defaults and validates the result.
func Load() (Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "usercore")
	v.SetDefault("MONGODB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("JWT_EXPIRES_IN", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRES_IN", "168h")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("MQ_BACKEND", MQBackendNone)
	v.SetDefault("MQ_CHANNEL", "account-events")
	v.SetDefault("RABBITMQ_QUEUE_DURABLE", true)
	v.SetDefault("RABBITMQ_PREFETCH", 10)
	v.SetDefault("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub")

	_ = v.ReadInConfig()

	backend := strings.ToLower(strings.TrimSpace(v.GetString("MQ_BACKEND")))
	if backend == "" {
		backend = MQBackendNone
	}

	cfg := Config{
		Env:        v.GetString("APP_ENV"),
		ServerPort: v.GetInt("SERVER_PORT"),
		LogLevel:   strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:  strings.ToLower(v.GetString("LOG_FORMAT")),
		BcryptCost: v.GetInt("BCRYPT_COST"),
		Database: DatabaseConfig{
			URI:            v.GetString("MONGODB_URI"),
			Name:           v.GetString("MONGODB_DATABASE"),
			ConnectTimeout: v.GetDuration("MONGODB_CONNECT_TIMEOUT"),
		},
		JWT: JWTConfig{
			AccessSecret:  strings.TrimSpace(v.GetString("JWT_SECRET")),
			AccessTTL:     v.GetDuration("JWT_EXPIRES_IN"),
			RefreshSecret: strings.TrimSpace(v.GetString("JWT_REFRESH_SECRET")),
			RefreshTTL:    v.GetDuration("JWT_REFRESH_EXPIRES_IN"),
		},
		HTTP: HTTPConfig{
			CORSOrigin:     v.GetString("CORS_ORIGIN"),
			RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		},
		MQ: MQConfig{
			Backend: backend,
			Channel: v.GetString("MQ_CHANNEL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("RABBITMQ_URL"),
			QueueDurable:    v.GetBool("RABBITMQ_QUEUE_DURABLE"),
			QueueAutoDelete: v.GetBool("RABBITMQ_QUEUE_AUTO_DELETE"),
			PrefetchCount:   v.GetInt("RABBITMQ_PREFETCH"),
			Enabled:         backend == MQBackendRabbitMQ,
		},
		PubSub: PubSubConfig{
			ProjectID:          v.GetString("PUBSUB_PROJECT_ID"),
			CredentialsFile:    v.GetString("PUBSUB_CREDENTIALS_FILE"),
			SubscriptionSuffix: v.GetString("PUBSUB_SUBSCRIPTION_SUFFIX"),
			Enabled:            backend == MQBackendPubSub,
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
