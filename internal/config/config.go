package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvDevelopment is the only environment allowed to run without JWT_SECRET.
const EnvDevelopment = "development"

const devJWTSecret = "dev-secret-change-me"

// Config holds every runtime setting of the service.
type Config struct {
	Port        string `env:"PORT" envDefault:"4000"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"4001"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"message-service"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	DebugRoutes bool   `env:"DEBUG_ROUTES" envDefault:"false"`

	DBDSN string `env:"DB_DSN" envDefault:"postgres://localhost:5432/social_media?sslmode=disable"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	AMQPURL       string `env:"AMQP_URL"`
	AMQPExchange  string `env:"AMQP_EXCHANGE" envDefault:"social_media"`
	IdentityQueue string `env:"IDENTITY_QUEUE" envDefault:"message-service.identity"`

	MediaUploadURL   string `env:"MEDIA_UPLOAD_URL" envDefault:"https://upload.imagekit.io/api/v1/files/upload"`
	MediaURLEndpoint string `env:"MEDIA_URL_ENDPOINT"`
	MediaPrivateKey  string `env:"MEDIA_PRIVATE_KEY"`
	MediaFolder      string `env:"MEDIA_FOLDER" envDefault:"/messages"`

	DigestCron string `env:"DIGEST_CRON" envDefault:"0 9 * * *"`

	DispatchWorkers   int `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueueSize int `env:"DISPATCH_QUEUE_SIZE" envDefault:"256"`

	SendRateRPS   float64 `env:"SEND_RATE_RPS" envDefault:"5"`
	SendRateBurst int     `env:"SEND_RATE_BURST" envDefault:"10"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err == nil {
		log.Printf("config loaded .env")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == "" && cfg.Environment == EnvDevelopment {
		log.Printf("config JWT_SECRET unset, using development secret")
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DigestCron != "" && !gronx.IsValid(c.DigestCron) {
		return fmt.Errorf("invalid DIGEST_CRON %q", c.DigestCron)
	}
	if c.DispatchWorkers <= 0 {
		return errors.New("DISPATCH_WORKERS must be positive")
	}
	if c.DispatchQueueSize < 0 {
		return errors.New("DISPATCH_QUEUE_SIZE must not be negative")
	}
	return nil
}
