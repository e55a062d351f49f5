// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; the struct tags state which combinations are
// acceptable.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string `validate:"required,numeric"`

	DBDriver string `validate:"oneof=mysql sqlite3"`
	DBUser   string `validate:"required_if=DBDriver mysql"`
	DBPass   string // may be empty
	DBHost   string `validate:"required_if=DBDriver mysql"`
	DBPort   string `validate:"required_if=DBDriver mysql"`
	DBName   string `validate:"required_if=DBDriver mysql"`
	DBPath   string `validate:"required_if=DBDriver sqlite3"`

	JWTSecret    string `validate:"required"`
	AccessTTLMin int    `validate:"min=1"`
	BcryptCost   int    `validate:"min=4,max=31"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	QueueEnabled         bool
	AMQPURL              string `validate:"required_if=QueueEnabled true"`
	AuditConsumerEnabled bool
	AuditLogPath         string `validate:"required_if=AuditConsumerEnabled true"`

	FinishSweepInterval time.Duration `validate:"min=1s"`

	MaxSeatsPerReservation int           `validate:"min=1"`
	CancellationCutoff     time.Duration `validate:"min=0s"`
	MaxNoteLength          int           `validate:"min=1"`
	CodePrefix             string
	CodeDigits             int `validate:"min=1,max=18"`
	CodeMaxAttempts        int `validate:"min=1"`
}

var validate = validator.New()

// Load reads the configuration from the environment and validates it.
// Unset optional variables take their defaults; a missing required
// variable or an unusable value is reported in the returned error.
func Load() (Config, error) {
	cfg := Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		DBDriver: envStr("DB_DRIVER", "mysql"),
		DBUser:   os.Getenv("DB_USER"),
		DBPass:   os.Getenv("DB_PASS"),
		DBHost:   os.Getenv("DB_HOST"),
		DBPort:   envStr("DB_PORT", "3306"),
		DBName:   os.Getenv("DB_NAME"),
		DBPath:   envStr("DB_PATH", "events.db"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
		BcryptCost:   envInt("BCRYPT_COST", 12),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),

		QueueEnabled:         envBool("QUEUE_ENABLED", false),
		AMQPURL:              envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		AuditConsumerEnabled: envBool("AUDIT_CONSUMER_ENABLED", false),
		AuditLogPath:         envStr("AUDIT_LOG_PATH", "logs/reservations.log"),

		FinishSweepInterval: envDur("FINISH_SWEEP_INTERVAL", time.Minute),

		MaxSeatsPerReservation: envInt("MAX_SEATS_PER_RESERVATION", 10),
		CancellationCutoff:     envDur("CANCELLATION_CUTOFF", 48*time.Hour),
		MaxNoteLength:          envInt("MAX_NOTE_LENGTH", 500),
		CodePrefix:             envStr("CODE_PREFIX", "EVT-"),
		CodeDigits:             envInt("CODE_DIGITS", 5),
		CodeMaxAttempts:        envInt("CODE_MAX_ATTEMPTS", 100),
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr is the address the HTTP server listens on.
func (c Config) Addr() string { return ":" + c.Port }
