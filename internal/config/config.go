// Package config loads the process configuration from the environment.
//
// Values are read from an optional .env file (github.com/joho/godotenv), then
// from TXHISTORY_* environment variables (github.com/kelseyhightower/envconfig),
// and finally validated. Variables already present in the environment take
// precedence over the .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gabapcia/txhistory/internal/pkg/validator"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix of every setting.
const Prefix = "TXHISTORY"

// placeholders are the sample values shipped in examples and docs. They are
// rejected so a half-edited environment fails at startup instead of upstream.
var placeholders = map[string]struct{}{
	"YOUR API KEY": {},
	"YOUR_API_KEY": {},
	"Your address": {},
	"...":          {},
}

func init() {
	err := validator.RegisterStringRule("not_placeholder", func(s string) bool {
		_, found := placeholders[s]
		return !found
	})
	if err != nil {
		panic(err)
	}
}

type (
	// ExplorerConfig configures the EVM block explorer client and fetcher.
	ExplorerConfig struct {
		URL           string        `envconfig:"URL" default:"https://api.polygonscan.com/api" validate:"required,url"`
		APIKey        string        `envconfig:"API_KEY" validate:"required,not_placeholder"`
		Offset        int           `envconfig:"OFFSET" default:"100" validate:"min=1,max=10000"`
		ResultWindow  int           `envconfig:"RESULT_WINDOW" default:"10000" validate:"min=1"`
		PageDelay     time.Duration `envconfig:"PAGE_DELAY" default:"5s" validate:"gte=0"`
		RetryAttempts uint          `envconfig:"RETRY_ATTEMPTS" default:"6" validate:"min=1"`
		RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"5s" validate:"gte=0"`
		HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`
	}

	// SolanaConfig configures the Solana RPC client and fetcher.
	SolanaConfig struct {
		RPCURL           string        `envconfig:"RPC_URL" default:"https://api.mainnet-beta.solana.com" validate:"required,url,not_placeholder"`
		PageLimit        int           `envconfig:"PAGE_LIMIT" default:"100" validate:"min=1,max=1000"`
		EmptyStreakLimit int           `envconfig:"EMPTY_STREAK_LIMIT" default:"5" validate:"min=1"`
		HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`
		HTTPRetryMax     int           `envconfig:"HTTP_RETRY_MAX" default:"2" validate:"gte=0"`
	}

	// DefaultsConfig holds the values used when a command or query omits them.
	// Dates use the same formats as the command line flags.
	DefaultsConfig struct {
		Address   string `envconfig:"ADDRESS" validate:"omitempty,not_placeholder"`
		StartDate string `envconfig:"START_DATE"`
		EndDate   string `envconfig:"END_DATE"`
	}

	// RedisConfig configures the Redis stream sink. An empty Addr disables it.
	RedisConfig struct {
		Addr      string `envconfig:"ADDR"`
		Username  string `envconfig:"USERNAME"`
		Password  string `envconfig:"PASSWORD"`
		DB        int    `envconfig:"DB" default:"0" validate:"gte=0"`
		KeyPrefix string `envconfig:"KEY_PREFIX" default:"txhistory"`
		MaxLen    int64  `envconfig:"MAX_LEN" default:"0" validate:"gte=0"`
	}

	// KafkaConfig configures the Kafka sink. An empty Brokers list disables it.
	KafkaConfig struct {
		Brokers []string `envconfig:"BROKERS"`
		Topic   string   `envconfig:"TOPIC" default:"txhistory.transactions" validate:"required_with=Brokers"`
	}

	// TelemetryConfig configures OpenTelemetry export. Exporter endpoints are
	// read by the SDK from the standard OTEL_EXPORTER_OTLP_* variables.
	TelemetryConfig struct {
		Enabled        bool   `envconfig:"ENABLED" default:"false"`
		ServiceName    string `envconfig:"SERVICE_NAME" default:"txhistory" validate:"required"`
		ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
	}

	// HTTPConfig configures the streaming HTTP server.
	HTTPConfig struct {
		Addr string `envconfig:"ADDR" default:":8080" validate:"required"`
	}

	// Config is the full process configuration.
	Config struct {
		LogLevel  string          `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
		Explorer  ExplorerConfig  `envconfig:"EXPLORER"`
		Solana    SolanaConfig    `envconfig:"SOLANA"`
		Defaults  DefaultsConfig  `envconfig:"DEFAULT"`
		Redis     RedisConfig     `envconfig:"REDIS"`
		Kafka     KafkaConfig     `envconfig:"KAFKA"`
		Telemetry TelemetryConfig `envconfig:"TELEMETRY"`
		HTTP      HTTPConfig      `envconfig:"HTTP"`
	}
)

// Load reads the configuration.
//
// envFiles lists the dotenv files to load first; with none given, ".env" in
// the working directory is tried. Missing files are ignored, malformed ones
// are not.
//
// Returns an error wrapping validator.ErrValidationFailed when a setting is
// missing, out of range, or still holds a placeholder value.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
