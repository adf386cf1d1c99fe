// Package config provides configuration loading for contentd.
//
// Configuration is loaded from environment variables with sensible defaults,
// optionally layered over a YAML file (see LoadWithFile).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete contentd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Publishing    PublishingConfig    `koanf:"publishing"`
	Scheduling    SchedulingConfig    `koanf:"scheduling"`
	Review        ReviewConfig        `koanf:"review"`
	Events        EventsConfig        `koanf:"events"`
	HTTP          HTTPConfig          `koanf:"http"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// PublishingConfig holds orchestrator configuration.
type PublishingConfig struct {
	AutoSelection    bool          `koanf:"auto_selection"`
	FallbackEnabled  bool          `koanf:"fallback_enabled"`
	DefaultStrategy  string        `koanf:"default_strategy"`
	FallbackStrategy string        `koanf:"fallback_strategy"`
	StrategyTimeout  time.Duration `koanf:"strategy_timeout"`
	// EnforceTimeout wraps each strategy attempt in a deadline of
	// StrategyTimeout. When false the timeout is advisory.
	EnforceTimeout bool `koanf:"enforce_timeout"`
	MinBodyLength  int  `koanf:"min_body_length"`
	BatchParallel  int  `koanf:"batch_parallelism"`
	// DeepScan adds the gitleaks rule set to the auto strategy's
	// credential gate.
	DeepScan bool `koanf:"deep_scan"`
}

// SchedulingConfig holds delayed publication configuration.
type SchedulingConfig struct {
	MaxPending int           `koanf:"max_pending"`
	Workers    int           `koanf:"workers"`
	MinLead    time.Duration `koanf:"min_lead"`
	MaxLead    time.Duration `koanf:"max_lead"`
}

// ReviewConfig holds review workflow configuration.
type ReviewConfig struct {
	MaxReviewers    int                       `koanf:"max_reviewers"`
	DefaultCategory string                    `koanf:"default_category"`
	Categories      map[string]CategoryConfig `koanf:"categories"`
	Reviewers       []ReviewerConfig          `koanf:"reviewers"`
}

// CategoryConfig holds the review policy for one content category.
type CategoryConfig struct {
	RequiredApprovals int      `koanf:"required_approvals"`
	AllowedRoles      []string `koanf:"allowed_roles"`
	AllowSelfReview   bool     `koanf:"allow_self_review"`
	TimeoutDays       int      `koanf:"timeout_days"`
}

// ReviewerConfig declares a member of the reviewer pool.
type ReviewerConfig struct {
	ID   string `koanf:"id"`
	Name string `koanf:"name"`
	Role string `koanf:"role"`
}

// EventsConfig holds event delivery configuration.
type EventsConfig struct {
	NATSURL            string        `koanf:"nats_url"`
	NATSToken          Secret        `koanf:"nats_token"`
	SubjectPrefix      string        `koanf:"subject_prefix"`
	BreakerMaxFailures int           `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// HTTPConfig holds API request limits.
type HTTPConfig struct {
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// Default values shared by Load and applyDefaults.
const (
	defaultPort             = 8420
	defaultShutdownTimeout  = 10 * time.Second
	defaultServiceName      = "contentd"
	defaultStrategy         = "immediate"
	defaultStrategyTimeout  = 30 * time.Second
	defaultMinBodyLength    = 10
	defaultBatchParallelism = 4
	defaultMaxPending       = 1000
	defaultWorkers          = 4
	defaultMinLead          = time.Minute
	defaultMaxLead          = 365 * 24 * time.Hour
	defaultMaxReviewers     = 3
	defaultCategory         = "general"
	defaultSubjectPrefix    = "contentd.events"
	defaultBreakerFailures  = 5
	defaultBreakerTimeout   = 30 * time.Second
	defaultRateLimit        = 20
	defaultBurst            = 40
)

// DefaultCategories returns the built-in review policy table.
func DefaultCategories() map[string]CategoryConfig {
	return map[string]CategoryConfig{
		defaultCategory: {
			RequiredApprovals: 1,
			AllowedRoles:      []string{"editor", "publisher", "administrator"},
			TimeoutDays:       7,
		},
		"legal": {
			RequiredApprovals: 2,
			AllowedRoles:      []string{"publisher", "administrator"},
			TimeoutDays:       14,
		},
	}
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//   - SERVER_HTTP_PORT: HTTP server port (default: 8420)
//   - SERVER_SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 10s)
//   - OTEL_ENABLE: Enable OpenTelemetry (default: false)
//   - OTEL_SERVICE_NAME: Service name for traces (default: contentd)
//   - LOG_LEVEL / LOG_FORMAT: logger level and encoder (default: info / json)
//   - PUBLISHING_AUTO_SELECTION: Let the selector choose strategies (default: true)
//   - PUBLISHING_FALLBACK_ENABLED: Retry with the fallback strategy (default: true)
//   - PUBLISHING_DEFAULT_STRATEGY / PUBLISHING_FALLBACK_STRATEGY (default: immediate)
//   - SCHEDULING_MAX_PENDING: Maximum pending scheduled publications (default: 1000)
//   - SCHEDULING_WORKERS: Delayed task worker count (default: 4)
//   - EVENTS_NATS_URL: NATS server for event delivery (default: disabled)
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("Server port:", cfg.Server.Port)
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HTTP_HOST", ""),
			Port:            getEnvInt("SERVER_HTTP_PORT", defaultPort),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", false),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", defaultServiceName),
			OTLPEndpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			LogLevel:        getEnvString("LOG_LEVEL", "info"),
			LogFormat:       getEnvString("LOG_FORMAT", "json"),
		},
		Publishing: PublishingConfig{
			AutoSelection:    getEnvBool("PUBLISHING_AUTO_SELECTION", true),
			FallbackEnabled:  getEnvBool("PUBLISHING_FALLBACK_ENABLED", true),
			DefaultStrategy:  getEnvString("PUBLISHING_DEFAULT_STRATEGY", defaultStrategy),
			FallbackStrategy: getEnvString("PUBLISHING_FALLBACK_STRATEGY", defaultStrategy),
			StrategyTimeout:  getEnvDuration("PUBLISHING_STRATEGY_TIMEOUT", defaultStrategyTimeout),
			EnforceTimeout:   getEnvBool("PUBLISHING_ENFORCE_TIMEOUT", false),
			MinBodyLength:    getEnvInt("PUBLISHING_MIN_BODY_LENGTH", defaultMinBodyLength),
			BatchParallel:    getEnvInt("PUBLISHING_BATCH_PARALLELISM", defaultBatchParallelism),
			DeepScan:         getEnvBool("PUBLISHING_DEEP_SCAN", false),
		},
		Scheduling: SchedulingConfig{
			MaxPending: getEnvInt("SCHEDULING_MAX_PENDING", defaultMaxPending),
			Workers:    getEnvInt("SCHEDULING_WORKERS", defaultWorkers),
			MinLead:    getEnvDuration("SCHEDULING_MIN_LEAD", defaultMinLead),
			MaxLead:    getEnvDuration("SCHEDULING_MAX_LEAD", defaultMaxLead),
		},
		Review: ReviewConfig{
			MaxReviewers:    getEnvInt("REVIEW_MAX_REVIEWERS", defaultMaxReviewers),
			DefaultCategory: getEnvString("REVIEW_DEFAULT_CATEGORY", defaultCategory),
			Categories:      DefaultCategories(),
			Reviewers:       parseReviewers(getEnvString("REVIEW_REVIEWERS", "")),
		},
		Events: EventsConfig{
			NATSURL:            getEnvString("EVENTS_NATS_URL", ""),
			NATSToken:          Secret(getEnvString("EVENTS_NATS_TOKEN", "")),
			SubjectPrefix:      getEnvString("EVENTS_SUBJECT_PREFIX", defaultSubjectPrefix),
			BreakerMaxFailures: getEnvInt("EVENTS_BREAKER_MAX_FAILURES", defaultBreakerFailures),
			BreakerTimeout:     getEnvDuration("EVENTS_BREAKER_TIMEOUT", defaultBreakerTimeout),
		},
		HTTP: HTTPConfig{
			RateLimit: getEnvFloat("HTTP_RATE_LIMIT", defaultRateLimit),
			Burst:     getEnvInt("HTTP_BURST", defaultBurst),
		},
	}

	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
//   - Scheduling lead window is empty or inverted
//   - A review category requires no approvals
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Publishing.DefaultStrategy == "" {
		return errors.New("publishing default strategy is required")
	}
	if c.Publishing.EnforceTimeout && c.Publishing.StrategyTimeout <= 0 {
		return errors.New("strategy timeout must be positive when enforced")
	}

	if c.Scheduling.Workers < 1 {
		return fmt.Errorf("scheduling workers must be >= 1, got %d", c.Scheduling.Workers)
	}
	if c.Scheduling.MaxPending < 1 {
		return fmt.Errorf("scheduling max pending must be >= 1, got %d", c.Scheduling.MaxPending)
	}
	if c.Scheduling.MinLead < 0 || c.Scheduling.MaxLead <= c.Scheduling.MinLead {
		return fmt.Errorf("invalid scheduling window: min %s, max %s", c.Scheduling.MinLead, c.Scheduling.MaxLead)
	}

	if c.Review.MaxReviewers < 1 {
		return fmt.Errorf("review max reviewers must be >= 1, got %d", c.Review.MaxReviewers)
	}
	for name, cat := range c.Review.Categories {
		if cat.RequiredApprovals < 1 {
			return fmt.Errorf("review category %q: required approvals must be >= 1", name)
		}
		if cat.RequiredApprovals > c.Review.MaxReviewers {
			return fmt.Errorf("review category %q: required approvals %d exceeds max reviewers %d",
				name, cat.RequiredApprovals, c.Review.MaxReviewers)
		}
	}

	if c.HTTP.RateLimit < 0 {
		return errors.New("http rate limit cannot be negative")
	}

	return nil
}

// parseReviewers parses "id:role,id:role" into reviewer entries.
func parseReviewers(raw string) []ReviewerConfig {
	if raw == "" {
		return nil
	}
	var out []ReviewerConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, role, found := strings.Cut(part, ":")
		if !found {
			role = "editor"
		}
		out = append(out, ReviewerConfig{ID: id, Name: id, Role: role})
	}
	return out
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
