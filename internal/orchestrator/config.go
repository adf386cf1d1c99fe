package orchestrator

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// DefaultStrategyTimeout is the advisory per-attempt timeout.
const DefaultStrategyTimeout = 30 * time.Second

// Config controls strategy resolution and fallback.
type Config struct {
	// AutoSelection consults the selector. When false the pinned strategy
	// is used.
	AutoSelection bool
	// FallbackEnabled allows one substitution with FallbackStrategy after a
	// failed attempt.
	FallbackEnabled bool
	// DefaultStrategy is used when the selector returns nothing usable and
	// is the initial pinned strategy.
	DefaultStrategy string
	// FallbackStrategy may never be unregistered.
	FallbackStrategy string
	// StrategyTimeout bounds each attempt when EnforceTimeout is set.
	StrategyTimeout time.Duration
	EnforceTimeout  bool
	// MaxAttempts caps attempts per publish, primary included.
	MaxAttempts int
}

// DefaultConfig returns automatic selection with immediate as default and
// fallback.
func DefaultConfig() Config {
	return Config{
		AutoSelection:    true,
		FallbackEnabled:  true,
		DefaultStrategy:  publish.NameImmediate,
		FallbackStrategy: publish.NameImmediate,
		StrategyTimeout:  DefaultStrategyTimeout,
		MaxAttempts:      2,
	}
}

// FromConfig converts the publishing config section.
func FromConfig(pc config.PublishingConfig) Config {
	cfg := DefaultConfig()
	cfg.AutoSelection = pc.AutoSelection
	cfg.FallbackEnabled = pc.FallbackEnabled
	cfg.EnforceTimeout = pc.EnforceTimeout
	if pc.DefaultStrategy != "" {
		cfg.DefaultStrategy = pc.DefaultStrategy
	}
	if pc.FallbackStrategy != "" {
		cfg.FallbackStrategy = pc.FallbackStrategy
	}
	if pc.StrategyTimeout > 0 {
		cfg.StrategyTimeout = pc.StrategyTimeout
	}
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultStrategy == "" {
		return fmt.Errorf("default strategy is required")
	}
	if c.FallbackEnabled && c.FallbackStrategy == "" {
		return fmt.Errorf("fallback strategy is required when fallback is enabled")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.EnforceTimeout && c.StrategyTimeout <= 0 {
		return fmt.Errorf("strategy timeout must be positive when enforced")
	}
	return nil
}
