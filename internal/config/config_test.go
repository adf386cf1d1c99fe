package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Publishing.AutoSelection)
	assert.True(t, cfg.Publishing.FallbackEnabled)
	assert.Equal(t, "immediate", cfg.Publishing.DefaultStrategy)
	assert.False(t, cfg.Publishing.EnforceTimeout)
	assert.Equal(t, time.Minute, cfg.Scheduling.MinLead)
	assert.Equal(t, 365*24*time.Hour, cfg.Scheduling.MaxLead)
	assert.Contains(t, cfg.Review.Categories, "general")
	assert.Empty(t, cfg.Events.NATSURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "9191")
	t.Setenv("PUBLISHING_FALLBACK_ENABLED", "false")
	t.Setenv("SCHEDULING_WORKERS", "8")
	t.Setenv("REVIEW_REVIEWERS", "alice:publisher, bob")
	t.Setenv("EVENTS_NATS_TOKEN", "s3cret")
	t.Setenv("HTTP_RATE_LIMIT", "2.5")

	cfg := Load()

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.False(t, cfg.Publishing.FallbackEnabled)
	assert.Equal(t, 8, cfg.Scheduling.Workers)
	require.Len(t, cfg.Review.Reviewers, 2)
	assert.Equal(t, ReviewerConfig{ID: "alice", Name: "alice", Role: "publisher"}, cfg.Review.Reviewers[0])
	assert.Equal(t, "editor", cfg.Review.Reviewers[1].Role)
	assert.Equal(t, "s3cret", cfg.Events.NATSToken.Value())
	assert.Equal(t, "[REDACTED]", cfg.Events.NATSToken.String())
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimit, 0.001)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "not-a-number")
	t.Setenv("PUBLISHING_STRATEGY_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Publishing.StrategyTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"zero shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"telemetry without name", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, "service name"},
		{"no default strategy", func(c *Config) { c.Publishing.DefaultStrategy = "" }, "default strategy"},
		{"enforced zero timeout", func(c *Config) {
			c.Publishing.EnforceTimeout = true
			c.Publishing.StrategyTimeout = 0
		}, "strategy timeout"},
		{"no workers", func(c *Config) { c.Scheduling.Workers = 0 }, "workers"},
		{"inverted window", func(c *Config) { c.Scheduling.MaxLead = time.Second }, "scheduling window"},
		{"zero approvals", func(c *Config) {
			c.Review.Categories["general"] = CategoryConfig{RequiredApprovals: 0}
		}, "required approvals"},
		{"approvals above reviewers", func(c *Config) {
			c.Review.Categories["general"] = CategoryConfig{RequiredApprovals: 9}
		}, "exceeds max reviewers"},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -1 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("token-123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(b))
	assert.True(t, s.IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("later")))
}
