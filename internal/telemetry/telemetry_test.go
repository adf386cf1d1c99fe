package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricAttrs(strategy, outcome string) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "collector.example.com:4317"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err, "insecure remote endpoint must be rejected")
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Degraded)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"enabled ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"no endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, true},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"remote tls ok", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com"
			c.Insecure = false
		}, false},
		{"bad rate", func(c *Config) { c.Enabled = true; c.Sampling.Rate = 2 }, true},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.Shutdown.Timeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "contentd-edge",
		OTLPEndpoint:    "https://otel.example.com",
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "contentd-edge", cfg.ServiceName)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.False(t, cfg.Insecure)
	require.NoError(t, cfg.Validate())
}

func TestTestTelemetry_SpansAndCounters(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "orchestrator.publish")
	span.SetAttributes(attribute.String("strategy", "immediate"))
	span.End()

	tel.AssertSpanExists(t, "orchestrator.publish")
	tel.AssertSpanAttribute(t, "orchestrator.publish", "strategy", "immediate")

	counter, err := tel.Meter("test").Int64Counter("attempts")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("immediate", "success"))
	counter.Add(ctx, 1, metricAttrs("review", "failure"))

	assert.Equal(t, int64(3), tel.CounterValue(ctx, "attempts"))
	assert.Equal(t, int64(2), tel.CounterValue(ctx, "attempts", attribute.String("strategy", "immediate")))
	assert.Equal(t, int64(0), tel.CounterValue(ctx, "missing"))
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, isLocalEndpoint("localhost:4317"))
	assert.True(t, isLocalEndpoint("127.0.0.1:4317"))
	assert.True(t, isLocalEndpoint("http://127.0.0.2:4318"))
	assert.True(t, isLocalEndpoint("[::1]:4317"))
	assert.False(t, isLocalEndpoint("10.0.0.1:4317"))
	assert.False(t, isLocalEndpoint("otel.example.com:4317"))
}
