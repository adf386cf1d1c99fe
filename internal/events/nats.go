package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
)

// NATSConfig configures NATS event delivery.
type NATSConfig struct {
	// SubjectPrefix is prepended to the event type: "<prefix>.<type>".
	SubjectPrefix string
	// BreakerMaxFailures is the number of consecutive publish failures that
	// opens the circuit.
	BreakerMaxFailures uint32
	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration
}

func (c *NATSConfig) applyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "contentd.events"
	}
	if c.BreakerMaxFailures == 0 {
		c.BreakerMaxFailures = 5
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Connect dials NATS with reconnect behavior suitable for a long-running
// daemon. token may be empty.
func Connect(url, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("contentd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSSink publishes events as JSON to "<prefix>.<type>" subjects. A
// circuit breaker stops hammering an unavailable broker; while open, Notify
// fails fast with gobreaker.ErrOpenState.
type NATSSink struct {
	nc      *nats.Conn
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// NewNATSSink creates a sink on an existing connection. The caller owns nc.
func NewNATSSink(nc *nats.Conn, cfg NATSConfig) *NATSSink {
	cfg.applyDefaults()
	maxFailures := cfg.BreakerMaxFailures

	settings := gobreaker.Settings{
		Name:        "nats-events",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}

	return &NATSSink{
		nc:      nc,
		prefix:  strings.TrimSuffix(cfg.SubjectPrefix, "."),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(t Type) string {
	return s.prefix + "." + string(t)
}

// Notify publishes e.
func (s *NATSSink) Notify(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.nc.Publish(s.Subject(e.Type), data)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", s.Subject(e.Type), err)
	}
	return nil
}

// BreakerState reports the circuit state ("closed", "half-open", "open").
func (s *NATSSink) BreakerState() string {
	return s.breaker.State().String()
}
