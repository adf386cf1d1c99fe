package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/publish"
	"github.com/fyrsmithlabs/contentd/internal/telemetry"
)

// Registration errors.
var (
	ErrUnknownStrategy   = errors.New("strategy not registered")
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrProtectedStrategy = errors.New("default and fallback strategies cannot be unregistered")
	ErrNoStrategy        = errors.New("no usable strategy")
)

// Stage is where an attempt ended.
type Stage string

const (
	StageValidate Stage = "validate"
	StagePublish  Stage = "publish"
)

// Attempt is the outcome of running one strategy.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// OK reports whether the attempt succeeded.
func (a Attempt) OK() bool { return a.Err == nil }

// AttemptObserver receives every attempt as it completes.
type AttemptObserver func(item content.Item, attempt Attempt)

// Result describes a PublishContent call.
type Result struct {
	// Strategy is the strategy that succeeded, or the last one tried.
	Strategy     string        `json:"strategy"`
	Attempts     []Attempt     `json:"attempts"`
	FallbackUsed bool          `json:"fallback_used"`
	Duration     time.Duration `json:"duration"`
	// Estimate is the strategy's own prediction of time to publication,
	// zero when unknown.
	Estimate time.Duration `json:"estimate,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSelector replaces the default rule-based selector.
func WithSelector(s Selector) Option {
	return func(o *Orchestrator) { o.selector = s }
}

// WithTelemetry sets the tracer and meter source.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) { o.tel = t }
}

// WithTracker replaces the performance tracker.
func WithTracker(t *PerformanceTracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithClock pins the clock used for timestamps and selection.
func WithClock(c publish.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// OnAttempt registers an observer called after every attempt.
func OnAttempt(fn AttemptObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// Orchestrator resolves and runs publishing strategies.
type Orchestrator struct {
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	tracer   trace.Tracer
	ins      instruments
	clock    publish.Clock
	selector Selector
	tracker  *PerformanceTracker
	observer AttemptObserver
	usage    usageTable

	cfgMu  sync.RWMutex
	cfg    Config
	pinned string

	smu        sync.RWMutex
	strategies map[string]publish.Strategy
}

// New creates an orchestrator. Strategies are added with Register.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	o := &Orchestrator{
		cfg:        cfg,
		pinned:     cfg.DefaultStrategy,
		strategies: make(map[string]publish.Strategy),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger).Named("orchestrator")
	if o.selector == nil {
		o.selector = DefaultSelector{Clock: o.clock}
	}
	if o.tracker == nil {
		o.tracker = NewPerformanceTracker(DefaultPerformanceWindow)
	}
	o.tracer = o.tel.Tracer(instrumentationName)
	o.ins = newInstruments(o.tel.Meter(instrumentationName), o.logger)
	return o, nil
}

// Register adds s under its name.
func (o *Orchestrator) Register(s publish.Strategy) error {
	if s == nil {
		return fmt.Errorf("%w: strategy", publish.ErrNilArgument)
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("strategy name is required")
	}
	o.smu.Lock()
	defer o.smu.Unlock()
	if _, ok := o.strategies[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	o.strategies[name] = s
	o.logger.Debug(context.Background(), "strategy registered",
		zap.String("strategy", name), zap.Int("priority", s.Priority()))
	return nil
}

// Unregister removes name. The configured default and fallback strategies
// are protected. A pinned strategy that is removed reverts to the default.
func (o *Orchestrator) Unregister(name string) error {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	if name == o.cfg.DefaultStrategy || name == o.cfg.FallbackStrategy {
		return fmt.Errorf("%w: %s", ErrProtectedStrategy, name)
	}

	o.smu.Lock()
	_, ok := o.strategies[name]
	delete(o.strategies, name)
	o.smu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	if o.pinned == name {
		o.pinned = o.cfg.DefaultStrategy
	}
	o.logger.Debug(context.Background(), "strategy unregistered", zap.String("strategy", name))
	return nil
}

// Strategy returns the strategy registered as name.
func (o *Orchestrator) Strategy(name string) (publish.Strategy, bool) {
	o.smu.RLock()
	defer o.smu.RUnlock()
	s, ok := o.strategies[name]
	return s, ok
}

// Strategies describes every registered strategy, highest priority first.
func (o *Orchestrator) Strategies() []publish.Info {
	o.smu.RLock()
	out := make([]publish.Info, 0, len(o.strategies))
	for _, s := range o.strategies {
		out = append(out, publish.Describe(s))
	}
	o.smu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (o *Orchestrator) names() []string {
	o.smu.RLock()
	defer o.smu.RUnlock()
	out := make([]string, 0, len(o.strategies))
	for name := range o.strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Pin sets the strategy used when automatic selection is off.
func (o *Orchestrator) Pin(name string) error {
	if _, ok := o.Strategy(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	o.cfgMu.Lock()
	o.pinned = name
	o.cfgMu.Unlock()
	return nil
}

// Pinned returns the manually pinned strategy name.
func (o *Orchestrator) Pinned() string {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.pinned
}

// SetAutoSelection toggles the selector.
func (o *Orchestrator) SetAutoSelection(enabled bool) {
	o.cfgMu.Lock()
	o.cfg.AutoSelection = enabled
	o.cfgMu.Unlock()
}

// Config returns a copy of the current configuration.
func (o *Orchestrator) Config() Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// Stats returns name's usage counters.
func (o *Orchestrator) Stats(name string) (UsageStats, bool) {
	return o.usage.get(name)
}

// AllStats returns usage counters for every strategy ever attempted.
func (o *Orchestrator) AllStats() []UsageStats {
	return o.usage.all()
}

// Performance returns name's recent performance window.
func (o *Orchestrator) Performance(name string) Performance {
	return o.tracker.Get(name)
}

// resolve picks the first strategy to try.
func (o *Orchestrator) resolve(ctx context.Context, item content.Item, req *publish.Request) (string, error) {
	cfg := o.Config()
	name := o.Pinned()
	if cfg.AutoSelection {
		name = o.selector.Select(item, req, o.names(), o.tracker.Snapshot())
	}
	if _, ok := o.Strategy(name); ok {
		return name, nil
	}
	if name != "" {
		o.logger.Warn(ctx, "selected strategy not registered, using default",
			zap.String("strategy", name), zap.String("default", cfg.DefaultStrategy))
	}
	if _, ok := o.Strategy(cfg.DefaultStrategy); ok {
		return cfg.DefaultStrategy, nil
	}
	return "", publish.NoStrategy("orchestrator.resolve", item.ID(),
		fmt.Errorf("%w: selected %q, default %q", ErrNoStrategy, name, cfg.DefaultStrategy))
}

// PublishContent resolves a strategy and runs it, substituting the fallback
// strategy at most once per fallback name when an attempt fails. The
// returned error is the last attempt's *publish.Error.
func (o *Orchestrator) PublishContent(ctx context.Context, item content.Item, req *publish.Request) (*Result, error) {
	if err := publish.RequireArgs("orchestrator.publish", item, req); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = logging.WithContentID(ctx, item.ID())
	if id := req.Actor().ID; id != "" {
		ctx = logging.WithActorID(ctx, id)
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.publish", trace.WithAttributes(
		attribute.String("content.id", item.ID()),
		attribute.String("actor.role", req.Actor().Role.String()),
		attribute.String("request.priority", req.Priority.String()),
	))
	defer span.End()

	result := &Result{}
	defer func() { result.Duration = time.Since(start) }()

	name, err := o.resolve(ctx, item, req)
	if err != nil {
		o.logger.Error(ctx, "no publishing strategy available", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no strategy")
		return result, err
	}

	cfg := o.Config()
	tried := make(map[string]bool, cfg.MaxAttempts)
	var last error
	for len(result.Attempts) < cfg.MaxAttempts {
		s, ok := o.Strategy(name)
		if !ok {
			o.logger.Warn(ctx, "fallback strategy not registered", zap.String("strategy", name))
			break
		}
		tried[name] = true
		result.Strategy = name

		a := o.attempt(ctx, s, item, req, cfg)
		result.Attempts = append(result.Attempts, a)
		if a.OK() {
			if est, known := publish.EstimateDuration(s, item, req); known {
				result.Estimate = est
			}
			span.SetAttributes(
				attribute.String("strategy", name),
				attribute.Bool("fallback_used", result.FallbackUsed),
			)
			return result, nil
		}
		last = a.Err

		next := cfg.FallbackStrategy
		if !cfg.FallbackEnabled || next == "" || tried[next] || ctx.Err() != nil {
			break
		}
		o.logger.Warn(ctx, "strategy failed, falling back",
			zap.String("strategy", name),
			zap.String("fallback", next),
			zap.String("kind", publish.KindOf(a.Err).String()),
			zap.Error(a.Err))
		StrategyFallbacks.WithLabelValues(name, next).Inc()
		result.FallbackUsed = true
		name = next
	}

	span.SetAttributes(attribute.String("strategy", result.Strategy))
	span.RecordError(last)
	span.SetStatus(codes.Error, publish.KindOf(last).String())
	o.logger.Info(ctx, "publish failed",
		zap.String("strategy", result.Strategy),
		zap.Int("attempts", len(result.Attempts)),
		zap.Error(last))
	return result, last
}

// attempt runs one strategy. The deferred block records stats and metrics
// on every path, panics included.
func (o *Orchestrator) attempt(ctx context.Context, s publish.Strategy, item content.Item, req *publish.Request, cfg Config) (a Attempt) {
	name := s.Name()
	a.Strategy = name
	a.Stage = StageValidate
	ctx, span := o.tracer.Start(ctx, "orchestrator.attempt",
		trace.WithAttributes(attribute.String("strategy", name)))
	start := time.Now()

	defer func() {
		outcome := "success"
		if r := recover(); r != nil {
			outcome = "panic"
			a.Err = publish.Execution("orchestrator.attempt", item.ID(), "",
				fmt.Errorf("strategy %s panicked: %v", name, r)).WithStrategy(name)
			o.logger.Error(ctx, "strategy panicked",
				zap.String("strategy", name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		} else if a.Err != nil {
			outcome = publish.KindOf(a.Err).String()
		}
		a.Duration = time.Since(start)
		o.record(ctx, name, a.Duration, outcome)

		span.SetAttributes(
			attribute.String("stage", string(a.Stage)),
			attribute.String("outcome", outcome),
		)
		if a.Err != nil {
			span.RecordError(a.Err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()

		if !cfg.EnforceTimeout && cfg.StrategyTimeout > 0 && a.Duration > cfg.StrategyTimeout {
			o.logger.Warn(ctx, "strategy exceeded advisory timeout",
				zap.String("strategy", name),
				zap.Duration("duration", a.Duration),
				zap.Duration("timeout", cfg.StrategyTimeout))
		}
		if o.observer != nil {
			o.observer(item, a)
		}
	}()

	if cfg.EnforceTimeout && cfg.StrategyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StrategyTimeout)
		defer cancel()
	}

	if err := s.Validate(ctx, item, req); err != nil {
		a.Err = publish.Wrap(err, publish.KindValidation, "orchestrator.validate", item.ID(), name)
		o.logger.Debug(ctx, "strategy validation failed", zap.String("strategy", name), zap.Error(err))
		return a
	}
	a.Stage = StagePublish
	if err := s.Publish(ctx, item, req); err != nil {
		a.Err = publish.Wrap(err, publish.KindExecution, "orchestrator.publish", item.ID(), name)
		o.logger.Warn(ctx, "strategy execution failed", zap.String("strategy", name), zap.Error(err))
		return a
	}
	o.logger.Debug(ctx, "strategy succeeded", zap.String("strategy", name))
	return a
}

func (o *Orchestrator) record(ctx context.Context, name string, d time.Duration, outcome string) {
	ok := outcome == "success"
	o.usage.record(name, d, ok, o.clock.Now())
	o.tracker.Record(name, d, ok)

	StrategyAttempts.WithLabelValues(name, outcome).Inc()
	StrategyDuration.WithLabelValues(name).Observe(d.Seconds())

	attrs := metric.WithAttributes(
		attribute.String("strategy", name),
		attribute.String("outcome", outcome),
	)
	if o.ins.attempts != nil {
		o.ins.attempts.Add(ctx, 1, attrs)
	}
	if o.ins.duration != nil {
		o.ins.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("strategy", name)))
	}
}
