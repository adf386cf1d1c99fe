package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/orchestrator"
	"github.com/fyrsmithlabs/contentd/internal/publish"
	"github.com/fyrsmithlabs/contentd/internal/review"
	"github.com/fyrsmithlabs/contentd/internal/scheduling"
	"github.com/fyrsmithlabs/contentd/internal/secrets"
	"github.com/fyrsmithlabs/contentd/internal/telemetry"
)

// engine holds the wired publishing components.
type engine struct {
	logger    *logging.Logger
	repo      *content.MemoryRepository
	sink      events.Sink
	nc        *nats.Conn
	registry  *scheduling.Registry
	scheduler *scheduling.Strategy
	pool      *review.PoolAssigner
	workflow  *review.Workflow
	review    *review.Strategy
	orch      *orchestrator.Orchestrator
}

// buildEngine wires sinks, the five strategies and the orchestrator.
func buildEngine(cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (*engine, error) {
	eng := &engine{
		logger: logger,
		repo:   content.NewMemoryRepository(),
	}

	sink, nc, err := buildSink(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	eng.sink, eng.nc = sink, nc

	pub := cfg.Publishing
	common := []publish.Option{
		publish.WithLogger(logger),
		publish.WithSink(sink),
		publish.WithMinBodyLength(pub.MinBodyLength),
	}
	immediate := publish.NewImmediateStrategy(common...)
	autoOpts := common
	if pub.DeepScan {
		scanner, err := secrets.NewScanner(secrets.WithGitleaks())
		if err != nil {
			return nil, fmt.Errorf("creating credential scanner: %w", err)
		}
		autoOpts = append(autoOpts[:len(autoOpts):len(autoOpts)], publish.WithScanner(scanner))
	}
	auto := publish.NewAutoStrategy(autoOpts...)
	batch := publish.NewBatchStrategy(eng.repo, append(common, publish.WithParallelism(pub.BatchParallel))...)

	eng.registry = scheduling.NewRegistry(
		scheduling.WithRegistryLogger(logger),
		scheduling.WithMaxPending(cfg.Scheduling.MaxPending),
		scheduling.WithWorkers(cfg.Scheduling.Workers),
	)
	eng.scheduler = scheduling.NewStrategy(eng.registry,
		scheduling.WithLogger(logger),
		scheduling.WithSink(sink),
		scheduling.WithLeadWindow(cfg.Scheduling.MinLead, cfg.Scheduling.MaxLead),
		scheduling.WithMinBodyLength(pub.MinBodyLength),
	)

	rcfg, reviewers, err := review.FromConfig(cfg.Review)
	if err != nil {
		eng.Close(context.Background())
		return nil, fmt.Errorf("invalid review config: %w", err)
	}
	eng.pool = review.NewPoolAssigner(reviewers...)
	eng.workflow, err = review.NewWorkflow(rcfg,
		review.WithAssigner(eng.pool),
		review.WithWorkflowLogger(logger))
	if err != nil {
		eng.Close(context.Background())
		return nil, err
	}
	eng.review = review.NewStrategy(eng.workflow,
		review.WithLogger(logger),
		review.WithSink(sink),
		review.WithMinBodyLength(pub.MinBodyLength))

	eng.orch, err = orchestrator.New(orchestrator.FromConfig(pub),
		orchestrator.WithLogger(logger),
		orchestrator.WithTelemetry(tel),
		orchestrator.OnAttempt(eng.observe))
	if err != nil {
		eng.Close(context.Background())
		return nil, err
	}
	for _, s := range []publish.Strategy{immediate, eng.scheduler, eng.review, auto, batch} {
		if err := eng.orch.Register(s); err != nil {
			eng.Close(context.Background())
			return nil, err
		}
	}
	logger.Info(context.Background(), "publishing engine ready",
		zap.Int("strategies", len(eng.orch.Strategies())),
		zap.Int("reviewers", len(reviewers)),
		zap.Bool("nats", nc != nil))
	return eng, nil
}

// observe logs failed attempts and, once content is published by one
// strategy, drops whatever another strategy still holds for it: a pending
// scheduled task or an open review case.
func (e *engine) observe(item content.Item, a orchestrator.Attempt) {
	ctx := context.Background()
	if !a.OK() {
		e.logger.Debug(ctx, "strategy attempt failed",
			zap.String("content.id", item.ID()),
			zap.String("strategy", a.Strategy),
			zap.String("stage", string(a.Stage)),
			zap.String("user_message", publish.UserMessageOf(a.Err)))
		return
	}
	if a.Stage != orchestrator.StagePublish || item.Status() != content.StatusPublished {
		return
	}
	if a.Strategy != e.scheduler.Name() {
		if _, pending := e.registry.Get(item.ID()); pending {
			e.scheduler.CancelScheduledPublishing(ctx, item.ID())
		}
	}
	if a.Strategy != e.review.Name() {
		e.workflow.Resolve(ctx, item.ID(), a.Strategy)
	}
}

// buildSink always logs events and additionally publishes them to NATS when
// a URL is configured.
func buildSink(ec config.EventsConfig, logger *logging.Logger) (events.Sink, *nats.Conn, error) {
	logSink := events.NewLogSink(logger)
	if ec.NATSURL == "" {
		return logSink, nil, nil
	}
	nc, err := events.Connect(ec.NATSURL, ec.NATSToken.Value())
	if err != nil {
		return nil, nil, err
	}
	natsSink := events.NewNATSSink(nc, events.NATSConfig{
		SubjectPrefix:      ec.SubjectPrefix,
		BreakerMaxFailures: uint32(ec.BreakerMaxFailures),
		BreakerTimeout:     ec.BreakerTimeout,
	})
	logger.Info(context.Background(), "publishing events to NATS",
		zap.String("url", ec.NATSURL),
		zap.String("subject", natsSink.Subject("*")),
		logging.Secret("token", ec.NATSToken))
	return events.Fanout{logSink, natsSink}, nc, nil
}

// applyConfig hot-swaps the review policy and reviewer pool. Other
// sections need a restart.
func (e *engine) applyConfig(cfg *config.Config) {
	ctx := context.Background()
	rcfg, reviewers, err := review.FromConfig(cfg.Review)
	if err != nil {
		e.logger.Warn(ctx, "review config reload rejected", zap.Error(err))
		return
	}
	if err := e.workflow.UpdateConfig(rcfg); err != nil {
		e.logger.Warn(ctx, "review config reload rejected", zap.Error(err))
		return
	}
	e.pool.SetReviewers(reviewers...)
	e.logger.Info(ctx, "review config reloaded",
		zap.Int("categories", len(rcfg.Categories)),
		zap.Int("reviewers", len(reviewers)))
}

// Close stops scheduled tasks and releases the NATS connection.
func (e *engine) Close(ctx context.Context) {
	if e.registry != nil {
		if err := e.registry.Shutdown(ctx); err != nil {
			e.logger.Warn(ctx, "scheduler shutdown incomplete", zap.Error(err))
		}
	}
	if e.nc != nil {
		if err := e.nc.Drain(); err != nil {
			e.nc.Close()
		}
	}
}
