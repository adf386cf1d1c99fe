// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic correlation fields (trace_id, actor.id, content.id, request.id)
//   - Key and pattern based secret redaction
//   - Sampling below Error (errors are never sampled)
//
// # Usage
//
//	cfg, err := logging.FromObservability(appCfg.Observability)
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	defer logger.Sync()
//
//	ctx = logging.WithActorID(ctx, actor.ID)
//	ctx = logging.WithContentID(ctx, item.ID())
//	logger.Info(ctx, "content published", zap.String("strategy", "immediate"))
//
// Components take a *Logger at construction; nil means NewNop().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	svc := review.NewWorkflow(cfg, assigner, review.WithLogger(tl.Logger))
//	tl.AssertLogged(t, zapcore.InfoLevel, "review case approved")
package logging
