package publish

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/secrets"
)

// DefaultBatchParallelism bounds concurrent item publishes in a batch.
const DefaultBatchParallelism = 4

// Option configures the strategies in this package. Options a strategy does
// not use are ignored.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	sink        events.Sink
	clock       Clock
	minBody     int
	scanner     *secrets.Scanner
	parallelism int
}

func newOptions(name string, opts []Option) options {
	o := options{
		minBody:     DefaultMinBodyLength,
		parallelism: DefaultBatchParallelism,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger).Named(name)
	if o.sink == nil {
		o.sink = events.Discard
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSink sets the event sink.
func WithSink(s events.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithClock pins the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMinBodyLength overrides DefaultMinBodyLength. Zero disables the check.
func WithMinBodyLength(n int) Option {
	return func(o *options) { o.minBody = n }
}

// WithScanner sets the credential scanner used by the auto strategy.
func WithScanner(s *secrets.Scanner) Option {
	return func(o *options) { o.scanner = s }
}

// WithParallelism bounds concurrent publishes in a batch. Values below 1
// select DefaultBatchParallelism.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = DefaultBatchParallelism
		}
		o.parallelism = n
	}
}

// MarkPublished moves item to Published. For content already published it
// only touches the modification fields and reports republished. The
// published timestamp is set only when previously unset.
func MarkPublished(item content.Item, by string, now time.Time) (republished bool, err error) {
	if item.Status() == content.StatusPublished {
		item.Touch(by, now)
		return true, nil
	}
	if err := item.SetStatus(content.StatusPublished); err != nil {
		return false, err
	}
	if _, ok := item.PublishedAt(); !ok {
		item.SetPublishedAt(now)
	}
	item.Touch(by, now)
	item.ClearSchedule()
	return false, nil
}

// publishNow runs the synchronous publish path shared by immediate, auto and
// batch. Event delivery is best effort.
func (o *options) publishNow(ctx context.Context, op, strategy string, item content.Item, req *Request) error {
	actor := req.Actor()
	republished, err := MarkPublished(item, actor.ID, o.clock.Now())
	if err != nil {
		o.logger.Error(ctx, "publish mutation failed",
			zap.String("content.id", item.ID()),
			zap.String("status", string(item.Status())),
			zap.Error(err))
		return Execution(op, item.ID(), "The content could not be published. Please try again.", err).
			WithStrategy(strategy)
	}

	typ := events.TypePublished
	if republished {
		typ = events.TypeRepublished
	}
	events.Emit(ctx, o.sink, o.logger, events.New(typ, item.ID(),
		events.MetaStrategy, strategy,
		events.MetaActor, actor.ID,
		events.MetaComment, req.Comment))

	o.logger.Info(ctx, "content published",
		zap.String("content.id", item.ID()),
		zap.String("strategy", strategy),
		zap.Bool("republished", republished),
		zap.String("environment", req.Environment),
		zap.String("channel", req.Channel))
	return nil
}
