package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

// ItemSource resolves content ids. content.Repository satisfies it.
type ItemSource interface {
	Get(ctx context.Context, id string) (content.Item, error)
}

// BatchStrategy publishes the anchor item together with every id listed in
// the PropBatchItems property. Items are published with bounded parallelism;
// items that succeed stay published when others fail.
type BatchStrategy struct {
	opts   options
	rules  Rules
	source ItemSource
}

// NewBatchStrategy creates a BatchStrategy resolving ids through source.
func NewBatchStrategy(source ItemSource, opts ...Option) *BatchStrategy {
	o := newOptions(NameBatch, opts)
	return &BatchStrategy{
		opts:   o,
		source: source,
		rules: Rules{
			MinRole:       content.RoleEditor,
			Statuses:      []content.Status{content.StatusDraft, content.StatusReview, content.StatusPublished},
			MinBodyLength: o.minBody,
		},
	}
}

func (s *BatchStrategy) Name() string  { return NameBatch }
func (s *BatchStrategy) Priority() int { return 40 }

// Capabilities reports batch support.
func (s *BatchStrategy) Capabilities() Capabilities {
	return Capabilities{SupportsBatch: true}
}

// Validate checks the anchor against the base rules, then resolves every
// listed id and checks its fields and status.
func (s *BatchStrategy) Validate(ctx context.Context, item content.Item, req *Request) error {
	const op = "batch.validate"
	if err := s.rules.Check(op, item, req); err != nil {
		return tag(err, NameBatch)
	}
	items, err := s.resolve(ctx, op, item, req)
	if err != nil {
		return tag(err, NameBatch)
	}
	for _, it := range items[1:] {
		if err := CheckFields(op, it); err != nil {
			return tag(err, NameBatch)
		}
		if err := CheckStatus(op, it, s.rules.Statuses...); err != nil {
			return tag(err, NameBatch)
		}
	}
	return nil
}

// resolve returns the anchor followed by the listed items, deduplicated.
func (s *BatchStrategy) resolve(ctx context.Context, op string, anchor content.Item, req *Request) ([]content.Item, error) {
	ids := req.ListProperty(PropBatchItems)
	if len(ids) == 0 {
		return nil, Validation(op, anchor.ID(), "Batch publishing needs at least one additional item.",
			fmt.Errorf("%w: %s is empty", ErrMissingBatchItems, PropBatchItems))
	}
	if s.source == nil {
		return nil, Validation(op, anchor.ID(), "Batch publishing is not available.",
			fmt.Errorf("%w: item source", ErrNilArgument))
	}

	seen := map[string]struct{}{anchor.ID(): {}}
	items := []content.Item{anchor}
	var missing []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		it, err := s.source.Get(ctx, id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		items = append(items, it)
	}
	if len(missing) > 0 {
		return nil, Validation(op, anchor.ID(),
			"Some batch items do not exist: "+strings.Join(missing, ", "),
			fmt.Errorf("%w: %s", ErrBatchItemsNotFound, strings.Join(missing, ",")))
	}
	return items, nil
}

// Publish publishes every item. Per-item failures are collected into a single
// KindExecution error listing the failed ids.
func (s *BatchStrategy) Publish(ctx context.Context, item content.Item, req *Request) error {
	const op = "batch.publish"
	if err := RequireArgs(op, item, req); err != nil {
		return tag(err, NameBatch)
	}
	items, err := s.resolve(ctx, op, item, req)
	if err != nil {
		return tag(err, NameBatch)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		failed []string
		sem    = make(chan struct{}, s.opts.parallelism)
	)
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, id)
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}

	for _, it := range items {
		select {
		case <-ctx.Done():
			fail(it.ID(), ctx.Err())
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(it content.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.opts.publishNow(ctx, op, NameBatch, it, req); err != nil {
				fail(it.ID(), err)
			}
		}(it)
	}
	wg.Wait()

	if len(failed) == 0 {
		s.opts.logger.Info(ctx, "batch published",
			zap.String("content.id", item.ID()),
			zap.Int("items", len(items)))
		return nil
	}

	sort.Strings(failed)
	s.opts.logger.Warn(ctx, "batch partially failed",
		zap.String("content.id", item.ID()),
		zap.Int("items", len(items)),
		zap.Strings("failed", failed))
	return Execution(op, item.ID(),
		fmt.Sprintf("%d of %d items could not be published: %s", len(failed), len(items), strings.Join(failed, ", ")),
		errors.Join(errs...)).WithStrategy(NameBatch)
}

// EstimateDuration scales the immediate estimate by item count and parallelism.
func (s *BatchStrategy) EstimateDuration(_ content.Item, req *Request) (time.Duration, bool) {
	n := len(req.ListProperty(PropBatchItems)) + 1
	waves := (n + s.opts.parallelism - 1) / s.opts.parallelism
	return time.Duration(waves) * immediateEstimate, true
}

var (
	_ Strategy           = (*BatchStrategy)(nil)
	_ CapabilityReporter = (*BatchStrategy)(nil)
	_ DurationEstimator  = (*BatchStrategy)(nil)
)
