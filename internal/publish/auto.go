package publish

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/secrets"
)

// Quality gate thresholds for auto publishing.
const (
	AutoMinTitleLength = 3
	AutoMaxTitleLength = 200
	AutoMinWordCount   = 20
)

// AutoStrategy publishes immediately without an editor when the request opts
// in with PropAutoPublish and the content passes hard quality gates. Force
// does not bypass the gates.
type AutoStrategy struct {
	opts    options
	rules   Rules
	scanner *secrets.Scanner
}

// NewAutoStrategy creates an AutoStrategy. Without WithScanner the default
// credential rule set is used.
func NewAutoStrategy(opts ...Option) *AutoStrategy {
	o := newOptions(NameAuto, opts)
	scanner := o.scanner
	if scanner == nil {
		scanner = secrets.MustNewScanner()
	}
	return &AutoStrategy{
		opts:    o,
		scanner: scanner,
		rules: Rules{
			MinRole:       content.RoleAuthor,
			Statuses:      []content.Status{content.StatusDraft, content.StatusReview, content.StatusPublished},
			MinBodyLength: o.minBody,
		},
	}
}

func (s *AutoStrategy) Name() string  { return NameAuto }
func (s *AutoStrategy) Priority() int { return 50 }

// Validate runs the base rules, the opt-in check and the quality gates.
func (s *AutoStrategy) Validate(_ context.Context, item content.Item, req *Request) error {
	const op = "auto.validate"
	if err := s.rules.Check(op, item, req); err != nil {
		return tag(err, NameAuto)
	}
	if !req.BoolProperty(PropAutoPublish) {
		return Validation(op, item.ID(), "Automatic publishing is not enabled for this request.",
			fmt.Errorf("%w: %s", ErrAutoPublishOff, PropAutoPublish)).WithStrategy(NameAuto)
	}
	return tag(s.checkQuality(op, item), NameAuto)
}

func (s *AutoStrategy) checkQuality(op string, item content.Item) error {
	title := strings.TrimSpace(item.Title())
	if n := utf8.RuneCountInString(title); n < AutoMinTitleLength || n > AutoMaxTitleLength {
		return Validation(op, item.ID(),
			fmt.Sprintf("Titles must be %d to %d characters for automatic publishing.", AutoMinTitleLength, AutoMaxTitleLength),
			fmt.Errorf("%w: title length %d", ErrQualityGate, n))
	}
	if n := len(strings.Fields(item.Body())); n < AutoMinWordCount {
		return Validation(op, item.ID(),
			fmt.Sprintf("Automatic publishing needs at least %d words.", AutoMinWordCount),
			fmt.Errorf("%w: word count %d", ErrQualityGate, n))
	}
	if report := s.scanner.Scan(title + "\n" + item.Body()); !report.Clean() {
		return Validation(op, item.ID(),
			"The content appears to contain credentials and cannot be published automatically.",
			fmt.Errorf("%w: credential rules matched: %s", ErrQualityGate, strings.Join(report.RuleIDs(), ",")))
	}
	return nil
}

// Publish marks item published.
func (s *AutoStrategy) Publish(ctx context.Context, item content.Item, req *Request) error {
	const op = "auto.publish"
	if err := RequireArgs(op, item, req); err != nil {
		return tag(err, NameAuto)
	}
	return s.opts.publishNow(ctx, op, NameAuto, item, req)
}

// EstimateDuration matches the immediate path.
func (s *AutoStrategy) EstimateDuration(content.Item, *Request) (time.Duration, bool) {
	return immediateEstimate, true
}

var (
	_ Strategy          = (*AutoStrategy)(nil)
	_ DurationEstimator = (*AutoStrategy)(nil)
)
