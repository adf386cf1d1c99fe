package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// GitleaksPrefix prefixes rule ids reported by the gitleaks detector.
const GitleaksPrefix = "gitleaks:"

// Finding is one detected credential. The matched text is deliberately absent.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Line        int      `json:"line"`
	Offset      int      `json:"offset"`
}

// Report is the outcome of one scan.
type Report struct {
	Findings []Finding     `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Clean reports whether nothing was found.
func (r *Report) Clean() bool {
	return r == nil || len(r.Findings) == 0
}

// RuleIDs returns the matched rule ids in sorted order.
func (r *Report) RuleIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Worst returns the most severe finding's severity, or "" when clean.
func (r *Report) Worst() Severity {
	var worst Severity
	for _, f := range r.Findings {
		switch {
		case f.Severity == SeverityHigh:
			return SeverityHigh
		case f.Severity == SeverityMedium:
			worst = SeverityMedium
		case worst == "":
			worst = f.Severity
		}
	}
	return worst
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// Scanner matches text against a compiled rule set. It is immutable after
// construction and safe for concurrent use.
type Scanner struct {
	rules []compiledRule
	allow []*regexp.Regexp

	// deepMu serializes the gitleaks detector, which keeps per-scan state.
	deepMu sync.Mutex
	deep   *detect.Detector
}

// Option configures a Scanner.
type Option func(*scannerOptions)

type scannerOptions struct {
	rules    []Rule
	allow    []string
	gitleaks bool
}

// WithRules replaces the default rule set.
func WithRules(rules ...Rule) Option {
	return func(o *scannerOptions) { o.rules = rules }
}

// WithAllowList skips matches that match any of patterns.
func WithAllowList(patterns ...string) Option {
	return func(o *scannerOptions) { o.allow = append(o.allow, patterns...) }
}

// WithGitleaks adds the gitleaks default rule set (several hundred provider
// patterns) on top of the compiled rules.
func WithGitleaks() Option {
	return func(o *scannerOptions) { o.gitleaks = true }
}

// NewScanner compiles the rule set.
func NewScanner(opts ...Option) (*Scanner, error) {
	o := scannerOptions{rules: DefaultRules()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scanner{rules: make([]compiledRule, 0, len(o.rules))}
	for i, rule := range o.rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		if rule.Severity == "" {
			rule.Severity = SeverityHigh
		}
		kws := make([]string, len(rule.Keywords))
		for j, kw := range rule.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		s.rules = append(s.rules, compiledRule{Rule: rule, pattern: re, keywords: kws})
	}
	for i, p := range o.allow {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow list %d: invalid pattern: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	if o.gitleaks {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load gitleaks rules: %w", err)
		}
		s.deep = d
	}
	return s, nil
}

// MustNewScanner is NewScanner that panics on error.
func MustNewScanner(opts ...Option) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Scan reports every rule match in text. Findings are ordered by offset.
func (s *Scanner) Scan(text string) *Report {
	report := &Report{ByRule: make(map[string]int)}
	if text == "" {
		return report
	}
	lower := strings.ToLower(text)

	for _, rule := range s.rules {
		if !hasKeyword(lower, rule.keywords) {
			continue
		}
		for _, loc := range rule.pattern.FindAllStringIndex(text, -1) {
			if s.allowed(text[loc[0]:loc[1]]) {
				continue
			}
			report.Findings = append(report.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				Line:        strings.Count(text[:loc[0]], "\n") + 1,
				Offset:      loc[0],
			})
			report.ByRule[rule.ID]++
		}
	}

	if s.deep != nil {
		s.scanDeep(text, report)
	}

	sort.SliceStable(report.Findings, func(i, j int) bool {
		return report.Findings[i].Offset < report.Findings[j].Offset
	})
	return report
}

// scanDeep runs the gitleaks detector. A match at an offset already reported
// by a compiled rule is skipped.
func (s *Scanner) scanDeep(text string, report *Report) {
	seen := make(map[int]bool, len(report.Findings))
	for _, f := range report.Findings {
		seen[f.Offset] = true
	}

	s.deepMu.Lock()
	found := s.deep.DetectString(text)
	s.deepMu.Unlock()

	for _, f := range found {
		if f.Secret != "" && s.allowed(f.Secret) {
			continue
		}
		off, line := -1, f.StartLine
		if f.Secret != "" {
			if i := strings.Index(text, f.Secret); i >= 0 {
				off, line = i, strings.Count(text[:i], "\n")+1
			}
		}
		if off >= 0 && seen[off] {
			continue
		}
		id := GitleaksPrefix + f.RuleID
		report.Findings = append(report.Findings, Finding{
			RuleID:      id,
			Description: f.Description,
			Severity:    SeverityHigh,
			Line:        line,
			Offset:      off,
		})
		report.ByRule[id]++
	}
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *Scanner) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
