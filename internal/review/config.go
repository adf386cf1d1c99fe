package review

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/content"
)

// CategoryConfig is the review policy for one content category.
type CategoryConfig struct {
	RequiredApprovals int
	AllowedRoles      []content.Role
	AllowSelfReview   bool
	// TimeoutDays is reported by Overdue; nothing expires automatically.
	TimeoutDays int
}

// Allows reports whether role may review under this policy. An empty list
// allows Editor and above.
func (c CategoryConfig) Allows(role content.Role) bool {
	if len(c.AllowedRoles) == 0 {
		return role.AtLeast(content.RoleEditor)
	}
	for _, r := range c.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Config is the workflow-wide review policy.
type Config struct {
	MaxReviewers    int
	DefaultCategory string
	Categories      map[string]CategoryConfig
}

// DefaultConfig returns a single "general" category needing one approval.
func DefaultConfig() Config {
	return Config{
		MaxReviewers:    3,
		DefaultCategory: "general",
		Categories: map[string]CategoryConfig{
			"general": {
				RequiredApprovals: 1,
				AllowedRoles:      []content.Role{content.RoleEditor, content.RolePublisher, content.RoleAdministrator},
				TimeoutDays:       7,
			},
		},
	}
}

// Category resolves name, falling back to the default category.
func (c Config) Category(name string) (string, CategoryConfig, error) {
	if cat, ok := c.Categories[name]; ok && name != "" {
		return name, cat, nil
	}
	if cat, ok := c.Categories[c.DefaultCategory]; ok {
		return c.DefaultCategory, cat, nil
	}
	return "", CategoryConfig{}, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// Validate checks the policy is satisfiable.
func (c Config) Validate() error {
	if c.MaxReviewers < 1 {
		return fmt.Errorf("max reviewers must be >= 1, got %d", c.MaxReviewers)
	}
	if _, ok := c.Categories[c.DefaultCategory]; !ok {
		return fmt.Errorf("%w: default %q", ErrUnknownCategory, c.DefaultCategory)
	}
	for name, cat := range c.Categories {
		if cat.RequiredApprovals < 1 || cat.RequiredApprovals > c.MaxReviewers {
			return fmt.Errorf("category %q: required approvals %d outside 1..%d", name, cat.RequiredApprovals, c.MaxReviewers)
		}
	}
	return nil
}

// FromConfig converts the loaded configuration into a policy and reviewer
// pool.
func FromConfig(rc config.ReviewConfig) (Config, []Reviewer, error) {
	cfg := Config{
		MaxReviewers:    rc.MaxReviewers,
		DefaultCategory: rc.DefaultCategory,
		Categories:      make(map[string]CategoryConfig, len(rc.Categories)),
	}

	names := make([]string, 0, len(rc.Categories))
	for name := range rc.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := rc.Categories[name]
		cat := CategoryConfig{
			RequiredApprovals: src.RequiredApprovals,
			AllowSelfReview:   src.AllowSelfReview,
			TimeoutDays:       src.TimeoutDays,
		}
		for _, rn := range src.AllowedRoles {
			role, err := content.ParseRole(rn)
			if err != nil {
				return Config{}, nil, fmt.Errorf("category %q: %w", name, err)
			}
			cat.AllowedRoles = append(cat.AllowedRoles, role)
		}
		cfg.Categories[name] = cat
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	reviewers := make([]Reviewer, 0, len(rc.Reviewers))
	for _, r := range rc.Reviewers {
		role, err := content.ParseRole(r.Role)
		if err != nil {
			return Config{}, nil, fmt.Errorf("reviewer %q: %w", r.ID, err)
		}
		reviewers = append(reviewers, Reviewer{ID: r.ID, Name: r.Name, Role: role})
	}
	return cfg, reviewers, nil
}
