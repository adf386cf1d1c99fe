package secrets

// Severity ranks a finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rule is one detection pattern. When Keywords is non-empty the rule only
// applies to text containing at least one keyword (case-insensitive).
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"`
	Severity    Severity `koanf:"severity"`
}

// DefaultRules returns the built-in rule set. Prefix-identified tokens carry
// no keywords; ambiguous shapes require one.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key id",
			Pattern:     `(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS secret access key assignment",
			Pattern:     `(?i)(?:aws_secret_access_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}`,
			Keywords:    []string{"aws", "secret"},
			Severity:    SeverityHigh,
		},
		{
			ID:          "private-key",
			Description: "PEM private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab personal access token",
			Pattern:     `glpat-[A-Za-z0-9\-]{20,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API key",
			Pattern:     `(?:sk|rk)_live_[A-Za-z0-9]{24,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "google-api-key",
			Description: "Google API key",
			Pattern:     `AIza[A-Za-z0-9_\-]{35}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "sendgrid-api-key",
			Description: "SendGrid API key",
			Pattern:     `SG\.[A-Za-z0-9_\-]{22,}\.[A-Za-z0-9_\-]{43,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "npm-token",
			Description: "npm access token",
			Pattern:     `npm_[A-Za-z0-9]{36}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "database-url",
			Description: "connection URL with inline credentials",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@\S+`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "generic-api-key",
			Description: "API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}`,
			Keywords:    []string{"api"},
			Severity:    SeverityMedium,
		},
		{
			ID:          "password-assignment",
			Description: "password or secret assignment",
			Pattern:     `(?i)(?:password|passwd|secret)\s*[:=]\s*['"]?[^\s'"]{8,}`,
			Keywords:    []string{"password", "passwd", "secret"},
			Severity:    SeverityMedium,
		},
		{
			ID:          "jwt",
			Description: "JSON web token",
			Pattern:     `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`,
			Severity:    SeverityLow,
		},
	}
}
