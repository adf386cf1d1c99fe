package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, PUBLISHING_FALLBACK_ENABLED, etc.)
//  2. YAML config file (~/.config/contentd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// ~/.config/contentd/config.yaml.
//
// # Security Considerations
//
// The file must live under ~/.config/contentd/ or /etc/contentd/, be at most
// 1MB, and have 0600 or 0400 permissions.
//
// # Environment Variable Mapping
//
// The first underscore separates the section from the field name:
//
//	SERVER_HTTP_PORT             -> server.http_port
//	PUBLISHING_FALLBACK_ENABLED  -> publishing.fallback_enabled
//	SCHEDULING_MAX_PENDING       -> scheduling.max_pending
func LoadWithFile(configPath string) (*Config, error) {
	k, err := loadKoanf(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(k, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns ~/.config/contentd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "contentd", "config.yaml"), nil
}

func loadKoanf(configPath string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return k, nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(s)
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates through the open
// descriptor to avoid a stat/read race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/contentd with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "contentd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "contentd"),
		"/etc/contentd",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/contentd/ or /etc/contentd/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills fields the file and environment left unset.
// Booleans that default to true are only applied when the key is absent.
func applyDefaults(k *koanf.Koanf, cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = defaultServiceName
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}

	if !k.Exists("publishing.auto_selection") {
		cfg.Publishing.AutoSelection = true
	}
	if !k.Exists("publishing.fallback_enabled") {
		cfg.Publishing.FallbackEnabled = true
	}
	if cfg.Publishing.DefaultStrategy == "" {
		cfg.Publishing.DefaultStrategy = defaultStrategy
	}
	if cfg.Publishing.FallbackStrategy == "" {
		cfg.Publishing.FallbackStrategy = cfg.Publishing.DefaultStrategy
	}
	if cfg.Publishing.StrategyTimeout == 0 {
		cfg.Publishing.StrategyTimeout = defaultStrategyTimeout
	}
	if !k.Exists("publishing.min_body_length") {
		cfg.Publishing.MinBodyLength = defaultMinBodyLength
	}
	if cfg.Publishing.BatchParallel == 0 {
		cfg.Publishing.BatchParallel = defaultBatchParallelism
	}

	if cfg.Scheduling.MaxPending == 0 {
		cfg.Scheduling.MaxPending = defaultMaxPending
	}
	if cfg.Scheduling.Workers == 0 {
		cfg.Scheduling.Workers = defaultWorkers
	}
	if !k.Exists("scheduling.min_lead") {
		cfg.Scheduling.MinLead = defaultMinLead
	}
	if cfg.Scheduling.MaxLead == 0 {
		cfg.Scheduling.MaxLead = defaultMaxLead
	}

	if cfg.Review.MaxReviewers == 0 {
		cfg.Review.MaxReviewers = defaultMaxReviewers
	}
	if cfg.Review.DefaultCategory == "" {
		cfg.Review.DefaultCategory = defaultCategory
	}
	if len(cfg.Review.Categories) == 0 {
		cfg.Review.Categories = DefaultCategories()
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = defaultSubjectPrefix
	}
	if cfg.Events.BreakerMaxFailures == 0 {
		cfg.Events.BreakerMaxFailures = defaultBreakerFailures
	}
	if cfg.Events.BreakerTimeout == 0 {
		cfg.Events.BreakerTimeout = defaultBreakerTimeout
	}

	if !k.Exists("http.rate_limit") {
		cfg.HTTP.RateLimit = defaultRateLimit
	}
	if cfg.HTTP.Burst == 0 {
		cfg.HTTP.Burst = defaultBurst
	}
}
