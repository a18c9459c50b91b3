package config

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/cron"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the structural validity of a Config and returns every
// problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: %q)", cfg.Version, CurrentVersion))
	}

	if cfg.Log.Level != "" && !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of %v", cfg.Log.Level, logLevels))
	}
	if cfg.Log.Format != "" && !slices.Contains(logFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q must be one of %v", cfg.Log.Format, logFormats))
	}

	errs = append(errs, validateServer(cfg)...)
	errs = append(errs, validateStorage(cfg.Storage)...)
	errs = append(errs, validateThresholds(cfg)...)
	errs = append(errs, validatePatterns(cfg.Input.CustomPatterns)...)
	errs = append(errs, validateRateLimits(cfg.RateLimit)...)
	errs = append(errs, validateJobs(cfg.Jobs)...)

	if cfg.Completer.Enabled() {
		if err := cfg.Completer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: tracing.sample_ratio %v must be within [0, 1]", r))
	}
	if cfg.Audit.QueueSize < 0 {
		errs = append(errs, errors.New("config: audit.queue_size must not be negative"))
	}

	return errors.Join(errs...)
}

func validateServer(cfg *Config) []error {
	var errs []error
	if cfg.Server.Bind != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: server.bind %q: %w", cfg.Server.Bind, err))
		}
	}
	auth := cfg.Server.Auth
	if (auth.BasicUser == "") != (auth.BasicPass == "") {
		errs = append(errs, errors.New("config: server.auth basic_user and basic_pass must be set together"))
	}
	return errs
}

func validateStorage(s StorageConfig) []error {
	switch s.Driver {
	case "", DriverMemory:
		return nil
	case DriverSQLite:
		if s.Path == "" {
			return []error{errors.New("config: storage.path is required for the sqlite driver")}
		}
		return nil
	default:
		return []error{fmt.Errorf("config: unknown storage.driver %q (supported: %q, %q)", s.Driver, DriverMemory, DriverSQLite)}
	}
}

// validateThresholds checks ratios that defaults cannot repair. Zero means
// "use the default" and is always accepted.
func validateThresholds(cfg *Config) []error {
	ratios := []struct {
		name  string
		value float64
	}{
		{"dedup.threshold", cfg.Dedup.Threshold},
		{"questions.similarity_threshold", cfg.Questions.SimilarityThreshold},
		{"questions.decay_factor", cfg.Questions.DecayFactor},
		{"quality.relevance_threshold", cfg.Quality.RelevanceThreshold},
	}

	var errs []error
	for _, r := range ratios {
		if r.value < 0 || r.value > 1 {
			errs = append(errs, fmt.Errorf("config: %s %v must be within [0, 1]", r.name, r.value))
		}
	}
	if cfg.Questions.BoostFactor < 0 {
		errs = append(errs, errors.New("config: questions.boost_factor must not be negative"))
	}
	if cfg.Context.CharsPerToken < 0 {
		errs = append(errs, errors.New("config: context.chars_per_token must not be negative"))
	}
	if cfg.Context.MaxContextTokens < 0 || cfg.Engine.MaxTokens < 0 {
		errs = append(errs, errors.New("config: token budgets must not be negative"))
	}
	if cfg.Quality.MinLength > 0 && cfg.Quality.MaxLength > 0 && cfg.Quality.MinLength > cfg.Quality.MaxLength {
		errs = append(errs, errors.New("config: quality.min_length exceeds quality.max_length"))
	}
	return errs
}

func validatePatterns(patterns []security.PatternConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(patterns))
	for _, pc := range patterns {
		if _, err := pc.Compile(conversation.SeverityHigh); err != nil {
			errs = append(errs, fmt.Errorf("config: input.custom_patterns: %w", err))
			continue
		}
		if seen[pc.Name] {
			errs = append(errs, fmt.Errorf("config: input.custom_patterns: duplicate name %q", pc.Name))
		}
		seen[pc.Name] = true
	}
	return errs
}

func validateRateLimits(rl security.RateLimitConfig) []error {
	tiers := []struct {
		name   string
		limits security.TierLimits
	}{
		{"free", rl.Free},
		{"pro", rl.Pro},
		{"enterprise", rl.Enterprise},
	}

	var errs []error
	for _, t := range tiers {
		for field, v := range map[string]int{
			"per_conversation": t.limits.PerConversation,
			"per_day":          t.limits.PerDay,
			"concurrent":       t.limits.Concurrent,
		} {
			if v < security.Unlimited {
				errs = append(errs, fmt.Errorf("config: rate_limit.%s.%s %d must be >= %d", t.name, field, v, security.Unlimited))
			}
		}
	}
	return errs
}

func validateJobs(j JobsConfig) []error {
	var errs []error
	for name, expr := range map[string]string{
		cron.JobCachePurge:     j.CachePurge,
		cron.JobRateLimitSweep: j.RateLimitSweep,
		cron.JobStatsReport:    j.StatsReport,
	} {
		if expr == "" || expr == JobDisabled {
			continue
		}
		if err := cron.ParseSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: jobs.%s: %w", name, err))
		}
	}
	return errs
}
