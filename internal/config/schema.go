package config

import (
	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
	"github.com/Realm-101/unbuilt-advisor/internal/gateway"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
	"github.com/Realm-101/unbuilt-advisor/modules/completer/openai"
)

// CurrentVersion is the only supported configuration version.
const CurrentVersion = "1"

// Config is the top-level advisor configuration. Every component section
// may be omitted; the component fills its own defaults.
type Config struct {
	Version   string                        `yaml:"version"`
	Log       LogConfig                     `yaml:"log"`
	Server    gateway.Config                `yaml:"server"`
	Storage   StorageConfig                 `yaml:"storage"`
	Cache     cache.MemoryConfig            `yaml:"cache"`
	Context   ctxengine.ContextConfig       `yaml:"context"`
	Input     security.InputValidatorConfig `yaml:"input"`
	RateLimit security.RateLimitConfig      `yaml:"rate_limit"`
	Quality   quality.Config                `yaml:"quality"`
	Dedup     dedup.Config                  `yaml:"dedup"`
	Questions questions.Config              `yaml:"questions"`
	Engine    engine.Config                 `yaml:"engine"`
	Completer openai.Config                 `yaml:"completer"`
	Audit     AuditConfig                   `yaml:"audit"`
	Tracing   TracingConfig                 `yaml:"tracing"`
	Jobs      JobsConfig                    `yaml:"jobs"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// StorageConfig selects where messages, analyses and cached contexts live.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// AuditConfig configures the JSONL security event log. An empty Path
// sends events to the process logger only.
type AuditConfig struct {
	Path      string `yaml:"path"`
	QueueSize int    `yaml:"queue_size"`
}

// TracingConfig configures the OTLP/HTTP span exporter. Tracing is off
// when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	ServiceName string  `yaml:"service_name"`
}

// Enabled reports whether spans are exported.
func (t TracingConfig) Enabled() bool { return t.Endpoint != "" }

// JobsConfig holds cron expressions for maintenance jobs. Empty values use
// each job's default schedule; "off" disables a job.
type JobsConfig struct {
	CachePurge     string `yaml:"cache_purge"`
	RateLimitSweep string `yaml:"ratelimit_sweep"`
	StatsReport    string `yaml:"stats_report"`
}

// JobDisabled is the schedule value that turns a job off.
const JobDisabled = "off"

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Log:     LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Driver: DriverMemory},
	}
}

// applyDefaults fills the top-level fields owned by this package.
func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "unbuilt-advisor"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}
