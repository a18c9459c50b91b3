package openai

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the configuration for the chat-completions completer.
type Config struct {
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	Timeout     string   `yaml:"timeout"`
}

// Enabled reports whether a completer is configured at all.
func (c Config) Enabled() bool {
	return c.APIKey != "" || c.Model != ""
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("completer.openai: api_key is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("completer.openai: model is required"))
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("completer.openai: invalid timeout %q: %w", c.Timeout, err))
		}
	}
	return errors.Join(errs...)
}

// parsedTimeout returns the timeout as a time.Duration.
func (c Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
