// Package main is the entry point for the advisor CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Realm-101/unbuilt-advisor/internal/config"
	"github.com/Realm-101/unbuilt-advisor/internal/reload"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "advisor",
		Short:         "Conversation context and quality engine for the Unbuilt advisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(versionCmd(), serveCmd(), configCmd(), checkCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "advisor %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run maintenance jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			level := new(slog.LevelVar)
			logger := newLogger(cfg.Log, cmd.ErrOrStderr(), level)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Warn("tracing shutdown failed", "error", err)
				}
			}()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if path, _ := cmd.Flags().GetString("analyses"); path != "" {
				n, err := a.loadAnalyses(ctx, path)
				if err != nil {
					return err
				}
				logger.Info("analyses loaded", "count", n, "path", path)
			}

			if path := configPath(cmd); path != "" {
				stopReload := a.watchConfig(ctx, path, reload.ReloaderFunc(func(_ context.Context, c *config.Config) error {
					level.Set(parseLevel(c.Log.Level))
					return nil
				}))
				defer stopReload()
			}

			return a.Run(ctx)
		},
	}
	cmd.Flags().String("analyses", "", "JSON file with an array of analyses to preload")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  storage:   %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "  completer: %s\n", enabled(cfg.Completer.Enabled()))
			fmt.Fprintf(out, "  tracing:   %s\n", enabled(cfg.Tracing.Enabled()))
			fmt.Fprintf(out, "  auth:      %s\n", enabled(cfg.Server.Auth.IsConfigured()))
			return nil
		},
	})
	return cmd
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// loadConfig reads --config, else the first file found in the standard
// locations, else the built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath returns --config, else the first file found in the standard
// locations, else "".
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return resolveConfigPath()
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/advisor/advisor.yaml → ./advisor.yaml
func resolveConfigPath() string {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "advisor", "advisor.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "advisor", "advisor.yaml"))
	}
	candidates = append(candidates, "advisor.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
