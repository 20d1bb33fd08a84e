// Package cli defines Cobra command definitions for the genstory CLI.
// This file contains the root command, persistent flags and the shared
// wiring that turns a config into a running pipeline.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/log"
	"github.com/zhs007/genstory/internal/orchestrator"
	"github.com/zhs007/genstory/internal/session"
	"github.com/zhs007/genstory/internal/tui"
)

var (
	configFlag   string
	logLevelFlag string
	genreFlag    string
	version      = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "genstory",
	Short: "Multi-agent story studio",
	Long: `genstory runs a small team of LLM-backed roles that interview you about
the story you want, then design its structure and characters, review the
draft and present the final proposal. Failed steps can be retried without
repeating the work that already succeeded.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without a subcommand, chat when interactive and show help otherwise.
		if !tui.IsTTY() {
			return cmd.Help()
		}
		return runChat(cmd, args)
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the YAML config (default: ./"+config.DefaultFileName+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&genreFlag, "genre", "", "Studio genre for new sessions")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(genresCmd)
}

// configPath returns --config, or the default file when it exists.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	if _, err := os.Stat(config.DefaultFileName); err == nil {
		return config.DefaultFileName
	}
	return ""
}

// loadConfig reads the config and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if genreFlag != "" {
		if !cfg.IsSupportedGenre(genreFlag) {
			return nil, fmt.Errorf("unsupported genre %q", genreFlag)
		}
		cfg.Story.DefaultGenre = genreFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return log.NewSlog(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
}

// pipeline is a wired orchestrator plus the resources it holds.
type pipeline struct {
	*orchestrator.Orchestrator
	closeStore func() error
}

// Close releases the store.
func (p *pipeline) Close() error {
	if p.closeStore == nil {
		return nil
	}
	return p.closeStore()
}

// newPipeline wires the store, audit log and agent factory from cfg. A nil
// builder uses the configured LLM provider.
func newPipeline(cfg *config.Config, logger *slog.Logger, sink event.Sink, builder orchestrator.AgentBuilder) (*pipeline, error) {
	store, closeStore, err := session.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	var audit *log.Logger
	if cfg.Logging.AuditDir != "" {
		audit, err = log.NewLogger(cfg.Logging.AuditDir)
		if err != nil {
			return nil, errors.Join(err, closeStore())
		}
	}

	if builder == nil {
		builder = agent.NewFactory(cfg, logger)
	}
	o, err := orchestrator.New(orchestrator.Options{
		Config: cfg,
		Store:  store,
		Sink:   sink,
		Agents: builder,
		Logger: logger,
		Audit:  audit,
	})
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}
	return &pipeline{Orchestrator: o, closeStore: closeStore}, nil
}
