// Package main implements the diffscribe CLI: fetch the patches of a
// repository's latest release, index them in a vector store and summarize
// recent changes with a local language model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/logging"
	"github.com/fyrsmithlabs/diffscribe/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	ownerFlag  string
	repoFlag   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diffscribe",
	Short: "Index GitHub patches and summarize recent code changes",
	Long: `diffscribe turns the pull requests of a repository's latest release into
searchable changesets and summarizes them in natural language.

Configuration is read from ~/.config/diffscribe/config.yaml and environment
variables (GITHUB_TOKEN, GITHUB_OWNER, EMBEDDINGS_PROVIDER, ...).

Examples:
  # Index the latest release of a repository
  diffscribe ingest --owner acme --repo widgets

  # Summarize what changed
  diffscribe digest --owner acme --repo widgets

  # Parse a patch file without touching the network
  diffscribe parse 42.patch`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/diffscribe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "repository owner (overrides github.owner)")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository name (overrides github.repo)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("diffscribe %s\n", version)
		cmd.Printf("  commit: %s\n", gitCommit)
		cmd.Printf("  built:  %s\n", buildDate)
	},
}

// app holds what every networked command needs.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	tagged    *zap.Logger // log with the run's context fields attached
	telemetry *telemetry.Telemetry
}

// setup loads configuration, applies flag overrides and starts logging and
// telemetry. The returned context carries the run ID. Callers must defer
// close.
func setup(ctx context.Context) (context.Context, *app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return ctx, nil, fmt.Errorf("invalid config: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return ctx, nil, fmt.Errorf("invalid logging settings: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	if cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		ctx = logging.WithRepository(ctx, cfg.GitHub.Owner+"/"+cfg.GitHub.Repo)
	}
	ctx = logging.WithLogger(ctx, logger)

	a := &app{
		cfg:       cfg,
		log:       logger,
		tagged:    logger.Underlying().With(logging.ContextFields(ctx)...),
		telemetry: tel,
	}
	logger.Debug(ctx, "configuration loaded",
		zap.String("source", cfg.Source.Kind),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Bool("telemetry", tel.Enabled()))
	return ctx, a, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if ownerFlag != "" {
		cfg.GitHub.Owner = ownerFlag
	}
	if repoFlag != "" {
		cfg.GitHub.Repo = repoFlag
	}
}

func (a *app) logger() *zap.Logger {
	return a.tagged
}

func (a *app) close(ctx context.Context) {
	if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.log.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.log.Sync()
}

// readInput reads a file, or stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
