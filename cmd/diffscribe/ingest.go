package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/embeddings"
	"github.com/fyrsmithlabs/diffscribe/internal/github"
	"github.com/fyrsmithlabs/diffscribe/internal/gitlocal"
	"github.com/fyrsmithlabs/diffscribe/internal/ingest"
	"github.com/fyrsmithlabs/diffscribe/internal/secrets"
	"github.com/fyrsmithlabs/diffscribe/internal/vectorstore"
)

var (
	ingestForce      bool
	ingestNoRedact   bool
	ingestSource     string
	ingestRepoPath   string
	ingestBaseRef    string
	ingestHeadRef    string
	ingestOutputJSON bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Ingest even if the collection already holds documents")
	ingestCmd.Flags().BoolVar(&ingestNoRedact, "no-redact", false, "Index content without secret redaction")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Patch source: github or local (overrides source.kind)")
	ingestCmd.Flags().StringVar(&ingestRepoPath, "repo-path", "", "Local clone for --source local")
	ingestCmd.Flags().StringVar(&ingestBaseRef, "base", "", "Base ref for --source local")
	ingestCmd.Flags().StringVar(&ingestHeadRef, "head", "", "Head ref for --source local")
	ingestCmd.Flags().BoolVar(&ingestOutputJSON, "json", false, "Output the run report as JSON")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, parse and index patches",
	Long: `Fetch the patches of the latest release, parse them into changesets, redact
secrets and index them in the vector store.

Ingestion is skipped when the collection already holds documents, unless
--force is given. Re-ingesting overwrites documents with the same ID.

Examples:
  # Index the latest release from GitHub
  diffscribe ingest --owner acme --repo widgets

  # Index commits of a local clone
  diffscribe ingest --source local --repo-path ~/src/widgets --base v1.2.0 --head v1.3.0

  # Rebuild an existing collection
  diffscribe ingest --owner acme --repo widgets --force`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(ctx)
	applyIngestOverrides(a)

	src, projectDir, err := newSource(ctx, a)
	if err != nil {
		return err
	}

	store, provider, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer provider.Close()
	defer store.Close()

	opts := ingest.OptionsFrom(a.cfg.Ingest)
	opts.Collection = a.cfg.CollectionName()
	if a.cfg.Ingest.RedactSecrets {
		redactor, err := secrets.NewRedactor(secrets.Options{
			ProjectDir: projectDir,
			UserPath:   a.cfg.Ingest.AllowlistPath,
			Logger:     a.logger(),
		})
		if err != nil {
			return fmt.Errorf("failed to create secret redactor: %w", err)
		}
		opts.Redactor = redactor
	}

	report, err := ingest.NewPipeline(store, opts, a.logger()).Run(ctx, src)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if ingestOutputJSON {
		return outputJSON(cmd.OutOrStdout(), report)
	}
	out := cmd.OutOrStdout()
	if report.Skipped {
		fmt.Fprintf(out, "Collection %s already populated; use --force to re-ingest\n", opts.Collection)
		return nil
	}
	fmt.Fprintf(out, "Indexed %d of %d patches into %s\n", report.Indexed, report.Fetched, opts.Collection)
	if report.Malformed > 0 {
		fmt.Fprintf(out, "Skipped %d malformed: %v\n", report.Malformed, report.MalformedIDs)
	}
	if report.Empty > 0 {
		fmt.Fprintf(out, "Skipped %d without hunks\n", report.Empty)
	}
	if report.Redactions > 0 {
		fmt.Fprintf(out, "Redacted %d secrets\n", report.Redactions)
	}
	return nil
}

func applyIngestOverrides(a *app) {
	if ingestForce {
		a.cfg.Ingest.Force = true
	}
	if ingestNoRedact {
		a.cfg.Ingest.RedactSecrets = false
	}
	if ingestSource != "" {
		a.cfg.Source.Kind = ingestSource
	}
	if ingestRepoPath != "" {
		a.cfg.Source.RepoPath = ingestRepoPath
	}
	if ingestBaseRef != "" {
		a.cfg.Source.BaseRef = ingestBaseRef
	}
	if ingestHeadRef != "" {
		a.cfg.Source.HeadRef = ingestHeadRef
	}
}

// newSource builds the configured patch source and returns the directory
// searched for a project .gitleaks.toml.
func newSource(ctx context.Context, a *app) (ingest.Source, string, error) {
	switch a.cfg.Source.Kind {
	case "local":
		path, err := config.ExpandPath(a.cfg.Source.RepoPath)
		if err != nil {
			return nil, "", err
		}
		src, err := gitlocal.Open(path, a.cfg.Source.BaseRef, a.cfg.Source.HeadRef, a.logger())
		if err != nil {
			return nil, "", err
		}
		return src, path, nil

	case "github", "":
		if err := a.cfg.RequireRepository(); err != nil {
			return nil, "", err
		}
		client, err := github.NewClient(ctx, github.ConfigFrom(a.cfg.GitHub), a.logger())
		if err != nil {
			return nil, "", err
		}
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get current directory: %w", err)
		}
		src := github.NewSource(client, a.cfg.GitHub.Owner, a.cfg.GitHub.Repo, a.cfg.Ingest.Workers, a.logger())
		return src, wd, nil

	default:
		return nil, "", fmt.Errorf("unknown source %q (must be github or local)", a.cfg.Source.Kind)
	}
}

// openStore creates the embedding provider and the vector store sized for
// it. The caller closes both.
func openStore(ctx context.Context, a *app) (vectorstore.Store, embeddings.Provider, error) {
	provider, err := embeddings.NewProvider(a.cfg.Embeddings, a.logger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.cfg.Embeddings.Dimension = provider.Dimension()

	store, err := vectorstore.NewStore(a.cfg, provider, a.logger())
	if err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	a.log.Debug(ctx, "vector store ready",
		zap.String("provider", a.cfg.VectorStore.Provider),
		zap.String("collection", a.cfg.CollectionName()),
		zap.Int("dimension", provider.Dimension()))
	return store, provider, nil
}
