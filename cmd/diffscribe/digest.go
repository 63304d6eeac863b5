package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/diffscribe/internal/digest"
	"github.com/fyrsmithlabs/diffscribe/internal/summarize"
)

var (
	digestK          int
	digestOutputJSON bool
)

func init() {
	rootCmd.AddCommand(digestCmd)
	digestCmd.Flags().IntVarP(&digestK, "top", "k", 0, "Number of changesets to summarize (default retrieval.k)")
	digestCmd.Flags().BoolVar(&digestOutputJSON, "json", false, "Output results as JSON")
}

var digestCmd = &cobra.Command{
	Use:   "digest [query]",
	Short: "Summarize indexed changes",
	Long: `Retrieve the changesets closest to a query and summarize each one with the
configured language model. Without a query, retrieval.query is used.

Examples:
  # Summarize recent changes
  diffscribe digest --owner acme --repo widgets

  # Focus on one area
  diffscribe digest --owner acme --repo widgets "authentication changes" -k 8`,
	Args: cobra.ArbitraryArgs,
	RunE: runDigest,
}

func runDigest(cmd *cobra.Command, args []string) error {
	ctx, a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(ctx)

	store, provider, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer provider.Close()
	defer store.Close()

	summarizer, err := summarize.NewOllama(a.cfg.LLM, a.logger())
	if err != nil {
		return err
	}

	d := digest.New(store, summarizer, digest.OptionsFrom(a.cfg.Retrieval), a.logger())
	summaries, err := d.Digest(ctx, strings.Join(args, " "), digestK)
	if err != nil {
		return fmt.Errorf("digest failed: %w", err)
	}

	if digestOutputJSON {
		return outputJSON(cmd.OutOrStdout(), summaries)
	}
	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintf(out, "No changes indexed in %s; run diffscribe ingest first\n", a.cfg.CollectionName())
		return nil
	}
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(out, "\n---------------------")
		}
		title, _ := s.Metadata["title"].(string)
		fmt.Fprintf(out, "\n%s %s (score %.3f)\n", s.ID, title, s.Score)
		fmt.Fprintln(out, s.Summary)
	}
	return nil
}
