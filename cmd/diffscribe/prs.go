package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/diffscribe/internal/github"
)

var prsOutputJSON bool

func init() {
	rootCmd.AddCommand(prsCmd)
	prsCmd.Flags().BoolVar(&prsOutputJSON, "json", false, "Output results as JSON")
}

var prsCmd = &cobra.Command{
	Use:   "prs",
	Short: "List pull requests in the latest release",
	Long: `List the pull requests merged between the latest published release and the
one before it. With a single release, its target branch is the base.

Examples:
  diffscribe prs --owner acme --repo widgets
  diffscribe prs --owner acme --repo widgets --json`,
	Args: cobra.NoArgs,
	RunE: runPRs,
}

type prsOutput struct {
	Release string               `json:"release"`
	Base    string               `json:"base"`
	PRs     []github.PullRequest `json:"pull_requests"`
}

func runPRs(cmd *cobra.Command, args []string) error {
	ctx, a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.cfg.RequireRepository(); err != nil {
		return err
	}
	client, err := github.NewClient(ctx, github.ConfigFrom(a.cfg.GitHub), a.logger())
	if err != nil {
		return err
	}

	rng, prs, err := client.PullRequestsForRelease(ctx, a.cfg.GitHub.Owner, a.cfg.GitHub.Repo, a.cfg.Ingest.Workers)
	if err != nil {
		return fmt.Errorf("failed to list release pull requests: %w", err)
	}

	if prsOutputJSON {
		return outputJSON(cmd.OutOrStdout(), prsOutput{Release: rng.Head, Base: rng.Base, PRs: prs})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Release %s (%d pull requests)\n", rng, len(prs))
	if len(prs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tAUTHOR\tTITLE")
	for _, pr := range prs {
		fmt.Fprintf(w, "#%d\t%s\t%s\n", pr.Number, pr.Author, pr.Title)
	}
	return w.Flush()
}
