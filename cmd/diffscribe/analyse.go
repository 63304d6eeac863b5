package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/diffscribe/internal/patch"
	"github.com/fyrsmithlabs/diffscribe/internal/summarize"
)

var analyseRaw bool

func init() {
	rootCmd.AddCommand(analyseCmd)
	analyseCmd.Flags().BoolVar(&analyseRaw, "raw", false, "Send the input as is instead of its parsed hunks")
}

var analyseCmd = &cobra.Command{
	Use:     "analyse [file]",
	Aliases: []string{"analyze"},
	Short:   "Summarize a single diff",
	Long: `Summarize one diff file with the configured language model, without
touching the vector store.

The input is parsed first and only its hunks are sent to the model; use --raw
to send the file unchanged.

Examples:
  diffscribe analyse 42.patch
  git diff HEAD~1 | diffscribe analyse -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyse,
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) > 0 {
		path = args[0]
	}
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}

	diff := string(data)
	if !analyseRaw {
		cs, err := patch.Parse(diff)
		if err != nil {
			return fmt.Errorf("failed to parse patch: %w", err)
		}
		diff = cs.Content
	}

	ctx, a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(ctx)

	summarizer, err := summarize.NewOllama(a.cfg.LLM, a.logger())
	if err != nil {
		return err
	}
	summary, err := summarizer.Summarize(ctx, diff)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
	return err
}
