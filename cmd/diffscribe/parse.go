package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/diffscribe/internal/patch"
)

var parseContentOnly bool

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolVar(&parseContentOnly, "content", false, "Print only the normalized hunk content")
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a patch into a changeset",
	Long: `Parse a unified diff or mail-style patch and print the resulting changeset
as JSON: hunk content, commit messages and changed files.

Examples:
  # Parse a pull request patch
  curl -sL https://github.com/acme/widgets/pull/42.patch | diffscribe parse -

  # Print only the hunks
  diffscribe parse --content 42.patch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) > 0 {
		path = args[0]
	}
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}

	cs, err := patch.Parse(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse patch: %w", err)
	}

	if parseContentOnly {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), cs.Content)
		return err
	}
	return outputJSON(cmd.OutOrStdout(), cs)
}
