//go:build cgo

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diffscribe/internal/embeddings"
)

var forceDownload bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&forceDownload, "force", "f", false, "Force re-download even if ONNX runtime exists")
}

// initCmd installs the runtime needed by the fastembed provider.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Download the ONNX runtime for local embeddings",
	Long: `Download the ONNX runtime library required by the fastembed embedding
provider. The library is installed to:
  ~/.config/diffscribe/lib/

If the ONNX_PATH environment variable is set, that path takes precedence.

Examples:
  diffscribe init
  diffscribe init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceDownload {
		if path := embeddings.ONNXLibraryPath(); path != "" {
			cmd.Printf("ONNX runtime already installed at: %s\n", path)
			cmd.Println("Use --force to re-download.")
			return nil
		}
	}

	cmd.Printf("Downloading ONNX runtime v%s...\n", embeddings.DefaultONNXRuntimeVersion)
	path, err := embeddings.InstallONNXRuntime(cmd.Context(), zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to download ONNX runtime: %w", err)
	}

	cmd.Printf("Successfully installed ONNX runtime to: %s\n", path)
	return nil
}
