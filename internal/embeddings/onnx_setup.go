//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DefaultONNXRuntimeVersion must match the onnxruntime_go version fastembed-go uses.
const DefaultONNXRuntimeVersion = "1.23.0"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// ErrUnsupportedPlatform indicates there is no ONNX runtime release for this OS/arch.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var onnxArchives = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

func getPlatformArchive(goos, goarch string) (string, error) {
	archive, ok := onnxArchives[goos+"/"+goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return archive, nil
}

func getLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "diffscribe", "lib")
}

// ONNXLibraryPath returns ONNX_PATH when set, else the managed install under
// ~/.config/diffscribe/lib, else "".
func ONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), getLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// setONNXPathEnv is where fastembed-go looks for the runtime.
var setONNXPathEnv = func(path string) error {
	return os.Setenv("ONNX_PATH", path)
}

// EnsureONNXRuntime returns the runtime library path, downloading the
// release archive into the managed directory when needed.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if p := ONNXLibraryPath(); p != "" {
		return p, nil
	}
	return InstallONNXRuntime(ctx, logger)
}

// InstallONNXRuntime downloads the runtime into the managed directory,
// replacing any previous copy, and returns the library path.
func InstallONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("downloading ONNX runtime",
		zap.String("version", DefaultONNXRuntimeVersion),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))

	if err := downloadONNXRuntime(ctx, DefaultONNXRuntimeVersion, onnxInstallDir()); err != nil {
		return "", fmt.Errorf("downloading ONNX runtime (set ONNX_PATH to use an existing install): %w", err)
	}

	p := ONNXLibraryPath()
	if p == "" {
		return "", errors.New("ONNX runtime downloaded but library not found")
	}
	logger.Info("ONNX runtime installed", zap.String("path", p))
	return p, nil
}

func downloadONNXRuntime(ctx context.Context, version, destDir string) error {
	platform, err := getPlatformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(onnxReleaseURL, version, platform, version), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	return extractLibraries(resp.Body, destDir, prefix, getLibraryName(runtime.GOOS))
}

// extractLibraries copies every file under prefix in the gzipped tarball
// into destDir, keeping symlinks. It fails if libName is not among them.
func extractLibraries(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, prefix) || header.Typeflag == tar.TypeDir {
			continue
		}

		filename := filepath.Base(name)
		dest := filepath.Join(destDir, filename)
		isLib := filename == libName || strings.HasPrefix(filename, libName+".")

		if header.Typeflag == tar.TypeSymlink {
			_ = os.Remove(dest)
			if err := os.Symlink(header.Linkname, dest); err == nil && isLib {
				found = true
			}
			continue
		}

		if err := writeFile(dest, tr); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
		if isLib {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
