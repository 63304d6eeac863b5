package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ProjectAllowlistFile is the allowlist file looked up in a project directory.
const ProjectAllowlistFile = ".gitleaks.toml"

// Allowlist holds path and content patterns excluded from detection.
type Allowlist struct {
	Paths   []string
	Regexes []string
}

// Empty reports whether the allowlist has no patterns.
func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.Paths) == 0 && len(a.Regexes) == 0)
}

// LoadAllowlists merges the project allowlist (projectDir/.gitleaks.toml)
// with the user file at userPath. Either may be empty; missing files are
// skipped, but unparsable files and bad patterns are errors.
func LoadAllowlists(projectDir, userPath string) (*Allowlist, error) {
	merged := &Allowlist{}

	var files []string
	if projectDir != "" {
		files = append(files, filepath.Join(projectDir, ProjectAllowlistFile))
	}
	if userPath != "" {
		files = append(files, userPath)
	}

	for _, path := range files {
		list, err := loadTOML(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		merged.Paths = append(merged.Paths, list.Paths...)
		merged.Regexes = append(merged.Regexes, list.Regexes...)
	}
	return merged, nil
}

func loadTOML(path string) (*Allowlist, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var file struct {
		Allowlist struct {
			Paths   []string `toml:"paths"`
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, p := range append(append([]string{}, file.Allowlist.Paths...), file.Allowlist.Regexes...) {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, p, path, err)
		}
	}

	return &Allowlist{
		Paths:   file.Allowlist.Paths,
		Regexes: file.Allowlist.Regexes,
	}, nil
}
