package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Options configures a Redactor.
type Options struct {
	ProjectDir string // directory holding .gitleaks.toml
	UserPath   string // user allowlist TOML file
	Logger     *zap.Logger
}

// Finding is a detected secret with its position.
type Finding struct {
	RuleID   string
	RuleDesc string
	Line     int
	StartCol int
	EndCol   int
	Secret   string
}

// Result is redacted content plus its audit trail.
type Result struct {
	Content string
	Audit   AuditLog
}

// Redactor replaces secrets in text. The gitleaks rule set is compiled once
// and shared; calls are serialized on it.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// NewRedactor loads allowlists and builds the gitleaks detector.
func NewRedactor(opts Options) (*Redactor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allowlist, err := LoadAllowlists(opts.ProjectDir, opts.UserPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlists: %w", err)
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating detector: %w", err)
	}
	if !allowlist.Empty() {
		applyAllowlist(&detector.Config, allowlist)
		logger.Debug("secret allowlist loaded",
			zap.Int("paths", len(allowlist.Paths)),
			zap.Int("regexes", len(allowlist.Regexes)))
	}

	return &Redactor{detector: detector, logger: logger}, nil
}

// Redact replaces every secret in content with a [REDACTED:<rule>:<preview>]
// marker. source labels the audit log and log lines.
func (r *Redactor) Redact(source, content string) Result {
	start := time.Now()
	findings := r.Detect(content)
	audit := buildAuditLog(source, findings, time.Since(start))

	if len(findings) == 0 {
		return Result{Content: content, Audit: audit}
	}

	r.logger.Info("secrets redacted",
		zap.String("source", source),
		zap.Int("count", len(findings)),
		zap.Any("rules", audit.Summary.RuleCounts))
	return Result{Content: replaceFindings(content, findings), Audit: audit}
}

// Detect returns the secrets in content without changing it.
func (r *Redactor) Detect(content string) []Finding {
	r.mu.Lock()
	leaks := r.detector.DetectString(content)
	r.mu.Unlock()

	findings := make([]Finding, 0, len(leaks))
	for _, f := range leaks {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			StartCol: f.StartColumn,
			EndCol:   f.EndColumn,
			Secret:   secret,
		})
	}
	return findings
}

// Redact is a one-shot helper that builds a Redactor for opts.
func Redact(content string, opts Options) (Result, error) {
	r, err := NewRedactor(opts)
	if err != nil {
		return Result{}, err
	}
	return r.Redact("", content), nil
}

// replaceFindings swaps each secret value for its marker. Longer secrets go
// first so a secret containing another is replaced whole.
func replaceFindings(content string, findings []Finding) string {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	for _, f := range sorted {
		marker := fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, preview(f.Secret))
		content = strings.ReplaceAll(content, f.Secret, marker)
	}
	return content
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return s
	}
	return string(runes[:4])
}

// applyAllowlist adds the allowlist as a global gitleaks allowlist. Patterns
// were validated when loaded.
func applyAllowlist(cfg *gitleaksconfig.Config, allowlist *Allowlist) {
	global := &gitleaksconfig.Allowlist{Description: "diffscribe project/user allowlist"}

	for _, p := range allowlist.Paths {
		global.Paths = append(global.Paths, (*gitleaksregexp.Regexp)(regexp.MustCompile(p)))
	}
	for _, p := range allowlist.Regexes {
		global.Regexes = append(global.Regexes, (*gitleaksregexp.Regexp)(regexp.MustCompile(p)))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
}
