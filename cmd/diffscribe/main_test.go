package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/patch"
)

const samplePatch = `From 6c1f0a2 Mon Sep 17 00:00:00 2001
From: Ana Dev <ana@example.com>
Subject: [PATCH] Fix off-by-one in pager

---
diff --git a/pager.go b/pager.go
--- a/pager.go
+++ b/pager.go
@@ -10,3 +10,3 @@ func pages(n int) int {
 	if n == 0 {
-		return 1
+		return 0
 	}
`

// execute runs the root command with args and stdin, returning stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		parseContentOnly = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"parse", "prs", "ingest", "digest", "analyse", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	for _, flag := range []string{"config", "log-level", "log-format", "owner", "repo"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing flag --%s", flag)
	}
}

func TestParseCmd_Stdin(t *testing.T) {
	out, err := execute(t, samplePatch, "parse", "-")
	require.NoError(t, err)

	var cs patch.Changeset
	require.NoError(t, json.Unmarshal([]byte(out), &cs))
	assert.Equal(t, []string{"[PATCH] Fix off-by-one in pager"}, cs.CommitMessages)
	assert.Equal(t, []string{"pager.go"}, cs.FilesChanged)
	assert.Equal(t, 1, cs.NumFilesChanged)
	assert.True(t, strings.HasPrefix(cs.Content, "@@ -10,3 +10,3 @@ func pages(n int) int {"))
}

func TestParseCmd_FileContentOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "42.patch")
	require.NoError(t, os.WriteFile(path, []byte(samplePatch), 0o600))

	out, err := execute(t, "", "parse", "--content", path)
	require.NoError(t, err)
	assert.Equal(t, "@@ -10,3 +10,3 @@ func pages(n int) int {\n \tif n == 0 {\n-\t\treturn 1\n+\t\treturn 0\n \t}\n", out)
}

func TestParseCmd_Malformed(t *testing.T) {
	_, err := execute(t, "+++ b/x.go\n", "parse")
	require.Error(t, err)
	assert.True(t, patch.IsPatchFormat(err))
}

func TestParseCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "", "parse", filepath.Join(t.TempDir(), "nope.patch"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "diffscribe dev")
	assert.Contains(t, out, "commit: unknown")
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Cleanup(func() { logLevel, logFormat, ownerFlag, repoFlag = "", "", "", "" })
	logLevel, logFormat, ownerFlag, repoFlag = "debug", "json", "acme", "widgets"

	cfg := config.Default()
	applyFlagOverrides(cfg)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.Equal(t, "widgets", cfg.GitHub.Repo)
	assert.Equal(t, "acme_widgets_changes", cfg.CollectionName())
}

func TestApplyFlagOverrides_KeepsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.GitHub.Owner = "from-file"
	applyFlagOverrides(cfg)
	assert.Equal(t, "from-file", cfg.GitHub.Owner)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestApplyIngestOverrides(t *testing.T) {
	t.Cleanup(func() {
		ingestForce, ingestNoRedact = false, false
		ingestSource, ingestRepoPath, ingestBaseRef, ingestHeadRef = "", "", "", ""
	})
	ingestForce, ingestNoRedact = true, true
	ingestSource, ingestRepoPath, ingestBaseRef, ingestHeadRef = "local", "/src/widgets", "v1.0.0", "v1.1.0"

	a := &app{cfg: config.Default()}
	applyIngestOverrides(a)
	assert.True(t, a.cfg.Ingest.Force)
	assert.False(t, a.cfg.Ingest.RedactSecrets)
	assert.Equal(t, config.SourceConfig{Kind: "local", RepoPath: "/src/widgets", BaseRef: "v1.0.0", HeadRef: "v1.1.0"}, a.cfg.Source)
}
