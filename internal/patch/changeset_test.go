package patch

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleFixPatch = `Subject: Fix off-by-one
--- a/foo.py
+++ b/foo.py
@@ -1,2 +1,2 @@
-x = 1
+x = 2
`

const twoFilePatch = `diff --git a/one.go b/one.go
--- a/one.go
+++ b/one.go
@@ -1,1 +1,1 @@
-a
+b
@@ -10,1 +10,1 @@
-c
+d
diff --git a/two.go b/two.go
--- a/two.go
+++ b/two.go
@@ -5,0 +6,1 @@
+e
`

const formatPatch = `From 3f1c2a9d0b5e7c4a1f8e6d2b9a0c3e5f7d1b4a6c Mon Sep 17 00:00:00 2001
From: Jane Doe <jane@example.com>
Date: Tue, 3 Sep 2024 10:12:00 +0200
Subject: [PATCH 1/2] Add greeting helper

Introduce a helper so callers stop formatting greetings inline.
- keeps output stable
---
 greet.go | 4 +++-
 1 file changed, 3 insertions(+), 1 deletion(-)

diff --git a/greet.go b/greet.go
index 1234567..89abcde 100644
--- a/greet.go
+++ b/greet.go
@@ -1,3 +1,5 @@ package greet
 package greet

-func Hello() string { return "hi" }
+func Hello() string { return greeting("hi") }
+
+func greeting(s string) string { return s + "!" }
--
2.43.0


From 9a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b Mon Sep 17 00:00:00 2001
From: Jane Doe <jane@example.com>
Date: Tue, 3 Sep 2024 10:15:00 +0200
Subject: [PATCH 2/2] Document greeting helper

---
 greet.go | 1 +
 1 file changed, 1 insertion(+)

diff --git a/greet.go b/greet.go
index 89abcde..fedcba9 100644
--- a/greet.go
+++ b/greet.go
@@ -3,0 +4,1 @@ func Hello() string { return greeting("hi") }
+// greeting appends an exclamation mark.
--
2.43.0
`

func TestParse_SingleFix(t *testing.T) {
	cs, err := Parse(singleFixPatch)
	require.NoError(t, err)

	assert.Equal(t, []string{"foo.py"}, cs.FilesChanged)
	assert.Equal(t, 1, cs.NumFilesChanged)
	assert.Equal(t, []string{"Fix off-by-one"}, cs.CommitMessages)
	assert.Equal(t, "@@ -1,2 +1,2 @@\n-x = 1\n+x = 2", cs.Content)
}

func TestParse_OrderPreservation(t *testing.T) {
	cs, err := Parse(twoFilePatch)
	require.NoError(t, err)

	assert.Equal(t, []string{"one.go", "two.go"}, cs.FilesChanged)
	assert.Equal(t, 2, cs.NumFilesChanged)

	want := strings.Join([]string{
		"@@ -1,1 +1,1 @@\n-a\n+b",
		"@@ -10,1 +10,1 @@\n-c\n+d",
		"@@ -5,0 +6,1 @@\n+e",
	}, "\n\n")
	assert.Equal(t, want, cs.Content)
}

func TestParse_CountInvariant(t *testing.T) {
	inputs := map[string]string{
		"single fix":   singleFixPatch,
		"two files":    twoFilePatch,
		"format patch": formatPatch,
		"empty":        "",
		"mode only":    "diff --git a/run.sh b/run.sh\nold mode 100644\nnew mode 100755\n",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			cs, err := Parse(input)
			require.NoError(t, err)
			assert.Equal(t, len(cs.FilesChanged), cs.NumFilesChanged)
		})
	}
}

func TestParse_CommitMessages(t *testing.T) {
	t.Run("keeps appearance order", func(t *testing.T) {
		cs, err := Parse(formatPatch)
		require.NoError(t, err)

		assert.Equal(t, []string{
			"[PATCH 1/2] Add greeting helper",
			"[PATCH 2/2] Document greeting helper",
		}, cs.CommitMessages)
	})

	t.Run("no subject yields empty list", func(t *testing.T) {
		cs, err := Parse(twoFilePatch)
		require.NoError(t, err)

		require.NotNil(t, cs.CommitMessages)
		assert.Empty(t, cs.CommitMessages)
	})

	t.Run("strips surrounding whitespace", func(t *testing.T) {
		msgs := CommitMessages("Subject:    Tidy imports   \r\n")
		assert.Equal(t, []string{"Tidy imports"}, msgs)
	})

	t.Run("matches only the literal prefix", func(t *testing.T) {
		msgs := CommitMessages("subject: lower\nX-Subject: other\nSubject:no-space\n Subject: indented\n")
		assert.Empty(t, msgs)
	})
}

func TestParse_FormatPatch(t *testing.T) {
	cs, err := Parse(formatPatch)
	require.NoError(t, err)

	// Same file touched by both commits is listed twice.
	assert.Equal(t, []string{"greet.go", "greet.go"}, cs.FilesChanged)
	assert.Equal(t, 2, cs.NumFilesChanged)

	want := "@@ -1,3 +1,5 @@ package greet\n" +
		" package greet\n" +
		" \n" +
		"-func Hello() string { return \"hi\" }\n" +
		"+func Hello() string { return greeting(\"hi\") }\n" +
		"+\n" +
		"+func greeting(s string) string { return s + \"!\" }" +
		"\n\n" +
		"@@ -3,0 +4,1 @@ func Hello() string { return greeting(\"hi\") }\n" +
		"+// greeting appends an exclamation mark."
	assert.Equal(t, want, cs.Content)
}

func TestParse_PlainMultiFileShortHunk(t *testing.T) {
	input := "Subject: Fix off-by-one\n" +
		"--- a/foo.py\n" +
		"+++ b/foo.py\n" +
		"@@ -1,2 +1,2 @@\n" +
		"-x = 1\n" +
		"+x = 2\n" +
		"--- a/bar.py\n" +
		"+++ b/bar.py\n" +
		"@@ -1 +1 @@\n" +
		"-a\n" +
		"+b\n"

	cs, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"foo.py", "bar.py"}, cs.FilesChanged)
	assert.Equal(t, 2, cs.NumFilesChanged)
	assert.Equal(t, "@@ -1,2 +1,2 @@\n-x = 1\n+x = 2\n\n@@ -1,1 +1,1 @@\n-a\n+b", cs.Content)
	assert.NotContains(t, cs.Content, "bar.py")
}

func TestParse_ShortHunkThenBlankThenFile(t *testing.T) {
	input := "--- a/foo.py\n+++ b/foo.py\n@@ -1,3 +1,3 @@\n-x = 1\n+x = 2\n\n" +
		"--- a/bar.py\n+++ b/bar.py\n@@ -1 +1 @@\n-a\n+b\n"

	cs, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"foo.py", "bar.py"}, cs.FilesChanged)
	assert.Equal(t, "@@ -1,3 +1,3 @@\n-x = 1\n+x = 2\n\n@@ -1,1 +1,1 @@\n-a\n+b", cs.Content)
}

func TestParse_MessageBodyWithDashes(t *testing.T) {
	input := "From 3f1c2a9d0b5e7c4a1f8e6d2b9a0c3e5f7d1b4a6c Mon Sep 17 00:00:00 2001\n" +
		"From: Jane Doe <jane@example.com>\n" +
		"Subject: Drop legacy pager\n" +
		"\n" +
		"--- old behaviour dropped\n" +
		"---\n" +
		"diff --git a/pager.go b/pager.go\n" +
		"--- a/pager.go\n" +
		"+++ b/pager.go\n" +
		"@@ -1 +1 @@\n" +
		"-legacy()\n" +
		"+modern()\n"

	cs, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"Drop legacy pager"}, cs.CommitMessages)
	assert.Equal(t, []string{"pager.go"}, cs.FilesChanged)
	assert.Equal(t, "@@ -1,1 +1,1 @@\n-legacy()\n+modern()", cs.Content)
}

func TestParse_ZeroHunks(t *testing.T) {
	t.Run("file header only", func(t *testing.T) {
		cs, err := Parse("diff --git a/run.sh b/run.sh\nold mode 100644\nnew mode 100755\n")
		require.NoError(t, err)

		assert.Equal(t, []string{"run.sh"}, cs.FilesChanged)
		assert.Equal(t, 1, cs.NumFilesChanged)
		assert.Empty(t, cs.Content)
		assert.True(t, cs.Empty())
	})

	t.Run("hunkless file contributes no content", func(t *testing.T) {
		input := "diff --git a/logo.png b/logo.png\n" +
			"index 1111111..2222222 100644\n" +
			"Binary files a/logo.png and b/logo.png differ\n" +
			"diff --git a/main.go b/main.go\n" +
			"--- a/main.go\n" +
			"+++ b/main.go\n" +
			"@@ -1 +1 @@\n" +
			"-old\n" +
			"+new\n"

		cs, err := Parse(input)
		require.NoError(t, err)

		assert.Equal(t, []string{"logo.png", "main.go"}, cs.FilesChanged)
		assert.Equal(t, "@@ -1,1 +1,1 @@\n-old\n+new", cs.Content)
	})

	t.Run("empty input", func(t *testing.T) {
		cs, err := Parse("")
		require.NoError(t, err)

		assert.Empty(t, cs.Content)
		assert.NotNil(t, cs.FilesChanged)
		assert.Empty(t, cs.FilesChanged)
		assert.Equal(t, 0, cs.NumFilesChanged)
	})
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		reason   string
	}{
		{
			name:     "bare hunk header",
			input:    "@@ -1,1 +1,1 @@\n-a\n+b\n",
			wantLine: 1,
			reason:   "hunk header without preceding file header",
		},
		{
			name:     "bare hunk header after mail headers",
			input:    "Subject: Fix\n\n@@ -1,1 +1,1 @@\n-a\n+b\n",
			wantLine: 3,
			reason:   "hunk header without preceding file header",
		},
		{
			name:     "unparsable range",
			input:    "--- a/f\n+++ b/f\n@@ -x,1 +1,1 @@\n-a\n+b\n",
			wantLine: 3,
			reason:   "unparsable hunk range",
		},
		{
			name:     "range out of bounds",
			input:    "--- a/f\n+++ b/f\n@@ -99999999999999999999,1 +1,1 @@\n-a\n+b\n",
			wantLine: 3,
			reason:   "hunk range out of bounds",
		},
		{
			name:     "unterminated hunk at end of input",
			input:    "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n",
			wantLine: 3,
			reason:   "unterminated hunk",
		},
		{
			name:     "unterminated hunk before next hunk",
			input:    "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n@@ -8,1 +8,1 @@\n-a\n+b\n",
			wantLine: 3,
			reason:   "unterminated hunk",
		},
		{
			name:     "garbage inside hunk",
			input:    "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n-a\ngarbage\n",
			wantLine: 5,
			reason:   "unexpected line in hunk body",
		},
		{
			name:     "body exceeds range",
			input:    "--- a/f\n+++ b/f\n@@ -1,1 +1,1 @@\n-a\n-b\n",
			wantLine: 5,
			reason:   "removed line exceeds hunk range",
		},
		{
			name:     "old header without new header",
			input:    "--- a/f\n@@ -1,1 +1,1 @@\n-a\n+b\n",
			wantLine: 2,
			reason:   "hunk header without preceding file header",
		},
		{
			name:     "added lines past a finished hunk",
			input:    "--- a/f\n+++ b/f\n@@ -1,1 +1,1 @@\n-a\n+b\n+c\n+d\n",
			wantLine: 6,
			reason:   "line exceeds hunk range",
		},
		{
			name:     "context line past a finished hunk",
			input:    "--- a/f\n+++ b/f\n@@ -1,1 +1,1 @@\n-a\n+b\n tail\n",
			wantLine: 6,
			reason:   "line exceeds hunk range",
		},
		{
			name:     "removed line past a finished hunk before next file",
			input:    "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-a\n+b\n-c\n--- a/g\n+++ b/g\n@@ -1 +1 @@\n-x\n+y\n",
			wantLine: 6,
			reason:   "line exceeds hunk range",
		},
		{
			name:     "new header without old header",
			input:    "+++ b/f\n@@ -1,1 +1,1 @@\n-a\n+b\n",
			wantLine: 1,
			reason:   "+++ file header without preceding ---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := Parse(tt.input)
			require.Error(t, err)
			assert.Equal(t, Changeset{}, cs)
			assert.True(t, errors.Is(err, ErrPatchFormat))
			assert.True(t, IsPatchFormat(err))

			var pfe *PatchFormatError
			require.True(t, errors.As(err, &pfe))
			assert.Equal(t, tt.wantLine, pfe.Line)
			assert.Equal(t, tt.reason, pfe.Reason)
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	for _, input := range []string{singleFixPatch, twoFilePatch, formatPatch} {
		first, err := Parse(input)
		require.NoError(t, err)
		second, err := Parse(input)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	}
}

func TestParse_Concurrent(t *testing.T) {
	want, err := Parse(formatPatch)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Changeset, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Parse(formatPatch)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestParse_TrailingBlankLines(t *testing.T) {
	cs, err := Parse(singleFixPatch + "\n\n")
	require.NoError(t, err)

	assert.Equal(t, "@@ -1,2 +1,2 @@\n-x = 1\n+x = 2", cs.Content)
}

func TestParse_CRLF(t *testing.T) {
	cs, err := Parse(strings.ReplaceAll(singleFixPatch, "\n", "\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"foo.py"}, cs.FilesChanged)
	assert.Equal(t, []string{"Fix off-by-one"}, cs.CommitMessages)
	assert.Equal(t, "@@ -1,2 +1,2 @@\n-x = 1\n+x = 2", cs.Content)
}

func TestChangeset_Metadata(t *testing.T) {
	cs, err := Parse(formatPatch)
	require.NoError(t, err)

	meta := cs.Metadata()
	require.Len(t, meta, 3)
	assert.Equal(t, cs.CommitMessages, meta[MetaCommitMessages])
	assert.Equal(t, cs.FilesChanged, meta[MetaFilesChanged])
	assert.Equal(t, 2, meta[MetaNumFilesChanged])

	files := meta[MetaFilesChanged].([]string)
	files[0] = "mutated.go"
	assert.Equal(t, "greet.go", cs.FilesChanged[0])
}
