package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/logging"
	"github.com/fyrsmithlabs/diffscribe/internal/patch"
	"github.com/fyrsmithlabs/diffscribe/internal/secrets"
	"github.com/fyrsmithlabs/diffscribe/internal/vectorstore"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// memStore records AddDocuments batches.
type memStore struct {
	mu      sync.Mutex
	count   int
	batches [][]vectorstore.Document
	addErr  error
}

var _ vectorstore.Store = (*memStore)(nil)

func (s *memStore) AddDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return nil, s.addErr
	}
	batch := append([]vectorstore.Document(nil), docs...)
	s.batches = append(s.batches, batch)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	s.count += len(docs)
	return ids, nil
}

func (s *memStore) docs() []vectorstore.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []vectorstore.Document
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

func (s *memStore) Search(context.Context, string, int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (s *memStore) SearchWithFilters(context.Context, string, int, map[string]interface{}) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

func (s *memStore) CollectionExists(context.Context, string) (bool, error) { return s.count > 0, nil }
func (s *memStore) DeleteCollection(context.Context, string) error         { return nil }
func (s *memStore) Close() error                                            { return nil }

type failingSource struct{ err error }

func (f failingSource) Patches(context.Context) ([]Input, error) { return nil, f.err }

// fakeRedactor replaces a fixed marker.
type fakeRedactor struct{ secret string }

func (f fakeRedactor) Redact(source, content string) secrets.Result {
	n := strings.Count(content, f.secret)
	res := secrets.Result{Content: strings.ReplaceAll(content, f.secret, "[REDACTED]")}
	res.Audit.Source = source
	res.Audit.Redactions = make([]secrets.Redaction, n)
	return res
}

func mailPatch(subject, file, added string) string {
	return fmt.Sprintf(`From 1234567890abcdef Mon Sep 17 00:00:00 2001
From: Ana Dev <ana@example.com>
Subject: %s

---
diff --git a/%s b/%s
--- a/%s
+++ b/%s
@@ -1,2 +1,2 @@
 keep
-old
+%s
`, subject, file, file, file, file, added)
}

const malformedPatch = "Subject: Broken\n\n+++ b/only-new-side.go\n@@ -1 +1 @@\n-a\n+b\n"

const binaryPatch = `Subject: Add logo
diff --git a/logo.png b/logo.png
new file mode 100644
Binary files /dev/null and b/logo.png differ
`

func TestPipeline_Run(t *testing.T) {
	store := &memStore{}
	src := StaticSource{
		{ID: "pr-1", Title: "Fix parser", Text: mailPatch("Fix parser", "parser.go", "new"), Metadata: map[string]interface{}{"pr_number": 1, "author": "ana"}},
		{ID: "pr-2", Title: "Broken", Text: malformedPatch},
		{ID: "pr-3", Title: "Add logo", Text: binaryPatch},
		{ID: "pr-4", Title: "Tune config", Text: mailPatch("Tune config", "config.yaml", "timeout: 5s")},
	}

	p := NewPipeline(store, Options{Workers: 2, BatchSize: 1}, nil)
	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, 1, report.Empty)
	assert.Equal(t, []string{"pr-2"}, report.MalformedIDs)

	require.Len(t, store.batches, 2)
	docs := store.docs()
	assert.Equal(t, "pr-1", docs[0].ID)
	assert.Equal(t, "pr-4", docs[1].ID)
	assert.Equal(t, "@@ -1,2 +1,2 @@\n keep\n-old\n+new", docs[0].Content)

	md := docs[0].Metadata
	assert.Equal(t, []string{"Fix parser"}, md[patch.MetaCommitMessages])
	assert.Equal(t, []string{"parser.go"}, md[patch.MetaFilesChanged])
	assert.Equal(t, 1, md[patch.MetaNumFilesChanged])
	assert.Equal(t, "pr-1", md[MetaSourceID])
	assert.Equal(t, "Fix parser", md[MetaTitle])
	assert.Equal(t, 1, md["pr_number"])
	assert.Equal(t, "ana", md["author"])

	m := p.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PatchesTotal.WithLabelValues(OutcomeIndexed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchesTotal.WithLabelValues(OutcomeMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchesTotal.WithLabelValues(OutcomeEmpty)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsIndexed))
}

func TestPipeline_PreservesOrder(t *testing.T) {
	store := &memStore{}
	var src StaticSource
	for i := 0; i < 50; i++ {
		src = append(src, Input{
			ID:   fmt.Sprintf("pr-%d", i),
			Text: mailPatch(fmt.Sprintf("Change %d", i), fmt.Sprintf("f%d.go", i), "new"),
		})
	}

	report, err := NewPipeline(store, Options{Workers: 8, BatchSize: 7}, nil).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 50, report.Indexed)
	assert.Len(t, store.batches, 8)

	for i, d := range store.docs() {
		assert.Equal(t, fmt.Sprintf("pr-%d", i), d.ID)
	}
}

func TestPipeline_SkipsPopulatedCollection(t *testing.T) {
	store := &memStore{count: 3}
	logs := logging.NewTestLogger()

	report, err := NewPipeline(store, Options{}, logs.Underlying()).Run(context.Background(), failingSource{err: errors.New("must not fetch")})
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, store.batches)
	logs.AssertLogged(t, zapcore.InfoLevel, "collection already populated, skipping ingestion")
}

func TestPipeline_Force(t *testing.T) {
	store := &memStore{count: 3}
	src := StaticSource{{ID: "pr-1", Text: mailPatch("Fix", "a.go", "new")}}

	report, err := NewPipeline(store, Options{Force: true}, nil).Run(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Indexed)
}

func TestPipeline_FailOnMalformed(t *testing.T) {
	store := &memStore{}
	src := StaticSource{
		{ID: "pr-1", Text: mailPatch("Fix", "a.go", "new")},
		{ID: "pr-2", Text: malformedPatch},
	}

	_, err := NewPipeline(store, Options{FailOnMalformed: true}, nil).Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, patch.IsPatchFormat(err))
	assert.Contains(t, err.Error(), "pr-2")
	assert.Empty(t, store.batches)
}

func TestPipeline_LogsMalformed(t *testing.T) {
	logs := logging.NewTestLogger()
	src := StaticSource{{ID: "pr-9", Text: malformedPatch}}

	report, err := NewPipeline(&memStore{}, Options{}, logs.Underlying()).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Malformed)
	logs.AssertLogged(t, zapcore.WarnLevel, "skipping malformed patch")
	logs.AssertField(t, "skipping malformed patch", "source_id", "pr-9")
}

func TestPipeline_Redacts(t *testing.T) {
	store := &memStore{}
	src := StaticSource{{ID: "pr-1", Text: mailPatch("Add token", "env.go", "token = hunter2")}}

	p := NewPipeline(store, Options{Redactor: fakeRedactor{secret: "hunter2"}}, nil)
	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Redactions)

	docs := store.docs()
	require.Len(t, docs, 1)
	assert.NotContains(t, docs[0].Content, "hunter2")
	assert.Contains(t, docs[0].Content, "+token = [REDACTED]")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().RedactionsTotal))
}

func TestPipeline_SourceError(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := NewPipeline(&memStore{}, Options{}, nil).Run(context.Background(), failingSource{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestPipeline_StoreError(t *testing.T) {
	boom := errors.New("qdrant down")
	store := &memStore{addErr: boom}
	src := StaticSource{{ID: "pr-1", Text: mailPatch("Fix", "a.go", "new")}}

	_, err := NewPipeline(store, Options{}, nil).Run(context.Background(), src)
	assert.ErrorIs(t, err, boom)
}

func TestPipeline_PushesMetrics(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := StaticSource{{ID: "pr-1", Text: mailPatch("Fix", "a.go", "new")}}
	opts := Options{PushgatewayURL: srv.URL, Collection: "acme_widgets"}
	_, err := NewPipeline(&memStore{}, opts, nil).Run(context.Background(), src)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/diffscribe_ingest/collection/acme_widgets", path)
	assert.NotEmpty(t, body)
}

func TestPipeline_PushFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logs := logging.NewTestLogger()
	src := StaticSource{{ID: "pr-1", Text: mailPatch("Fix", "a.go", "new")}}
	report, err := NewPipeline(&memStore{}, Options{PushgatewayURL: srv.URL}, logs.Underlying()).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	logs.AssertLogged(t, zapcore.WarnLevel, "failed to push ingestion metrics")
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(config.IngestConfig{
		Workers:         3,
		BatchSize:       10,
		FailOnMalformed: true,
		Force:           true,
		PushgatewayURL:  "http://pushgateway:9091",
	})
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 10, opts.BatchSize)
	assert.True(t, opts.FailOnMalformed)
	assert.True(t, opts.Force)
	assert.Equal(t, "http://pushgateway:9091", opts.PushgatewayURL)
	assert.Nil(t, opts.Redactor)
}
