// Package digest retrieves recently indexed changes and summarizes each of
// them in natural language.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("diffscribe.digest")

// Defaults used when the retrieval config leaves them unset.
const (
	DefaultQuery   = "GET RECENT CODE CHANGES"
	DefaultK       = 4
	DefaultWorkers = 2
)

// Summarizer produces a short summary of a diff.
type Summarizer interface {
	Summarize(ctx context.Context, diff string) (string, error)
}

// Summary is one retrieved changeset and its summary.
type Summary struct {
	ID       string                 `json:"id"`
	Score    float32                `json:"score"`
	Summary  string                 `json:"summary"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Options configures a Digester.
type Options struct {
	Query   string
	K       int
	Workers int
}

// OptionsFrom maps the retrieval section of the application config.
func OptionsFrom(c config.RetrievalConfig) Options {
	return Options{Query: c.Query, K: c.K, Workers: c.Workers}
}

// Digester searches a store and summarizes the hits.
type Digester struct {
	store      vectorstore.Store
	summarizer Summarizer
	opts       Options
	logger     *zap.Logger
}

// New creates a Digester.
func New(store vectorstore.Store, summarizer Summarizer, opts Options, logger *zap.Logger) *Digester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Query == "" {
		opts.Query = DefaultQuery
	}
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Digester{store: store, summarizer: summarizer, opts: opts, logger: logger}
}

// Digest summarizes the k documents closest to query. Empty query and
// non-positive k fall back to the configured values. Summaries come back
// in retrieval order.
func (d *Digester) Digest(ctx context.Context, query string, k int) ([]Summary, error) {
	if query == "" {
		query = d.opts.Query
	}
	if k <= 0 {
		k = d.opts.K
	}

	ctx, span := tracer.Start(ctx, "Digester.Digest")
	defer span.End()
	span.SetAttributes(attribute.String("query", query), attribute.Int("k", k))

	start := time.Now()
	hits, err := d.store.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	out := make([]Summary, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			text, err := d.summarizer.Summarize(gctx, hit.Content)
			if err != nil {
				return fmt.Errorf("summarizing %s: %w", hit.ID, err)
			}
			out[i] = Summary{ID: hit.ID, Score: hit.Score, Summary: text, Metadata: hit.Metadata}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.logger.Info("digest complete",
		zap.String("query", query),
		zap.Int("k", k),
		zap.Int("summaries", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
