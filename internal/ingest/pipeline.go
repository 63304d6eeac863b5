// Package ingest fetches patches from a Source, parses them into
// changesets and indexes the results in a vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/patch"
	"github.com/fyrsmithlabs/diffscribe/internal/secrets"
	"github.com/fyrsmithlabs/diffscribe/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("diffscribe.ingest")

// Metadata keys added to every indexed document.
const (
	MetaSourceID = "source_id"
	MetaTitle    = "title"
)

// Redactor removes secrets from content before it is embedded.
type Redactor interface {
	Redact(source, content string) secrets.Result
}

// Options configures a Pipeline.
type Options struct {
	// Workers bounds concurrent parsing. Default: 4
	Workers int
	// BatchSize is the number of documents per AddDocuments call. Default: 32
	BatchSize int
	// FailOnMalformed aborts the run on the first malformed patch instead
	// of skipping it.
	FailOnMalformed bool
	// Force ingests even when the collection already holds documents.
	Force bool
	// Redactor, when set, is applied to every changeset's content.
	Redactor Redactor
	// PushgatewayURL, when set, receives the run's metrics.
	PushgatewayURL string
	// Collection labels pushed metrics.
	Collection string
}

// OptionsFrom maps the ingest section of the application config. The
// redactor is built by the caller.
func OptionsFrom(c config.IngestConfig) Options {
	return Options{
		Workers:         c.Workers,
		BatchSize:       c.BatchSize,
		FailOnMalformed: c.FailOnMalformed,
		Force:           c.Force,
		PushgatewayURL:  c.PushgatewayURL,
	}
}

// Report summarizes an ingestion run.
type Report struct {
	// Skipped is set when the run did nothing because the collection was
	// already populated.
	Skipped bool `json:"skipped"`

	Fetched    int `json:"fetched"`
	Indexed    int `json:"indexed"`
	Malformed  int `json:"malformed"`
	Empty      int `json:"empty"`
	Redactions int `json:"redactions"`

	// MalformedIDs lists the inputs that failed to parse, in input order.
	MalformedIDs []string `json:"malformed_ids,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Pipeline parses patches and indexes them.
type Pipeline struct {
	store   vectorstore.Store
	opts    Options
	metrics *Metrics
	logger  *zap.Logger
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store vectorstore.Store, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Pipeline{store: store, opts: opts, metrics: NewMetrics(), logger: logger}
}

// Metrics returns the pipeline's metrics.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// parsed is the outcome of preparing one input.
type parsed struct {
	doc        *vectorstore.Document
	malformed  bool
	redactions int
}

// Run fetches every patch from src, parses them concurrently and indexes
// the non-empty changesets in input order.
func (p *Pipeline) Run(ctx context.Context, src Source) (_ *Report, err error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	report := &Report{}

	if !p.opts.Force {
		n, err := p.store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting documents: %w", err)
		}
		if n > 0 {
			p.logger.Info("collection already populated, skipping ingestion",
				zap.Int("documents", n))
			report.Skipped = true
			report.Duration = time.Since(start)
			return report, nil
		}
	}

	inputs, err := src.Patches(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching patches: %w", err)
	}
	report.Fetched = len(inputs)
	span.SetAttributes(attribute.Int("patches", len(inputs)))

	results, err := p.prepare(ctx, inputs)
	if err != nil {
		return nil, err
	}

	docs := make([]vectorstore.Document, 0, len(results))
	for i, r := range results {
		report.Redactions += r.redactions
		switch {
		case r.malformed:
			report.Malformed++
			report.MalformedIDs = append(report.MalformedIDs, inputs[i].ID)
		case r.doc == nil:
			report.Empty++
		default:
			docs = append(docs, *r.doc)
		}
	}
	p.metrics.PatchesTotal.WithLabelValues(OutcomeMalformed).Add(float64(report.Malformed))
	p.metrics.PatchesTotal.WithLabelValues(OutcomeEmpty).Add(float64(report.Empty))
	p.metrics.RedactionsTotal.Add(float64(report.Redactions))

	for b := 0; b < len(docs); b += p.opts.BatchSize {
		batch := docs[b:min(b+p.opts.BatchSize, len(docs))]
		if _, err := p.store.AddDocuments(ctx, batch); err != nil {
			return nil, fmt.Errorf("indexing documents %d-%d: %w", b, b+len(batch)-1, err)
		}
		report.Indexed += len(batch)
		p.metrics.PatchesTotal.WithLabelValues(OutcomeIndexed).Add(float64(len(batch)))
		p.metrics.DocumentsIndexed.Add(float64(len(batch)))
	}

	report.Duration = time.Since(start)
	p.metrics.RunDuration.Observe(report.Duration.Seconds())
	p.metrics.LastSuccess.SetToCurrentTime()

	p.logger.Info("ingestion complete",
		zap.Int("fetched", report.Fetched),
		zap.Int("indexed", report.Indexed),
		zap.Int("malformed", report.Malformed),
		zap.Int("empty", report.Empty),
		zap.Int("redactions", report.Redactions),
		zap.Duration("duration", report.Duration))

	if p.opts.PushgatewayURL != "" {
		if err := p.metrics.Push(ctx, p.opts.PushgatewayURL, p.opts.Collection); err != nil {
			p.logger.Warn("failed to push ingestion metrics", zap.Error(err))
		}
	}
	return report, nil
}

// prepare parses inputs with bounded concurrency. results[i] belongs to
// inputs[i].
func (p *Pipeline) prepare(ctx context.Context, inputs []Input) ([]parsed, error) {
	results := make([]parsed, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := p.prepareOne(inputs[i])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) prepareOne(in Input) (parsed, error) {
	cs, err := patch.Parse(in.Text)
	if err != nil {
		var pfe *patch.PatchFormatError
		if !errors.As(err, &pfe) {
			return parsed{}, fmt.Errorf("parsing %s: %w", in.ID, err)
		}
		if p.opts.FailOnMalformed {
			return parsed{}, fmt.Errorf("parsing %s: %w", in.ID, err)
		}
		p.logger.Warn("skipping malformed patch",
			zap.String("source_id", in.ID),
			zap.Int("line", pfe.Line),
			zap.String("reason", pfe.Reason))
		return parsed{malformed: true}, nil
	}

	if cs.Empty() {
		p.logger.Debug("skipping patch without hunks",
			zap.String("source_id", in.ID),
			zap.Int("files", cs.NumFilesChanged))
		return parsed{}, nil
	}

	content := cs.Content
	redactions := 0
	if p.opts.Redactor != nil {
		res := p.opts.Redactor.Redact(in.ID, content)
		content = res.Content
		redactions = len(res.Audit.Redactions)
	}

	return parsed{
		doc: &vectorstore.Document{
			ID:       in.ID,
			Content:  content,
			Metadata: documentMetadata(in, cs),
		},
		redactions: redactions,
	}, nil
}

// documentMetadata merges source metadata with the changeset's. Changeset
// keys win over source keys of the same name.
func documentMetadata(in Input, cs patch.Changeset) map[string]interface{} {
	md := make(map[string]interface{}, len(in.Metadata)+5)
	for k, v := range in.Metadata {
		md[k] = v
	}
	for k, v := range cs.Metadata() {
		md[k] = v
	}
	md[MetaSourceID] = in.ID
	if in.Title != "" {
		md[MetaTitle] = in.Title
	}
	return md
}
