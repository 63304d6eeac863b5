package github

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/diffscribe/internal/ingest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("diffscribe.github")

// Source yields one patch per pull request merged in the latest release.
type Source struct {
	client  *Client
	owner   string
	repo    string
	workers int
	logger  *zap.Logger
}

var _ ingest.Source = (*Source)(nil)

// NewSource creates a release pull request source for owner/repo.
func NewSource(client *Client, owner, repo string, workers int, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{client: client, owner: owner, repo: repo, workers: workers, logger: logger}
}

// Patches fetches every release pull request and its patch, ordered by
// pull request number.
func (s *Source) Patches(ctx context.Context) ([]ingest.Input, error) {
	ctx, span := tracer.Start(ctx, "Source.Patches")
	defer span.End()
	span.SetAttributes(attribute.String("repository", s.owner+"/"+s.repo))

	rng, prs, err := s.client.PullRequestsForRelease(ctx, s.owner, s.repo, s.workers)
	if err != nil {
		return nil, err
	}

	inputs := make([]ingest.Input, 0, len(prs))
	for _, pr := range prs {
		text, err := s.client.PullRequestPatch(ctx, s.owner, s.repo, pr.Number)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, ingest.Input{
			ID:    fmt.Sprintf("pr-%d", pr.Number),
			Title: pr.Title,
			Text:  text,
			Metadata: map[string]interface{}{
				"pr_number": pr.Number,
				"author":    pr.Author,
				"url":       pr.URL,
				"release":   rng.Head,
				"base_ref":  rng.Base,
			},
		})
	}

	s.logger.Info("fetched release patches",
		zap.String("repository", s.owner+"/"+s.repo),
		zap.String("range", rng.String()),
		zap.Int("patches", len(inputs)))
	return inputs, nil
}
