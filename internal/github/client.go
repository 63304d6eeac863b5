// Package github fetches release ranges, pull requests and their patches
// from the GitHub REST API.
//
// Every call waits on a shared rate limiter and is retried with exponential
// backoff on rate limits and server errors.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrNoReleases is returned when a repository has no published release.
var ErrNoReleases = errors.New("no published releases")

// Config configures a Client.
type Config struct {
	// Token authenticates requests; anonymous when empty.
	Token string
	// BaseURL is a GitHub Enterprise API root. Empty means api.github.com.
	BaseURL string
	// RequestsPerSecond caps outgoing calls; zero or less means unlimited.
	RequestsPerSecond float64
	// Timeout bounds each HTTP request. Default: 30s
	Timeout time.Duration
	Retry   RetryConfig
}

// ConfigFrom maps the github section of the application config.
func ConfigFrom(c config.GitHubConfig) Config {
	return Config{
		Token:             c.Token.Value(),
		BaseURL:           c.BaseURL,
		RequestsPerSecond: c.RequestsPerSecond,
		Timeout:           c.Timeout.Duration(),
		Retry:             RetryConfig{MaxRetries: c.MaxRetries},
	}
}

// Client wraps the go-github client with rate limiting and retries.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *zap.Logger
}

// NewClient creates a Client. ctx is only used to build the OAuth2
// transport.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Retry.ApplyDefaults()

	httpClient := &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		logger.Warn("no GitHub token configured, using anonymous API access")
	}
	httpClient.Timeout = cfg.Timeout

	gh := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		gh:      gh,
		limiter: rate.NewLimiter(limit, 1),
		retry:   cfg.Retry,
		logger:  logger,
	}, nil
}

// call runs one API operation under the rate limiter and retry policy.
func (c *Client) call(ctx context.Context, op string, fn func() (*github.Response, error)) (*github.Response, error) {
	logger := c.logger.With(zap.String("operation", op))
	return retryOperation(ctx, c.retry, logger, func() (*github.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		return fn()
	})
}
