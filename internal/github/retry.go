package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// RetryConfig configures retries of GitHub API calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Default: 3
	MaxRetries int
	// InitialBackoff is the first wait. Default: 1s
	InitialBackoff time.Duration
	// MaxBackoff caps every wait, rate-limit waits included. Default: 30s
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait between attempts. Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields. A negative MaxRetries
// disables retries.
func (c *RetryConfig) ApplyDefaults() {
	d := DefaultRetryConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
}

// retryOperation runs operation until it succeeds, fails permanently, or
// the retries run out.
func retryOperation(ctx context.Context, cfg RetryConfig, logger *zap.Logger, operation func() (*github.Response, error)) (*github.Response, error) {
	var (
		lastErr  error
		lastResp *github.Response
	)
	backoff := cfg.InitialBackoff
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info("GitHub API call recovered after retries",
					zap.Int("attempts", attempt+1),
					zap.Duration("total_time", time.Since(start)))
			}
			return resp, nil
		}
		lastErr, lastResp = err, resp

		if !isRetryable(err, resp) {
			logger.Debug("GitHub API error is not retryable",
				zap.Error(err),
				zap.Int("status_code", statusCode(resp)))
			return resp, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff
		if d, ok := rateLimitWait(err, resp); ok {
			wait = min(d, cfg.MaxBackoff)
			logger.Info("GitHub API rate limit hit, waiting",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait))
		} else {
			logger.Info("retrying GitHub API call after transient error",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", cfg.MaxRetries+1),
				zap.Int("status_code", statusCode(resp)),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*cfg.BackoffMultiplier), cfg.MaxBackoff)
	}

	logger.Warn("GitHub API call failed after all retries",
		zap.Int("total_attempts", cfg.MaxRetries+1),
		zap.Duration("total_time", time.Since(start)),
		zap.Int("status_code", statusCode(lastResp)),
		zap.Error(lastErr))
	return lastResp, fmt.Errorf("GitHub API call failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// isRetryable reports whether a failed call may succeed when repeated:
// rate limits, 5xx answers and transport errors.
func isRetryable(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}

	if resp == nil || resp.Response == nil {
		return true
	}
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return true
	case code == http.StatusForbidden:
		// Secondary rate limits come back as 403 with rate headers.
		return resp.Rate.Limit > 0 && resp.Rate.Remaining == 0
	case code >= 500:
		return true
	default:
		return false
	}
}

// rateLimitWait returns how long to wait before the rate limit lifts.
func rateLimitWait(err error, resp *github.Response) (time.Duration, bool) {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter, true
	}

	var reset time.Time
	var rateErr *github.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		reset = rateErr.Rate.Reset.Time
	case resp != nil && resp.Response != nil &&
		(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden):
		reset = resp.Rate.Reset.Time
	default:
		return 0, false
	}
	if reset.IsZero() {
		return time.Minute, true
	}

	// One extra second so the reset has definitely happened.
	wait := time.Until(reset) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait, true
}

func statusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return 0
}
