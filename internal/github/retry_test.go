package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
)

func response(code int, rate github.Rate) *github.Response {
	return &github.Response{Response: &http.Response{StatusCode: code}, Rate: rate}
}

func TestRetryConfig_ApplyDefaults(t *testing.T) {
	var cfg RetryConfig
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultRetryConfig(), cfg)

	cfg = RetryConfig{MaxRetries: -1}
	cfg.ApplyDefaults()
	assert.Zero(t, cfg.MaxRetries)
}

func TestIsRetryable(t *testing.T) {
	boom := errors.New("boom")
	limited := github.Rate{Limit: 5000, Remaining: 0}

	tests := []struct {
		name string
		err  error
		resp *github.Response
		want bool
	}{
		{"nil error", nil, nil, false},
		{"transport error", boom, nil, true},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), nil, false},
		{"deadline", context.DeadlineExceeded, nil, false},
		{"rate limit error", &github.RateLimitError{}, nil, true},
		{"abuse error", &github.AbuseRateLimitError{}, nil, true},
		{"429", boom, response(http.StatusTooManyRequests, github.Rate{}), true},
		{"500", boom, response(http.StatusInternalServerError, github.Rate{}), true},
		{"502", boom, response(http.StatusBadGateway, github.Rate{}), true},
		{"403 rate", boom, response(http.StatusForbidden, limited), true},
		{"403 plain", boom, response(http.StatusForbidden, github.Rate{}), false},
		{"404", boom, response(http.StatusNotFound, github.Rate{}), false},
		{"422", boom, response(http.StatusUnprocessableEntity, github.Rate{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err, tt.resp))
		})
	}
}

func TestRateLimitWait(t *testing.T) {
	retryAfter := 7 * time.Second
	d, ok := rateLimitWait(&github.AbuseRateLimitError{RetryAfter: &retryAfter}, nil)
	assert.True(t, ok)
	assert.Equal(t, retryAfter, d)

	reset := github.Timestamp{Time: time.Now().Add(10 * time.Second)}
	d, ok = rateLimitWait(&github.RateLimitError{Rate: github.Rate{Reset: reset}}, nil)
	assert.True(t, ok)
	assert.InDelta(t, float64(11*time.Second), float64(d), float64(time.Second))

	past := github.Timestamp{Time: time.Now().Add(-time.Minute)}
	d, ok = rateLimitWait(errors.New("x"), response(http.StatusTooManyRequests, github.Rate{Reset: past}))
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	d, ok = rateLimitWait(errors.New("x"), response(http.StatusTooManyRequests, github.Rate{}))
	assert.True(t, ok)
	assert.Equal(t, time.Minute, d)

	_, ok = rateLimitWait(errors.New("x"), response(http.StatusBadGateway, github.Rate{}))
	assert.False(t, ok)
}
