package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("disabled skips validation", func(t *testing.T) {
		cfg := &Config{Enabled: false}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("defaults are valid when enabled", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }},
		{"unknown protocol", func(c *Config) { c.Protocol = "thrift" }},
		{"insecure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }},
		{"sample rate above one", func(c *Config) { c.SampleRate = 1.5 }},
		{"zero metric interval", func(c *Config) { c.MetricInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	for endpoint, want := range map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4318":        true,
		"[::1]:4317":            true,
		"http://localhost:4318": true,
		"collector:4317":        false,
		"10.0.0.5:4317":         false,
	} {
		cfg := &Config{Endpoint: endpoint}
		assert.Equal(t, want, cfg.isLocalEndpoint(), endpoint)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:    true,
		Endpoint:   "localhost:4318",
		Protocol:   "http/protobuf",
		Insecure:   true,
		SampleRate: 0.25,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.NoError(t, cfg.Validate())
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "carrier-pigeon"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestTestTelemetry(t *testing.T) {
	tel := NewTestTelemetry(t)
	ctx := context.Background()

	_, span := otel.Tracer("diffscribe/test").Start(ctx, "patch.parse")
	span.SetAttributes(attribute.Int("files", 2), attribute.String("id", "pr-1"))
	span.End()

	counter, err := otel.Meter("diffscribe/test").Int64Counter("diffscribe.test.count")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	tel.AssertSpanExists(t, "patch.parse")
	tel.AssertSpanAttribute(t, "patch.parse", "files", 2)
	tel.AssertSpanAttribute(t, "patch.parse", "id", "pr-1")
	assert.Contains(t, tel.MetricNames(ctx), "diffscribe.test.count")
	assert.True(t, tel.Enabled())
}
