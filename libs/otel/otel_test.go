package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("STATION_ID", "kyiv-1")

	cfg := ConfigFromEnv("booking-service")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, "kyiv-1", cfg.Station)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	assert.Equal(t, 1.0, ConfigFromEnv("x").SampleRatio)
}

func TestTraceContextRoundTrip(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := ContextWithTraceContext(context.Background(), parent, "")
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())

	tp, ts := TraceContextStrings(ctx)
	assert.Equal(t, parent, tp)
	assert.Empty(t, ts)

	assert.Equal(t, context.Background(), ContextWithTraceContext(context.Background(), "", "ignored"))
}
