package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "tether", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerNeverNil(t *testing.T) {
	tr := Tracer()
	require.NotNil(t, tr)

	// Spans from the no-op tracer must be safe to use.
	ctx, span := StartSpan(context.Background(), "test")
	require.NotNil(t, span)
	span.End()

	AddEvent(ctx, "event")
	RecordError(ctx, nil)
	assert.Equal(t, "", TraceID(ctx))
}

func TestStartMountSpan(t *testing.T) {
	_, span := StartMountSpan(context.Background(), SpanMount, "abc123", "/mnt/data",
		Remote("sftp://user@host"), Alive(true))
	require.NotNil(t, span)
	span.End()
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.False(t, IsProfilingEnabled())
	assert.NoError(t, shutdown())
}
