package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{
		ServiceName: "momoland-test",
		Enabled:     false,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_StdoutInstallsProvider(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{
		ServiceName:    "momoland-test",
		ServiceVersion: "0.0.0",
		Environment:    "test",
		Enabled:        true,
		Exporter:       "stdout",
		SamplerRatio:   1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	// The global provider must be the SDK one, not the default no-op, or
	// every span started by the HTTP middleware is silently discarded.
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected the SDK tracer provider to be installed globally")
	assert.NotNil(t, Tracer)
}
