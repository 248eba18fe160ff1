package bootstrap

import (
	"testing"

	"momoland/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestTracingConfig_MapsRuntimeConfig(t *testing.T) {
	cfg := &config.Config{
		Env:            "staging",
		TracingEnabled: true,
		TraceExporter:  "otlp",
		OTLPEndpoint:   "collector:4318",
	}

	tc := tracingConfig(cfg)

	assert.Equal(t, "momoland-api", tc.ServiceName)
	assert.Equal(t, "staging", tc.Environment)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otlp", tc.Exporter)
	assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
	assert.Equal(t, 1.0, tc.SamplerRatio)
}

func TestTracingConfig_DisabledByDefault(t *testing.T) {
	tc := tracingConfig(&config.Config{Env: "development"})
	assert.False(t, tc.Enabled)
}
