package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/validator"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte(`
features:
  preset: wasm2
  enable: [threads, tail-call]
  disable: simd
jobs: 3
limits:
  max_control_depth: 100
  max_operand_depth: 1000
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Features.Preset)
	require.Equal(t, validator.WASM2Features, *cfg.Features.Preset)
	require.Equal(t, validator.FeatureThreads|validator.FeatureTailCall, cfg.Features.Enable)
	require.Equal(t, validator.FeatureSIMD, cfg.Features.Disable)
	require.Equal(t, 3, cfg.Jobs)
	require.Equal(t, limitsConfig{MaxControlDepth: 100, MaxOperandDepth: 1000}, cfg.Limits)

	f := cfg.Features.resolve(validator.DefaultFeatures, false)
	require.True(t, f.Has(validator.FeatureThreads|validator.FeatureTailCall|validator.FeatureBulkMemory))
	require.False(t, f.Has(validator.FeatureSIMD))
	require.False(t, f.Has(validator.FeatureGC))

	// Explicit features keep the caller's base but still take the edits
	f = cfg.Features.resolve(validator.DefaultFeatures, true)
	require.True(t, f.Has(validator.FeatureGC))
	require.False(t, f.Has(validator.FeatureSIMD))
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, validator.DefaultFeatures, cfg.Features.resolve(validator.DefaultFeatures, false))
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", "parallel: 4\n"},
		{"unknown feature", "features:\n  enable: [warp-drive]\n"},
		{"negative jobs", "jobs: -1\n"},
		{"negative limit", "limits:\n  max_operand_depth: -5\n"},
		{"bad features node", "features:\n  enable: {simd: true}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tt.data))
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, errors.PhaseConfig, e.Phase)
		})
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := loadConfig("/nonexistent/validate.yaml")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestTelemetryDisabled(t *testing.T) {
	tp, shutdown, err := initTelemetry(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer(serviceName).Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	shutdown()
}

func TestNewLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		logger, err := newLogger(verbose)
		require.NoError(t, err)
		require.Equal(t, verbose, logger.Core().Enabled(-1))
	}
}
