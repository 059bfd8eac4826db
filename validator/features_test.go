package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-validator/errors"
)

func TestParseFeatures(t *testing.T) {
	tests := []struct {
		in   string
		want Features
	}{
		{"", 0},
		{"wasm1", WASM1Features},
		{"simd", FeatureSIMD},
		{"simd, threads", FeatureSIMD | FeatureThreads},
		{"default,-simd", DefaultFeatures &^ FeatureSIMD},
		{"WASM2,gc", WASM2Features | FeatureGC},
		{"all", AllFeatures},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFeatures(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFeatures("simd,warp-drive")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseConfig, e.Phase)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
	assert.Equal(t, "warp-drive", e.Value)
}

func TestFeatureNames(t *testing.T) {
	assert.Equal(t, "mutable-global", WASM1Features.String())
	assert.Equal(t, []string{"simd", "threads"}, (FeatureSIMD | FeatureThreads).Names())
	assert.Len(t, FeatureNames(), len(AllFeatures.Names()))

	for _, name := range FeatureNames() {
		f, err := LookupFeature(name)
		require.NoError(t, err)
		assert.Equal(t, name, f.Name())
	}
}

func TestPresetsNest(t *testing.T) {
	assert.True(t, WASM2Features.Has(WASM1Features))
	assert.True(t, WASM3Features.Has(WASM2Features))
	assert.True(t, DefaultFeatures.Has(WASM3Features|FeatureThreads))
	assert.True(t, AllFeatures.Has(DefaultFeatures))
	assert.False(t, WASM2Features.Has(FeatureGC))
}

func TestFeaturesYAML(t *testing.T) {
	var cfg struct {
		Features Features `yaml:"features"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("features: [wasm2, threads]\n"), &cfg))
	assert.Equal(t, WASM2Features|FeatureThreads, cfg.Features)

	require.NoError(t, yaml.Unmarshal([]byte("features: default,-simd\n"), &cfg))
	assert.Equal(t, DefaultFeatures&^FeatureSIMD, cfg.Features)

	err := yaml.Unmarshal([]byte("features: {simd: true}\n"), &cfg)
	require.Error(t, err)

	cfg.Features = FeatureSIMD | FeatureGC
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, "features:\n    - simd\n    - gc\n", string(out))
}
