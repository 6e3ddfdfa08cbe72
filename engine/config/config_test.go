package config

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(memfs.New(), DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, float32(4), cfg.Descriptors.Ratios["combined_image_sampler"])
	assert.Equal(t, uint32(1000), cfg.Descriptors.BaseCapacity)
}

func TestLoadOverridesRatios(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, DefaultFileName, []byte(`
[log]
level = "debug"

[descriptors]
base_capacity = 64

[descriptors.ratios]
uniform_buffer_dynamic = 3.0

[scene]
index = 1
translation = [1.0, 2.0, 3.0]
`), 0o644))

	cfg, err := Load(fs, DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, uint32(64), cfg.Descriptors.BaseCapacity)
	assert.Equal(t, float32(3), cfg.Descriptors.Ratios["uniform_buffer_dynamic"])
	assert.Equal(t, float32(0.5), cfg.Descriptors.Ratios["sampler"])
	assert.Len(t, cfg.Descriptors.Ratios, len(DefaultRatios()))
	assert.Equal(t, 1, cfg.Scene.Index)
	assert.Equal(t, []float32{1, 2, 3}, cfg.Scene.Translation)
}

func TestDecodeRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"zero capacity", "[descriptors]\nbase_capacity = 0\n"},
		{"unknown type", "[descriptors.ratios]\nacceleration_structure = 1.0\n"},
		{"negative ratio", "[descriptors.ratios]\nsampler = -1.0\n"},
		{"bad translation", "[scene]\ntranslation = [1.0, 2.0]\n"},
		{"bad rotation", "[scene]\nrotation = [0.0, 0.0, 0.0]\n"},
		{"bad mip filter", "[textures]\nmip_filter = \"cubic\"\n"},
		{"not toml", "[descriptors\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode([]byte(tt.data), Default())
			assert.Error(t, err)
		})
	}
}

func TestRatioNamesSorted(t *testing.T) {
	names := Default().Descriptors.RatioNames()
	require.Len(t, names, 11)
	assert.Equal(t, "combined_image_sampler", names[0])
	assert.Equal(t, "uniform_texel_buffer", names[len(names)-1])
}
