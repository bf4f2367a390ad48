package envmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
map_height: 512
backend: software
fill_color: "#10203040"
blend:
  mode: overwrite
  weight: 0.5
  max_observations: 4
frame:
  max_width: 640
software:
  workers: 3
log:
  prefix: test
  debug: true
`)
	got, err := ParseConfig(data)
	require.NoError(t, err)

	want := DefaultConfig()
	want.MapHeight = 512
	want.Backend = BackendSoftware
	want.FillColor = Color{R: 0x10, G: 0x20, B: 0x30, A: 0x40}
	want.Blend = BlendConfig{Mode: BlendOverwrite, Weight: 0.5, MaxObservations: 4}
	want.Frame.MaxWidth = 640
	want.Software.Workers = 3
	want.Log = LogConfig{Prefix: "test", Debug: true}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfig_ColorList(t *testing.T) {
	got, err := ParseConfig([]byte("fill_color: [1, 2, 3]\n"))
	require.NoError(t, err)
	assert.Equal(t, Color{R: 1, G: 2, B: 3, A: 255}, got.FillColor)

	_, err = ParseConfig([]byte("fill_color: [1, 2]\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("fill_color: \"#12345\"\n"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"height":    func(c *Config) { c.MapHeight = 500 },
		"backend":   func(c *Config) { c.Backend = "metal" },
		"mode":      func(c *Config) { c.Blend.Mode = "max" },
		"weight":    func(c *Config) { c.Blend.Weight = 0 },
		"cap":       func(c *Config) { c.Blend.MaxObservations = 0.5 },
		"max width": func(c *Config) { c.Frame.MaxWidth = -1 },
		"workers":   func(c *Config) { c.Software.Workers = -2 },
		"power":     func(c *Config) { c.GPU.PowerPreference = "turbo" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("map_height: 256\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.MapHeight)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigFrameAux(t *testing.T) {
	cfg := DefaultConfig()
	aux := cfg.FrameAux(7)
	assert.Equal(t, core.FrameAux{BlendWeight: 1, MaxObservations: 16, FrameIndex: 7}, aux)

	cfg.Blend.Mode = BlendOverwrite
	assert.Equal(t, core.FlagOverwrite, cfg.FrameAux(0).Flags)
}

func TestColorYAMLRoundTrip(t *testing.T) {
	type doc struct {
		C Color `yaml:"c"`
	}
	in := doc{Color{R: 255, G: 128, B: 1, A: 200}}
	out, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(out), "#ff8001c8")

	var back doc
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, in, back)
}
