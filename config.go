package envmap

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/gekko3d/envmap/envrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
	"gopkg.in/yaml.v3"
)

// BackendKind selects where the environment map kernel runs.
type BackendKind string

const (
	BackendGPU      BackendKind = "gpu"
	BackendSoftware BackendKind = "software"
	// BackendAuto uses the GPU and falls back to software when no compute
	// device is available.
	BackendAuto BackendKind = "auto"
)

// BlendMode selects how observations are merged into the map.
type BlendMode string

const (
	BlendAverage   BlendMode = "average"
	BlendOverwrite BlendMode = "overwrite"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	MapHeight int         `yaml:"map_height"`
	Backend   BackendKind `yaml:"backend"`
	FillColor Color       `yaml:"fill_color"`

	Blend    BlendConfig    `yaml:"blend"`
	Frame    FrameConfig    `yaml:"frame"`
	GPU      GPUConfig      `yaml:"gpu"`
	Software SoftwareConfig `yaml:"software"`
	Log      LogConfig      `yaml:"log"`
}

type BlendConfig struct {
	Mode BlendMode `yaml:"mode"`
	// Weight is the confidence one observation adds.
	Weight float32 `yaml:"weight"`
	// MaxObservations caps the accumulated confidence; past it the map
	// follows an exponential moving average.
	MaxObservations float32 `yaml:"max_observations"`
}

type FrameConfig struct {
	MaxWidth int `yaml:"max_width"`
}

type GPUConfig struct {
	PowerPreference      string `yaml:"power_preference"` // high-performance, low-power
	ForceFallbackAdapter bool   `yaml:"force_fallback_adapter"`
}

type SoftwareConfig struct {
	Workers int `yaml:"workers"`
}

type LogConfig struct {
	Prefix string `yaml:"prefix"`
	Debug  bool   `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		MapHeight: 1024,
		Backend:   BackendAuto,
		FillColor: Color{R: 0, G: 0, B: 0, A: 255},
		Blend: BlendConfig{
			Mode:            BlendAverage,
			Weight:          1,
			MaxObservations: 16,
		},
		Frame: FrameConfig{MaxWidth: 1920},
		GPU:   GPUConfig{PowerPreference: "high-performance"},
		Log:   LogConfig{Prefix: "envmap"},
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := core.NewDispatchGeometry(c.MapHeight); err != nil {
		return fmt.Errorf("%w: map_height: %w", ErrInvalidConfig, err)
	}
	switch c.Backend {
	case BackendGPU, BackendSoftware, BackendAuto:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	switch c.Blend.Mode {
	case BlendAverage, BlendOverwrite:
	default:
		return fmt.Errorf("%w: unknown blend mode %q", ErrInvalidConfig, c.Blend.Mode)
	}
	if c.Blend.Weight <= 0 {
		return fmt.Errorf("%w: blend.weight must be positive, got %g", ErrInvalidConfig, c.Blend.Weight)
	}
	if c.Blend.MaxObservations < c.Blend.Weight {
		return fmt.Errorf("%w: blend.max_observations %g is below blend.weight %g", ErrInvalidConfig, c.Blend.MaxObservations, c.Blend.Weight)
	}
	if c.Frame.MaxWidth < 0 {
		return fmt.Errorf("%w: frame.max_width must not be negative", ErrInvalidConfig)
	}
	if c.Software.Workers < 0 {
		return fmt.Errorf("%w: software.workers must not be negative", ErrInvalidConfig)
	}
	if _, err := c.GPU.powerPreference(); err != nil {
		return err
	}
	return nil
}

func (g GPUConfig) powerPreference() (wgpu.PowerPreference, error) {
	switch strings.ToLower(g.PowerPreference) {
	case "", "high-performance":
		return wgpu.PowerPreferenceHighPerformance, nil
	case "low-power":
		return wgpu.PowerPreferenceLowPower, nil
	default:
		return 0, fmt.Errorf("%w: unknown gpu.power_preference %q", ErrInvalidConfig, g.PowerPreference)
	}
}

// FrameAux returns the per-frame kernel parameters for frame index.
func (c Config) FrameAux(index uint32) core.FrameAux {
	aux := core.FrameAux{
		BlendWeight:     c.Blend.Weight,
		MaxObservations: c.Blend.MaxObservations,
		FrameIndex:      index,
	}
	if c.Blend.Mode == BlendOverwrite {
		aux.Flags |= core.FlagOverwrite
	}
	return aux
}

// Color is an RGBA colour written as "#rrggbb", "#rrggbbaa" or a
// four-element list in YAML.
type Color color.RGBA

func (c Color) ToRGBA() color.RGBA { return color.RGBA(c) }

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func (c Color) MarshalYAML() (any, error) {
	return c.String(), nil
}

func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := parseHexColor(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*c = parsed
		return nil
	case yaml.SequenceNode:
		var channels []uint8
		if err := value.Decode(&channels); err != nil {
			return fmt.Errorf("line %d: colour channels must be 0-255: %w", value.Line, err)
		}
		if len(channels) != 3 && len(channels) != 4 {
			return fmt.Errorf("line %d: colour needs 3 or 4 channels, got %d", value.Line, len(channels))
		}
		*c = Color{R: channels[0], G: channels[1], B: channels[2], A: 255}
		if len(channels) == 4 {
			c.A = channels[3]
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported colour value", value.Line)
	}
}

func parseHexColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	var r, g, b, a uint8
	a = 255
	var err error
	switch len(hex) {
	case 6:
		_, err = fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	case 8:
		_, err = fmt.Sscanf(hex, "%02x%02x%02x%02x", &r, &g, &b, &a)
	default:
		err = fmt.Errorf("want 6 or 8 hex digits")
	}
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{R: r, G: g, B: b, A: a}, nil
}
