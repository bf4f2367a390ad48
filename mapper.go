package envmap

import (
	"fmt"
	"image"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/gpu"
	"github.com/gekko3d/envmap/envrt/rt/soft"

	"github.com/cogentcore/webgpu/wgpu"
)

// Mapper owns a backend configured for one map height. All texture and
// kernel operations of the backend are available on the Mapper.
type Mapper struct {
	Backend

	cfg    Config
	kind   BackendKind
	logger Logger
}

// NewMapper builds a mapper with a logger derived from cfg.
func NewMapper(cfg Config) (*Mapper, error) {
	return NewMapperBuilder(cfg).Build()
}

func newMapper(cfg Config, logger Logger, instance *wgpu.Instance, surface *wgpu.Surface) (*Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Mapper{cfg: cfg, logger: logger}

	switch cfg.Backend {
	case BackendGPU, BackendAuto:
		power, _ := cfg.GPU.powerPreference()
		ctx, err := gpu.NewContext(cfg.MapHeight, gpu.ContextOptions{
			Instance:             instance,
			CompatibleSurface:    surface,
			PowerPreference:      power,
			ForceFallbackAdapter: cfg.GPU.ForceFallbackAdapter,
			MaxFrameWidth:        cfg.Frame.MaxWidth,
			Logger:               logger,
		})
		if err == nil {
			m.Backend, m.kind = ctx, BackendGPU
			break
		}
		if cfg.Backend == BackendGPU || !gpu.IsCapabilityError(err) {
			return nil, fmt.Errorf("failed to create GPU backend: %w", err)
		}
		logger.Warnf("environment mapping on the GPU is unavailable, using the software kernel: %v", err)
		fallthrough

	case BackendSoftware:
		b, err := soft.New(cfg.MapHeight, soft.Options{
			Workers:       cfg.Software.Workers,
			MaxFrameWidth: cfg.Frame.MaxWidth,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create software backend: %w", err)
		}
		m.Backend, m.kind = b, BackendSoftware
	}
	return m, nil
}

// Kind reports the backend actually in use, never BackendAuto.
func (m *Mapper) Kind() BackendKind { return m.kind }

func (m *Mapper) Config() Config { return m.cfg }

func (m *Mapper) Logger() Logger { return m.logger }

// NewSession starts a map filled with the configured fill colour.
func (m *Mapper) NewSession() (*Session, error) {
	envMap, err := m.SolidColorTexture(m.cfg.MapHeight, m.cfg.FillColor.ToRGBA())
	if err != nil {
		return nil, fmt.Errorf("failed to create environment map: %w", err)
	}
	return m.newSession(envMap)
}

// NewSessionFromImage starts a map from an existing 2:1 panorama.
func (m *Mapper) NewSessionFromImage(img image.Image) (*Session, error) {
	envMap, err := m.WritableTextureFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to create environment map: %w", err)
	}
	return m.newSession(envMap)
}

func (m *Mapper) newSession(envMap core.Texture) (*Session, error) {
	lookup, err := m.DirectionLookupTexture(m.cfg.MapHeight)
	if err != nil {
		envMap.Release()
		return nil, fmt.Errorf("failed to create direction lookup: %w", err)
	}
	return &Session{
		mapper: m,
		lookup: lookup,
		envMap: envMap,
	}, nil
}

// Close releases the backend. Sessions must be closed first.
func (m *Mapper) Close() {
	m.Release()
}
