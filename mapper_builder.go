package envmap

import (
	"github.com/cogentcore/webgpu/wgpu"
)

type MapperBuilder struct {
	cfg      Config
	logger   Logger
	instance *wgpu.Instance
	surface  *wgpu.Surface
}

func NewMapperBuilder(cfg Config) *MapperBuilder {
	return &MapperBuilder{cfg: cfg}
}

// UseLogger replaces the logger built from the config.
func (b *MapperBuilder) UseLogger(logger Logger) *MapperBuilder {
	b.logger = logger
	return b
}

// UseInstance shares a wgpu instance, and optionally a surface the adapter
// must be able to present to, with the GPU backend.
func (b *MapperBuilder) UseInstance(instance *wgpu.Instance, surface *wgpu.Surface) *MapperBuilder {
	b.instance = instance
	b.surface = surface
	return b
}

func (b *MapperBuilder) Build() (*Mapper, error) {
	logger := b.logger
	if logger == nil {
		logger = NewLoggerFromConfig(b.cfg.Log)
	}
	return newMapper(b.cfg, logger, b.instance, b.surface)
}
