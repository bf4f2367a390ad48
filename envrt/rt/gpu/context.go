package gpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

type ContextOptions struct {
	// Instance is an existing instance to share, e.g. with a preview window.
	// The Context does not release a shared instance.
	Instance          *wgpu.Instance
	CompatibleSurface *wgpu.Surface

	PowerPreference      wgpu.PowerPreference
	ForceFallbackAdapter bool

	// MaxFrameWidth down-scales uploaded camera frames wider than this. Zero
	// keeps the native size.
	MaxFrameWidth int

	Logger core.Logger
}

// Context owns the compute device and the compiled environment map kernel for
// one map height.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	ShaderModule    *wgpu.ShaderModule
	BindGroupLayout *wgpu.BindGroupLayout
	PipelineLayout  *wgpu.PipelineLayout
	Pipeline        *wgpu.ComputePipeline

	// FrameInfoBuf is rewritten before every dispatch.
	FrameInfoBuf *wgpu.Buffer

	mu            sync.Mutex
	ownsInstance  bool
	released      bool
	geometry      core.DispatchGeometry
	maxFrameWidth int
	logger        core.Logger

	uploads    atomic.Uint64
	dispatches atomic.Uint64
	failures   atomic.Uint64
}

// NewContext acquires a device and builds the update pipeline for maps of
// the given height. Device or pipeline failures are returned as
// *core.CapabilityError and leave nothing allocated.
func NewContext(mapHeight int, opts ContextOptions) (*Context, error) {
	geometry, err := core.NewDispatchGeometry(mapHeight)
	if err != nil {
		return nil, err
	}

	c := &Context{
		geometry:      geometry,
		maxFrameWidth: opts.MaxFrameWidth,
		logger:        core.OrNop(opts.Logger),
	}
	if err := c.init(opts); err != nil {
		c.Release()
		return nil, err
	}
	c.logger.Infof("environment map context ready: %s", geometry)
	return c, nil
}

func capability(stage, reason string, err error) error {
	return &core.CapabilityError{Stage: stage, Reason: reason, Err: err}
}

func (c *Context) init(opts ContextOptions) error {
	c.Instance = opts.Instance
	if c.Instance == nil {
		c.Instance = wgpu.CreateInstance(nil)
		if c.Instance == nil {
			return capability("instance", "failed to create instance", nil)
		}
		c.ownsInstance = true
	}

	adapter, err := c.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface:    opts.CompatibleSurface,
		PowerPreference:      opts.PowerPreference,
		ForceFallbackAdapter: opts.ForceFallbackAdapter,
	})
	if err != nil {
		return capability("adapter", "no suitable adapter", err)
	}
	c.Adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Environment Map Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return capability("device", "failed to create device", err)
	}
	c.Device = device
	c.Queue = device.GetQueue()

	if err := checkLimits(c.geometry, device.GetLimits().Limits); err != nil {
		return err
	}

	c.ShaderModule, err = device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Environment Map CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.EnvMapUpdateWGSL},
	})
	if err != nil {
		return capability("shader", "failed to compile "+shaders.EnvMapUpdateEntryPoint, err)
	}

	c.BindGroupLayout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Environment Map BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    shaders.BindingFrame,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    shaders.BindingLookup,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    shaders.BindingEnvMap,
				Visibility: wgpu.ShaderStageCompute,
				StorageTexture: wgpu.StorageTextureBindingLayout{
					Access:        wgpu.StorageTextureAccessWriteOnly,
					Format:        wgpu.TextureFormatRGBA8Unorm,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    shaders.BindingFrameInfo,
				Visibility: wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: core.FrameInfoSize,
				},
			},
			{
				Binding:    shaders.BindingPrevMap,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    shaders.BindingConfidence,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage},
			},
		},
	})
	if err != nil {
		return capability("layout", "failed to create bind group layout", err)
	}

	c.PipelineLayout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Environment Map Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{c.BindGroupLayout},
	})
	if err != nil {
		return capability("layout", "failed to create pipeline layout", err)
	}

	c.Pipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "Environment Map Pipeline",
		Layout: c.PipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     c.ShaderModule,
			EntryPoint: shaders.EnvMapUpdateEntryPoint,
		},
	})
	if err != nil {
		return capability("pipeline", "failed to create compute pipeline", err)
	}

	c.FrameInfoBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Frame Info",
		Size:  core.FrameInfoSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return capability("pipeline", "failed to create frame info buffer", err)
	}
	return nil
}

// checkLimits reports a CapabilityError when maps of geometry g cannot be
// allocated or bound on a device with the given limits.
func checkLimits(g core.DispatchGeometry, limits wgpu.Limits) error {
	w, h := uint64(g.MapWidth), uint64(g.MapHeight)
	if w > uint64(limits.MaxTextureDimension2D) {
		return capability("limits", fmt.Sprintf("map width %d exceeds the device texture limit %d", w, limits.MaxTextureDimension2D), nil)
	}
	confidence := w * h * 4
	if confidence > limits.MaxStorageBufferBindingSize || confidence > limits.MaxBufferSize {
		return capability("limits", fmt.Sprintf("confidence buffer of %d bytes exceeds the device buffer limits", confidence), nil)
	}
	readback := ((w*4 + copyRowAlignment - 1) &^ (copyRowAlignment - 1)) * h
	if readback > limits.MaxBufferSize {
		return capability("limits", fmt.Sprintf("read-back buffer of %d bytes exceeds the device buffer limit %d", readback, limits.MaxBufferSize), nil)
	}
	return nil
}

// Geometry returns the dispatch geometry the pipeline was built for.
func (c *Context) Geometry() core.DispatchGeometry { return c.geometry }

func (c *Context) MapHeight() int { return c.geometry.MapHeight }

func (c *Context) Logger() core.Logger { return c.logger }

func (c *Context) Stats() core.BackendStats {
	return core.BackendStats{
		Uploads:          c.uploads.Load(),
		Dispatches:       c.dispatches.Load(),
		DispatchFailures: c.failures.Load(),
	}
}

// Release frees the pipeline and device. Textures created by the Context
// must be released first. Calling Release more than once is a no-op.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true

	if c.FrameInfoBuf != nil {
		c.FrameInfoBuf.Release()
		c.FrameInfoBuf = nil
	}
	if c.Pipeline != nil {
		c.Pipeline.Release()
		c.Pipeline = nil
	}
	if c.PipelineLayout != nil {
		c.PipelineLayout.Release()
		c.PipelineLayout = nil
	}
	if c.BindGroupLayout != nil {
		c.BindGroupLayout.Release()
		c.BindGroupLayout = nil
	}
	if c.ShaderModule != nil {
		c.ShaderModule.Release()
		c.ShaderModule = nil
	}
	if c.Queue != nil {
		c.Queue.Release()
		c.Queue = nil
	}
	if c.Device != nil {
		c.Device.Release()
		c.Device = nil
	}
	if c.Adapter != nil {
		c.Adapter.Release()
		c.Adapter = nil
	}
	if c.Instance != nil && c.ownsInstance {
		c.Instance.Release()
	}
	c.Instance = nil
}

func (c *Context) checkOpen() error {
	if c.released {
		return core.ErrClosed
	}
	return nil
}

// IsCapabilityError reports whether err means the device cannot run the
// kernel at all.
func IsCapabilityError(err error) bool {
	var capErr *core.CapabilityError
	return errors.As(err, &capErr)
}
