// Package viewer shows an environment map in a window while it is built.
package viewer

import (
	"fmt"

	envmap "github.com/gekko3d/envmap"
	"github.com/gekko3d/envmap/envrt/rt/app"
	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/gpu"
	"github.com/gekko3d/envmap/envrt/rt/shaders"
	"github.com/gekko3d/envmap/envrt/rt/trace"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Viewer blits the current environment map to a window surface. With the
// GPU backend it shares the mapper's device and samples the map directly;
// otherwise it uploads a read-back snapshot every frame.
type Viewer struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Surface  *wgpu.Surface
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Config   *wgpu.SurfaceConfiguration

	ShaderModule *wgpu.ShaderModule
	Pipeline     *wgpu.RenderPipeline
	Sampler      *wgpu.Sampler
	BindGroup    *wgpu.BindGroup

	// Preview texture for maps that do not live on the viewer's device.
	PreviewTex  *wgpu.Texture
	PreviewView *wgpu.TextureView
	previewW    int
	previewH    int

	boundView  *wgpu.TextureView
	ownsDevice bool
	logger     core.Logger
}

// OpenWindow creates a window without a client API, ready for a wgpu
// surface. glfw must be initialised on the main thread.
func OpenWindow(width, height int, title string) (*glfw.Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	w, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	return w, nil
}

// New creates the instance and surface for window. Pass them to
// envmap.MapperBuilder.UseInstance so the mapper's device can present.
func New(window *glfw.Window, logger core.Logger) *Viewer {
	instance := wgpu.CreateInstance(nil)
	return &Viewer{
		Window:   window,
		Instance: instance,
		Surface:  instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window)),
		logger:   core.OrNop(logger),
	}
}

// Attach picks the device and builds the blit pipeline.
func (v *Viewer) Attach(m *envmap.Mapper) error {
	if ctx, ok := m.Backend.(*gpu.Context); ok && ctx.Instance == v.Instance {
		v.Adapter, v.Device, v.Queue = ctx.Adapter, ctx.Device, ctx.Queue
	} else {
		adapter, err := v.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
			CompatibleSurface: v.Surface,
			PowerPreference:   wgpu.PowerPreferenceLowPower,
		})
		if err != nil {
			return fmt.Errorf("failed to request preview adapter: %w", err)
		}
		v.Adapter = adapter
		v.Device, err = adapter.RequestDevice(nil)
		if err != nil {
			return fmt.Errorf("failed to request preview device: %w", err)
		}
		v.Queue = v.Device.GetQueue()
		v.ownsDevice = true
	}

	width, height := v.Window.GetFramebufferSize()
	caps := v.Surface.GetCapabilities(v.Adapter)
	if len(caps.Formats) == 0 {
		return fmt.Errorf("surface reports no formats")
	}
	v.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	v.Surface.Configure(v.Adapter, v.Device, v.Config)

	var err error
	v.ShaderModule, err = v.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Blit VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.BlitWGSL},
	})
	if err != nil {
		return fmt.Errorf("failed to create blit shader: %w", err)
	}

	v.Pipeline, err = v.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     v.ShaderModule,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     v.ShaderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    v.Config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create blit pipeline: %w", err)
	}

	v.Sampler, err = v.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create blit sampler: %w", err)
	}
	return nil
}

// Resize reconfigures the surface for a new framebuffer size.
func (v *Viewer) Resize(width, height int) {
	if width <= 0 || height <= 0 || v.Config == nil {
		return
	}
	v.Config.Width = uint32(width)
	v.Config.Height = uint32(height)
	v.Surface.Configure(v.Adapter, v.Device, v.Config)
}

func (v *Viewer) mapView(s *envmap.Session) (*wgpu.TextureView, error) {
	if gt, ok := s.EnvironmentMap().(*gpu.Texture); ok && !v.ownsDevice {
		return gt.View, nil
	}

	img, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if v.PreviewTex == nil || v.previewW != w || v.previewH != h {
		v.releasePreview()
		v.PreviewTex, err = v.Device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "Environment Map Preview",
			Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        wgpu.TextureFormatRGBA8Unorm,
			Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create preview texture: %w", err)
		}
		v.PreviewView, err = v.PreviewTex.CreateView(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create preview view: %w", err)
		}
		v.previewW, v.previewH = w, h
	}

	extent := wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}
	err = v.Queue.WriteTexture(v.PreviewTex.AsImageCopy(), img.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(img.Stride),
		RowsPerImage: uint32(h),
	}, &extent)
	if err != nil {
		return nil, fmt.Errorf("failed to upload preview: %w", err)
	}
	return v.PreviewView, nil
}

// Present draws the session's map to the window.
func (v *Viewer) Present(s *envmap.Session) error {
	view, err := v.mapView(s)
	if err != nil {
		return err
	}
	if view != v.boundView {
		if v.BindGroup != nil {
			v.BindGroup.Release()
		}
		v.BindGroup, err = v.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "Blit BG",
			Layout: v.Pipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: view},
				{Binding: 1, Sampler: v.Sampler},
			},
		})
		if err != nil {
			v.boundView = nil
			return fmt.Errorf("failed to create blit bind group: %w", err)
		}
		v.boundView = view
	}

	next, err := v.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("failed to acquire surface texture: %w", err)
	}
	defer next.Release()
	target, err := next.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create surface view: %w", err)
	}
	defer target.Release()

	encoder, err := v.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	pass.SetPipeline(v.Pipeline)
	pass.SetBindGroup(0, v.BindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("blit pass failed: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish blit: %w", err)
	}
	v.Queue.Submit(cmd)
	v.Surface.Present()
	return nil
}

// Observer refreshes the window after every merged frame and stops the
// replay once the window is closed.
func (v *Viewer) Observer() app.FrameObserver {
	return func(s *envmap.Session, f trace.Frame) bool {
		glfw.PollEvents()
		if v.Window.ShouldClose() {
			return false
		}
		if err := v.Present(s); err != nil {
			v.logger.Warnf("preview of frame %d failed: %v", f.Index, err)
		}
		return true
	}
}

// Wait keeps presenting s until the window is closed.
func (v *Viewer) Wait(s *envmap.Session) {
	for !v.Window.ShouldClose() {
		if err := v.Present(s); err != nil {
			v.logger.Warnf("preview failed: %v", err)
		}
		glfw.WaitEvents()
	}
}

func (v *Viewer) releasePreview() {
	if v.BindGroup != nil && v.boundView == v.PreviewView {
		v.BindGroup.Release()
		v.BindGroup, v.boundView = nil, nil
	}
	if v.PreviewView != nil {
		v.PreviewView.Release()
		v.PreviewView = nil
	}
	if v.PreviewTex != nil {
		v.PreviewTex.Release()
		v.PreviewTex = nil
	}
}

// Release frees viewer resources. A shared device stays with the mapper, so
// the viewer must be released before the mapper is closed.
func (v *Viewer) Release() {
	v.releasePreview()
	if v.BindGroup != nil {
		v.BindGroup.Release()
		v.BindGroup = nil
	}
	if v.Sampler != nil {
		v.Sampler.Release()
		v.Sampler = nil
	}
	if v.Pipeline != nil {
		v.Pipeline.Release()
		v.Pipeline = nil
	}
	if v.ShaderModule != nil {
		v.ShaderModule.Release()
		v.ShaderModule = nil
	}
	if v.ownsDevice {
		if v.Queue != nil {
			v.Queue.Release()
		}
		if v.Device != nil {
			v.Device.Release()
		}
		if v.Adapter != nil {
			v.Adapter.Release()
		}
	}
	v.Queue, v.Device, v.Adapter = nil, nil, nil
	if v.Surface != nil {
		v.Surface.Release()
		v.Surface = nil
	}
}

// ReleaseInstance frees the instance after the mapper that shared it.
func (v *Viewer) ReleaseInstance() {
	if v.Instance != nil {
		v.Instance.Release()
		v.Instance = nil
	}
}
