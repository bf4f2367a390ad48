package gpu

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gekko3d/envmap/envrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// Texture is a device texture created by a Context. Environment maps also
// carry the snapshot texture and confidence buffer the kernel blends with.
type Texture struct {
	id       core.TextureID
	ctx      *Context
	role     core.TextureRole
	format   core.PixelFormat
	width    int
	height   int
	writable bool

	Tex  *wgpu.Texture
	View *wgpu.TextureView

	Snapshot     *wgpu.Texture
	SnapshotView *wgpu.TextureView
	Confidence   *wgpu.Buffer
}

var _ core.Texture = (*Texture)(nil)

func (t *Texture) ID() core.TextureID       { return t.id }
func (t *Texture) Width() int               { return t.width }
func (t *Texture) Height() int              { return t.height }
func (t *Texture) Format() core.PixelFormat { return t.format }
func (t *Texture) Role() core.TextureRole   { return t.role }
func (t *Texture) Writable() bool           { return t.writable }

func (t *Texture) Release() {
	if t.Confidence != nil {
		t.Confidence.Release()
		t.Confidence = nil
	}
	if t.SnapshotView != nil {
		t.SnapshotView.Release()
		t.SnapshotView = nil
	}
	if t.Snapshot != nil {
		t.Snapshot.Release()
		t.Snapshot = nil
	}
	if t.View != nil {
		t.View.Release()
		t.View = nil
	}
	if t.Tex != nil {
		t.Tex.Release()
		t.Tex = nil
	}
}

func wgpuFormat(f core.PixelFormat) (wgpu.TextureFormat, error) {
	switch f {
	case core.PixelFormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, nil
	case core.PixelFormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case core.PixelFormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float, nil
	default:
		return wgpu.TextureFormatUndefined, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, f)
	}
}

func (c *Context) createTexture(label string, width, height int, format core.PixelFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	wf, err := wgpuFormat(format)
	if err != nil {
		return nil, nil, err
	}
	tex, err := c.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wf,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s texture: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("failed to create %s texture view: %w", label, err)
	}
	return tex, view, nil
}

func (c *Context) writeTexture(tex *wgpu.Texture, data []byte, width, height, bytesPerPixel int) error {
	extent := wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
	return c.Queue.WriteTexture(
		tex.AsImageCopy(),
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(width * bytesPerPixel),
			RowsPerImage: uint32(height),
		},
		&extent,
	)
}

// upload creates a read-only texture holding tightly packed data.
func (c *Context) upload(label string, role core.TextureRole, width, height int, format core.PixelFormat, data []byte) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d texture", core.ErrConversion, width, height)
	}
	need := width * height * format.BytesPerPixel()
	if need == 0 || len(data) < need {
		return nil, fmt.Errorf("%w: %d bytes for a %dx%d %s texture, need %d", core.ErrConversion, len(data), width, height, format, need)
	}
	data = data[:need]

	tex, view, err := c.createTexture(label, width, height, format, wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst|wgpu.TextureUsageCopySrc)
	if err != nil {
		return nil, err
	}
	if err := c.writeTexture(tex, data, width, height, format.BytesPerPixel()); err != nil {
		view.Release()
		tex.Release()
		return nil, fmt.Errorf("failed to upload %s texture: %w", label, err)
	}
	c.uploads.Add(1)

	return &Texture{
		id:     core.NewTextureID(),
		ctx:    c,
		role:   role,
		format: format,
		width:  width,
		height: height,
		Tex:    tex,
		View:   view,
	}, nil
}

// TextureFromPixelBuffer uploads a camera buffer as an RGBA frame texture,
// down-scaled to the context's maximum frame width.
func (c *Context) TextureFromPixelBuffer(buf *core.PixelBuffer) (core.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	rgba, err := buf.ToRGBA(c.maxFrameWidth)
	if err != nil {
		c.logger.Warnf("pixel buffer conversion failed: %v", err)
		return nil, err
	}
	return c.upload("Camera Frame", core.RoleCurrentFrame, rgba.Rect.Dx(), rgba.Rect.Dy(), core.PixelFormatRGBA8Unorm, rgba.Pix)
}

// TextureFromImage uploads img as a read-only RGBA texture.
func (c *Context) TextureFromImage(img image.Image) (core.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", core.ErrConversion)
	}

	rgba := core.ImageToRGBA(img, 0)
	return c.upload("Image", core.RoleCurrentFrame, rgba.Rect.Dx(), rgba.Rect.Dy(), core.PixelFormatRGBA8Unorm, rgba.Pix)
}

// TextureFromBytes uploads tightly packed texels of any supported format.
func (c *Context) TextureFromBytes(width, height int, format core.PixelFormat, data []byte) (core.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.upload("Raw", core.RoleCurrentFrame, width, height, format, data)
}

// DirectionLookupTexture builds the coordinate-conversion lookup for a map of
// the given height.
func (c *Context) DirectionLookupTexture(mapHeight int) (core.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	g, err := core.NewDispatchGeometry(mapHeight)
	if err != nil {
		return nil, err
	}
	table := core.BuildDirectionLookup(g.MapWidth, g.MapHeight)
	return c.upload("Direction Lookup", core.RoleCoordinateLookup, g.MapWidth, g.MapHeight, core.PixelFormatRGBA32Float, core.LookupBytes(table))
}

// WritableTextureFromImage creates an environment map initialised from img.
// The image must be 2:1 with the context's map height.
func (c *Context) WritableTextureFromImage(img image.Image) (core.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", core.ErrConversion)
	}

	b := img.Bounds()
	if err := c.checkMapSize(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	return c.createEnvironmentMap(core.ImageToRGBA(img, 0).Pix)
}

// SolidColorTexture creates an environment map of the given height filled
// with col.
func (c *Context) SolidColorTexture(height int, col color.RGBA) (core.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.checkMapSize(2*height, height); err != nil {
		return nil, err
	}

	pix := make([]byte, 2*height*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i+0] = col.R
		pix[i+1] = col.G
		pix[i+2] = col.B
		pix[i+3] = col.A
	}
	return c.createEnvironmentMap(pix)
}

func (c *Context) checkMapSize(width, height int) error {
	if _, err := core.NewDispatchGeometry(height); err != nil {
		return err
	}
	if width != 2*height {
		return fmt.Errorf("%w: environment map must be 2:1, got %dx%d", core.ErrInvalidTexture, width, height)
	}
	if height != c.geometry.MapHeight {
		return fmt.Errorf("%w: environment map height %d, context is built for %d", core.ErrInvalidTexture, height, c.geometry.MapHeight)
	}
	return nil
}

func (c *Context) createEnvironmentMap(pix []byte) (*Texture, error) {
	w, h := c.geometry.MapWidth, c.geometry.MapHeight

	tex, view, err := c.createTexture("Environment Map", w, h, core.PixelFormatRGBA8Unorm,
		wgpu.TextureUsageTextureBinding|wgpu.TextureUsageStorageBinding|wgpu.TextureUsageCopySrc|wgpu.TextureUsageCopyDst)
	if err != nil {
		return nil, err
	}
	t := &Texture{
		id:       core.NewTextureID(),
		ctx:      c,
		role:     core.RoleEnvironmentMap,
		format:   core.PixelFormatRGBA8Unorm,
		width:    w,
		height:   h,
		writable: true,
		Tex:      tex,
		View:     view,
	}

	t.Snapshot, t.SnapshotView, err = c.createTexture("Environment Map Snapshot", w, h, core.PixelFormatRGBA8Unorm,
		wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst)
	if err != nil {
		t.Release()
		return nil, err
	}

	// New buffers are zeroed: every texel starts unobserved.
	t.Confidence, err = c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Environment Map Confidence",
		Size:  uint64(w * h * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("failed to create confidence buffer: %w", err)
	}

	if err := c.writeTexture(tex, pix[:w*h*4], w, h, 4); err != nil {
		t.Release()
		return nil, fmt.Errorf("failed to initialise environment map: %w", err)
	}
	c.uploads.Add(1)
	return t, nil
}

// own returns t as a texture of this context.
func (c *Context) own(t core.Texture) (*Texture, error) {
	gt, ok := t.(*Texture)
	if !ok || gt.ctx != c {
		return nil, fmt.Errorf("%w: texture %v does not belong to this context", core.ErrInvalidTexture, t.ID())
	}
	if gt.Tex == nil || gt.View == nil {
		return nil, fmt.Errorf("%w: texture %v was released", core.ErrInvalidTexture, gt.id)
	}
	return gt, nil
}
