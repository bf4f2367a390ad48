package soft

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gekko3d/envmap/envrt/rt/core"
)

// Texture is a host-memory texture. Byte formats live in Pix, RGBA32Float in
// Float.
type Texture struct {
	id       core.TextureID
	owner    *Backend
	role     core.TextureRole
	format   core.PixelFormat
	width    int
	height   int
	writable bool

	Pix   []byte
	Float []float32
	// Confidence holds the accumulated blend weight of each map texel.
	Confidence []float32

	backupPix        []byte
	backupConfidence []float32
}

var _ core.Texture = (*Texture)(nil)

func (t *Texture) ID() core.TextureID       { return t.id }
func (t *Texture) Width() int               { return t.width }
func (t *Texture) Height() int              { return t.height }
func (t *Texture) Format() core.PixelFormat { return t.format }
func (t *Texture) Role() core.TextureRole   { return t.role }
func (t *Texture) Writable() bool           { return t.writable }

func (t *Texture) Release() {
	t.Pix = nil
	t.Float = nil
	t.Confidence = nil
	t.backupPix = nil
	t.backupConfidence = nil
}

func (t *Texture) released() bool {
	return t.Pix == nil && t.Float == nil
}

func (b *Backend) newTexture(role core.TextureRole, format core.PixelFormat, width, height int) *Texture {
	return &Texture{
		id:     core.NewTextureID(),
		owner:  b,
		role:   role,
		format: format,
		width:  width,
		height: height,
	}
}

// TextureFromPixelBuffer converts a camera buffer into an RGBA frame texture,
// down-scaled to the backend's maximum frame width.
func (b *Backend) TextureFromPixelBuffer(buf *core.PixelBuffer) (core.Texture, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	rgba, err := buf.ToRGBA(b.maxFrameWidth)
	if err != nil {
		b.logger.Warnf("pixel buffer conversion failed: %v", err)
		return nil, err
	}
	return b.fromRGBA(rgba, core.RoleCurrentFrame), nil
}

func (b *Backend) TextureFromImage(img image.Image) (core.Texture, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", core.ErrConversion)
	}
	return b.fromRGBA(core.ImageToRGBA(img, 0), core.RoleCurrentFrame), nil
}

func (b *Backend) fromRGBA(rgba *image.RGBA, role core.TextureRole) *Texture {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	t := b.newTexture(role, core.PixelFormatRGBA8Unorm, w, h)
	t.Pix = make([]byte, w*h*4)
	copy(t.Pix, rgba.Pix)
	b.uploads.Add(1)
	return t
}

// TextureFromBytes wraps a copy of tightly packed texels of any supported
// format.
func (b *Backend) TextureFromBytes(width, height int, format core.PixelFormat, data []byte) (core.Texture, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d texture", core.ErrConversion, width, height)
	}
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, format)
	}
	if need := width * height * bpp; len(data) < need {
		return nil, fmt.Errorf("%w: %d bytes for a %dx%d %s texture, need %d", core.ErrConversion, len(data), width, height, format, need)
	}

	t := b.newTexture(core.RoleCurrentFrame, format, width, height)
	if format == core.PixelFormatRGBA32Float {
		t.Float = floatsFromBytes(data[:width*height*bpp])
	} else {
		t.Pix = append([]byte(nil), data[:width*height*bpp]...)
	}
	b.uploads.Add(1)
	return t, nil
}

// DirectionLookupTexture builds the coordinate-conversion lookup for a map of
// the given height.
func (b *Backend) DirectionLookupTexture(mapHeight int) (core.Texture, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	g, err := core.NewDispatchGeometry(mapHeight)
	if err != nil {
		return nil, err
	}
	t := b.newTexture(core.RoleCoordinateLookup, core.PixelFormatRGBA32Float, g.MapWidth, g.MapHeight)
	t.Float = core.BuildDirectionLookup(g.MapWidth, g.MapHeight)
	b.uploads.Add(1)
	return t, nil
}

// WritableTextureFromImage creates an environment map initialised from img.
func (b *Backend) WritableTextureFromImage(img image.Image) (core.Texture, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", core.ErrConversion)
	}
	bounds := img.Bounds()
	if err := b.checkMapSize(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}
	t := b.fromRGBA(core.ImageToRGBA(img, 0), core.RoleEnvironmentMap)
	t.writable = true
	t.Confidence = make([]float32, t.width*t.height)
	return t, nil
}

// SolidColorTexture creates an environment map of the given height filled
// with col.
func (b *Backend) SolidColorTexture(height int, col color.RGBA) (core.Texture, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if err := b.checkMapSize(2*height, height); err != nil {
		return nil, err
	}

	t := b.newTexture(core.RoleEnvironmentMap, core.PixelFormatRGBA8Unorm, 2*height, height)
	t.writable = true
	t.Pix = make([]byte, 2*height*height*4)
	for i := 0; i < len(t.Pix); i += 4 {
		t.Pix[i+0] = col.R
		t.Pix[i+1] = col.G
		t.Pix[i+2] = col.B
		t.Pix[i+3] = col.A
	}
	t.Confidence = make([]float32, 2*height*height)
	b.uploads.Add(1)
	return t, nil
}

func (b *Backend) checkMapSize(width, height int) error {
	if _, err := core.NewDispatchGeometry(height); err != nil {
		return err
	}
	if width != 2*height {
		return fmt.Errorf("%w: environment map must be 2:1, got %dx%d", core.ErrInvalidTexture, width, height)
	}
	if height != b.geometry.MapHeight {
		return fmt.Errorf("%w: environment map height %d, backend is built for %d", core.ErrInvalidTexture, height, b.geometry.MapHeight)
	}
	return nil
}

// ImageFromTexture copies an RGBA8 texture into an image. Other formats fail
// with core.ErrUnsupportedFormat.
func (b *Backend) ImageFromTexture(t core.Texture) (*image.RGBA, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil texture", core.ErrInvalidTexture)
	}
	if t.Format() != core.PixelFormatRGBA8Unorm {
		return nil, fmt.Errorf("%w: read-back of %s texture", core.ErrUnsupportedFormat, t.Format())
	}
	st, err := b.own(t)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, st.width, st.height))
	copy(img.Pix, st.Pix)
	return img, nil
}

func (b *Backend) own(t core.Texture) (*Texture, error) {
	st, ok := t.(*Texture)
	if !ok || st.owner != b {
		return nil, fmt.Errorf("%w: texture %v does not belong to this backend", core.ErrInvalidTexture, t.ID())
	}
	if st.released() {
		return nil, fmt.Errorf("%w: texture %v was released", core.ErrInvalidTexture, st.id)
	}
	return st, nil
}
