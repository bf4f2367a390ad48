package gpu

import (
	"image"
	"image/color"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/soft"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fill = color.RGBA{R: 40, G: 80, B: 120, A: 255}

// newTestContext skips the test on machines without a usable adapter.
func newTestContext(t *testing.T, mapHeight int) *Context {
	t.Helper()
	c, err := NewContext(mapHeight, ContextOptions{})
	if IsCapabilityError(err) {
		t.Skipf("no compute device: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(c.Release)
	return c
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	return img
}

func TestNewContext_InvalidHeight(t *testing.T) {
	for _, h := range []int{0, -32, 100} {
		_, err := NewContext(h, ContextOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidMapHeight, "height %d", h)
		assert.False(t, IsCapabilityError(err))
	}
}

func TestSolidColorReadback(t *testing.T) {
	c := newTestContext(t, 512)

	envMap, err := c.SolidColorTexture(512, fill)
	require.NoError(t, err)
	defer envMap.Release()

	img, err := c.ImageFromTexture(envMap)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 1024, 512), img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		got := color.RGBA{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
		if got != fill {
			t.Fatalf("texel %d = %v, want %v", i/4, got, fill)
		}
	}
}

func TestReadbackUnsupportedFormat(t *testing.T) {
	c := newTestContext(t, 32)

	lookup, err := c.DirectionLookupTexture(32)
	require.NoError(t, err)
	defer lookup.Release()

	_, err = c.ImageFromTexture(lookup)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestUpdateMatchesSoftware(t *testing.T) {
	const mapHeight = 64
	c := newTestContext(t, mapHeight)
	ref, err := soft.New(mapHeight, soft.Options{Workers: 2})
	require.NoError(t, err)
	defer ref.Release()

	type target struct {
		update func(frame, lookup, envMap core.Texture, info core.FrameInfo) error
		image  func(image.Image) (core.Texture, error)
		read   func(core.Texture) (*image.RGBA, error)
		lookup core.Texture
		envMap core.Texture
	}
	newTarget := func(
		update func(frame, lookup, envMap core.Texture, info core.FrameInfo) error,
		img func(image.Image) (core.Texture, error),
		read func(core.Texture) (*image.RGBA, error),
		lookupFn func(int) (core.Texture, error),
		solid func(int, color.RGBA) (core.Texture, error),
	) target {
		lookup, err := lookupFn(mapHeight)
		require.NoError(t, err)
		envMap, err := solid(mapHeight, fill)
		require.NoError(t, err)
		return target{update, img, read, lookup, envMap}
	}

	targets := []target{
		newTarget(c.UpdateEnvironmentMap, c.TextureFromImage, c.ImageFromTexture, c.DirectionLookupTexture, c.SolidColorTexture),
		newTarget(ref.UpdateEnvironmentMap, ref.TextureFromImage, ref.ImageFromTexture, ref.DirectionLookupTexture, ref.SolidColorTexture),
	}

	intr := core.IntrinsicsFromFOV(128, 96, mgl32.DegToRad(80))
	for i := 0; i < 4; i++ {
		pose := core.PoseFromYawPitch(mgl32.DegToRad(float32(i*60)), mgl32.DegToRad(float32(15-i*10)))
		info := core.Pack(pose, intr, core.FrameAux{BlendWeight: 1, MaxObservations: 4, FrameIndex: uint32(i)}, 2*mapHeight, mapHeight)
		for _, tg := range targets {
			frame, err := tg.image(gradient(128, 96))
			require.NoError(t, err)
			require.NoError(t, tg.update(frame, tg.lookup, tg.envMap, info))
			frame.Release()
		}
	}

	gpuImg, err := targets[0].read(targets[0].envMap)
	require.NoError(t, err)
	cpuImg, err := targets[1].read(targets[1].envMap)
	require.NoError(t, err)

	// Directions on a footprint edge may round differently on the device.
	differing := 0
	for i := range gpuImg.Pix {
		d := int(gpuImg.Pix[i]) - int(cpuImg.Pix[i])
		if d > 2 || d < -2 {
			differing++
		}
	}
	assert.Less(t, differing, len(gpuImg.Pix)/100, "device and software maps diverge")

	for _, tg := range targets {
		tg.lookup.Release()
		tg.envMap.Release()
	}
	stats := c.Stats()
	assert.Equal(t, uint64(4), stats.Dispatches)
	assert.Equal(t, uint64(0), stats.DispatchFailures)
}

func TestUpdateRejectsForeignTextures(t *testing.T) {
	c := newTestContext(t, 32)
	ref, err := soft.New(32, soft.Options{})
	require.NoError(t, err)
	defer ref.Release()

	lookup, err := c.DirectionLookupTexture(32)
	require.NoError(t, err)
	defer lookup.Release()
	frame, err := c.TextureFromImage(gradient(16, 16))
	require.NoError(t, err)
	defer frame.Release()
	foreign, err := ref.SolidColorTexture(32, fill)
	require.NoError(t, err)

	info := core.Pack(core.IdentityPose(), core.IntrinsicsFromFOV(16, 16, 1), core.FrameAux{BlendWeight: 1, MaxObservations: 4}, 64, 32)
	err = c.UpdateEnvironmentMap(frame, lookup, foreign, info)
	assert.ErrorIs(t, err, core.ErrInvalidTexture)
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := newTestContext(t, 32)
	c.Release()
	c.Release()

	_, err := c.SolidColorTexture(32, fill)
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestCheckLimits(t *testing.T) {
	// Baseline limits every WebGPU device offers.
	limits := wgpu.Limits{
		MaxTextureDimension2D:       8192,
		MaxStorageBufferBindingSize: 128 << 20,
		MaxBufferSize:               256 << 20,
	}
	for _, h := range []int{32, 512, 4096} {
		g, err := core.NewDispatchGeometry(h)
		require.NoError(t, err)
		assert.NoError(t, checkLimits(g, limits), "height %d", h)
	}

	for _, h := range []int{4112, 8192} {
		g, err := core.NewDispatchGeometry(h)
		require.NoError(t, err)
		err = checkLimits(g, limits)
		require.Error(t, err, "height %d", h)
		assert.True(t, IsCapabilityError(err), "height %d", h)
		assert.Contains(t, err.Error(), "(limits)")
	}

	g, err := core.NewDispatchGeometry(1024)
	require.NoError(t, err)
	small := limits
	small.MaxBufferSize = 4 << 20
	assert.True(t, IsCapabilityError(checkLimits(g, small)))
}
