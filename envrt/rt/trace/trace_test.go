package trace

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pngTrace = `
intrinsics:
  hfov_degrees: 90
  width: 4
  height: 2
frames:
  - image: a.png
    rotation: [0, 0.7071068, 0, 0.7071068]
    position: [1, 2, 3]
    timestamp: 0.5
  - image: b.png
    timestamp: 1.0
`

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestParse(t *testing.T) {
	tr, err := Parse([]byte(pngTrace))
	require.NoError(t, err)
	require.Len(t, tr.Frames, 2)

	assert.Equal(t, "a.png", tr.Frames[0].Image)
	assert.Nil(t, tr.Frames[0].VideoFrame)
	assert.Equal(t, 0.5, tr.Frames[0].Timestamp)

	want := core.IntrinsicsFromFOV(4, 2, mgl32.DegToRad(90))
	if diff := cmp.Diff(want, tr.Intrinsics.Camera()); diff != "" {
		t.Errorf("Camera() mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameSpec_Pose(t *testing.T) {
	tr, err := Parse([]byte(pngTrace))
	require.NoError(t, err)

	p := tr.Frames[0].Pose()
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, p.Position)
	// A quarter turn about +Y faces the camera down -X.
	assert.True(t, p.Forward().ApproxEqualThreshold(mgl32.Vec3{-1, 0, 0}, 1e-5), "forward %v", p.Forward())

	identity := tr.Frames[1].Pose()
	assert.Equal(t, mgl32.QuatIdent(), identity.Rotation)
}

func TestIntrinsics_Explicit(t *testing.T) {
	in := Intrinsics{Fx: 500, Width: 640, Height: 480}
	assert.Equal(t, core.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Width: 640, Height: 480}, in.Camera())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"no size":       "intrinsics: {fx: 10}\nframes: [{image: a.png}]",
		"no focal":      "intrinsics: {width: 4, height: 2}\nframes: [{image: a.png}]",
		"no frames":     "intrinsics: {fx: 10, width: 4, height: 2}\nframes: []",
		"no media":      "intrinsics: {fx: 10, width: 4, height: 2}\nframes: [{timestamp: 1}]",
		"both media":    "intrinsics: {fx: 10, width: 4, height: 2}\nvideo: v.mp4\nframes: [{image: a.png, video_frame: 0}]",
		"missing video": "intrinsics: {fx: 10, width: 4, height: 2}\nframes: [{video_frame: 0}]",
		"out of order":  "intrinsics: {fx: 10, width: 4, height: 2}\nvideo: v.mp4\nframes: [{video_frame: 3}, {video_frame: 3}]",
		"malformed":     "intrinsics: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.True(t, errors.Is(err, ErrInvalidTrace), "got %v", err)
		})
	}
}

func TestLoad_PNGSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trace.yaml"), []byte(pngTrace), 0o644))
	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{255, 0, 0, 255})
	writePNG(t, filepath.Join(dir, "b.png"), color.RGBA{0, 0, 255, 255})

	tr, err := Load(filepath.Join(dir, "trace.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.png"), tr.Resolve("a.png"))

	src, err := Open(tr, VideoOptions{})
	require.NoError(t, err)
	defer src.Close()
	require.IsType(t, &PNGSource{}, src)

	first, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, image.Rect(0, 0, 4, 2), first.Image.Bounds())
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, first.Image.RGBAAt(0, 0))

	second, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, second.Image.RGBAAt(3, 1))
	assert.Equal(t, 1.0, second.Timestamp)

	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestPNGSource_MissingFrame(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trace.yaml"), []byte(pngTrace), 0o644))
	writePNG(t, filepath.Join(dir, "b.png"), color.RGBA{0, 0, 255, 255})

	tr, err := Load(filepath.Join(dir, "trace.yaml"))
	require.NoError(t, err)
	src := NewPNGSource(tr)

	_, err = src.Next()
	require.Error(t, err)

	// A bad frame does not stop the replay.
	f, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, f.Index)
}

func TestPNGSource_CorruptFrame(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trace.yaml"), []byte(pngTrace), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("not a png"), 0o644))

	tr, err := Load(filepath.Join(dir, "trace.yaml"))
	require.NoError(t, err)

	_, err = NewPNGSource(tr).Next()
	assert.ErrorIs(t, err, core.ErrConversion)
}
