package envmap

import (
	"image"
	"image/color"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/gpu"
	"github.com/gekko3d/envmap/envrt/rt/soft"
)

// Backend stores textures and runs the environment map kernel. Textures only
// work with the backend that created them.
type Backend interface {
	TextureFromPixelBuffer(buf *core.PixelBuffer) (core.Texture, error)
	TextureFromImage(img image.Image) (core.Texture, error)
	TextureFromBytes(width, height int, format core.PixelFormat, data []byte) (core.Texture, error)
	WritableTextureFromImage(img image.Image) (core.Texture, error)
	SolidColorTexture(height int, c color.RGBA) (core.Texture, error)
	DirectionLookupTexture(mapHeight int) (core.Texture, error)
	ImageFromTexture(t core.Texture) (*image.RGBA, error)

	UpdateEnvironmentMap(frame, lookup, envMap core.Texture, info core.FrameInfo) error

	Geometry() core.DispatchGeometry
	Stats() core.BackendStats
	Release()
}

var (
	_ Backend = (*gpu.Context)(nil)
	_ Backend = (*soft.Backend)(nil)
)
