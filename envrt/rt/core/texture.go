package core

import (
	"fmt"

	"github.com/google/uuid"
)

type TextureID = uuid.UUID

func NewTextureID() TextureID {
	return uuid.New()
}

type PixelFormat uint32

const (
	PixelFormatUndefined PixelFormat = iota
	PixelFormatRGBA8Unorm
	PixelFormatBGRA8Unorm
	PixelFormatRGBA32Float
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA8Unorm:
		return "rgba8unorm"
	case PixelFormatBGRA8Unorm:
		return "bgra8unorm"
	case PixelFormatRGBA32Float:
		return "rgba32float"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint32(f))
	}
}

// BytesPerPixel returns the texel size, or 0 for an unknown format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGBA8Unorm, PixelFormatBGRA8Unorm:
		return 4
	case PixelFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// TextureRole is the logical use of a texture in an update.
type TextureRole int

const (
	RoleCurrentFrame TextureRole = iota
	RoleCoordinateLookup
	RoleEnvironmentMap
)

func (r TextureRole) String() string {
	switch r {
	case RoleCurrentFrame:
		return "current-frame"
	case RoleCoordinateLookup:
		return "coordinate-lookup"
	case RoleEnvironmentMap:
		return "environment-map"
	default:
		return fmt.Sprintf("TextureRole(%d)", int(r))
	}
}

// Texture is an image owned by a mapper backend. Textures only work with the
// backend that created them.
type Texture interface {
	ID() TextureID
	Width() int
	Height() int
	Format() PixelFormat
	Role() TextureRole
	// Writable reports whether the kernel may store into the texture.
	Writable() bool
	Release()
}

// CheckUpdateTextures validates the textures of one update against a dispatch
// geometry.
func CheckUpdateTextures(frame, lookup, envMap Texture, g DispatchGeometry) error {
	if frame == nil || lookup == nil || envMap == nil {
		return fmt.Errorf("%w: nil texture", ErrInvalidTexture)
	}
	if frame.Width() <= 0 || frame.Height() <= 0 {
		return fmt.Errorf("%w: empty frame texture", ErrInvalidTexture)
	}
	// The frame is sampled while the map is written; it must not alias it.
	if frame.Role() != RoleCurrentFrame || frame.Writable() {
		return fmt.Errorf("%w: frame texture is a %s, want a read-only %s", ErrInvalidTexture, frame.Role(), RoleCurrentFrame)
	}
	if frame.Format() != PixelFormatRGBA8Unorm {
		return fmt.Errorf("%w: frame texture is %s, want %s", ErrInvalidTexture, frame.Format(), PixelFormatRGBA8Unorm)
	}
	if lookup.Role() != RoleCoordinateLookup || lookup.Format() != PixelFormatRGBA32Float {
		return fmt.Errorf("%w: lookup texture is a %s %s", ErrInvalidTexture, lookup.Format(), lookup.Role())
	}
	if lookup.Width() != g.MapWidth || lookup.Height() != g.MapHeight {
		return fmt.Errorf("%w: lookup is %dx%d, map is %dx%d", ErrInvalidTexture, lookup.Width(), lookup.Height(), g.MapWidth, g.MapHeight)
	}
	if envMap.Role() != RoleEnvironmentMap || !envMap.Writable() || envMap.Format() != PixelFormatRGBA8Unorm {
		return fmt.Errorf("%w: environment map must be a writable %s texture", ErrInvalidTexture, PixelFormatRGBA8Unorm)
	}
	if envMap.Width() != g.MapWidth || envMap.Height() != g.MapHeight {
		return fmt.Errorf("%w: environment map is %dx%d, want %dx%d", ErrInvalidTexture, envMap.Width(), envMap.Height(), g.MapWidth, g.MapHeight)
	}
	return nil
}

// BackendStats counts work done by a mapper backend.
type BackendStats struct {
	Uploads          uint64
	Dispatches       uint64
	DispatchFailures uint64
}
