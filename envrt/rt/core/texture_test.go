package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTexture struct {
	role     TextureRole
	format   PixelFormat
	w, h     int
	writable bool
}

func (s stubTexture) ID() TextureID       { return TextureID{} }
func (s stubTexture) Width() int          { return s.w }
func (s stubTexture) Height() int         { return s.h }
func (s stubTexture) Format() PixelFormat { return s.format }
func (s stubTexture) Role() TextureRole   { return s.role }
func (s stubTexture) Writable() bool      { return s.writable }
func (s stubTexture) Release()            {}

func TestCheckUpdateTextures(t *testing.T) {
	g, err := NewDispatchGeometry(32)
	require.NoError(t, err)

	frame := stubTexture{RoleCurrentFrame, PixelFormatRGBA8Unorm, 16, 12, false}
	lookup := stubTexture{RoleCoordinateLookup, PixelFormatRGBA32Float, 64, 32, false}
	envMap := stubTexture{RoleEnvironmentMap, PixelFormatRGBA8Unorm, 64, 32, true}

	require.NoError(t, CheckUpdateTextures(frame, lookup, envMap, g))

	writableFrame := frame
	writableFrame.writable = true
	cases := map[string][3]Texture{
		"map as frame":    {envMap, lookup, envMap},
		"writable frame":  {writableFrame, lookup, envMap},
		"lookup as frame": {lookup, lookup, envMap},
		"empty frame":     {stubTexture{RoleCurrentFrame, PixelFormatRGBA8Unorm, 0, 0, false}, lookup, envMap},
		"bgra frame":      {stubTexture{RoleCurrentFrame, PixelFormatBGRA8Unorm, 16, 12, false}, lookup, envMap},
		"small lookup":    {frame, stubTexture{RoleCoordinateLookup, PixelFormatRGBA32Float, 32, 16, false}, envMap},
		"read-only map":   {frame, lookup, stubTexture{RoleEnvironmentMap, PixelFormatRGBA8Unorm, 64, 32, false}},
	}
	for name, tc := range cases {
		assert.ErrorIs(t, CheckUpdateTextures(tc[0], tc[1], tc[2], g), ErrInvalidTexture, name)
	}
}
