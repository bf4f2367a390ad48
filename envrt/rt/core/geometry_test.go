package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispatchGeometry_CoversMap(t *testing.T) {
	for _, h := range []int{16, 32, 256, 512, 1024} {
		g, err := NewDispatchGeometry(h)
		require.NoError(t, err, "height %d", h)

		assert.Equal(t, 2*h, g.MapWidth)
		assert.True(t, g.Covers(), "height %d: %s", h, g)
		assert.Equal(t, g.MapWidth, g.GridWidth*g.TileWidth)
		assert.Equal(t, g.MapHeight, g.GridHeight*g.TileHeight)

		x, y, z := g.Groups()
		assert.Equal(t, uint32(g.GridWidth), x)
		assert.Equal(t, uint32(g.GridHeight), y)
		assert.Equal(t, uint32(1), z)
	}
}

func TestNewDispatchGeometry_Rejects(t *testing.T) {
	for _, h := range []int{0, -16, 8, 511, 513, 1025} {
		_, err := NewDispatchGeometry(h)
		if !errors.Is(err, ErrInvalidMapHeight) {
			t.Errorf("height %d: expected ErrInvalidMapHeight, got %v", h, err)
		}
	}
}

func TestDispatchGeometry_512(t *testing.T) {
	g, err := NewDispatchGeometry(512)
	require.NoError(t, err)

	if g.GridWidth != 64 || g.GridHeight != 32 {
		t.Errorf("Expected 64x32 tiles, got %dx%d", g.GridWidth, g.GridHeight)
	}
	if g.TileCount() != 64*32 {
		t.Errorf("Expected %d tiles, got %d", 64*32, g.TileCount())
	}

	x0, y0, x1, y1 := g.Tile(g.GridWidth-1, g.GridHeight-1)
	if x1 != g.MapWidth || y1 != g.MapHeight {
		t.Errorf("Last tile should end at the map corner, got (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
}
