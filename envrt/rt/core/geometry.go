package core

import "fmt"

// Workgroup shape of the environment map kernel. Must match @workgroup_size in
// the WGSL source.
const (
	TileWidth  = 16
	TileHeight = 16
)

// DispatchGeometry partitions an equirectangular map of a fixed height into a
// grid of TileWidth x TileHeight tiles.
type DispatchGeometry struct {
	MapWidth   int
	MapHeight  int
	TileWidth  int
	TileHeight int
	GridWidth  int
	GridHeight int
}

// NewDispatchGeometry derives the tile grid for a map of the given height
// (width is always 2*height). Heights that would leave a partial tile are
// rejected so the grid always covers the map exactly.
func NewDispatchGeometry(mapHeight int) (DispatchGeometry, error) {
	if mapHeight <= 0 {
		return DispatchGeometry{}, fmt.Errorf("%w: %d must be positive", ErrInvalidMapHeight, mapHeight)
	}
	mapWidth := 2 * mapHeight
	if mapHeight%TileHeight != 0 {
		return DispatchGeometry{}, fmt.Errorf("%w: %d is not a multiple of tile height %d", ErrInvalidMapHeight, mapHeight, TileHeight)
	}
	if mapWidth%TileWidth != 0 {
		return DispatchGeometry{}, fmt.Errorf("%w: width %d is not a multiple of tile width %d", ErrInvalidMapHeight, mapWidth, TileWidth)
	}
	return DispatchGeometry{
		MapWidth:   mapWidth,
		MapHeight:  mapHeight,
		TileWidth:  TileWidth,
		TileHeight: TileHeight,
		GridWidth:  mapWidth / TileWidth,
		GridHeight: mapHeight / TileHeight,
	}, nil
}

// Groups returns the workgroup counts for DispatchWorkgroups.
func (g DispatchGeometry) Groups() (x, y, z uint32) {
	return uint32(g.GridWidth), uint32(g.GridHeight), 1
}

// TileCount is the number of workgroups in one dispatch.
func (g DispatchGeometry) TileCount() int {
	return g.GridWidth * g.GridHeight
}

// Covers reports whether the tile grid spans the map with no remainder.
func (g DispatchGeometry) Covers() bool {
	return g.GridWidth*g.TileWidth == g.MapWidth && g.GridHeight*g.TileHeight == g.MapHeight
}

// Tile returns the texel rectangle [x0,x1) x [y0,y1) covered by tile (tx, ty).
func (g DispatchGeometry) Tile(tx, ty int) (x0, y0, x1, y1 int) {
	x0 = tx * g.TileWidth
	y0 = ty * g.TileHeight
	return x0, y0, x0 + g.TileWidth, y0 + g.TileHeight
}

func (g DispatchGeometry) String() string {
	return fmt.Sprintf("%dx%d map, %dx%d tiles of %dx%d", g.MapWidth, g.MapHeight, g.GridWidth, g.GridHeight, g.TileWidth, g.TileHeight)
}
