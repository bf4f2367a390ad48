package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Equirectangular conventions used by the lookup and the kernel:
//
//   - The map is 2N x N texels. Column u in [0,1) maps to longitude
//     2*pi*(u-0.5), row v in [0,1) maps to latitude pi*(0.5-v).
//   - Latitude +pi/2 is +Y (top row), -pi/2 is -Y (bottom row).
//   - Longitude 0 faces -Z, the view direction of the identity pose, and
//     grows towards +X, so the identity camera sees the middle of the map
//     with image-right matching map-right.

// DirectionFromLatLong returns the unit direction for a latitude and longitude
// in radians.
func DirectionFromLatLong(latitude, longitude float32) mgl32.Vec3 {
	cosLat := float32(math.Cos(float64(latitude)))
	return mgl32.Vec3{
		float32(math.Sin(float64(longitude))) * cosLat,
		float32(math.Sin(float64(latitude))),
		-float32(math.Cos(float64(longitude))) * cosLat,
	}
}

// LatLongFromDirection is the inverse of DirectionFromLatLong. The zero vector
// maps to (0, 0).
func LatLongFromDirection(dir mgl32.Vec3) (latitude, longitude float32) {
	length := dir.Len()
	if length == 0 {
		return 0, 0
	}
	r := float32(math.Sqrt(float64(dir.X()*dir.X() + dir.Z()*dir.Z())))
	absY := dir.Y()
	if absY < 0 {
		absY = -absY
	}
	if r < absY {
		// acos is better conditioned near the poles
		latitude = float32(math.Acos(float64(r / length)))
		if dir.Y() < 0 {
			latitude = -latitude
		}
	} else {
		latitude = float32(math.Asin(float64(dir.Y() / length)))
	}
	if dir.X() == 0 && dir.Z() == 0 {
		return latitude, 0
	}
	longitude = float32(math.Atan2(float64(dir.X()), float64(-dir.Z())))
	return latitude, longitude
}

// TexelDirection returns the direction through the centre of texel (x, y) of a
// width x height equirectangular map.
func TexelDirection(x, y, width, height int) mgl32.Vec3 {
	u := (float32(x) + 0.5) / float32(width)
	v := (float32(y) + 0.5) / float32(height)
	return DirectionFromLatLong(math.Pi*(0.5-v), 2*math.Pi*(u-0.5))
}

// TexelFromDirection returns the texel of a width x height map that contains
// dir.
func TexelFromDirection(dir mgl32.Vec3, width, height int) (x, y int) {
	lat, lon := LatLongFromDirection(dir)
	u := lon/(2*math.Pi) + 0.5
	v := 0.5 - lat/math.Pi
	x = int(u * float32(width))
	y = int(v * float32(height))
	return clampInt(x, 0, width-1), clampInt(y, 0, height-1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
