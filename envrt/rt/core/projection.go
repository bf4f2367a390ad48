package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NearEpsilon rejects directions at or behind the camera plane.
const NearEpsilon = 1e-4

// Project maps a world direction into the frame described by info. ok is
// false when the direction is behind the camera or lands outside the image.
// This is the same computation the kernel performs per texel.
func Project(info FrameInfo, dir mgl32.Vec3) (u, v float32, ok bool) {
	cam := info.WorldToCamera.Mul4x1(dir.Vec4(0)).Vec3()
	if cam.Z() >= -NearEpsilon {
		return 0, 0, false
	}
	invDepth := 1 / -cam.Z()
	u = info.Intrinsics[0]*cam.X()*invDepth + info.Intrinsics[2]
	v = info.Intrinsics[3] - info.Intrinsics[1]*cam.Y()*invDepth
	if u < 0 || v < 0 || u >= info.FrameSize[0] || v >= info.FrameSize[1] {
		return 0, 0, false
	}
	return u, v, true
}

// SourcePixel is the nearest-neighbour pixel for a projected coordinate.
func SourcePixel(u, v float32) (x, y int) {
	return int(math.Floor(float64(u))), int(math.Floor(float64(v)))
}
