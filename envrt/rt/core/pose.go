package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Pose is the camera-to-world transform at capture time. The camera looks down
// -Z with +Y up and +X to the right.
type Pose struct {
	Rotation mgl32.Quat
	Position mgl32.Vec3
}

func IdentityPose() Pose {
	return Pose{Rotation: mgl32.QuatIdent()}
}

// PoseFromYawPitch builds a pose rotated by yaw about +Y, then pitch about the
// rotated +X. Angles are in radians.
func PoseFromYawPitch(yaw, pitch float32) Pose {
	q := mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0}).Mul(mgl32.QuatRotate(pitch, mgl32.Vec3{1, 0, 0}))
	return Pose{Rotation: q.Normalize()}
}

func (p Pose) CameraToWorld() mgl32.Mat4 {
	translate := mgl32.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z())
	return translate.Mul4(p.Rotation.Normalize().Mat4())
}

func (p Pose) WorldToCamera() mgl32.Mat4 {
	// inv(T*R) = R^T * inv(T)
	invRotate := p.Rotation.Normalize().Conjugate().Mat4()
	invTranslate := mgl32.Translate3D(-p.Position.X(), -p.Position.Y(), -p.Position.Z())
	return invRotate.Mul4(invTranslate)
}

// Forward is the world-space viewing direction.
func (p Pose) Forward() mgl32.Vec3 {
	return p.Rotation.Normalize().Rotate(mgl32.Vec3{0, 0, -1})
}

// Intrinsics is a pinhole camera model in pixel units for a Width x Height
// image with the origin at the top-left corner.
type Intrinsics struct {
	Fx, Fy float32
	Cx, Cy float32
	Width  int
	Height int
}

// IntrinsicsFromFOV builds centered intrinsics with square pixels from a
// horizontal field of view in radians.
func IntrinsicsFromFOV(width, height int, hfov float32) Intrinsics {
	f := float32(width) / 2 / float32(math.Tan(float64(hfov)/2))
	return Intrinsics{
		Fx:     f,
		Fy:     f,
		Cx:     float32(width) / 2,
		Cy:     float32(height) / 2,
		Width:  width,
		Height: height,
	}
}

// Scaled returns the intrinsics of the same camera after resizing the image to
// width x height.
func (in Intrinsics) Scaled(width, height int) Intrinsics {
	if in.Width == 0 || in.Height == 0 {
		return in
	}
	sx := float32(width) / float32(in.Width)
	sy := float32(height) / float32(in.Height)
	return Intrinsics{
		Fx:     in.Fx * sx,
		Fy:     in.Fy * sy,
		Cx:     in.Cx * sx,
		Cy:     in.Cy * sy,
		Width:  width,
		Height: height,
	}
}
