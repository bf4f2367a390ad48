package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// FrameInfoSize is the byte size of the FrameInfo uniform.
const FrameInfoSize = 112

// Frame info flags.
const (
	FlagNone uint32 = 0
	// FlagOverwrite replaces visible texels instead of blending them.
	FlagOverwrite uint32 = 1 << 0
)

// FrameAux carries the per-frame scalars the kernel needs besides the pose.
type FrameAux struct {
	BlendWeight     float32
	MaxObservations float32
	FrameIndex      uint32
	Flags           uint32
}

// FrameInfo mirrors the WGSL FrameInfo uniform field for field. The wgsl tags
// name the WGSL members; field order and types define the layout.
type FrameInfo struct {
	WorldToCamera   mgl32.Mat4 `wgsl:"world_to_camera"`
	Intrinsics      mgl32.Vec4 `wgsl:"intrinsics"` // fx, fy, cx, cy
	FrameSize       mgl32.Vec2 `wgsl:"frame_size"`
	BlendWeight     float32    `wgsl:"blend_weight"`
	MaxObservations float32    `wgsl:"max_observations"`
	MapSize         [2]uint32  `wgsl:"map_size"`
	FrameIndex      uint32     `wgsl:"frame_index"`
	Flags           uint32     `wgsl:"flags"`
}

// Pack builds the FrameInfo for one dispatch.
func Pack(pose Pose, intr Intrinsics, aux FrameAux, mapWidth, mapHeight int) FrameInfo {
	return FrameInfo{
		WorldToCamera:   pose.WorldToCamera(),
		Intrinsics:      mgl32.Vec4{intr.Fx, intr.Fy, intr.Cx, intr.Cy},
		FrameSize:       mgl32.Vec2{float32(intr.Width), float32(intr.Height)},
		BlendWeight:     aux.BlendWeight,
		MaxObservations: aux.MaxObservations,
		MapSize:         [2]uint32{uint32(mapWidth), uint32(mapHeight)},
		FrameIndex:      aux.FrameIndex,
		Flags:           aux.Flags,
	}
}

// Camera returns the intrinsics encoded in the frame info.
func (f FrameInfo) Camera() Intrinsics {
	return Intrinsics{
		Fx:     f.Intrinsics[0],
		Fy:     f.Intrinsics[1],
		Cx:     f.Intrinsics[2],
		Cy:     f.Intrinsics[3],
		Width:  int(f.FrameSize[0]),
		Height: int(f.FrameSize[1]),
	}
}

// WithFrameSize rescales the intrinsics to a resized frame.
func (f FrameInfo) WithFrameSize(width, height int) FrameInfo {
	in := f.Camera().Scaled(width, height)
	f.Intrinsics = mgl32.Vec4{in.Fx, in.Fy, in.Cx, in.Cy}
	f.FrameSize = mgl32.Vec2{float32(width), float32(height)}
	return f
}

// Bytes serializes the frame info in the uniform layout:
//
//	world_to_camera  mat4x4<f32>  0
//	intrinsics       vec4<f32>    64
//	frame_size       vec2<f32>    80
//	blend_weight     f32          88
//	max_observations f32          92
//	map_size         vec2<u32>    96
//	frame_index      u32          104
//	flags            u32          108
func (f FrameInfo) Bytes() []byte {
	buf := make([]byte, FrameInfoSize)

	putF32 := func(offset int, v float32) {
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
	}

	// mgl32 matrices are column-major, as are WGSL matrices.
	for i, v := range f.WorldToCamera {
		putF32(i*4, v)
	}
	for i, v := range f.Intrinsics {
		putF32(64+i*4, v)
	}
	putF32(80, f.FrameSize[0])
	putF32(84, f.FrameSize[1])
	putF32(88, f.BlendWeight)
	putF32(92, f.MaxObservations)
	binary.LittleEndian.PutUint32(buf[96:], f.MapSize[0])
	binary.LittleEndian.PutUint32(buf[100:], f.MapSize[1])
	binary.LittleEndian.PutUint32(buf[104:], f.FrameIndex)
	binary.LittleEndian.PutUint32(buf[108:], f.Flags)

	return buf
}
