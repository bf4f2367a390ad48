// Package trace reads recorded camera traces: a YAML description of posed
// frames backed by PNG files or a single video.
package trace

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gekko3d/envmap/envrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

var ErrInvalidTrace = errors.New("invalid trace")

// Intrinsics describe the recording camera. Either the focal lengths or a
// horizontal field of view must be given; a zero principal point means the
// image centre.
type Intrinsics struct {
	Fx          float32 `yaml:"fx,omitempty"`
	Fy          float32 `yaml:"fy,omitempty"`
	Cx          float32 `yaml:"cx,omitempty"`
	Cy          float32 `yaml:"cy,omitempty"`
	HFOVDegrees float32 `yaml:"hfov_degrees,omitempty"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
}

// Camera resolves i into pinhole intrinsics.
func (i Intrinsics) Camera() core.Intrinsics {
	if i.Fx == 0 && i.HFOVDegrees > 0 {
		return core.IntrinsicsFromFOV(i.Width, i.Height, mgl32.DegToRad(i.HFOVDegrees))
	}
	in := core.Intrinsics{Fx: i.Fx, Fy: i.Fy, Cx: i.Cx, Cy: i.Cy, Width: i.Width, Height: i.Height}
	if in.Fy == 0 {
		in.Fy = in.Fx
	}
	if in.Cx == 0 && in.Cy == 0 {
		in.Cx, in.Cy = float32(i.Width)/2, float32(i.Height)/2
	}
	return in
}

// FrameSpec is one recorded frame. Rotation is a camera-to-world quaternion
// stored as x, y, z, w.
type FrameSpec struct {
	Image      string     `yaml:"image,omitempty"`
	VideoFrame *int       `yaml:"video_frame,omitempty"`
	Rotation   [4]float32 `yaml:"rotation,flow"`
	Position   [3]float32 `yaml:"position,flow"`
	Timestamp  float64    `yaml:"timestamp"`
}

// Pose converts the recorded rotation and position. An all-zero rotation is
// the identity.
func (f FrameSpec) Pose() core.Pose {
	r := f.Rotation
	q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
	if q.Len() == 0 {
		q = mgl32.QuatIdent()
	}
	return core.Pose{
		Rotation: q.Normalize(),
		Position: mgl32.Vec3{f.Position[0], f.Position[1], f.Position[2]},
	}
}

type Trace struct {
	Intrinsics Intrinsics  `yaml:"intrinsics"`
	Video      string      `yaml:"video,omitempty"`
	Frames     []FrameSpec `yaml:"frames"`

	// Dir resolves relative image and video paths.
	Dir string `yaml:"-"`
}

// Load reads a trace file. Relative media paths are resolved against the
// file's directory.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Dir = filepath.Dir(path)
	return t, nil
}

func Parse(data []byte) (*Trace, error) {
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Trace) Validate() error {
	in := t.Intrinsics
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("%w: intrinsics need a positive width and height", ErrInvalidTrace)
	}
	if in.Fx <= 0 && (in.HFOVDegrees <= 0 || in.HFOVDegrees >= 180) {
		return fmt.Errorf("%w: intrinsics need fx or hfov_degrees in (0, 180)", ErrInvalidTrace)
	}
	if len(t.Frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrInvalidTrace)
	}

	last := -1
	for i, f := range t.Frames {
		if !finite(f.Rotation[:]) || !finite(f.Position[:]) {
			return fmt.Errorf("%w: frame %d has a non-finite pose", ErrInvalidTrace, i)
		}
		switch {
		case f.Image != "" && f.VideoFrame != nil:
			return fmt.Errorf("%w: frame %d names both an image and a video frame", ErrInvalidTrace, i)
		case f.Image != "":
			if t.Video != "" {
				return fmt.Errorf("%w: frame %d names an image in a video trace", ErrInvalidTrace, i)
			}
		case f.VideoFrame != nil:
			if t.Video == "" {
				return fmt.Errorf("%w: frame %d names a video frame but the trace has no video", ErrInvalidTrace, i)
			}
			// Video frames are decoded in a single forward pass.
			if *f.VideoFrame <= last {
				return fmt.Errorf("%w: frame %d: video frames must increase, got %d after %d", ErrInvalidTrace, i, *f.VideoFrame, last)
			}
			last = *f.VideoFrame
		default:
			return fmt.Errorf("%w: frame %d has no image or video frame", ErrInvalidTrace, i)
		}
	}
	return nil
}

// Resolve returns path relative to the trace directory.
func (t *Trace) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || t.Dir == "" {
		return path
	}
	return filepath.Join(t.Dir, path)
}

func finite(v []float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}
