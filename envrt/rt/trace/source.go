package trace

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/gekko3d/envmap/envrt/rt/core"
)

// Frame is a decoded trace frame ready for submission.
type Frame struct {
	Index      int
	Image      *image.RGBA
	Pose       core.Pose
	Intrinsics core.Intrinsics
	Timestamp  float64
}

// Source yields the frames of a trace in order. Next returns io.EOF after
// the last frame.
type Source interface {
	Next() (Frame, error)
	Close() error
}

// Open returns the source matching the trace's media.
func Open(t *Trace, opts VideoOptions) (Source, error) {
	if t.Video != "" {
		return NewVideoSource(t, opts)
	}
	return NewPNGSource(t), nil
}

type PNGSource struct {
	trace  *Trace
	camera core.Intrinsics
	next   int
}

func NewPNGSource(t *Trace) *PNGSource {
	return &PNGSource{trace: t, camera: t.Intrinsics.Camera()}
}

func (s *PNGSource) Next() (Frame, error) {
	if s.next >= len(s.trace.Frames) {
		return Frame{}, io.EOF
	}
	i := s.next
	s.next++
	spec := s.trace.Frames[i]

	img, err := readPNG(s.trace.Resolve(spec.Image))
	if err != nil {
		return Frame{Index: i}, fmt.Errorf("frame %d: %w", i, err)
	}
	return Frame{
		Index:      i,
		Image:      img,
		Pose:       spec.Pose(),
		Intrinsics: s.camera,
		Timestamp:  spec.Timestamp,
	}, nil
}

func (s *PNGSource) Close() error { return nil }

func readPNG(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", core.ErrConversion, path, err)
	}
	return core.ImageToRGBA(img, 0), nil
}
