package trace

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/gekko3d/envmap/envrt/rt/core"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type VideoOptions struct {
	// FFmpegPath overrides the ffmpeg binary found on PATH.
	FFmpegPath string
	// Verbose forwards ffmpeg's log output to stdout.
	Verbose bool
}

// VideoSource decodes the trace video to raw RGBA at the trace resolution
// and hands out the frames the trace references.
type VideoSource struct {
	trace  *Trace
	camera core.Intrinsics
	width  int
	height int

	pipe    *io.PipeReader
	errc    chan error
	decoded int
	next    int
	buf     []byte

	closeOnce sync.Once
	closeErr  error
}

func NewVideoSource(t *Trace, opts VideoOptions) (*VideoSource, error) {
	if t.Video == "" {
		return nil, fmt.Errorf("%w: trace has no video", ErrInvalidTrace)
	}
	w, h := t.Intrinsics.Width, t.Intrinsics.Height

	pipeReader, pipeWriter := io.Pipe()
	cmd := ffmpeg.Input(t.Resolve(t.Video), ffmpeg.KwArgs{}).
		Output("pipe:", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "rgba",
			"s":       fmt.Sprintf("%dx%d", w, h),
			"vsync":   "passthrough",
		}).
		WithOutput(pipeWriter)
	if opts.Verbose {
		cmd = cmd.ErrorToStdOut()
	}
	if opts.FFmpegPath != "" {
		cmd = cmd.SetFfmpegPath(opts.FFmpegPath)
	}

	errc := make(chan error, 1)
	go func() {
		err := cmd.Run()
		// Unblocks the reader with io.EOF or the ffmpeg failure.
		pipeWriter.CloseWithError(err)
		errc <- err
	}()

	return &VideoSource{
		trace:  t,
		camera: t.Intrinsics.Camera(),
		width:  w,
		height: h,
		pipe:   pipeReader,
		errc:   errc,
		buf:    make([]byte, w*h*4),
	}, nil
}

func (s *VideoSource) Next() (Frame, error) {
	if s.next >= len(s.trace.Frames) {
		return Frame{}, io.EOF
	}
	i := s.next
	spec := s.trace.Frames[i]
	want := *spec.VideoFrame

	for s.decoded <= want {
		if _, err := io.ReadFull(s.pipe, s.buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{Index: i}, fmt.Errorf("frame %d: video ended after %d frames, want frame %d", i, s.decoded, want)
			}
			return Frame{Index: i}, fmt.Errorf("frame %d: failed to decode video: %w", i, err)
		}
		s.decoded++
	}
	s.next++

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	copy(img.Pix, s.buf)
	return Frame{
		Index:      i,
		Image:      img,
		Pose:       spec.Pose(),
		Intrinsics: s.camera,
		Timestamp:  spec.Timestamp,
	}, nil
}

// Close stops the decoder and waits for it to exit.
func (s *VideoSource) Close() error {
	s.closeOnce.Do(func() {
		s.pipe.Close()
		err := <-s.errc
		// ffmpeg fails with a broken pipe once the reader stops early.
		if err != nil && s.decoded > 0 {
			err = nil
		}
		s.closeErr = err
	})
	return s.closeErr
}
