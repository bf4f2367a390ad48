package envmap

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gekko3d/envmap/envrt/rt/core"
)

type SessionStats struct {
	// Frames counts frames merged into the map.
	Frames uint64
	// Skipped counts frames dropped before dispatch, e.g. unconvertible
	// pixel buffers.
	Skipped uint64
	// DispatchFailures counts frames whose kernel dispatch failed.
	DispatchFailures uint64
}

// Session accumulates one environment map from a stream of posed frames.
// Submissions and snapshots are serialised, so a snapshot never observes a
// partially applied update.
type Session struct {
	mu     sync.Mutex
	mapper *Mapper
	lookup core.Texture
	envMap core.Texture

	frameIndex uint32
	stats      SessionStats
	closed     bool
}

// SubmitFrame merges one camera buffer captured at pose. intr describes the
// buffer at its native size; a zero Width/Height means the buffer size.
func (s *Session) SubmitFrame(buf *core.PixelBuffer, pose core.Pose, intr core.Intrinsics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	frame, err := s.mapper.TextureFromPixelBuffer(buf)
	if err != nil {
		s.stats.Skipped++
		s.frameIndex++
		return fmt.Errorf("skipped frame %d: %w", s.frameIndex-1, err)
	}
	if intr.Width == 0 || intr.Height == 0 {
		intr.Width, intr.Height = buf.Width, buf.Height
	}
	return s.dispatch(frame, pose, intr)
}

// SubmitImage merges a decoded frame, e.g. from a recorded trace. As with
// SubmitFrame, a zero Width/Height in intr means the image's own size.
func (s *Session) SubmitImage(img image.Image, pose core.Pose, intr core.Intrinsics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	var frame core.Texture
	var err error
	if img != nil {
		if intr.Width == 0 || intr.Height == 0 {
			b := img.Bounds()
			intr.Width, intr.Height = b.Dx(), b.Dy()
		}
		img = core.ImageToRGBA(img, s.mapper.cfg.Frame.MaxWidth)
		frame, err = s.mapper.TextureFromImage(img)
	} else {
		err = fmt.Errorf("%w: nil image", core.ErrConversion)
	}
	if err != nil {
		s.stats.Skipped++
		s.frameIndex++
		return fmt.Errorf("skipped frame %d: %w", s.frameIndex-1, err)
	}
	return s.dispatch(frame, pose, intr)
}

func (s *Session) dispatch(frame core.Texture, pose core.Pose, intr core.Intrinsics) error {
	defer frame.Release()

	g := s.mapper.Geometry()
	info := core.Pack(pose, intr, s.mapper.cfg.FrameAux(s.frameIndex), g.MapWidth, g.MapHeight)
	if frame.Width() != intr.Width || frame.Height() != intr.Height {
		info = info.WithFrameSize(frame.Width(), frame.Height())
	}
	s.frameIndex++

	if err := s.mapper.UpdateEnvironmentMap(frame, s.lookup, s.envMap, info); err != nil {
		if errors.Is(err, core.ErrDispatch) {
			s.stats.DispatchFailures++
		} else {
			s.stats.Skipped++
		}
		return err
	}
	s.stats.Frames++
	return nil
}

// Snapshot reads the current map back into host memory.
func (s *Session) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	return s.mapper.ImageFromTexture(s.envMap)
}

// EnvironmentMap returns the map texture, e.g. for a preview pass.
func (s *Session) EnvironmentMap() core.Texture { return s.envMap }

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Reset discards everything observed so far and refills the map.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	envMap, err := s.mapper.SolidColorTexture(s.mapper.cfg.MapHeight, s.mapper.cfg.FillColor.ToRGBA())
	if err != nil {
		return fmt.Errorf("failed to reset environment map: %w", err)
	}
	s.envMap.Release()
	s.envMap = envMap
	s.frameIndex = 0
	s.stats = SessionStats{}
	return nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.envMap.Release()
	s.lookup.Release()
}
