// Package app replays recorded traces into an environment map.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	envmap "github.com/gekko3d/envmap"
	"github.com/gekko3d/envmap/envrt/rt/trace"
)

// FrameObserver is called after every frame merged into the session, e.g.
// to refresh a preview. Returning false stops the replay.
type FrameObserver func(s *envmap.Session, f trace.Frame) bool

type Report struct {
	Frames       int
	DecodeErrors int
	Rejected     int
	Stopped      bool
	Elapsed      time.Duration
	Session      envmap.SessionStats
}

func (r Report) String() string {
	return fmt.Sprintf("%d frames merged, %d rejected, %d undecodable, %d dispatch failures in %s",
		r.Session.Frames, r.Rejected, r.DecodeErrors, r.Session.DispatchFailures, r.Elapsed.Round(time.Millisecond))
}

type App struct {
	Mapper   *envmap.Mapper
	Session  *envmap.Session
	Profiler *Profiler

	observers []FrameObserver
	logger    envmap.Logger
}

// NewApp starts a session on m. The App owns the session but not the mapper.
func NewApp(m *envmap.Mapper) (*App, error) {
	s, err := m.NewSession()
	if err != nil {
		return nil, err
	}
	return &App{
		Mapper:   m,
		Session:  s,
		Profiler: NewProfiler(),
		logger:   m.Logger(),
	}, nil
}

func (a *App) Observe(o FrameObserver) {
	a.observers = append(a.observers, o)
}

// Run merges every frame of src. Frames that fail to decode or merge are
// logged and skipped; only cancellation ends the replay early.
func (a *App) Run(ctx context.Context, src trace.Source) (Report, error) {
	var r Report
	start := time.Now()
	defer func() {
		r.Elapsed = time.Since(start)
		r.Session = a.Session.Stats()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		a.Profiler.BeginScope("Decode")
		f, err := src.Next()
		a.Profiler.EndScope("Decode")
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.DecodeErrors++
			a.Profiler.AddCount("Decode errors", 1)
			a.logger.Warnf("skipping frame %d: %v", f.Index, err)
			continue
		}

		a.Profiler.BeginScope("Update")
		err = a.Session.SubmitImage(f.Image, f.Pose, f.Intrinsics)
		a.Profiler.EndScope("Update")
		if err != nil {
			r.Rejected++
			a.Profiler.AddCount("Rejected", 1)
			a.logger.Warnf("frame %d not merged: %v", f.Index, err)
			continue
		}
		r.Frames++
		a.Profiler.SetCount("Frames", r.Frames)

		if !a.notify(f) {
			r.Stopped = true
			break
		}
		if a.logger.DebugEnabled() {
			a.logger.Debugf("frame %d (t=%.3fs)\n%s", f.Index, f.Timestamp, a.Profiler.GetStatsString())
		}
	}
	return r, nil
}

func (a *App) notify(f trace.Frame) bool {
	if len(a.observers) == 0 {
		return true
	}
	a.Profiler.BeginScope("Observe")
	defer a.Profiler.EndScope("Observe")
	for _, o := range a.observers {
		if !o(a.Session, f) {
			return false
		}
	}
	return true
}

// RunTrace loads a trace file and replays it.
func (a *App) RunTrace(ctx context.Context, path string, opts trace.VideoOptions) (Report, error) {
	t, err := trace.Load(path)
	if err != nil {
		return Report{}, err
	}
	src, err := trace.Open(t, opts)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			a.logger.Warnf("closing trace source: %v", err)
		}
	}()
	a.logger.Infof("replaying %d frames from %s", len(t.Frames), path)
	return a.Run(ctx, src)
}

// WritePNG reads the map back and writes it to path.
func (a *App) WritePNG(path string) error {
	a.Profiler.BeginScope("Readback")
	img, err := a.Session.Snapshot()
	a.Profiler.EndScope("Readback")
	if err != nil {
		return fmt.Errorf("failed to read environment map: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// Close releases the session. The mapper stays open.
func (a *App) Close() {
	a.Session.Close()
}
