// Package soft runs the environment map kernel on the CPU. It shares the
// projection and blend math with the compute shader and is used when no
// compute device is available and as a reference in tests.
package soft

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

type Options struct {
	// Workers is the number of kernel workers. Zero uses one per CPU.
	Workers       int
	MaxFrameWidth int
	Logger        core.Logger
}

type Backend struct {
	mu            sync.Mutex
	closed        atomic.Bool
	geometry      core.DispatchGeometry
	maxFrameWidth int
	logger        core.Logger
	pool          worker.DynamicWorkerPool
	workers       int

	uploads    atomic.Uint64
	dispatches atomic.Uint64
	failures   atomic.Uint64

	// beforeTile runs ahead of every tile when set. Tests use it to fail a
	// dispatch part way through.
	beforeTile func(tx, ty int)
}

func New(mapHeight int, opts Options) (*Backend, error) {
	geometry, err := core.NewDispatchGeometry(mapHeight)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	b := &Backend{
		geometry:      geometry,
		maxFrameWidth: opts.MaxFrameWidth,
		logger:        core.OrNop(opts.Logger),
		workers:       workers,
	}
	// Workers live until Release stops the pool.
	b.pool = worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)
	b.logger.Infof("software environment mapper ready: %s, %d workers", geometry, workers)
	return b, nil
}

func (b *Backend) Geometry() core.DispatchGeometry { return b.geometry }

func (b *Backend) MapHeight() int { return b.geometry.MapHeight }

func (b *Backend) Logger() core.Logger { return b.logger }

func (b *Backend) Stats() core.BackendStats {
	return core.BackendStats{
		Uploads:          b.uploads.Load(),
		Dispatches:       b.dispatches.Load(),
		DispatchFailures: b.failures.Load(),
	}
}

// Release waits for a running update and stops the worker pool. Calling it
// more than once is a no-op.
func (b *Backend) Release() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool.Stop()
}

func (b *Backend) checkOpen() error {
	if b.closed.Load() {
		return core.ErrClosed
	}
	return nil
}

// UpdateEnvironmentMap runs the kernel over every map texel, one task per row
// of tiles, and returns when all tiles are done.
func (b *Backend) UpdateEnvironmentMap(frame, lookup, envMap core.Texture, info core.FrameInfo) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := core.CheckUpdateTextures(frame, lookup, envMap, b.geometry); err != nil {
		return err
	}
	f, err := b.own(frame)
	if err != nil {
		return err
	}
	l, err := b.own(lookup)
	if err != nil {
		return err
	}
	m, err := b.own(envMap)
	if err != nil {
		return err
	}
	if len(m.Confidence) != m.width*m.height {
		return fmt.Errorf("%w: environment map %v has no blend state", core.ErrInvalidTexture, m.id)
	}

	info.MapSize = [2]uint32{uint32(b.geometry.MapWidth), uint32(b.geometry.MapHeight)}
	info.FrameSize = mgl32.Vec2{float32(f.width), float32(f.height)}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Closed while waiting for the lock.
	if err := b.checkOpen(); err != nil {
		return err
	}

	// A failed update restores the map from these copies.
	m.backupPix = append(m.backupPix[:0], m.Pix...)
	m.backupConfidence = append(m.backupConfidence[:0], m.Confidence...)

	var wg sync.WaitGroup
	var panicked atomic.Value
	for ty := 0; ty < b.geometry.GridHeight; ty++ {
		wg.Add(1)
		row := ty
		b.pool.SubmitTask(worker.Task{
			ID: row,
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						panicked.Store(fmt.Sprint(r))
					}
				}()
				for tx := 0; tx < b.geometry.GridWidth; tx++ {
					if b.beforeTile != nil {
						b.beforeTile(tx, row)
					}
					b.shadeTile(tx, row, f, l, m, info)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	if r := panicked.Load(); r != nil {
		copy(m.Pix, m.backupPix)
		copy(m.Confidence, m.backupConfidence)
		b.failures.Add(1)
		b.logger.Errorf("environment map update %d failed: %v", info.FrameIndex, r)
		return fmt.Errorf("%w: %v", core.ErrDispatch, r)
	}
	b.dispatches.Add(1)
	if b.logger.DebugEnabled() {
		b.logger.Debugf("environment map update %d: %dx%d frame, %d tiles", info.FrameIndex, f.width, f.height, b.geometry.TileCount())
	}
	return nil
}

func (b *Backend) shadeTile(tx, ty int, frame, lookup, envMap *Texture, info core.FrameInfo) {
	x0, y0, x1, y1 := b.geometry.Tile(tx, ty)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			shadeTexel(x, y, frame, lookup, envMap, info)
		}
	}
}

// shadeTexel is the per-invocation body of the update kernel.
func shadeTexel(x, y int, frame, lookup, envMap *Texture, info core.FrameInfo) {
	idx := y*envMap.width + x
	dir := mgl32.Vec3{lookup.Float[idx*4], lookup.Float[idx*4+1], lookup.Float[idx*4+2]}

	u, v, ok := core.Project(info, dir)
	if !ok {
		return
	}
	sx, sy := core.SourcePixel(u, v)
	if sx >= frame.width {
		sx = frame.width - 1
	}
	if sy >= frame.height {
		sy = frame.height - 1
	}

	si := (sy*frame.width + sx) * 4
	sample := [4]float32{
		core.UnormToFloat(frame.Pix[si]),
		core.UnormToFloat(frame.Pix[si+1]),
		core.UnormToFloat(frame.Pix[si+2]),
		core.UnormToFloat(frame.Pix[si+3]),
	}
	di := idx * 4
	prev := [4]float32{
		core.UnormToFloat(envMap.Pix[di]),
		core.UnormToFloat(envMap.Pix[di+1]),
		core.UnormToFloat(envMap.Pix[di+2]),
		core.UnormToFloat(envMap.Pix[di+3]),
	}

	out, conf, ok := core.Blend(prev, sample, envMap.Confidence[idx], info)
	if !ok {
		return
	}
	for i, c := range out {
		envMap.Pix[di+i] = core.FloatToUnorm(c)
	}
	envMap.Confidence[idx] = conf
}

func floatsFromBytes(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
