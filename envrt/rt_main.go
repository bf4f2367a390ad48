package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	envmap "github.com/gekko3d/envmap"
	"github.com/gekko3d/envmap/envrt/rt/app"
	"github.com/gekko3d/envmap/envrt/rt/trace"
	"github.com/gekko3d/envmap/envrt/rt/viewer"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

type options struct {
	config  string
	trace   string
	out     string
	ffmpeg  string
	preview bool
	debug   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "", "Mapper configuration (YAML); defaults when empty")
	flag.StringVar(&opts.trace, "trace", "", "Recorded trace to replay (YAML)")
	flag.StringVar(&opts.out, "out", "envmap.png", "Where to write the final environment map")
	flag.StringVar(&opts.ffmpeg, "ffmpeg", "", "ffmpeg binary for video traces")
	flag.BoolVar(&opts.preview, "preview", false, "Show the map in a window while replaying")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging and per-frame timings")
	flag.Parse()

	if opts.trace == "" {
		fmt.Fprintln(os.Stderr, "-trace is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg := envmap.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = envmap.LoadConfig(opts.config); err != nil {
			return err
		}
	}
	if opts.debug {
		cfg.Log.Debug = true
	}
	logger := envmap.NewLoggerFromConfig(cfg.Log)
	builder := envmap.NewMapperBuilder(cfg).UseLogger(logger)

	var v *viewer.Viewer
	if opts.preview {
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("failed to initialise glfw: %w", err)
		}
		defer glfw.Terminate()

		window, err := viewer.OpenWindow(1024, 512, "Environment Map")
		if err != nil {
			return err
		}
		defer window.Destroy()

		v = viewer.New(window, logger)
		defer v.ReleaseInstance()
		builder.UseInstance(v.Instance, v.Surface)
	}

	m, err := builder.Build()
	if err != nil {
		return err
	}
	defer m.Close()
	logger.Infof("using the %s backend (%s)", m.Kind(), m.Geometry())

	a, err := app.NewApp(m)
	if err != nil {
		return err
	}
	defer a.Close()

	if v != nil {
		if err := v.Attach(m); err != nil {
			return err
		}
		defer v.Release()

		v.Window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
			v.Resize(width, height)
		})
		v.Window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
			if key == glfw.KeyEscape && action == glfw.Press {
				w.SetShouldClose(true)
			}
		})
		a.Observe(v.Observer())
	}

	report, err := a.RunTrace(ctx, opts.trace, trace.VideoOptions{FFmpegPath: opts.ffmpeg, Verbose: opts.debug})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("%s", report)
	logger.Infof("\n%s", a.Profiler.GetStatsString())

	if err := a.WritePNG(opts.out); err != nil {
		return err
	}
	logger.Infof("wrote %s", opts.out)

	if v != nil && !report.Stopped && ctx.Err() == nil {
		v.Wait(a.Session)
	}
	return nil
}
