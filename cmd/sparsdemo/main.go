// Command sparsdemo renders a scene file with the parallel draw engine and
// reports per-frame statistics.
//
// Usage:
//
//	sparsdemo -scene testdata/scene.yaml -config testdata/spars.toml -frames 120
//	sparsdemo -backend native -metrics :9090 -watch
//
// With -watch the scene file is reloaded whenever it changes on disk. With
// -metrics the engine's Prometheus metrics are served on /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	spars "github.com/SJTU-IPADS/Spars-artifacts"
	"github.com/SJTU-IPADS/Spars-artifacts/backend"
	_ "github.com/SJTU-IPADS/Spars-artifacts/backend/native"
	"github.com/SJTU-IPADS/Spars-artifacts/render"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML config file")
		scenePath   = flag.String("scene", "testdata/scene.yaml", "YAML scene file")
		frames      = flag.Int("frames", 60, "frames to render; 0 renders until interrupted")
		fps         = flag.Int("fps", 60, "target frame rate")
		backendName = flag.String("backend", "", "backend name; empty picks the best available")
		metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on this address")
		watch       = flag.Bool("watch", false, "reload the scene file when it changes")
		warmup      = flag.Bool("warmup", true, "build every pipeline before the first frame")
	)
	flag.Parse()

	if err := run(runConfig{
		configPath:  *configPath,
		scenePath:   *scenePath,
		frames:      *frames,
		fps:         *fps,
		backendName: *backendName,
		metricsAddr: *metricsAddr,
		watch:       *watch,
		warmup:      *warmup,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "sparsdemo:", err)
		os.Exit(1)
	}
}

type runConfig struct {
	configPath  string
	scenePath   string
	frames      int
	fps         int
	backendName string
	metricsAddr string
	watch       bool
	warmup      bool
}

func run(rc runConfig) error {
	cfg := spars.DefaultConfig()
	if rc.configPath != "" {
		var err error
		if cfg, err = spars.LoadConfig(rc.configPath); err != nil {
			return err
		}
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	spars.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, closeHost, err := openBackend(rc.backendName)
	if err != nil {
		return err
	}
	defer closeHost()
	defer b.Close()
	logger.Info("backend opened", "backend", b.Name, "available", backend.Available())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if rc.metricsAddr != "" {
		srv := serveMetrics(rc.metricsAddr, reg, logger)
		defer func() { _ = srv.Close() }()
	}

	sc, err := scene.LoadFile(rc.scenePath)
	if err != nil {
		return err
	}

	var changes <-chan struct{}
	if rc.watch {
		w, ch, err := watchFile(rc.scenePath, logger)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		changes = ch
	}

	opts := cfg.Options()
	opts = append(opts, spars.WithDevice(b.Device), spars.WithRegistry(reg))

	d := &demo{rc: rc, opts: opts, rec: b.Recorder, log: logger}
	defer d.close()
	if err := d.load(ctx, sc); err != nil {
		return err
	}
	return d.loop(ctx, changes)
}

// openBackend opens the named backend. The native backend runs on a
// headless noop HAL device.
func openBackend(name string) (*backend.Backend, func(), error) {
	if name == backend.BackendNull {
		b, err := backend.Open(name, nil)
		return b, func() {}, err
	}
	host, err := openNoopHost()
	if err != nil {
		return nil, nil, err
	}
	var b *backend.Backend
	if name == "" {
		b, err = backend.Default(host)
	} else {
		b, err = backend.Open(name, host)
	}
	if err != nil {
		host.Close()
		return nil, nil, err
	}
	return b, host.Close, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

// watchFile reports writes to path. Editors that replace the file on save
// are handled by watching the directory.
func watchFile(path string, logger *slog.Logger) (*fsnotify.Watcher, <-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", path, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !sameFile(ev.Name, path) || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("scene watcher", "err", err)
			}
		}
	}()
	return w, ch, nil
}

// demo owns the engine. Animations belong to the loaded scene, so a reload
// replaces the engine along with the scene.
type demo struct {
	rc   runConfig
	opts []spars.EngineOption
	rec  render.Recorder
	log  *slog.Logger

	engine *spars.Engine
	scene  *scene.Scene
}

func (d *demo) load(ctx context.Context, sc *scene.Scene) error {
	opts := append(d.opts[:len(d.opts):len(d.opts)], spars.WithAnimations(sc.Animations))
	if sc.Width > 0 && sc.Height > 0 {
		opts = append(opts, spars.WithViewport(float32(sc.Width), float32(sc.Height)))
	}
	e, err := spars.NewEngine(opts...)
	if err != nil {
		return err
	}
	if d.rc.warmup {
		if err := e.Warmup(ctx); err != nil {
			_ = e.Close()
			return err
		}
	}
	d.close()
	d.engine, d.scene = e, sc
	nodes, cmds := sc.Root.Count()
	d.log.Info("scene loaded", "nodes", nodes, "cmds", cmds, "animations", sc.Animations.Len())
	return nil
}

func (d *demo) close() {
	if d.engine != nil {
		_ = d.engine.Close()
		d.engine = nil
	}
}

func (d *demo) loop(ctx context.Context, changes <-chan struct{}) error {
	fps := max(d.rc.fps, 1)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var total time.Duration
	rendered := 0
	for d.rc.frames == 0 || rendered < d.rc.frames {
		select {
		case <-ctx.Done():
			d.summary(rendered, total)
			return nil
		case <-changes:
			sc, err := scene.LoadFile(d.rc.scenePath)
			if err != nil {
				d.log.Error("reload scene", "err", err)
				continue
			}
			if err := d.load(ctx, sc); err != nil {
				return err
			}
		case <-ticker.C:
			st, err := d.engine.RenderFrame(ctx, d.scene.Root, d.rec)
			if err != nil {
				return err
			}
			rendered++
			total += st.Duration
			d.log.Debug("frame",
				"frame", st.Frame, "tasks", st.Tasks, "merged", st.Merged,
				"draws", st.Draws, "early", st.EarlyTakes, "duration", st.Duration)
		}
	}
	d.summary(rendered, total)
	return nil
}

func (d *demo) summary(frames int, total time.Duration) {
	if frames == 0 {
		return
	}
	st := d.engine.Stats()
	rs := st.Resources
	d.log.Info("done",
		"frames", frames,
		"avg", total/time.Duration(frames),
		"last_tasks", st.Last.Tasks,
		"pipeline_hit_rate", rs.Pipelines.HitRate,
		"images", rs.Images.Len,
		"atlases", rs.Atlases.Len,
		"descriptors", rs.Descriptors.Len)
}

func sameFile(a, b string) bool { return filepath.Clean(a) == filepath.Clean(b) }
