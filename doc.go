// Package spars renders retained scene trees with a parallel draw-task
// engine.
//
// # Overview
//
// A frame walks the scene tree in pre-order and batches its draw commands
// into tasks: compatible commands (same primitive kind, same font) merge
// into an earlier task when no incompatible task between them overlaps.
// Worker goroutines claim tasks from a lock-free cursor and build each
// task's GPU draw resources. The calling goroutine collects the results in
// task order, taking a finished task early when it overlaps none of the
// earlier tasks still outstanding, and records the draws.
//
// GPU objects shared across tasks (pipelines, image textures, glyph atlases
// and descriptors) live in build-once caches: the first worker to miss a
// key builds it while the others wait.
//
// # Quick Start
//
//	e, err := spars.NewEngine(spars.WithWorkers(4), spars.WithViewport(800, 600))
//	if err != nil {
//		return err
//	}
//	defer e.Close()
//
//	root := scene.NewNode(0, 0, 0, 800, 600)
//	root.AddCmd(scene.RectCmd(geom.XYWH(10, 10, 100, 50), scene.ARGB(0xff3366cc)))
//
//	rec := render.NewCommandStream()
//	stats, err := e.RenderFrame(ctx, root, rec)
//
// # Devices
//
// Without WithDevice the engine creates objects on a render.NullDevice,
// which tracks handles without a GPU. backend/native adapts a host's
// gogpu/wgpu HAL device:
//
//	b, err := backend.Default(provider)
//	e, err := spars.NewEngine(spars.WithDevice(b.Device))
//	stats, err := e.RenderFrame(ctx, root, b.Recorder)
//
// # Configuration
//
// Engines are configured with functional options or a TOML file loaded
// by LoadConfig. Metrics are registered on a Prometheus registry
// (WithRegistry), and logs go through log/slog (SetLogger, WithLogger).
package spars
