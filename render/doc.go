// Package render turns draw tasks into GPU work.
//
// The engine RECEIVES a device from the host application, it does not
// create its own. Backends adapt a host device to the Device interface;
// NullDevice stands in for tests and headless runs.
//
// # Resources
//
// Resources owns every object shared between draw tasks:
//
//   - one pipeline per primitive kind
//   - one texture per image file
//   - one glyph atlas per font and pixel height
//   - one descriptor per texture view
//
// Each lives in a build-once cache, so workers that miss the same key in
// parallel create it exactly once. Objects dropped by eviction are only
// destroyed by FlushReleased, after the frame that may reference them.
//
// # Frames
//
// Renderer.Draw builds a DrawResource for a task, allocating its vertex
// and index buffers in a FrameBuffers slot. The consumer records draw
// resources in order through an Encoder into a Recorder:
//
//	res, _ := render.NewResources(dev, render.ResourceOptions{})
//	bufs := render.NewFrameBuffers(dev, 2)
//	r := render.NewRenderer(res, bufs, render.Viewport{Width: 800, Height: 600}, nil)
//
//	rec := render.NewCommandStream()
//	_ = rec.Begin(r.Viewport())
//	enc := render.NewEncoder(rec)
//	for _, t := range list.Tasks {
//	    d, err := r.Draw(t, slot)
//	    if err != nil {
//	        return err
//	    }
//	    enc.Encode(d)
//	}
//	_ = rec.End()
//	res.FlushReleased()
package render
