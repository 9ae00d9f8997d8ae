package render

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

func newTestResources(t *testing.T, dev *NullDevice, opts ResourceOptions) *Resources {
	t.Helper()
	res, err := NewResources(dev, opts)
	if err != nil {
		t.Fatalf("NewResources() error = %v", err)
	}
	return res
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// =============================================================================
// Pipelines
// =============================================================================

func TestResourcesNilDevice(t *testing.T) {
	if _, err := NewResources(nil, ResourceOptions{}); !errors.Is(err, ErrNilDevice) {
		t.Errorf("NewResources(nil) error = %v, want ErrNilDevice", err)
	}
}

func TestResourcesPipelinePerKind(t *testing.T) {
	dev := NewNullDevice()
	res := newTestResources(t, dev, ResourceOptions{})

	rect, err := res.Pipeline(scene.KindRect)
	if err != nil {
		t.Fatalf("Pipeline(Rect) error = %v", err)
	}
	again, _ := res.Pipeline(scene.KindRect)
	if again != rect {
		t.Errorf("second Pipeline(Rect) = %d, want %d", again, rect)
	}
	circle, _ := res.Pipeline(scene.KindCircle)
	if circle == rect {
		t.Error("circle and rect share a pipeline object")
	}
	if _, err := res.Pipeline(scene.KindNone); err == nil {
		t.Error("expected error for KindNone")
	}
	if got := dev.Created(ObjectPipeline); got != 2 {
		t.Errorf("pipelines created = %d, want 2", got)
	}
}

// Two workers miss the same pipeline at once: one builds, the other waits
// and receives the same object.
func TestResourcesPipelineSingleFlight(t *testing.T) {
	dev := NewNullDevice()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	dev.Hook = func(object string) error {
		if object == ObjectPipeline {
			once.Do(func() { close(entered) })
			<-release
		}
		return nil
	}
	res := newTestResources(t, dev, ResourceOptions{})

	ids := make([]PipelineID, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ids[0], _ = res.Pipeline(scene.KindText)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		ids[1], _ = res.Pipeline(scene.KindText)
	}()
	waitFor(t, "second worker to wait", func() bool { return res.Stats().Pipelines.Waits == 1 })

	close(release)
	wg.Wait()

	if ids[0] == InvalidID || ids[0] != ids[1] {
		t.Errorf("workers got pipelines %v, want one shared object", ids)
	}
	if got := dev.Created(ObjectPipeline); got != 1 {
		t.Errorf("pipelines created = %d, want 1", got)
	}
}

func TestResourcesBuildErrorIsNotCached(t *testing.T) {
	dev := NewNullDevice()
	fail := errors.New("device lost")
	dev.Hook = func(string) error { return fail }
	res := newTestResources(t, dev, ResourceOptions{})

	if _, err := res.Pipeline(scene.KindRect); !errors.Is(err, fail) {
		t.Fatalf("Pipeline() error = %v, want %v", err, fail)
	}

	dev.Hook = nil
	if _, err := res.Pipeline(scene.KindRect); err != nil {
		t.Errorf("Pipeline() after recovery error = %v", err)
	}
}

// =============================================================================
// Images and atlases
// =============================================================================

func TestResourcesImage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 8, 8)
	dev := NewNullDevice()
	res := newTestResources(t, dev, ResourceOptions{AssetRoot: dir})

	tex, err := res.Image("a.png")
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if tex.Width != 8 || tex.Height != 8 {
		t.Errorf("texture = %dx%d, want 8x8", tex.Width, tex.Height)
	}
	if again, _ := res.Image("a.png"); again != tex {
		t.Error("second Image() returned a different texture")
	}
	if dev.Bytes() != 8*8*4 {
		t.Errorf("uploaded %d bytes, want %d", dev.Bytes(), 8*8*4)
	}

	if _, err := res.Image("missing.png"); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestResourcesAtlas(t *testing.T) {
	dev := NewNullDevice()
	res := newTestResources(t, dev, ResourceOptions{})

	a, err := res.Atlas(scene.FontKey{PixelHeight: 12})
	if err != nil {
		t.Fatalf("Atlas() error = %v", err)
	}
	if a.View == InvalidID {
		t.Error("atlas was not uploaded")
	}
	b, _ := res.Atlas(scene.FontKey{PixelHeight: 24})
	if a == b {
		t.Error("different pixel heights share an atlas")
	}
	if got := dev.Live(ObjectTexture); got != 2 {
		t.Errorf("live textures = %d, want 2", got)
	}

	_, err = res.Atlas(scene.FontKey{Path: "missing.ttf", PixelHeight: 12})
	if !errors.Is(err, ErrFontNotFound) {
		t.Errorf("Atlas(missing) error = %v, want ErrFontNotFound", err)
	}
}

func TestResourcesFontResolver(t *testing.T) {
	var asked []string
	res := newTestResources(t, NewNullDevice(), ResourceOptions{
		Fonts: func(path string) ([]byte, error) {
			asked = append(asked, path)
			return nil, ErrFontNotFound
		},
	})
	if _, err := res.Atlas(scene.FontKey{Path: "custom.ttf", PixelHeight: 10}); !errors.Is(err, ErrFontNotFound) {
		t.Errorf("Atlas() error = %v, want ErrFontNotFound", err)
	}
	if len(asked) != 1 || asked[0] != "custom.ttf" {
		t.Errorf("resolver asked for %v", asked)
	}
}

// =============================================================================
// Descriptors and release
// =============================================================================

func TestResourcesDescriptorLimit(t *testing.T) {
	dev := NewNullDeviceWithLimits(Limits{MaxTextureSize: 64, MaxDescriptors: 2})
	res := newTestResources(t, dev, ResourceOptions{})
	pipeline, _ := res.Pipeline(scene.KindImage)

	views := make([]ViewID, 3)
	for i := range views {
		_, views[i], _ = dev.CreateTexture(TextureDesc{Width: 1, Height: 1, Format: FormatR8}, []byte{0})
	}

	first, err := res.Descriptor(pipeline, views[0])
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if again, _ := res.Descriptor(pipeline, views[0]); again != first {
		t.Error("same view built two descriptors")
	}
	if _, err := res.Descriptor(pipeline, views[1]); err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if _, err := res.Descriptor(pipeline, views[2]); !errors.Is(err, ErrDescriptorLimit) {
		t.Errorf("third Descriptor() error = %v, want ErrDescriptorLimit", err)
	}
	if res.Descriptors() != 2 {
		t.Errorf("Descriptors() = %d, want 2", res.Descriptors())
	}
}

func TestResourcesEvictionDefersDestroy(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 2, 2)
	writePNG(t, dir, "b.png", 2, 2)
	dev := NewNullDevice()
	res := newTestResources(t, dev, ResourceOptions{AssetRoot: dir, ImageCapacity: 1})
	pipeline, _ := res.Pipeline(scene.KindImage)

	a, _ := res.Image("a.png")
	if _, err := res.Descriptor(pipeline, a.View); err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if _, err := res.Image("b.png"); err != nil {
		t.Fatalf("Image(b) error = %v", err)
	}

	// a is evicted, but draws recorded this frame may still use it.
	if got := dev.Live(ObjectTexture); got != 2 {
		t.Errorf("live textures before flush = %d, want 2", got)
	}
	if got := dev.Live(ObjectDescriptor); got != 1 {
		t.Errorf("live descriptors before flush = %d, want 1", got)
	}

	if n := res.FlushReleased(); n != 2 {
		t.Errorf("FlushReleased() = %d, want 2", n)
	}
	if got := dev.Live(ObjectTexture); got != 1 {
		t.Errorf("live textures after flush = %d, want 1", got)
	}
	if got := dev.Live(ObjectDescriptor); got != 0 {
		t.Errorf("live descriptors after flush = %d, want 0", got)
	}
	if res.Stats().Images.Evictions != 1 {
		t.Errorf("image evictions = %d, want 1", res.Stats().Images.Evictions)
	}
}

func TestResourcesClose(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 2, 2)
	dev := NewNullDevice()
	res := newTestResources(t, dev, ResourceOptions{AssetRoot: dir})

	pipeline, _ := res.Pipeline(scene.KindImage)
	a, _ := res.Image("a.png")
	_, _ = res.Descriptor(pipeline, a.View)
	_, _ = res.Atlas(scene.FontKey{PixelHeight: 10})

	res.Close()
	for _, obj := range []string{ObjectPipeline, ObjectTexture, ObjectDescriptor} {
		if got := dev.Live(obj); got != 0 {
			t.Errorf("live %s after Close = %d, want 0", obj, got)
		}
	}
}
