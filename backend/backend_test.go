package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/SJTU-IPADS/Spars-artifacts/render"
)

func TestNullBackendRegistered(t *testing.T) {
	if !IsRegistered(BackendNull) {
		t.Fatal("null backend is not registered")
	}
	b, err := Open(BackendNull, nil)
	if err != nil {
		t.Fatalf("Open(null) error = %v", err)
	}
	defer b.Close()

	if b.Name != BackendNull {
		t.Errorf("Name = %q, want %q", b.Name, BackendNull)
	}
	if _, ok := b.Device.(*render.NullDevice); !ok {
		t.Errorf("Device = %T, want *render.NullDevice", b.Device)
	}
	if _, ok := b.Recorder.(*render.CommandStream); !ok {
		t.Errorf("Recorder = %T, want *render.CommandStream", b.Recorder)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("vulkan-9000", nil); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(unknown) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegisterUnregister(t *testing.T) {
	closed := 0
	Register("test", func(render.DeviceHandle) (*Backend, error) {
		return New("test", render.NewNullDevice(), render.NewCommandStream(), func() { closed++ }), nil
	})
	defer Unregister("test")

	if !slices.Contains(Available(), "test") {
		t.Errorf("Available() = %v, missing test", Available())
	}
	b, err := Open("test", nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	b.Close()
	if closed != 1 {
		t.Errorf("close ran %d times, want 1", closed)
	}

	Unregister("test")
	if IsRegistered("test") {
		t.Error("test backend still registered")
	}
}

func TestDefaultPriority(t *testing.T) {
	failed := errors.New("no gpu")
	Register(BackendNative, func(render.DeviceHandle) (*Backend, error) { return nil, failed })
	defer Unregister(BackendNative)

	// native fails, null takes over.
	b, err := Default(nil)
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b.Name != BackendNull {
		t.Errorf("Default().Name = %q, want %q", b.Name, BackendNull)
	}

	Register(BackendNative, func(render.DeviceHandle) (*Backend, error) {
		return New(BackendNative, render.NewNullDevice(), render.NewCommandStream(), nil), nil
	})
	if b, _ := Default(nil); b == nil || b.Name != BackendNative {
		t.Errorf("Default() = %v, want native first", b)
	}
}

func TestDefaultNoneAvailable(t *testing.T) {
	factory := backends[BackendNull]
	Unregister(BackendNull)
	defer Register(BackendNull, factory)

	failed := errors.New("no gpu")
	Register(BackendNative, func(render.DeviceHandle) (*Backend, error) { return nil, failed })
	defer Unregister(BackendNative)

	_, err := Default(nil)
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, failed) {
		t.Errorf("Default() error = %v, want ErrBackendNotAvailable wrapping the native failure", err)
	}
}
