package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/SJTU-IPADS/Spars-artifacts/backend"
)

func TestRun(t *testing.T) {
	for _, name := range []string{backend.BackendNull, backend.BackendNative, ""} {
		t.Run("backend="+name, func(t *testing.T) {
			err := run(runConfig{
				configPath:  filepath.Join("testdata", "spars.toml"),
				scenePath:   filepath.Join("testdata", "scene.yaml"),
				frames:      3,
				fps:         1000,
				backendName: name,
				warmup:      true,
			})
			if err != nil {
				t.Fatalf("run() error = %v", err)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	if err := run(runConfig{scenePath: "testdata/missing.yaml", frames: 1, backendName: backend.BackendNull}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run(missing scene) error = %v, want os.ErrNotExist", err)
	}
	if err := run(runConfig{scenePath: "testdata/scene.yaml", frames: 1, backendName: "vulkan"}); !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("run(unknown backend) error = %v, want ErrBackendNotAvailable", err)
	}
}
