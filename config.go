package spars

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/SJTU-IPADS/Spars-artifacts/internal/parallel"
	"github.com/SJTU-IPADS/Spars-artifacts/render"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// Config is the file form of the engine options.
//
//	workers = 4
//	batch_lookback = 5
//	reorder_window = 3
//	frame_slots = 2
//	asset_root = "assets"
//	log_level = "debug"
//
//	[viewport]
//	width = 1080
//	height = 1920
//
//	[cache]
//	images = 64
//	atlases = 8
type Config struct {
	// Workers is the number of worker goroutines; 0 uses GOMAXPROCS.
	Workers       int    `toml:"workers"`
	BatchLookback int    `toml:"batch_lookback"`
	ReorderWindow int    `toml:"reorder_window"`
	FrameSlots    int    `toml:"frame_slots"`
	AssetRoot     string `toml:"asset_root"`
	LogLevel      string `toml:"log_level"`

	Viewport ViewportConfig `toml:"viewport"`
	Cache    CacheConfig    `toml:"cache"`
}

// ViewportConfig is the frame size in pixels.
type ViewportConfig struct {
	Width  float32 `toml:"width"`
	Height float32 `toml:"height"`
}

// CacheConfig bounds the image and glyph atlas caches. Zero is unbounded.
type CacheConfig struct {
	Images  int `toml:"images"`
	Atlases int `toml:"atlases"`
}

// DefaultConfig returns the configuration matching the engine defaults.
func DefaultConfig() Config {
	o := defaultOptions()
	return Config{
		BatchLookback: task.DefaultLookback,
		ReorderWindow: parallel.DefaultReorderWindow,
		FrameSlots:    render.DefaultFrameSlots,
		LogLevel:      "info",
		Viewport:      ViewportConfig{Width: o.viewport.Width, Height: o.viewport.Height},
	}
}

// LoadConfig reads a TOML config file. Fields the file omits keep their
// defaults, and a relative asset_root is resolved against the file's
// directory.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("spars: read config: %w", err)
	}
	cfg, err := ParseConfig(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("spars: %s: %w", path, err)
	}
	if cfg.AssetRoot != "" && !filepath.IsAbs(cfg.AssetRoot) {
		cfg.AssetRoot = filepath.Join(filepath.Dir(path), cfg.AssetRoot)
	}
	return cfg, nil
}

// ParseConfig decodes a TOML config. Unknown keys are an error.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("%w: workers = %d", ErrInvalidConfig, c.Workers)
	case c.BatchLookback <= 0:
		return fmt.Errorf("%w: batch_lookback = %d", ErrInvalidConfig, c.BatchLookback)
	case c.ReorderWindow <= 0:
		return fmt.Errorf("%w: reorder_window = %d", ErrInvalidConfig, c.ReorderWindow)
	case c.FrameSlots <= 0:
		return fmt.Errorf("%w: frame_slots = %d", ErrInvalidConfig, c.FrameSlots)
	case c.Viewport.Width <= 0 || c.Viewport.Height <= 0:
		return fmt.Errorf("%w: viewport %gx%g", ErrInvalidConfig, c.Viewport.Width, c.Viewport.Height)
	case c.Cache.Images < 0 || c.Cache.Atlases < 0:
		return fmt.Errorf("%w: cache capacities %d, %d", ErrInvalidConfig, c.Cache.Images, c.Cache.Atlases)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// Options converts the config to engine options.
func (c Config) Options() []EngineOption {
	return []EngineOption{
		WithWorkers(c.Workers),
		WithBatchLookback(c.BatchLookback),
		WithReorderWindow(c.ReorderWindow),
		WithFrameSlots(c.FrameSlots),
		WithViewport(c.Viewport.Width, c.Viewport.Height),
		WithAssetRoot(c.AssetRoot),
		WithEvictionPolicy(c.Cache.Images, c.Cache.Atlases),
	}
}
