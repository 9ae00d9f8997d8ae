package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

// DeviceHandle provides GPU device access from the host application.
//
// The engine RECEIVES a device from the host, it does not create one. A
// backend adapts the host's handle to a Device.
type DeviceHandle = gpucontext.DeviceProvider

// Device errors.
var (
	// ErrNilDevice is returned when a renderer is created without a device.
	ErrNilDevice = errors.New("render: nil device")

	// ErrDescriptorLimit is returned when the descriptor pool is exhausted.
	ErrDescriptorLimit = errors.New("render: descriptor pool exhausted")

	// ErrInvalidHandle is returned when a device call names an unknown
	// or destroyed object.
	ErrInvalidHandle = errors.New("render: invalid handle")
)

// InvalidID is the zero handle. No device returns it for a live object.
const InvalidID = 0

// Typed device object handles.
type (
	PipelineID   uint64
	BufferID     uint64
	TextureID    uint64
	ViewID       uint64
	DescriptorID uint64
)

// BufferUsage selects how a buffer is bound.
type BufferUsage uint8

const (
	BufferUsageVertex BufferUsage = iota + 1
	BufferUsageIndex
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	default:
		return fmt.Sprintf("BufferUsage(%d)", u)
	}
}

// TextureFormat is the texel layout of an uploaded texture.
type TextureFormat uint8

const (
	// FormatRGBA8 is 8-bit straight-alpha RGBA, 4 bytes per texel.
	FormatRGBA8 TextureFormat = iota + 1
	// FormatR8 is a single 8-bit coverage channel.
	FormatR8
)

// BytesPerPixel returns the texel size of the format.
func (f TextureFormat) BytesPerPixel() int {
	if f == FormatR8 {
		return 1
	}
	return 4
}

// VertexAttribute is one float vector inside an interleaved vertex.
type VertexAttribute struct {
	// Offset in bytes from the start of the vertex.
	Offset uint32
	// Components is the number of float32 components (2..4).
	Components uint32
	// Location is the shader input location.
	Location uint32
}

// PipelineDesc describes the render pipeline for one primitive kind.
type PipelineDesc struct {
	Label      string
	Kind       scene.Kind
	Shader     string // WGSL source with vs_main and fs_main
	Stride     uint32 // vertex size in bytes
	Attributes []VertexAttribute

	// Textured pipelines sample one texture through a descriptor.
	Textured bool
	// Coverage pipelines read the texture as a single-channel mask.
	Coverage bool
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	Label string
	Usage BufferUsage
}

// TextureDesc describes a sampled 2D texture.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
}

// DescriptorDesc describes a descriptor binding one texture view and a
// sampler to a textured pipeline.
type DescriptorDesc struct {
	Label    string
	Pipeline PipelineID
	View     ViewID
}

// Limits reports device capabilities the engine sizes resources against.
type Limits struct {
	// MaxTextureSize is the largest texture dimension supported.
	MaxTextureSize uint32

	// MaxDescriptors bounds the number of live descriptors.
	MaxDescriptors int
}

// DefaultLimits returns the limits used when a device reports none.
func DefaultLimits() Limits {
	return Limits{
		MaxTextureSize: 8192,
		MaxDescriptors: 256,
	}
}

// Device creates and destroys the GPU objects draw tasks need.
//
// Implementations must be safe for concurrent use: worker goroutines build
// resources in parallel.
type Device interface {
	// CreatePipeline builds a render pipeline.
	CreatePipeline(desc PipelineDesc) (PipelineID, error)

	// CreateBuffer allocates a buffer initialized with data.
	CreateBuffer(desc BufferDesc, data []byte) (BufferID, error)

	// CreateTexture allocates a texture, uploads pixels (tightly packed
	// rows) and returns the texture and a view of it.
	CreateTexture(desc TextureDesc, pixels []byte) (TextureID, ViewID, error)

	// CreateDescriptor binds a texture view to a textured pipeline.
	CreateDescriptor(desc DescriptorDesc) (DescriptorID, error)

	DestroyPipeline(id PipelineID)
	DestroyBuffer(id BufferID)
	DestroyTexture(id TextureID)
	DestroyDescriptor(id DescriptorID)

	// Limits reports device limits.
	Limits() Limits
}
