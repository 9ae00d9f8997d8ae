package render

import (
	_ "embed"
	"fmt"

	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

//go:embed shaders/color.wgsl
var colorShader string

//go:embed shaders/rrect.wgsl
var rrectShader string

//go:embed shaders/image.wgsl
var imageShader string

//go:embed shaders/text.wgsl
var textShader string

// Vertex sizes in float32 components.
const (
	colorVertexFloats = 5 // x, y, r, g, b
	rrectVertexFloats = 6 // x, y, r, g, b, a
	imageVertexFloats = 4 // x, y, u, v
	textVertexFloats  = 7 // x, y, u, v, r, g, b
)

const floatSize = 4

// TextureParamsSize is the size in bytes of the uniform block a textured
// pipeline reads through its descriptor: size (vec2), coverage, padding.
const TextureParamsSize = 16

// PipelineFor returns the pipeline description for a primitive kind.
func PipelineFor(kind scene.Kind) (PipelineDesc, error) {
	switch kind {
	case scene.KindRect, scene.KindCircle:
		return PipelineDesc{
			Label:  kind.String(),
			Kind:   kind,
			Shader: colorShader,
			Stride: colorVertexFloats * floatSize,
			Attributes: []VertexAttribute{
				{Offset: 0, Components: 2, Location: 0},
				{Offset: 2 * floatSize, Components: 3, Location: 1},
			},
		}, nil
	case scene.KindRRect:
		return PipelineDesc{
			Label:  kind.String(),
			Kind:   kind,
			Shader: rrectShader,
			Stride: rrectVertexFloats * floatSize,
			Attributes: []VertexAttribute{
				{Offset: 0, Components: 2, Location: 0},
				{Offset: 2 * floatSize, Components: 4, Location: 1},
			},
		}, nil
	case scene.KindImage:
		return PipelineDesc{
			Label:  kind.String(),
			Kind:   kind,
			Shader: imageShader,
			Stride: imageVertexFloats * floatSize,
			Attributes: []VertexAttribute{
				{Offset: 0, Components: 2, Location: 0},
				{Offset: 2 * floatSize, Components: 2, Location: 1},
			},
			Textured: true,
		}, nil
	case scene.KindText:
		return PipelineDesc{
			Label:  kind.String(),
			Kind:   kind,
			Shader: textShader,
			Stride: textVertexFloats * floatSize,
			Attributes: []VertexAttribute{
				{Offset: 0, Components: 2, Location: 0},
				{Offset: 2 * floatSize, Components: 2, Location: 1},
				{Offset: 4 * floatSize, Components: 3, Location: 2},
			},
			Textured: true,
			Coverage: true,
		}, nil
	default:
		return PipelineDesc{}, fmt.Errorf("render: no pipeline for kind %s", kind)
	}
}
