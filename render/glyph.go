package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/go-text/typesetting/di"
	gtfont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"

	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

// ErrFontNotFound is returned when a font path cannot be resolved.
var ErrFontNotFound = errors.New("render: font not found")

// AtlasGlyphs is the number of glyphs in an atlas: the ASCII range.
const AtlasGlyphs = 128

// spaceAdvanceFactor widens the pen step after a space when no shaped
// advances are available, since its bitmap is empty.
const spaceAdvanceFactor = 0.5

// GlyphQuad is one glyph placed in pixel space with its atlas UVs.
type GlyphQuad struct {
	X0, Y0, X1, Y1 float32
	U0, V0, U1, V1 float32
}

// GlyphAtlas holds the ASCII glyphs of one font at one pixel height,
// rasterized into a single-channel texture.
//
// Every glyph occupies a CellWidth x CellHeight cell; cells are stacked
// vertically in code point order, so the texture is CellWidth wide and
// CellHeight*128 tall.
type GlyphAtlas struct {
	Font       scene.FontKey
	CellWidth  int
	CellHeight int
	Pixels     []byte

	// Texture and View are set once the atlas is uploaded.
	Texture TextureID
	View    ViewID

	// Per-glyph placement: bearings in pixels, UVs normalized.
	left, top     [AtlasGlyphs]float32
	right         [AtlasGlyphs]float32
	vTop, vBottom [AtlasGlyphs]float32

	shapeFont *gtfont.Font
	shapers   sync.Pool
}

// Width returns the texture width in texels.
func (a *GlyphAtlas) Width() uint32 { return uint32(a.CellWidth) } //nolint:gosec // small positive

// Height returns the texture height in texels.
func (a *GlyphAtlas) Height() uint32 { return uint32(a.CellHeight * AtlasGlyphs) } //nolint:gosec // small positive

// RasterizeAtlas renders the ASCII range of an OpenType font at
// key.PixelHeight pixels per em.
func RasterizeAtlas(key scene.FontKey, data []byte) (*GlyphAtlas, error) {
	if key.PixelHeight <= 0 {
		return nil, fmt.Errorf("render: font %q: pixel height %v", key.Path, key.PixelHeight)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("render: parse font %q: %w", key.Path, err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(key.PixelHeight),
		DPI:     72,
		Hinting: xfont.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("render: face %q: %w", key.Path, err)
	}
	defer func() { _ = face.Close() }()

	a := &GlyphAtlas{Font: key}

	// First pass: bounds of every glyph to size the cells.
	var rects [AtlasGlyphs]image.Rectangle
	for c := range AtlasGlyphs {
		if !printable(rune(c)) {
			continue
		}
		bounds, _, ok := face.GlyphBounds(rune(c))
		if !ok {
			continue
		}
		r := image.Rect(
			bounds.Min.X.Floor(), bounds.Min.Y.Floor(),
			bounds.Max.X.Ceil(), bounds.Max.Y.Ceil(),
		)
		rects[c] = r
		a.left[c] = float32(r.Min.X)
		a.top[c] = float32(-r.Min.Y)
		a.CellWidth = max(a.CellWidth, r.Dx())
		a.CellHeight = max(a.CellHeight, r.Dy())
	}
	a.CellWidth = max(a.CellWidth, 1)
	a.CellHeight = max(a.CellHeight, 1)

	// Second pass: draw each glyph at the top-left of its cell.
	texH := float32(a.CellHeight * AtlasGlyphs)
	a.Pixels = make([]byte, a.CellWidth*a.CellHeight*AtlasGlyphs)
	for c := range AtlasGlyphs {
		r := rects[c]
		a.vTop[c] = float32(c*a.CellHeight) / texH
		a.vBottom[c] = float32(c*a.CellHeight+r.Dy()) / texH
		a.right[c] = float32(r.Dx()) / float32(a.CellWidth)
		if r.Empty() {
			continue
		}

		mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
		d := &xfont.Drawer{
			Dst:  mask,
			Src:  image.White,
			Face: face,
			Dot:  fixed.Point26_6{X: fixed.I(-r.Min.X), Y: fixed.I(-r.Min.Y)},
		}
		d.DrawString(string(rune(c)))

		cell := a.Pixels[c*a.CellWidth*a.CellHeight:]
		for y := range r.Dy() {
			copy(cell[y*a.CellWidth:y*a.CellWidth+r.Dx()], mask.Pix[y*mask.Stride:y*mask.Stride+r.Dx()])
		}
	}

	// Shaping is optional: without it the pen advances by glyph width.
	if gf, err := gtfont.ParseTTF(bytes.NewReader(data)); err == nil {
		a.shapeFont = gf.Font
		a.shapers.New = func() any { return &shaping.HarfbuzzShaper{} }
	}
	return a, nil
}

func printable(r rune) bool {
	return r >= ' ' && r < AtlasGlyphs-1
}

// Layout places the glyphs of t in pixel space. Characters outside the
// ASCII range are drawn as '?'. Right-to-left runs are laid out in visual
// order.
func (a *GlyphAtlas) Layout(t scene.Text) []GlyphQuad {
	runes := visualOrder(t.Str)
	for i, r := range runes {
		if r < 0 || r >= AtlasGlyphs {
			runes[i] = '?'
		}
	}
	advances := a.shape(runes)

	quads := make([]GlyphQuad, 0, len(runes))
	pen := t.X
	for i, r := range runes {
		c := int(r)
		rows := float32(a.CellHeight) * (a.vBottom[c] - a.vTop[c]) * AtlasGlyphs
		width := a.right[c] * float32(a.CellWidth)

		x0 := pen + a.left[c]
		y0 := t.Y + t.PixelHeight - a.top[c]
		if width > 0 && rows > 0 {
			quads = append(quads, GlyphQuad{
				X0: x0, Y0: y0, X1: x0 + width, Y1: y0 + rows,
				U0: 0, V0: a.vTop[c], U1: a.right[c], V1: a.vBottom[c],
			})
		}

		if advances != nil {
			pen += advances[i]
			continue
		}
		pen += a.left[c] + width
		if r == ' ' {
			pen += float32(a.CellWidth) * spaceAdvanceFactor
		}
	}
	return quads
}

// shape returns the HarfBuzz pen advance of every rune, or nil when the
// font could not be loaded for shaping.
func (a *GlyphAtlas) shape(runes []rune) []float32 {
	if a.shapeFont == nil || len(runes) == 0 {
		return nil
	}
	script := language.Latin
	for _, r := range runes {
		if r != ' ' {
			script = language.LookupScript(r)
			break
		}
	}

	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      gtfont.NewFace(a.shapeFont),
		Size:      fixed.Int26_6(a.Font.PixelHeight * 64),
		Script:    script,
		Language:  language.NewLanguage("en"),
	}
	hb := a.shapers.Get().(*shaping.HarfbuzzShaper)
	out := hb.Shape(input)
	a.shapers.Put(hb)

	advances := make([]float32, len(runes))
	for _, g := range out.Glyphs {
		if i := g.TextIndex(); i >= 0 && i < len(advances) {
			advances[i] += float32(g.Advance) / 64
		}
	}
	return advances
}

// visualOrder returns the runes of s in display order.
func visualOrder(s string) []rune {
	if s == "" {
		return nil
	}
	var p bidi.Paragraph
	if _, err := p.SetString(s, bidi.DefaultDirection(bidi.LeftToRight)); err != nil {
		return []rune(s)
	}
	ordering, err := p.Order()
	if err != nil {
		return []rune(s)
	}

	out := make([]rune, 0, len(s))
	for i := range ordering.NumRuns() {
		run := ordering.Run(i)
		rs := []rune(run.String())
		if run.Direction() == bidi.RightToLeft {
			slices.Reverse(rs)
		}
		out = append(out, rs...)
	}
	return out
}
