package scene

import "github.com/SJTU-IPADS/Spars-artifacts/geom"

// Kind identifies a drawing primitive. Values double as pipeline keys.
type Kind uint8

const (
	KindNone   Kind = iota // Invalid / unset
	KindRect               // Filled axis-aligned rectangle
	KindCircle             // Filled circle
	KindImage              // Textured quad
	KindText               // ASCII text run
	KindRRect              // Filled rounded rectangle
)

// kindNames maps Kind values to their string representation.
var kindNames = [...]string{
	KindNone:   "None",
	KindRect:   "Rect",
	KindCircle: "Circle",
	KindImage:  "Image",
	KindText:   "Text",
	KindRRect:  "RRect",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Kinds lists every drawable kind in pipeline-key order.
var Kinds = []Kind{KindRect, KindCircle, KindImage, KindText, KindRRect}

// Paint is a normalized RGBA color.
type Paint struct {
	R, G, B, A float32
}

// ARGB converts a packed 0xAARRGGBB color to a Paint.
func ARGB(c uint32) Paint {
	return Paint{
		A: float32(c>>24&0xff) / 255,
		R: float32(c>>16&0xff) / 255,
		G: float32(c>>8&0xff) / 255,
		B: float32(c&0xff) / 255,
	}
}

// Circle is a circle centered at (X, Y).
type Circle struct {
	X, Y, R float32
}

// RRect is a rectangle with rounded corners of radius R.
type RRect struct {
	X, Y, W, H, R float32
}

// Image is a textured quad sourced from an image file.
type Image struct {
	Rect geom.Rect
	Path string
}

// Text is a single-line ASCII text run. (X, Y) is the top-left corner.
type Text struct {
	X, Y        float32
	PixelHeight float32
	Str         string
	FontPath    string
}

// Font returns the key identifying the glyph atlas this text needs.
func (t Text) Font() FontKey {
	return FontKey{Path: t.FontPath, PixelHeight: t.PixelHeight}
}

// FontKey identifies a font at a pixel size.
type FontKey struct {
	Path        string
	PixelHeight float32
}

// Text bounding boxes are estimated from the string length, since the
// glyph metrics are not known until the atlas exists.
const (
	textAdvanceFactor = 0.55
	textLineFactor    = 1.25
)

// Cmd is a single draw command attached to a node, in node-local
// coordinates. Exactly one payload field is meaningful, selected by Kind.
type Cmd struct {
	Kind   Kind
	Paint  Paint
	Rect   geom.Rect
	Circle Circle
	Image  Image
	Text   Text
	RRect  RRect
}

// RectCmd creates a rectangle command.
func RectCmd(r geom.Rect, p Paint) Cmd { return Cmd{Kind: KindRect, Rect: r, Paint: p} }

// CircleCmd creates a circle command.
func CircleCmd(c Circle, p Paint) Cmd { return Cmd{Kind: KindCircle, Circle: c, Paint: p} }

// ImageCmd creates an image command.
func ImageCmd(img Image, p Paint) Cmd { return Cmd{Kind: KindImage, Image: img, Paint: p} }

// TextCmd creates a text command.
func TextCmd(t Text, p Paint) Cmd { return Cmd{Kind: KindText, Text: t, Paint: p} }

// RRectCmd creates a rounded-rectangle command.
func RRectCmd(r RRect, p Paint) Cmd { return Cmd{Kind: KindRRect, RRect: r, Paint: p} }

// Bounds returns the command's bounding box in absolute coordinates,
// placing it at n's absolute position. A nil node means the origin.
func (c Cmd) Bounds(n *Node) geom.Rect {
	return c.local().Translate(origin(n))
}

// local returns the bounding box in node-local coordinates.
func (c Cmd) local() geom.Rect {
	switch c.Kind {
	case KindRect:
		return c.Rect
	case KindCircle:
		return geom.XYWH(c.Circle.X-c.Circle.R, c.Circle.Y-c.Circle.R, 2*c.Circle.R, 2*c.Circle.R)
	case KindImage:
		return c.Image.Rect
	case KindText:
		t := c.Text
		return geom.XYWH(t.X, t.Y, float32(len(t.Str))*t.PixelHeight*textAdvanceFactor, t.PixelHeight*textLineFactor)
	case KindRRect:
		return geom.XYWH(c.RRect.X, c.RRect.Y, c.RRect.W, c.RRect.H)
	default:
		return geom.Rect{}
	}
}

// Absolute returns a copy of the command with its geometry moved to n's
// absolute position.
func (c Cmd) Absolute(n *Node) Cmd {
	dx, dy := origin(n)
	switch c.Kind {
	case KindRect:
		c.Rect = c.Rect.Translate(dx, dy)
	case KindCircle:
		c.Circle.X += dx
		c.Circle.Y += dy
	case KindImage:
		c.Image.Rect = c.Image.Rect.Translate(dx, dy)
	case KindText:
		c.Text.X += dx
		c.Text.Y += dy
	case KindRRect:
		c.RRect.X += dx
		c.RRect.Y += dy
	}
	return c
}

func origin(n *Node) (float32, float32) {
	if n == nil {
		return 0, 0
	}
	return n.AbsX, n.AbsY
}
