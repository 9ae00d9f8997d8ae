package scene

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
)

// Scene loading errors.
var (
	// ErrNoRoot is returned when a scene file has no root node.
	ErrNoRoot = errors.New("scene: no root node")

	// ErrUnknownCmd is returned for an unrecognized command type.
	ErrUnknownCmd = errors.New("scene: unknown command type")

	// ErrUnknownAnimation is returned for an unrecognized animation type.
	ErrUnknownAnimation = errors.New("scene: unknown animation type")
)

// Scene is a loaded scene file.
type Scene struct {
	Width, Height int
	Root          *Node
	Animations    *Animations
}

// fileScene is the YAML layout of a scene file:
//
//	display: {width: 1080, height: 1920}
//	root:
//	  id: 0
//	  w: 1080
//	  h: 1920
//	  children:
//	    - id: 1
//	      x: 10
//	      y: 10
//	      w: 200
//	      h: 80
//	      cmds:
//	        - {type: rrect, r: 12, color: 0xff3366cc}
//	        - {type: text, text: "hello", pixel_height: 24, color: 0xff000000}
//	      animation: {type: horizontal_move, start_x: 0, end_x: 800, speed: 120}
type fileScene struct {
	Display struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"display"`
	Root *fileNode `yaml:"root"`
}

type fileNode struct {
	ID        int            `yaml:"id"`
	Name      string         `yaml:"name"`
	X         float32        `yaml:"x"`
	Y         float32        `yaml:"y"`
	W         float32        `yaml:"w"`
	H         float32        `yaml:"h"`
	Hidden    bool           `yaml:"hidden"`
	Cmds      []fileCmd      `yaml:"cmds"`
	Children  []fileNode     `yaml:"children"`
	Animation *fileAnimation `yaml:"animation"`
}

// fileCmd describes one command. X/Y/W/H default to the whole node.
type fileCmd struct {
	Type        string   `yaml:"type"`
	X           *float32 `yaml:"x"`
	Y           *float32 `yaml:"y"`
	W           *float32 `yaml:"w"`
	H           *float32 `yaml:"h"`
	R           float32  `yaml:"r"`
	Color       uint32   `yaml:"color"`
	Path        string   `yaml:"path"`
	Text        string   `yaml:"text"`
	Font        string   `yaml:"font"`
	PixelHeight float32  `yaml:"pixel_height"`
}

type fileAnimation struct {
	Type   string  `yaml:"type"`
	StartX float64 `yaml:"start_x"`
	EndX   float64 `yaml:"end_x"`
	Speed  float64 `yaml:"speed"`
}

// LoadFile reads a YAML scene file.
func LoadFile(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Load decodes a YAML scene.
func Load(r io.Reader) (*Scene, error) {
	var fs fileScene
	if err := yaml.NewDecoder(r).Decode(&fs); err != nil {
		return nil, fmt.Errorf("scene: decode: %w", err)
	}
	if fs.Root == nil {
		return nil, ErrNoRoot
	}

	s := &Scene{
		Width:      fs.Display.Width,
		Height:     fs.Display.Height,
		Animations: &Animations{},
	}

	root, err := buildNode(fs.Root, nil, s.Animations)
	if err != nil {
		return nil, err
	}
	s.Root = root

	if s.Width == 0 || s.Height == 0 {
		s.Width, s.Height = int(root.W), int(root.H)
	}
	return s, nil
}

func buildNode(fn *fileNode, parent *Node, anims *Animations) (*Node, error) {
	n := NewNode(fn.ID, fn.X, fn.Y, fn.W, fn.H)
	n.Name = fn.Name
	n.Visible = !fn.Hidden
	if parent != nil {
		parent.AddChild(n)
	}

	for i, fc := range fn.Cmds {
		c, err := buildCmd(fc, n)
		if err != nil {
			return nil, fmt.Errorf("node %d cmd %d: %w", fn.ID, i, err)
		}
		n.AddCmd(c)
	}

	if fa := fn.Animation; fa != nil {
		switch fa.Type {
		case "horizontal_move":
			anims.Add(NewHorizontalMove(n, fa.StartX, fa.EndX, fa.Speed))
		default:
			return nil, fmt.Errorf("node %d: %w: %q", fn.ID, ErrUnknownAnimation, fa.Type)
		}
	}

	for i := range fn.Children {
		if _, err := buildNode(&fn.Children[i], n, anims); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func buildCmd(fc fileCmd, n *Node) (Cmd, error) {
	x, y, w, h := float32(0), float32(0), n.W, n.H
	if fc.X != nil {
		x = *fc.X
	}
	if fc.Y != nil {
		y = *fc.Y
	}
	if fc.W != nil {
		w = *fc.W
	}
	if fc.H != nil {
		h = *fc.H
	}
	paint := ARGB(fc.Color)

	switch fc.Type {
	case "rect":
		return RectCmd(geom.XYWH(x, y, w, h), paint), nil
	case "circle":
		r := fc.R
		if r == 0 {
			r = min(w, h) / 2
		}
		return CircleCmd(Circle{X: x + w/2, Y: y + h/2, R: r}, paint), nil
	case "rrect":
		return RRectCmd(RRect{X: x, Y: y, W: w, H: h, R: fc.R}, paint), nil
	case "image":
		return ImageCmd(Image{Rect: geom.XYWH(x, y, w, h), Path: fc.Path}, paint), nil
	case "text":
		ph := fc.PixelHeight
		if ph == 0 {
			ph = h
		}
		return TextCmd(Text{X: x, Y: y, PixelHeight: ph, Str: fc.Text, FontPath: fc.Font}, paint), nil
	default:
		return Cmd{}, fmt.Errorf("%w: %q", ErrUnknownCmd, fc.Type)
	}
}
