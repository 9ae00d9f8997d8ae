package scene

// Node is an element of the scene tree.
//
// RelX/RelY are relative to the parent; AbsX/AbsY are derived and kept in
// sync by AddChild, SetRel and UpdateAbsolute. Draw commands are in
// node-local coordinates.
type Node struct {
	ID      int
	Name    string
	Visible bool

	RelX, RelY float32
	AbsX, AbsY float32
	W, H       float32

	Cmds     []Cmd
	Children []*Node

	parent *Node
}

// NewNode creates a visible root-level node. Negative sizes are normalized
// by moving the origin, so W and H are never negative.
func NewNode(id int, x, y, w, h float32) *Node {
	n := &Node{ID: id, Visible: true, RelX: x, RelY: y, W: w, H: h}
	if n.W < 0 {
		n.RelX += n.W
		n.W = -n.W
	}
	if n.H < 0 {
		n.RelY += n.H
		n.H = -n.H
	}
	n.AbsX, n.AbsY = n.RelX, n.RelY
	return n
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// AddChild appends child and recomputes its absolute position.
func (n *Node) AddChild(child *Node) {
	child.parent = n
	n.Children = append(n.Children, child)
	child.UpdateAbsolute()
}

// AddCmd appends a draw command.
func (n *Node) AddCmd(c Cmd) {
	n.Cmds = append(n.Cmds, c)
}

// SetRel moves the node relative to its parent and updates the absolute
// position of the whole subtree.
func (n *Node) SetRel(x, y float32) {
	n.RelX, n.RelY = x, y
	n.UpdateAbsolute()
}

// UpdateAbsolute recomputes AbsX/AbsY for n and its descendants.
func (n *Node) UpdateAbsolute() {
	if n.parent != nil {
		n.AbsX = n.parent.AbsX + n.RelX
		n.AbsY = n.parent.AbsY + n.RelY
	} else {
		n.AbsX, n.AbsY = n.RelX, n.RelY
	}
	for _, c := range n.Children {
		c.UpdateAbsolute()
	}
}

// Walk visits n and its descendants in pre-order: a node, then each child
// subtree in child-list order. Invisible nodes are visited too; callers
// decide what visibility means. Returning false from fn stops the walk.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes and draw commands in the subtree.
func (n *Node) Count() (nodes, cmds int) {
	n.Walk(func(x *Node) bool {
		nodes++
		cmds += len(x.Cmds)
		return true
	})
	return nodes, cmds
}

// Find returns the first node in pre-order with the given ID.
func (n *Node) Find(id int) *Node {
	var found *Node
	n.Walk(func(x *Node) bool {
		if x.ID == id {
			found = x
			return false
		}
		return true
	})
	return found
}
