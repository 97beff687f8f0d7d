package qtree

// Child slots of a branch node.
const (
	NW = iota
	NE
	SE
	SW
)

// Node is a quadrant of space. A leaf holds the items fully contained in its
// quadrant. A branch has exactly four children and holds the items that
// straddle more than one child quadrant.
type Node struct {
	ID int32

	// Remaining subdivision budget. The root starts at the tree's level count
	// and a node at level 1 never splits.
	Level int32

	// The quadrant covered by the node.
	Bounds Rect

	// Union of the bounds of every item placed in the node's subtree. Empty
	// when the subtree holds no item.
	Extent Rect

	// Number of items held by the node itself.
	Count int32
	items ItemSpan

	Children [4]NodeRef
}

func (n *Node) IsBranch() bool {
	return !n.Children[NW].IsNil()
}

// pickSubQuadrant returns the child slot that fully contains r, or -1 when r
// overlaps several child quadrants.
func (n *Node) pickSubQuadrant(r Rect) int {
	midX, midY := n.Bounds.Center()

	if r.Right < midX {
		if r.Bottom < midY {
			return NW
		}
		if r.Top >= midY {
			return SW
		}
	} else if r.Left >= midX {
		if r.Bottom < midY {
			return NE
		}
		if r.Top >= midY {
			return SE
		}
	}
	return -1
}

// quadrantOf returns the child slot whose quadrant contains the given point.
func (n *Node) quadrantOf(x, y float32) int {
	midX, midY := n.Bounds.Center()

	if x < midX {
		if y < midY {
			return NW
		}
		return SW
	}
	if y < midY {
		return NE
	}
	return SE
}
