// Package qtree implements a rebuild-per-frame quadtree used to answer
// broad-phase collision and radius queries over a large set of moving
// circular objects.
//
// Mutations are deferred: Insert, Update and Remove only touch the object
// table, and the tree observes them on the next Rebuild. Traversals read the
// object snapshots captured by the last rebuild.
//
// A QuadTree is not safe for concurrent use.
package qtree

import (
	"fmt"
)

// CellThreshold is the number of items a leaf accepts before it splits.
const CellThreshold = 4

// Node id ranges of the two allocators. They never intersect so a reference
// leaking from one arena into the other is detected.
const (
	frontFirstNodeID = 1
	backFirstNodeID  = 1 << 30
)

// QuadTree indexes objects for collision and proximity queries.
type QuadTree struct {
	levels       int
	fullSize     float32
	universeSize float32

	objects []Object

	root  NodeRef
	live  *Allocator
	spare *Allocator
}

// New creates a tree covering a square universe of the given width centered
// on the origin. The root is grown by doubling smallestCell until it spans
// the whole universe.
func New(universeSize, smallestCell float32) *QuadTree {
	if smallestCell <= 0 {
		panic(fmt.Sprintf("qtree: invalid smallest cell %v", smallestCell))
	}

	levels := 1
	fullSize := smallestCell
	for fullSize < universeSize {
		levels++
		fullSize *= 2
	}

	qt := &QuadTree{
		levels:       levels,
		fullSize:     fullSize,
		universeSize: universeSize,
		live:         NewAllocator(frontFirstNodeID),
		spare:        NewAllocator(backFirstNodeID),
	}
	qt.root = qt.newRoot(qt.live)
	return qt
}

// Levels returns the depth budget of the tree, including the root.
func (qt *QuadTree) Levels() int {
	return qt.levels
}

// FullSize returns the width of the root quadrant. It is the smallest
// power of two multiple of the smallest cell that covers the universe.
func (qt *QuadTree) FullSize() float32 {
	return qt.fullSize
}

func (qt *QuadTree) UniverseSize() float32 {
	return qt.universeSize
}

// Count returns the number of object slots, removed objects included.
func (qt *QuadTree) Count() int {
	return len(qt.objects)
}

// Objects returns the object table indexed by object id. The returned slice
// must not be modified.
func (qt *QuadTree) Objects() []Object {
	return qt.objects
}

// Get returns the object with the given id.
func (qt *QuadTree) Get(id int32) (Object, bool) {
	if id < 0 || int(id) >= len(qt.objects) {
		return Object{}, false
	}
	return qt.objects[id], true
}

// Insert stores a copy of o and returns its id. The id is stable until
// Clear. The object becomes visible to queries on the next Rebuild.
func (qt *QuadTree) Insert(o Object) int32 {
	id := int32(len(qt.objects))
	o.ID = id
	o.Active = true
	qt.objects = append(qt.objects, o)
	return id
}

// Update moves an object. The tree observes the new position on the next
// Rebuild. It reports false when id is unknown.
func (qt *QuadTree) Update(id int32, x, y int32) bool {
	if id < 0 || int(id) >= len(qt.objects) {
		return false
	}

	o := &qt.objects[id]
	o.X = x
	o.Y = y
	return true
}

// SetRadius changes the collision radius of an object. Like Update it is
// observed on the next Rebuild.
func (qt *QuadTree) SetRadius(id int32, radius int32) bool {
	if id < 0 || int(id) >= len(qt.objects) {
		return false
	}

	qt.objects[id].Radius = radius
	return true
}

// Remove marks an object inactive. It stays in the tree until the next
// Rebuild. Its id is not reused before Clear.
func (qt *QuadTree) Remove(id int32) bool {
	if id < 0 || int(id) >= len(qt.objects) {
		return false
	}

	qt.objects[id].Active = false
	return true
}

// Clear drops every object and empties the tree. Ids restart at 0.
func (qt *QuadTree) Clear() {
	qt.objects = qt.objects[:0]
	qt.live.Reset()
	qt.spare.Reset()
	qt.root = qt.newRoot(qt.live)
}

// Rebuild builds a new tree from the active objects into the spare arena,
// publishes it, and resets the arena of the previous tree.
func (qt *QuadTree) Rebuild() {
	alloc := qt.spare
	root := qt.newRoot(alloc)
	rootNode := alloc.Node(root)

	for i := range qt.objects {
		o := &qt.objects[i]
		if !o.Active {
			continue
		}
		insertAt(alloc, rootNode, newItem(o))
	}

	retired := qt.live
	qt.live = alloc
	qt.spare = retired
	qt.root = root
	retired.Reset()
}

// Root returns the root of the current tree.
func (qt *QuadTree) Root() NodeRef {
	return qt.root
}

// Node resolves a node of the current tree. References from a previous
// rebuild are rejected with a panic.
func (qt *QuadTree) Node(ref NodeRef) *Node {
	return qt.live.Node(ref)
}

// Items returns the snapshots held by a node of the current tree.
func (qt *QuadTree) Items(n *Node) []Item {
	return qt.live.Items(n)
}

// TreeStats summarizes the shape of the current tree.
type TreeStats struct {
	Nodes    int `json:"nodes"`
	Leaves   int `json:"leaves"`
	Branches int `json:"branches"`
	Items    int `json:"items"`
	MaxDepth int `json:"max_depth"`
}

// Stats walks the current tree.
func (qt *QuadTree) Stats() TreeStats {
	type frame struct {
		node  NodeRef
		depth int
	}

	var stats TreeStats
	stack := []frame{{node: qt.root, depth: 1}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := qt.live.Node(f.node)
		stats.Nodes++
		stats.Items += int(node.Count)
		if f.depth > stats.MaxDepth {
			stats.MaxDepth = f.depth
		}

		if !node.IsBranch() {
			stats.Leaves++
			continue
		}

		stats.Branches++
		for _, child := range node.Children {
			stack = append(stack, frame{node: child, depth: f.depth + 1})
		}
	}
	return stats
}

func (qt *QuadTree) newRoot(a *Allocator) NodeRef {
	half := qt.fullSize / 2
	return a.NewNode(qt.levels, -half, -half, half, half)
}

func insertAt(a *Allocator, node *Node, it Item) {
	bounds := it.Bounds()

	for {
		node.Extent.Expand(bounds)

		if node.Level <= 1 {
			a.addItem(node, it)
			return
		}

		if node.IsBranch() {
			if q := node.pickSubQuadrant(bounds); q >= 0 {
				node = a.Node(node.Children[q])
				continue
			}
			a.addItem(node, it)
			return
		}

		a.addItem(node, it)
		if node.Count >= CellThreshold {
			split(a, node)
		}
		return
	}
}

// split turns a full leaf into a branch and pushes down every item that fits
// a single child quadrant.
func split(a *Allocator, node *Node) {
	b := node.Bounds
	midX, midY := b.Center()
	level := int(node.Level) - 1

	node.Children[NW] = a.NewNode(level, b.Left, b.Top, midX, midY)
	node.Children[NE] = a.NewNode(level, midX, b.Top, b.Right, midY)
	node.Children[SE] = a.NewNode(level, midX, midY, b.Right, b.Bottom)
	node.Children[SW] = a.NewNode(level, b.Left, midY, midX, b.Bottom)

	items := a.Items(node)
	node.Count = 0
	node.items = ItemSpan{}

	for _, it := range items {
		if q := node.pickSubQuadrant(it.Bounds()); q >= 0 {
			insertAt(a, a.Node(node.Children[q]), it)
			continue
		}
		a.addItem(node, it)
	}
}
