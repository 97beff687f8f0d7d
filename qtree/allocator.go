package qtree

import "fmt"

const (
	nodeSlabSize = 512
	itemSlabSize = 16384
)

// NodeRef is a handle to a node allocated from an Allocator. It is only valid
// for the allocator generation it was minted in. The zero value is the absent
// node.
type NodeRef struct {
	ID  int32
	Gen uint32
}

func (r NodeRef) IsNil() bool {
	return r.ID == 0
}

// ItemSpan locates an item array inside the item slabs of an allocator.
type ItemSpan struct {
	Slab   int32
	Offset int32
	Cap    int32
}

// Allocator is a linear slab allocator for tree nodes and item arrays.
// Allocations are never freed individually: Reset releases everything at once
// and starts a new generation while keeping the slabs for reuse.
//
// Node ids start at the first node id given to NewAllocator. Two allocators
// seeded with ranges that do not intersect never mint the same node id, which
// lets Node detect references that leaked from the other allocator.
type Allocator struct {
	firstNodeID int32
	nextNodeID  int32
	gen         uint32

	nodeSlabs [][]Node

	itemSlabs [][]Item
	itemSlab  int
	itemUsed  int
}

// NewAllocator returns an allocator minting node ids from firstNodeID, which
// must be positive.
func NewAllocator(firstNodeID int32) *Allocator {
	if firstNodeID <= 0 {
		panic(fmt.Sprintf("qtree: invalid first node id %d", firstNodeID))
	}

	return &Allocator{
		firstNodeID: firstNodeID,
		nextNodeID:  firstNodeID,
		gen:         1,
	}
}

// Generation returns the current generation. It is incremented by Reset.
func (a *Allocator) Generation() uint32 {
	return a.gen
}

// NodeCount returns the number of nodes allocated in the current generation.
func (a *Allocator) NodeCount() int {
	return int(a.nextNodeID - a.firstNodeID)
}

// Reset logically frees every node and item array. References minted before
// the reset must not be used afterwards; Node panics when they are.
func (a *Allocator) Reset() {
	a.nextNodeID = a.firstNodeID
	a.itemSlab = 0
	a.itemUsed = 0
	a.gen++
}

// NewNode allocates a leaf node covering the given quadrant.
func (a *Allocator) NewNode(level int, x1, y1, x2, y2 float32) NodeRef {
	n := int(a.nextNodeID - a.firstNodeID)
	slab := n / nodeSlabSize
	if slab == len(a.nodeSlabs) {
		a.nodeSlabs = append(a.nodeSlabs, make([]Node, nodeSlabSize))
	}

	ref := NodeRef{ID: a.nextNodeID, Gen: a.gen}
	a.nextNodeID++

	a.nodeSlabs[slab][n%nodeSlabSize] = Node{
		ID:     ref.ID,
		Level:  int32(level),
		Bounds: Rect{Left: x1, Top: y1, Right: x2, Bottom: y2},
		Extent: emptyRect,
	}
	return ref
}

// Node resolves a reference minted by this allocator in its current
// generation.
func (a *Allocator) Node(ref NodeRef) *Node {
	if ref.Gen != a.gen || ref.ID < a.firstNodeID || ref.ID >= a.nextNodeID {
		panic(fmt.Sprintf("qtree: stale node reference %d/%d: allocator serves ids [%d,%d) in generation %d",
			ref.ID, ref.Gen, a.firstNodeID, a.nextNodeID, a.gen))
	}

	n := int(ref.ID - a.firstNodeID)
	return &a.nodeSlabs[n/nodeSlabSize][n%nodeSlabSize]
}

// AllocArray returns a new item array of newCapacity entries and copies the
// first oldCount entries of old into it. The old array stays allocated until
// the next Reset.
func (a *Allocator) AllocArray(old ItemSpan, oldCount, newCapacity int) ItemSpan {
	span := a.alloc(newCapacity)
	if oldCount > 0 {
		copy(a.span(span, newCapacity), a.span(old, oldCount))
	}
	return span
}

// Items returns the items held by n.
func (a *Allocator) Items(n *Node) []Item {
	return a.span(n.items, int(n.Count))
}

func (a *Allocator) addItem(n *Node, it Item) {
	if n.Count == n.items.Cap {
		capacity := CellThreshold
		if n.Count > 0 {
			capacity = int(n.Count) * 2
		}
		n.items = a.AllocArray(n.items, int(n.Count), capacity)
	}

	a.itemSlabs[n.items.Slab][n.items.Offset+n.Count] = it
	n.Count++
}

func (a *Allocator) span(s ItemSpan, count int) []Item {
	if count == 0 {
		return nil
	}
	offset := int(s.Offset)
	return a.itemSlabs[s.Slab][offset : offset+count]
}

func (a *Allocator) alloc(n int) ItemSpan {
	for {
		if a.itemSlab == len(a.itemSlabs) {
			size := itemSlabSize
			if n > size {
				size = n
			}
			a.itemSlabs = append(a.itemSlabs, make([]Item, size))
		}

		if slab := a.itemSlabs[a.itemSlab]; a.itemUsed+n <= len(slab) {
			s := ItemSpan{
				Slab:   int32(a.itemSlab),
				Offset: int32(a.itemUsed),
				Cap:    int32(n),
			}
			a.itemUsed += n
			return s
		}

		a.itemSlab++
		a.itemUsed = 0
	}
}
