package qtree

// Collider receives the overlapping pairs found by a collision pass.
type Collider interface {
	// Collide is called once per overlapping pair with the ids of both
	// objects. It reports whether the collision was accepted.
	Collide(objectA, objectB int32) bool
}

// CollisionFunc is an adapter to use an ordinary function as a Collider.
type CollisionFunc func(objectA, objectB int32) bool

func (f CollisionFunc) Collide(objectA, objectB int32) bool {
	return f(objectA, objectB)
}

// CollideAll reports every overlapping pair of the current tree exactly once
// and returns the number of pairs the collider accepted.
//
// Items of a node are tested against each other and against the items of all
// their ancestors. The traversal uses an explicit stack.
func (qt *QuadTree) CollideAll(timeStep float32, c Collider) int {
	type frame struct {
		node      NodeRef
		ancestors int
	}

	a := qt.live
	accepted := 0
	stack := []frame{{node: qt.root}}
	var ancestors []Item

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ancestors = ancestors[:f.ancestors]

		node := a.Node(f.node)
		items := a.Items(node)

		for i := range items {
			for j := i + 1; j < len(items); j++ {
				if items[i].overlaps(items[j]) && c.Collide(items[i].ID, items[j].ID) {
					accepted++
				}
			}

			for _, anc := range ancestors {
				if anc.overlaps(items[i]) && c.Collide(anc.ID, items[i].ID) {
					accepted++
				}
			}
		}

		if !node.IsBranch() {
			continue
		}

		ancestors = append(ancestors, items...)
		for q := SW; q >= NW; q-- {
			ref := node.Children[q]
			if a.Node(ref).Extent.IsEmpty() {
				continue
			}
			stack = append(stack, frame{node: ref, ancestors: len(ancestors)})
		}
	}
	return accepted
}

// CollideAllRecursive finds the same pairs as CollideAll with a recursive
// traversal. Each item is tested against the subtrees below its node, pruned
// with the subtree extents.
func (qt *QuadTree) CollideAllRecursive(timeStep float32, c Collider) int {
	cc := collision{
		alloc:    qt.live,
		collider: c,
	}
	cc.collideNode(qt.live.Node(qt.root))
	return cc.accepted
}

type collision struct {
	alloc    *Allocator
	collider Collider
	accepted int
}

func (cc *collision) collideNode(node *Node) {
	items := cc.alloc.Items(node)
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			cc.test(items[i], items[j])
		}
	}

	if !node.IsBranch() {
		return
	}

	for _, it := range items {
		bounds := it.Bounds()
		for _, child := range node.Children {
			cc.collideSubtree(it, bounds, child)
		}
	}

	for _, ref := range node.Children {
		if child := cc.alloc.Node(ref); !child.Extent.IsEmpty() {
			cc.collideNode(child)
		}
	}
}

func (cc *collision) collideSubtree(it Item, bounds Rect, ref NodeRef) {
	node := cc.alloc.Node(ref)
	if !node.Extent.Overlaps(bounds) {
		return
	}

	for _, other := range cc.alloc.Items(node) {
		cc.test(it, other)
	}

	if node.IsBranch() {
		for _, child := range node.Children {
			cc.collideSubtree(it, bounds, child)
		}
	}
}

func (cc *collision) test(a, b Item) {
	if a.overlaps(b) && cc.collider.Collide(a.ID, b.ID) {
		cc.accepted++
	}
}
