package qtree

// SearchFilter is a custom predicate applied after the built-in filters.
type SearchFilter interface {
	// Filter reports whether the object may be included in the results.
	Filter(objectID int32) bool
}

// SearchFilterFunc is an adapter to use an ordinary function as a
// SearchFilter.
type SearchFilterFunc func(objectID int32) bool

func (f SearchFilterFunc) Filter(objectID int32) bool {
	return f(objectID)
}

// SearchOptions describes a radius query. Build them from
// DefaultSearchOptions: the zero value excludes object 0.
type SearchOptions struct {
	OriginX float32
	OriginY float32

	// Objects are matched when their center is strictly closer than this.
	SearchRadius float32

	// Maximum number of results. The query also stops when the output
	// buffer is full.
	MaxResults int32

	// Type mask. TypeAny disables the filter.
	FilterByType ObjectType

	// Object to leave out of the results. -1 disables the filter.
	FilterExcludeObjectID int32

	// Loyalty to leave out of the results. 0 disables the filter.
	FilterExcludeByLoyalty uint8

	// Only loyalty to include in the results. 0 disables the filter.
	FilterIncludeOnlyByLoyalty uint8

	FilterFunction SearchFilter
}

// DefaultSearchOptions returns options for a query around the given origin
// without any filter.
func DefaultSearchOptions(x, y float32) SearchOptions {
	return SearchOptions{
		OriginX:               x,
		OriginY:               y,
		SearchRadius:          100,
		MaxResults:            10,
		FilterExcludeObjectID: -1,
	}
}

func (opt *SearchOptions) rect() Rect {
	return RectFromPointRadius(opt.OriginX, opt.OriginY, opt.SearchRadius)
}

// match applies the filters in order, cheapest first.
func (opt *SearchOptions) match(it Item) bool {
	if opt.FilterExcludeObjectID != -1 && it.ID == opt.FilterExcludeObjectID {
		return false
	}
	if opt.FilterExcludeByLoyalty != 0 && it.Loyalty == opt.FilterExcludeByLoyalty {
		return false
	}
	if opt.FilterIncludeOnlyByLoyalty != 0 && it.Loyalty != opt.FilterIncludeOnlyByLoyalty {
		return false
	}
	if opt.FilterByType != TypeAny && !it.Type.Is(opt.FilterByType) {
		return false
	}

	dx := float64(it.X) - float64(opt.OriginX)
	dy := float64(it.Y) - float64(opt.OriginY)
	r := float64(opt.SearchRadius)
	if dx*dx+dy*dy >= r*r {
		return false
	}

	if opt.FilterFunction != nil && !opt.FilterFunction.Filter(it.ID) {
		return false
	}
	return true
}

// FindNearby writes the ids of the objects matching opt into out and returns
// how many were written. It never writes more than MaxResults or len(out)
// ids.
//
// The search starts in the leaf containing the origin and walks outward
// through its ancestors, so the closest cells are visited first.
func (qt *QuadTree) FindNearby(out []int32, opt SearchOptions) int {
	limit := int(opt.MaxResults)
	if limit > len(out) {
		limit = len(out)
	}
	if limit <= 0 {
		return 0
	}

	s := search{
		alloc: qt.live,
		opt:   &opt,
		rect:  opt.rect(),
		out:   out[:limit],
	}

	var buf [32]*Node
	path := buf[:0]
	for node := qt.live.Node(qt.root); ; {
		path = append(path, node)
		if !node.IsBranch() {
			break
		}
		node = qt.live.Node(node.Children[node.quadrantOf(opt.OriginX, opt.OriginY)])
	}

	for i := len(path) - 1; i >= 0; i-- {
		node := path[i]
		if !node.Extent.Overlaps(s.rect) {
			continue
		}

		if s.visitItems(node) {
			break
		}

		if !node.IsBranch() {
			continue
		}

		var visited int32
		if i+1 < len(path) {
			visited = path[i+1].ID
		}

		full := false
		for _, child := range node.Children {
			if child.ID == visited {
				continue
			}
			if full = s.visitSubtree(child); full {
				break
			}
		}
		if full {
			break
		}
	}
	return s.count
}

// FindNearbyIDs is FindNearby with a freshly allocated result slice.
func (qt *QuadTree) FindNearbyIDs(opt SearchOptions) []int32 {
	if opt.MaxResults <= 0 {
		return nil
	}

	out := make([]int32, opt.MaxResults)
	return out[:qt.FindNearby(out, opt)]
}

type search struct {
	alloc *Allocator
	opt   *SearchOptions
	rect  Rect
	out   []int32
	count int
}

// visitItems reports whether the output is full.
func (s *search) visitItems(node *Node) bool {
	for _, it := range s.alloc.Items(node) {
		if !s.opt.match(it) {
			continue
		}

		s.out[s.count] = it.ID
		s.count++
		if s.count == len(s.out) {
			return true
		}
	}
	return false
}

func (s *search) visitSubtree(ref NodeRef) bool {
	node := s.alloc.Node(ref)
	if !node.Extent.Overlaps(s.rect) {
		return false
	}

	if s.visitItems(node) {
		return true
	}

	if node.IsBranch() {
		for _, child := range node.Children {
			if s.visitSubtree(child) {
				return true
			}
		}
	}
	return false
}
