package qtree

import "math"

// Rect is an axis aligned rectangle in world coordinates. Top is the smaller
// y value.
type Rect struct {
	Left   float32
	Top    float32
	Right  float32
	Bottom float32
}

// emptyRect is inverted so that the first Expand call replaces it.
var emptyRect = Rect{
	Left:   math.MaxFloat32,
	Top:    math.MaxFloat32,
	Right:  -math.MaxFloat32,
	Bottom: -math.MaxFloat32,
}

// RectFromPointRadius returns the bounding rectangle of a circle.
func RectFromPointRadius(x, y, radius float32) Rect {
	return Rect{
		Left:   x - radius,
		Top:    y - radius,
		Right:  x + radius,
		Bottom: y + radius,
	}
}

func (r Rect) Width() float32 {
	return r.Right - r.Left
}

func (r Rect) Height() float32 {
	return r.Bottom - r.Top
}

func (r Rect) Center() (float32, float32) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// IsEmpty reports whether the rectangle is inverted, which is the case for
// the extent of a subtree without items.
func (r Rect) IsEmpty() bool {
	return r.Left > r.Right || r.Top > r.Bottom
}

// Overlaps reports whether both rectangles share at least one point. Touching
// edges count as overlapping.
func (r Rect) Overlaps(o Rect) bool {
	return r.Left <= o.Right && r.Right >= o.Left &&
		r.Top <= o.Bottom && r.Bottom >= o.Top
}

// Contains reports whether o lies fully inside r.
func (r Rect) Contains(o Rect) bool {
	return r.Left <= o.Left && o.Right <= r.Right &&
		r.Top <= o.Top && o.Bottom <= r.Bottom
}

func (r Rect) ContainsPoint(x, y float32) bool {
	return r.Left <= x && x < r.Right &&
		r.Top <= y && y < r.Bottom
}

// Expand grows r so that it also covers o.
func (r *Rect) Expand(o Rect) {
	if o.Left < r.Left {
		r.Left = o.Left
	}
	if o.Top < r.Top {
		r.Top = o.Top
	}
	if o.Right > r.Right {
		r.Right = o.Right
	}
	if o.Bottom > r.Bottom {
		r.Bottom = o.Bottom
	}
}
