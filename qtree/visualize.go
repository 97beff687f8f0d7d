package qtree

import "fmt"

// Color is an RGBA color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

var (
	colorRoot         = Color{R: 255, G: 255, B: 0, A: 100}
	colorNode         = Color{R: 139, G: 69, B: 19, A: 150}
	colorLink         = Color{R: 199, G: 21, B: 133, A: 100}
	colorVioletBright = Color{R: 199, G: 21, B: 133, A: 150}
	colorPurple       = Color{R: 96, G: 63, B: 139, A: 150}
	colorText         = Color{R: 95, G: 158, B: 160, A: 200}
)

// Visualizer receives the primitives emitted by DebugVisualize.
type Visualizer interface {
	DrawRect(x1, y1, x2, y2 float32, c Color)
	DrawCircle(x, y, radius float32, c Color)
	DrawLine(x1, y1, x2, y2 float32, c Color)
	DrawText(x, y, size float32, text string, c Color)
}

// VisualizerOptions selects what DebugVisualizeWith draws.
type VisualizerOptions struct {
	NodeBounds   bool
	NodeText     bool
	ObjectBounds bool
	ObjectToLeaf bool
	ObjectText   bool
}

// AllVisualizerOptions enables every drawing.
func AllVisualizerOptions() VisualizerOptions {
	return VisualizerOptions{
		NodeBounds:   true,
		NodeText:     true,
		ObjectBounds: true,
		ObjectToLeaf: true,
		ObjectText:   true,
	}
}

// DebugVisualize draws the current tree with every option enabled.
func (qt *QuadTree) DebugVisualize(visible Rect, v Visualizer) {
	qt.DebugVisualizeWith(visible, AllVisualizerOptions(), v)
}

// DebugVisualizeWith draws the nodes and items of the current tree that
// intersect the visible rectangle.
func (qt *QuadTree) DebugVisualizeWith(visible Rect, opt VisualizerOptions, v Visualizer) {
	a := qt.live
	root := a.Node(qt.root)
	v.DrawRect(root.Bounds.Left, root.Bounds.Top, root.Bounds.Right, root.Bounds.Bottom, colorRoot)

	stack := []*Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		b := node.Bounds
		cx, cy := b.Center()

		if opt.NodeBounds {
			v.DrawRect(b.Left, b.Top, b.Right, b.Bottom, colorNode)
		}

		if node.IsBranch() {
			if opt.NodeText {
				v.DrawText(cx, cy, b.Width()/2, "BR", colorRoot)
			}

			for _, ref := range node.Children {
				child := a.Node(ref)
				if child.Bounds.Overlaps(visible) || child.Extent.Overlaps(visible) {
					stack = append(stack, child)
				}
			}
		} else if opt.NodeText {
			v.DrawText(cx, cy, b.Width()/2, fmt.Sprintf("LF n=%d", node.Count), colorRoot)
		}

		for _, it := range a.Items(node) {
			ib := it.Bounds()
			if !ib.Overlaps(visible) {
				continue
			}

			x, y, r := float32(it.X), float32(it.Y), float32(it.Radius)

			if opt.ObjectBounds {
				c := colorPurple
				if it.Loyalty%2 == 0 {
					c = colorVioletBright
				}
				v.DrawRect(ib.Left, ib.Top, ib.Right, ib.Bottom, c)
				v.DrawCircle(x, y, r, c)
			}

			if opt.ObjectToLeaf {
				v.DrawLine(cx, cy, x, y, colorLink)
			}

			if opt.ObjectText {
				v.DrawText(x, y, ib.Width(), fmt.Sprintf("o=%d", it.ID), colorText)
			}
		}
	}
}
