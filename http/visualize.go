package http

import "github.com/irk72ag/StarDrive/qtree"

// DrawCommand is one primitive emitted while visualizing a tree.
type DrawCommand struct {
	Op     string      `json:"op"`
	X1     float32     `json:"x1"`
	Y1     float32     `json:"y1"`
	X2     float32     `json:"x2,omitempty"`
	Y2     float32     `json:"y2,omitempty"`
	Radius float32     `json:"radius,omitempty"`
	Size   float32     `json:"size,omitempty"`
	Text   string      `json:"text,omitempty"`
	Color  qtree.Color `json:"color"`
}

// DrawRecorder is a qtree.Visualizer recording draw commands so that they
// can be replayed by a client.
type DrawRecorder struct {
	Commands []DrawCommand
}

func (r *DrawRecorder) DrawRect(x1, y1, x2, y2 float32, c qtree.Color) {
	r.Commands = append(r.Commands, DrawCommand{Op: "rect", X1: x1, Y1: y1, X2: x2, Y2: y2, Color: c})
}

func (r *DrawRecorder) DrawCircle(x, y, radius float32, c qtree.Color) {
	r.Commands = append(r.Commands, DrawCommand{Op: "circle", X1: x, Y1: y, Radius: radius, Color: c})
}

func (r *DrawRecorder) DrawLine(x1, y1, x2, y2 float32, c qtree.Color) {
	r.Commands = append(r.Commands, DrawCommand{Op: "line", X1: x1, Y1: y1, X2: x2, Y2: y2, Color: c})
}

func (r *DrawRecorder) DrawText(x, y, size float32, text string, c qtree.Color) {
	r.Commands = append(r.Commands, DrawCommand{Op: "text", X1: x, Y1: y, Size: size, Text: text, Color: c})
}
