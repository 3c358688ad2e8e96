package nn

import (
	"math"
)

// Added to the IoU denominator, and to the image diagonal when normalizing distances,
// so that degenerate boxes and zero-sized images never divide by zero.
const Epsilon = 1e-6

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SquaredDistance avoids the square root when we only need to compare distances
func (p Point) SquaredDistance(b Point) float64 {
	dx := p.X - b.X
	dy := p.Y - b.Y
	return dx*dx + dy*dy
}

func (p Point) Distance(b Point) float64 {
	return math.Sqrt(p.SquaredDistance(b))
}

// Box is an axis-aligned rectangle in corner form, in the pixel coordinates of the source image.
// A well formed box has X1 <= X2 and Y1 <= Y2.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Width is clamped to zero for inverted boxes
func (r Box) Width() float64 {
	return max(0, r.X2-r.X1)
}

// Height is clamped to zero for inverted boxes
func (r Box) Height() float64 {
	return max(0, r.Y2-r.Y1)
}

func (r Box) Area() float64 {
	return r.Width() * r.Height()
}

func (r Box) Center() Point {
	return Point{
		X: (r.X1 + r.X2) / 2,
		Y: (r.Y1 + r.Y2) / 2,
	}
}

// Contains treats the box as a closed rectangle, so points on the edge are inside.
func (r Box) Contains(p Point) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}

func (r Box) Intersection(b Box) Box {
	x1 := max(r.X1, b.X1)
	y1 := max(r.Y1, b.Y1)
	x2 := min(r.X2, b.X2)
	y2 := min(r.Y2, b.Y2)
	return Box{
		X1: x1,
		Y1: y1,
		X2: max(x1, x2),
		Y2: max(y1, y2),
	}
}

func (r Box) Union(b Box) Box {
	return Box{
		X1: min(r.X1, b.X1),
		Y1: min(r.Y1, b.Y1),
		X2: max(r.X2, b.X2),
		Y2: max(r.Y2, b.Y2),
	}
}

// Intersection over Union.
// Returns exactly zero when the boxes don't overlap.
func (r Box) IOU(b Box) float64 {
	inter := r.Intersection(b).Area()
	if inter == 0 {
		return 0
	}
	return inter / (r.Area() + b.Area() - inter + Epsilon)
}

func (r Box) Offset(dx, dy float64) Box {
	return Box{
		X1: r.X1 + dx,
		Y1: r.Y1 + dy,
		X2: r.X2 + dx,
		Y2: r.Y2 + dy,
	}
}

// Return the smallest integer rectangle that encloses the box.
// This is what our spatial index works with.
func (r Box) Int32Bounds() (x1, y1, x2, y2 int32) {
	return int32(math.Floor(r.X1)), int32(math.Floor(r.Y1)), int32(math.Ceil(r.X2)), int32(math.Ceil(r.Y2))
}

// Diagonal returns the length of the diagonal of an image of the given size
func Diagonal(width, height int) float64 {
	w := float64(width)
	h := float64(height)
	return math.Sqrt(w*w + h*h)
}
