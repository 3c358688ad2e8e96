package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCenter(t *testing.T) {
	require.Equal(t, Point{15, 15}, NewBox(10, 10, 20, 20).Center())
	require.Equal(t, Point{3, 4}, NewBox(3, 4, 3, 4).Center())
}

func TestIOU(t *testing.T) {
	a := NewBox(0, 0, 10, 10)
	b := NewBox(5, 5, 15, 15)
	// intersection 25, union 175
	require.InDelta(t, 25.0/175.0, a.IOU(b), 1e-6)

	// trash fully inside bin
	trash := NewBox(10, 10, 20, 20)
	bin := NewBox(5, 5, 25, 25)
	require.InDelta(t, 0.25, trash.IOU(bin), 1e-6)

	// disjoint is exactly zero
	require.Equal(t, 0.0, a.IOU(NewBox(20, 20, 30, 30)))
	// touching edges have zero intersection area
	require.Equal(t, 0.0, a.IOU(NewBox(10, 0, 20, 10)))

	// degenerate boxes
	require.Equal(t, 0.0, NewBox(1, 1, 1, 1).IOU(NewBox(1, 1, 1, 1)))
	require.Equal(t, 0.0, NewBox(5, 5, 1, 1).IOU(a))
}

func TestIOUProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	randomBox := func() Box {
		x1 := rng.Float64() * 100
		y1 := rng.Float64() * 100
		return NewBox(x1, y1, x1+rng.Float64()*50, y1+rng.Float64()*50)
	}
	for i := 0; i < 1000; i++ {
		a := randomBox()
		b := randomBox()
		require.Equal(t, a.IOU(b), b.IOU(a))
		iou := a.IOU(b)
		require.GreaterOrEqual(t, iou, 0.0)
		require.LessOrEqual(t, iou, 1.0)
		if a.Area() > 1 {
			require.InDelta(t, 1.0, a.IOU(a), 1e-6)
		}
	}
}

func TestContains(t *testing.T) {
	b := NewBox(5, 5, 25, 25)
	require.True(t, b.Contains(Point{15, 15}))
	require.True(t, b.Contains(Point{5, 5}))
	require.True(t, b.Contains(Point{25, 25}))
	require.True(t, b.Contains(Point{5, 25}))
	require.False(t, b.Contains(Point{4.999, 15}))
	require.False(t, b.Contains(Point{15, 25.001}))
}

func TestDistance(t *testing.T) {
	p := Point{0, 0}
	q := Point{3, 4}
	require.Equal(t, 25.0, p.SquaredDistance(q))
	require.Equal(t, 5.0, p.Distance(q))
	require.Equal(t, 5.0, Diagonal(3, 4))
	require.Equal(t, 0.0, Diagonal(0, 0))
}

func TestDegenerateArea(t *testing.T) {
	require.Equal(t, 0.0, NewBox(10, 10, 5, 5).Area())
	require.Equal(t, 0.0, NewBox(10, 10, 10, 20).Area())
	require.Equal(t, 200.0, NewBox(0, 0, 10, 20).Area())
}

func TestInt32Bounds(t *testing.T) {
	x1, y1, x2, y2 := NewBox(1.5, 2.2, 3.1, 4.9).Int32Bounds()
	require.Equal(t, []int32{1, 2, 4, 5}, []int32{x1, y1, x2, y2})
}
