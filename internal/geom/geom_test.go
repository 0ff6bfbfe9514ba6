package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func square() Polygon {
	return Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
}

func TestPolygon_Contains(t *testing.T) {
	pg := square()

	require.True(t, pg.Contains(V(5, 5)))
	require.False(t, pg.Contains(V(-1, 5)))
	require.False(t, pg.Contains(V(5, 11)))
	require.False(t, Polygon{{0, 0}, {1, 1}}.Contains(V(0.5, 0.5)))
}

func TestPolygon_AreaAndBounds(t *testing.T) {
	pg := square()

	require.InDelta(t, 100, pg.Area(), 1e-9)
	b := pg.Bounds()
	require.Equal(t, V(0, 0), b.Min)
	require.Equal(t, V(10, 10), b.Max)
	require.Len(t, pg.Segments(), 4)
}

func TestSegment_Closest(t *testing.T) {
	s := Segment{A: V(0, 0), B: V(10, 0)}

	require.Equal(t, V(3, 0), s.Closest(V(3, 4)))
	require.Equal(t, V(0, 0), s.Closest(V(-5, 1)))
	require.Equal(t, V(10, 0), s.Closest(V(50, -2)))
}

func TestRoundedPolygon_RoundedSquare(t *testing.T) {
	corners := []Corner{
		{P: V(0, 0), Radius: 2},
		{P: V(10, 0), Radius: 2},
		{P: V(10, 10), Radius: 2},
		{P: V(0, 10), Radius: 2},
	}
	pg, ok := RoundedPolygon(corners, 8)
	require.True(t, ok)
	require.Greater(t, pg.Area(), 0.0)

	// The sharp corner is cut off, the centre stays inside
	require.False(t, pg.Contains(V(0.1, 0.1)))
	require.True(t, pg.Contains(V(5, 5)))

	// Every arc point is on its circle
	for _, v := range pg {
		if v.X < 2 && v.Y < 2 {
			require.InDelta(t, 2, v.Dist(V(2, 2)), 1e-9)
		}
	}

	// Area is the square minus four corner notches
	want := 100 - 4*(4-math.Pi)
	require.InDelta(t, want, pg.Area(), 0.2)
}

func TestRoundedPolygon_TooSmall(t *testing.T) {
	corners := []Corner{
		{P: V(0, 0), Radius: 6},
		{P: V(10, 0), Radius: 6},
		{P: V(10, 10), Radius: 6},
		{P: V(0, 10), Radius: 6},
	}
	_, ok := RoundedPolygon(corners, 4)
	require.False(t, ok)

	_, ok = RoundedPolygon(corners[:2], 4)
	require.False(t, ok)
}

func TestVec_ClampLen(t *testing.T) {
	v := V(30, 40).ClampLen(10)
	require.InDelta(t, 10, v.Len(), 1e-9)
	require.Equal(t, V(1, 1), V(1, 1).ClampLen(10))
	require.Equal(t, Vec{}, Vec{}.Norm())
}
