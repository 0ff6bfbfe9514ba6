package physics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/geom"
)

func newJarWorld(t *testing.T) *World {
	t.Helper()
	c, ok := boundary.New(390, 600)
	require.True(t, ok)
	w := NewWorld()
	w.SetBoundary(c)
	return w
}

func run(w *World, seconds float64) {
	for i := 0; i < int(seconds*60); i++ {
		w.Step(1.0 / 60)
	}
}

func TestShapeFor(t *testing.T) {
	require.Equal(t, Shape{W: 80, H: 40}, ShapeFor(2, 80))
	require.Equal(t, Shape{W: 40, H: 80}, ShapeFor(0.5, 80))
	require.Equal(t, Shape{W: 80, H: 80}, ShapeFor(1, 80))
	require.Equal(t, Shape{W: 80, H: 80}, ShapeFor(0, 0))
}

func TestUnknownIDsAreNoops(t *testing.T) {
	w := NewWorld()

	w.RemoveBody("nope")
	w.SetDynamic("nope", false)
	w.SetPosition("nope", geom.V(1, 1))
	w.SetVelocity("nope", geom.V(1, 1))
	w.SetShape("nope", Shape{W: 1, H: 1})
	_, ok := w.Position("nope")
	require.False(t, ok)
	require.Equal(t, 0, w.Count())
}

func TestInsertBody_NoDuplicateCheck(t *testing.T) {
	w := NewWorld()
	shape := ShapeFor(1, 80)

	w.InsertBody("a", shape, geom.V(100, 100), geom.Vec{})
	w.InsertBody("a", shape, geom.V(200, 100), geom.Vec{})
	require.Equal(t, 2, w.Count())

	pos, ok := w.Position("a")
	require.True(t, ok)
	require.Equal(t, geom.V(200, 100), pos)

	w.RemoveBody("a")
	require.Equal(t, 0, w.Count())
}

func TestSlotReuse(t *testing.T) {
	w := NewWorld()
	shape := ShapeFor(1, 80)

	w.InsertBody("a", shape, geom.V(1, 1), geom.Vec{})
	w.RemoveBody("a")
	w.InsertBody("b", shape, geom.V(2, 2), geom.Vec{})

	require.Equal(t, 1, w.Count())
	_, ok := w.Position("a")
	require.False(t, ok)
	pos, ok := w.Position("b")
	require.True(t, ok)
	require.Equal(t, geom.V(2, 2), pos)
}

func TestClearAll(t *testing.T) {
	w := newJarWorld(t)
	for _, id := range []string{"a", "b", "c"} {
		w.InsertBody(id, ShapeFor(1, 80), geom.V(195, 300), geom.Vec{})
	}
	w.ClearAll()

	require.Equal(t, 0, w.Count())
	require.Empty(t, w.Bodies())
}

func TestSetShape(t *testing.T) {
	w := newJarWorld(t)
	w.InsertBody("a", ShapeFor(0, 80), geom.V(195, 300), geom.Vec{})

	w.SetShape("a", ShapeFor(4, 80))
	b, ok := w.Body("a")
	require.True(t, ok)
	require.Equal(t, Shape{W: 80, H: 20}, b.Shape)
	require.Equal(t, geom.V(195, 300), b.Position)
}

func TestSetGravity_Clamped(t *testing.T) {
	w := NewWorld()
	require.Equal(t, DefaultGravity, w.Gravity())

	w.SetGravity(geom.V(0, -1000))
	require.InDelta(t, MaxGravity, w.Gravity().Len(), 1e-9)

	w.SetGravity(geom.V(3, 4))
	require.Equal(t, geom.V(3, 4), w.Gravity())
}

func TestStep_SettlesOnJarFloor(t *testing.T) {
	w := newJarWorld(t)
	w.InsertBody("a", ShapeFor(1, 80), geom.V(195, 550), geom.V(0, -50))

	run(w, 4)

	b, ok := w.Body("a")
	require.True(t, ok)
	require.False(t, b.Escaped)
	require.InDelta(t, 40, b.Position.Y, 5, "resting on the floor at its radius")
	require.InDelta(t, 195, b.Position.X, 1)
	require.Empty(t, w.Escaped())
}

func TestStep_BodiesDoNotOverlap(t *testing.T) {
	w := newJarWorld(t)
	w.InsertBody("a", ShapeFor(1, 80), geom.V(195, 200), geom.Vec{})
	w.InsertBody("b", ShapeFor(1, 80), geom.V(196, 400), geom.Vec{})

	run(w, 5)

	a, _ := w.Position("a")
	b, _ := w.Position("b")
	require.Greater(t, a.Dist(b), 70.0)
	require.Empty(t, w.Escaped())
}

func TestStep_KinematicBodyDoesNotMove(t *testing.T) {
	w := newJarWorld(t)
	w.InsertBody("a", ShapeFor(1, 80), geom.V(195, 300), geom.V(0, -50))
	w.SetDynamic("a", false)

	run(w, 1)

	b, _ := w.Body("a")
	require.Equal(t, geom.V(195, 300), b.Position)
	require.Equal(t, geom.Vec{}, b.Velocity)
	require.False(t, b.Dynamic)
}

func TestStep_GravityFollowsTilt(t *testing.T) {
	w := newJarWorld(t)
	w.SetGravity(geom.V(9.8, 0))
	w.InsertBody("a", ShapeFor(1, 80), geom.V(195, 300), geom.Vec{})

	run(w, 3)

	pos, _ := w.Position("a")
	require.InDelta(t, 390-40, pos.X, 5, "rests against the right wall")
}

func TestEscaped_AfterResize(t *testing.T) {
	w := newJarWorld(t)
	w.InsertBody("high", ShapeFor(1, 80), geom.V(195, 500), geom.Vec{})
	w.InsertBody("low", ShapeFor(1, 80), geom.V(195, 100), geom.Vec{})

	small, ok := boundary.New(390, 300)
	require.True(t, ok)
	w.SetBoundary(small)

	require.Equal(t, []string{"high"}, w.Escaped())

	w.SetPosition("high", small.Drop)
	require.Empty(t, w.Escaped())
}

func TestHitTest_TopmostWins(t *testing.T) {
	w := NewWorld()
	shape := ShapeFor(1, 80)
	w.InsertBody("under", shape, geom.V(100, 100), geom.Vec{})
	w.InsertBody("over", shape, geom.V(120, 100), geom.Vec{})

	id, ok := w.HitTest(geom.V(110, 100), nil)
	require.True(t, ok)
	require.Equal(t, "over", id)

	id, ok = w.HitTest(geom.V(110, 100), func(id string) bool { return id == "over" })
	require.True(t, ok)
	require.Equal(t, "under", id)

	_, ok = w.HitTest(geom.V(500, 500), nil)
	require.False(t, ok)
}
