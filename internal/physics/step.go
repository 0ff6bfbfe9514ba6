package physics

import (
	"math"

	"github.com/hpungsan/stickerjar/internal/geom"
)

const (
	// Substep is the fixed integration interval.
	Substep = 1.0 / 120

	// maxFrame bounds the time consumed by one Step call so a stalled
	// caller does not trigger a burst of catch-up substeps.
	maxFrame = 0.25

	// maxSpeed bounds body speed in scene units per second.
	maxSpeed = 2400.0

	// slop is the penetration tolerated before positional correction.
	slop = 0.01

	// restSpeed is the impact speed below which wall contacts do not bounce.
	restSpeed = 30.0
)

// Step advances the simulation by dt seconds in fixed substeps. Leftover
// time carries over to the next call.
func (w *World) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !(dt > 0) {
		return
	}
	w.acc += math.Min(dt, maxFrame)
	for w.acc >= Substep-1e-12 {
		w.substepLocked(Substep)
		w.acc -= Substep
	}
	if w.acc < 0 {
		w.acc = 0
	}
	w.markEscapedLocked()
}

func (w *World) substepLocked(h float64) {
	g := w.gravity.Scale(PointsPerMeter)
	live := w.liveLocked()

	for _, b := range live {
		if !b.dynamic {
			continue
		}
		b.vel = b.vel.Add(g.Scale(h)).ClampLen(maxSpeed)
		b.pos = b.pos.Add(b.vel.Scale(h))
	}

	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			collideBodies(live[i], live[j])
		}
	}

	if !w.hasBound {
		return
	}
	segs := w.bound.Shape.Segments()
	for _, b := range live {
		if !b.dynamic || b.mask&CategoryWall == 0 {
			continue
		}
		// Bodies already outside are left for reconciliation rather than
		// being pushed through the wall from the wrong side.
		if !w.bound.Contains(b.pos) {
			continue
		}
		collideWalls(b, segs)
	}
}

// collideBodies resolves overlap between two sticker bodies as circles.
func collideBodies(a, b *body) {
	if a.mask&b.category == 0 || b.mask&a.category == 0 {
		return
	}
	ia, ib := a.invMass(), b.invMass()
	if ia+ib == 0 {
		return
	}

	d := b.pos.Sub(a.pos)
	dist := d.Len()
	r := a.shape.radius() + b.shape.radius()
	if dist >= r {
		return
	}

	n := geom.V(0, 1)
	if dist > 0 {
		n = d.Scale(1 / dist)
	}

	// Positional correction split by inverse mass
	pen := r - dist
	if pen > slop {
		corr := n.Scale((pen - slop) / (ia + ib))
		a.pos = a.pos.Sub(corr.Scale(ia))
		b.pos = b.pos.Add(corr.Scale(ib))
	}

	rv := b.vel.Sub(a.vel)
	vn := rv.Dot(n)
	if vn >= 0 {
		return
	}
	jn := -(1 + Restitution) * vn / (ia + ib)
	impulse := n.Scale(jn)

	// Coulomb friction along the contact tangent
	t := rv.Sub(n.Scale(vn)).Norm()
	jt := -rv.Dot(t) / (ia + ib)
	maxF := StickerFriction * jn
	jt = math.Max(-maxF, math.Min(maxF, jt))
	impulse = impulse.Add(t.Scale(jt))

	a.vel = a.vel.Sub(impulse.Scale(ia))
	b.vel = b.vel.Add(impulse.Scale(ib))
}

// collideWalls keeps a body whose centre is inside the boundary from
// overlapping any wall segment.
func collideWalls(b *body, segs []geom.Segment) {
	r := b.shape.radius()
	friction := math.Sqrt(StickerFriction * WallFriction)

	for _, s := range segs {
		q := s.Closest(b.pos)
		d := b.pos.Sub(q)
		dist := d.Len()
		if dist >= r || dist == 0 {
			continue
		}
		n := d.Scale(1 / dist)
		b.pos = q.Add(n.Scale(r))

		vn := b.vel.Dot(n)
		if vn >= 0 {
			continue
		}
		normal := n.Scale(vn)
		tangent := b.vel.Sub(normal).Scale(1 - friction)
		if -vn < restSpeed {
			b.vel = tangent
			continue
		}
		b.vel = tangent.Sub(normal.Scale(Restitution))
	}
}
