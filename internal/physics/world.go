// Package physics is a small gravity-driven rigid body simulation for
// sticker bodies inside a jar boundary.
package physics

import (
	"sort"
	"sync"

	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/geom"
)

// PointsPerMeter converts gravity in m/s² into scene units.
const PointsPerMeter = 150.0

// MaxGravity bounds the gravity magnitude, in m/s².
const MaxGravity = 24.0

// DefaultGravity points straight down at 1 g.
var DefaultGravity = geom.V(0, -9.8)

// World owns every body and the installed boundary. All methods are safe
// for concurrent use; operations on unknown ids are no-ops.
type World struct {
	mu       sync.Mutex
	bodies   []body
	free     []int
	index    map[string]handle
	seq      uint64
	gravity  geom.Vec
	bound    boundary.Container
	hasBound bool
	acc      float64
}

// NewWorld returns an empty world with default gravity and no boundary.
func NewWorld() *World {
	return &World{
		index:   make(map[string]handle),
		gravity: DefaultGravity,
	}
}

// SetBoundary installs c, discarding the previous boundary. Bodies that
// end up outside are flagged as escaped.
func (w *World) SetBoundary(c boundary.Container) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bound = c
	w.hasBound = len(c.Shape) >= 3
	w.markEscapedLocked()
}

// Boundary returns the installed boundary.
func (w *World) Boundary() (boundary.Container, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bound, w.hasBound
}

// InsertBody adds a dynamic body. There is no duplicate check: inserting an
// id twice creates two bodies, and the id then addresses the newer one.
func (w *World) InsertBody(id string, shape Shape, pos, vel geom.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	b := body{
		id:       id,
		live:     true,
		seq:      w.seq,
		pos:      pos,
		vel:      vel,
		shape:    shape,
		dynamic:  true,
		category: CategorySticker,
		mask:     CategorySticker | CategoryWall,
	}

	var slot int
	if n := len(w.free); n > 0 {
		slot = w.free[n-1]
		w.free = w.free[:n-1]
		b.gen = w.bodies[slot].gen + 1
		w.bodies[slot] = b
	} else {
		slot = len(w.bodies)
		w.bodies = append(w.bodies, b)
	}
	w.index[id] = handle{slot: slot, gen: b.gen}
	if w.hasBound && !w.bound.Contains(pos) {
		w.bodies[slot].escaped = true
	}
}

// RemoveBody destroys every body carrying id.
func (w *World) RemoveBody(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[id]; !ok {
		return
	}
	delete(w.index, id)
	for i := range w.bodies {
		if w.bodies[i].live && w.bodies[i].id == id {
			w.freeLocked(i)
		}
	}
}

// ClearAll destroys every body.
func (w *World) ClearAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.bodies {
		if w.bodies[i].live {
			w.freeLocked(i)
		}
	}
	w.index = make(map[string]handle)
}

func (w *World) freeLocked(slot int) {
	w.bodies[slot].live = false
	w.bodies[slot].id = ""
	w.free = append(w.free, slot)
}

func (w *World) lookupLocked(id string) *body {
	h, ok := w.index[id]
	if !ok {
		return nil
	}
	b := &w.bodies[h.slot]
	if !b.live || b.gen != h.gen {
		return nil
	}
	return b
}

// SetGravity sets the gravity vector in m/s², clamped to MaxGravity.
func (w *World) SetGravity(g geom.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gravity = g.ClampLen(MaxGravity)
}

// Gravity returns the current gravity in m/s².
func (w *World) Gravity() geom.Vec {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gravity
}

// SetDynamic toggles whether the body takes part in gravity and
// collisions. Suspending a body stops it in place.
func (w *World) SetDynamic(id string, dynamic bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.lookupLocked(id)
	if b == nil {
		return
	}
	b.dynamic = dynamic
	if !dynamic {
		b.vel = geom.Vec{}
	}
}

// SetPosition moves a body without simulating the path.
func (w *World) SetPosition(id string, pos geom.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.lookupLocked(id)
	if b == nil {
		return
	}
	b.pos = pos
	b.escaped = w.hasBound && !w.bound.Contains(pos)
}

// SetShape resizes a body in place.
func (w *World) SetShape(id string, shape Shape) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if b := w.lookupLocked(id); b != nil {
		b.shape = shape
	}
}

// SetVelocity replaces a body's velocity.
func (w *World) SetVelocity(id string, vel geom.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if b := w.lookupLocked(id); b != nil {
		b.vel = vel
	}
}

// Position returns the body centre.
func (w *World) Position(id string) (geom.Vec, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.lookupLocked(id)
	if b == nil {
		return geom.Vec{}, false
	}
	return b.pos, true
}

// Body returns a view of the body addressed by id.
func (w *World) Body(id string) (BodyState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.lookupLocked(id)
	if b == nil {
		return BodyState{}, false
	}
	return b.state(), true
}

// Bodies returns every live body in insertion order.
func (w *World) Bodies() []BodyState {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.liveLocked()
	out := make([]BodyState, 0, len(live))
	for _, b := range live {
		out = append(out, b.state())
	}
	return out
}

// Count returns the number of live bodies.
func (w *World) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies) - len(w.free)
}

// HitTest returns the topmost (most recently inserted) body whose extent
// contains p. Bodies for which skip returns true are ignored.
func (w *World) HitTest(p geom.Vec, skip func(id string) bool) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.liveLocked()
	for i := len(live) - 1; i >= 0; i-- {
		b := live[i]
		if skip != nil && skip(b.id) {
			continue
		}
		if geom.RectAround(b.pos, b.shape.W, b.shape.H).Contains(p) {
			return b.id, true
		}
	}
	return "", false
}

// Escaped returns the ids of bodies whose centre lies outside the
// boundary. They stay flagged until repositioned inside.
func (w *World) Escaped() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for _, b := range w.liveLocked() {
		if b.escaped {
			out = append(out, b.id)
		}
	}
	return out
}

// liveLocked returns pointers to live bodies sorted by insertion.
func (w *World) liveLocked() []*body {
	out := make([]*body, 0, len(w.bodies))
	for i := range w.bodies {
		if w.bodies[i].live {
			out = append(out, &w.bodies[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (w *World) markEscapedLocked() {
	for i := range w.bodies {
		b := &w.bodies[i]
		if !b.live {
			continue
		}
		b.escaped = w.hasBound && !w.bound.Contains(b.pos)
	}
}
