// Package gesture classifies pointer sequences on jar bodies as taps or
// drags.
package gesture

import (
	"sync"

	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/events"
	"github.com/hpungsan/stickerjar/internal/geom"
)

// DefaultTapThreshold is the maximum pointer travel that still counts as a
// tap.
const DefaultTapThreshold = 15.0

// World is the part of the physics world the disambiguator drives.
type World interface {
	HitTest(p geom.Vec, skip func(id string) bool) (string, bool)
	SetDynamic(id string, dynamic bool)
	Position(id string) (geom.Vec, bool)
	SetPosition(id string, pos geom.Vec)
	SetVelocity(id string, vel geom.Vec)
	Boundary() (boundary.Container, bool)
}

// Result classifies a finished pointer sequence.
type Result int

const (
	None Result = iota
	Tap
	Drag
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Tap:
		return "tap"
	case Drag:
		return "drag"
	case Cancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Outcome is returned when a pointer sequence ends.
type Outcome struct {
	Result   Result
	BodyID   string
	Position geom.Vec
	Snapped  bool
}

type tracking struct {
	bodyID    string
	start     geom.Vec
	bodyStart geom.Vec
}

// Disambiguator runs one state machine per pointer id.
type Disambiguator struct {
	world     World
	pub       events.Publisher
	threshold float64

	mu       sync.Mutex
	pointers map[int]*tracking
}

// New returns a disambiguator. A threshold <= 0 uses DefaultTapThreshold.
func New(world World, pub events.Publisher, threshold float64) *Disambiguator {
	if threshold <= 0 {
		threshold = DefaultTapThreshold
	}
	return &Disambiguator{
		world:     world,
		pub:       pub,
		threshold: threshold,
		pointers:  make(map[int]*tracking),
	}
}

// Down starts tracking the topmost body under p that no other pointer
// holds, suspending its dynamics. A pointer that was already tracking is
// cancelled first.
func (d *Disambiguator) Down(pointer int, p geom.Vec) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.pointers[pointer]; ok {
		d.world.SetDynamic(prev.bodyID, true)
		delete(d.pointers, pointer)
	}

	id, ok := d.world.HitTest(p, d.heldLocked)
	if !ok {
		return "", false
	}
	pos, ok := d.world.Position(id)
	if !ok {
		return "", false
	}
	d.world.SetDynamic(id, false)
	d.pointers[pointer] = &tracking{bodyID: id, start: p, bodyStart: pos}
	return id, true
}

// Move repositions the tracked body by the cumulative pointer delta.
func (d *Disambiguator) Move(pointer int, p geom.Vec) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tr, ok := d.pointers[pointer]
	if !ok {
		return
	}
	d.world.SetPosition(tr.bodyID, tr.bodyStart.Add(p.Sub(tr.start)))
}

// Up ends the sequence. Travel below the threshold is a tap: the body goes
// back to where it was at pointer-down and a selection event fires.
// Otherwise it is a drag; a body released outside the boundary is snapped
// to the drop point. Dynamics resume either way.
func (d *Disambiguator) Up(pointer int, p geom.Vec) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	tr, ok := d.pointers[pointer]
	if !ok {
		return Outcome{Result: None}
	}
	delete(d.pointers, pointer)

	if _, alive := d.world.Position(tr.bodyID); !alive {
		return Outcome{Result: None, BodyID: tr.bodyID}
	}

	if p.Dist(tr.start) < d.threshold {
		d.world.SetPosition(tr.bodyID, tr.bodyStart)
		d.world.SetDynamic(tr.bodyID, true)
		if d.pub != nil {
			d.pub.Publish(events.Event{Kind: events.StickerSelected, StickerID: tr.bodyID})
		}
		return Outcome{Result: Tap, BodyID: tr.bodyID, Position: tr.bodyStart}
	}

	released := tr.bodyStart.Add(p.Sub(tr.start))
	d.world.SetPosition(tr.bodyID, released)
	out := Outcome{Result: Drag, BodyID: tr.bodyID, Position: released}
	if c, ok := d.world.Boundary(); ok && !c.Contains(released) {
		d.world.SetPosition(tr.bodyID, c.Drop)
		d.world.SetVelocity(tr.bodyID, geom.Vec{})
		out.Position = c.Drop
		out.Snapped = true
	}
	d.world.SetDynamic(tr.bodyID, true)
	return out
}

// Cancel resumes dynamics without emitting anything.
func (d *Disambiguator) Cancel(pointer int) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	tr, ok := d.pointers[pointer]
	if !ok {
		return Outcome{Result: None}
	}
	delete(d.pointers, pointer)
	d.world.SetDynamic(tr.bodyID, true)
	return Outcome{Result: Cancelled, BodyID: tr.bodyID}
}

// Tracking returns the body held by pointer, if any.
func (d *Disambiguator) Tracking(pointer int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tr, ok := d.pointers[pointer]
	if !ok {
		return "", false
	}
	return tr.bodyID, true
}

// heldLocked reports whether any pointer holds id. Called with d.mu held.
func (d *Disambiguator) heldLocked(id string) bool {
	for _, tr := range d.pointers {
		if tr.bodyID == id {
			return true
		}
	}
	return false
}

// Holds reports whether any pointer is currently tracking body id.
func (d *Disambiguator) Holds(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heldLocked(id)
}
