package physics

import (
	"math"

	"github.com/hpungsan/stickerjar/internal/geom"
)

// Collision categories. Stickers collide with stickers and walls; nothing
// else exists in the world.
const (
	CategorySticker uint32 = 1 << 0
	CategoryWall    uint32 = 1 << 1
)

// Material constants shared by every body.
const (
	Restitution     = 0.4
	StickerFriction = 0.1
	WallFriction    = 0.0
)

// MaxStickerDimension caps the larger side of a body.
const MaxStickerDimension = 80.0

// Shape is the axis-aligned size of a body.
type Shape struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ShapeFor sizes a body from the image aspect ratio (width/height),
// capping the larger side at maxDim. Unknown ratios produce a square.
func ShapeFor(aspect, maxDim float64) Shape {
	if maxDim <= 0 {
		maxDim = MaxStickerDimension
	}
	if !(aspect > 0) || math.IsInf(aspect, 0) {
		return Shape{W: maxDim, H: maxDim}
	}
	if aspect > 1 {
		return Shape{W: maxDim, H: maxDim / aspect}
	}
	return Shape{W: maxDim * aspect, H: maxDim}
}

// radius is the collision radius used for body contacts.
func (s Shape) radius() float64 {
	return (s.W + s.H) / 4
}

// BodyState is a read-only view of a body.
type BodyState struct {
	ID       string   `json:"id"`
	Position geom.Vec `json:"position"`
	Velocity geom.Vec `json:"velocity"`
	Shape    Shape    `json:"shape"`
	Dynamic  bool     `json:"dynamic"`
	Escaped  bool     `json:"escaped"`
}

// handle addresses a body slot; gen guards against reuse of freed slots.
type handle struct {
	slot int
	gen  uint32
}

type body struct {
	id       string
	gen      uint32
	live     bool
	seq      uint64
	pos      geom.Vec
	vel      geom.Vec
	shape    Shape
	dynamic  bool
	escaped  bool
	category uint32
	mask     uint32
}

func (b *body) state() BodyState {
	return BodyState{
		ID:       b.id,
		Position: b.pos,
		Velocity: b.vel,
		Shape:    b.shape,
		Dynamic:  b.dynamic,
		Escaped:  b.escaped,
	}
}

func (b *body) invMass() float64 {
	if !b.dynamic {
		return 0
	}
	return 1 / (b.shape.W * b.shape.H)
}
