// Package boundary derives the jar silhouette from the viewport size.
package boundary

import (
	"math"

	"github.com/hpungsan/stickerjar/internal/geom"
)

const (
	// BottomRadius rounds the two bottom corners.
	BottomRadius = 60.0

	// TopRadius rounds the shoulders and the lip of the mouth.
	TopRadius = 30.0

	// MouthRatio is the width of the top opening relative to the viewport.
	MouthRatio = 0.85

	// DropDepth is how far below the mouth re-injected bodies appear.
	DropDepth = 50.0

	// ArcSteps is the number of line segments per rounded corner.
	ArcSteps = 8
)

// Container is an installed boundary together with the viewport it was
// derived from.
type Container struct {
	Width  float64      `json:"width"`
	Height float64      `json:"height"`
	Shape  geom.Polygon `json:"shape"`
	Drop   geom.Vec     `json:"drop"`
}

// New builds the container for a width×height viewport.
// Returns false when the size cannot hold the jar shape.
func New(width, height float64) (Container, bool) {
	shape, ok := JarShape(width, height)
	if !ok {
		return Container{}, false
	}
	return Container{
		Width:  width,
		Height: height,
		Shape:  shape,
		Drop:   DropPoint(width, height),
	}, true
}

// Contains reports whether p is inside the jar.
func (c Container) Contains(p geom.Vec) bool {
	return c.Shape.Contains(p)
}

// JarShape returns the closed jar path: straight sides, rounded bottom
// corners, and shoulders that slope in to a mouth MouthRatio of the width.
// The path is counter-clockwise in y-up coordinates.
func JarShape(width, height float64) (geom.Polygon, bool) {
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return nil, false
	}

	inset := width * (1 - MouthRatio) / 2
	corners := []geom.Corner{
		{P: geom.V(0, 0), Radius: BottomRadius},
		{P: geom.V(width, 0), Radius: BottomRadius},
		{P: geom.V(width, height-inset), Radius: TopRadius},
		{P: geom.V(width-inset, height), Radius: TopRadius},
		{P: geom.V(inset, height), Radius: TopRadius},
		{P: geom.V(0, height-inset), Radius: TopRadius},
	}
	return geom.RoundedPolygon(corners, ArcSteps)
}

// DropPoint is the top-centre point where bodies are re-injected so they
// fall back in under gravity.
func DropPoint(width, height float64) geom.Vec {
	return geom.V(width/2, math.Max(height/2, height-DropDepth))
}
