package media

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/geom"
	"github.com/hpungsan/stickerjar/internal/physics"
)

// Scene is what a snapshot renders: the live bodies and the boundary.
type Scene interface {
	Bodies() []physics.BodyState
	Boundary() (boundary.Container, bool)
}

var (
	background = color.NRGBA{R: 250, G: 247, B: 240, A: 255}
	glass      = color.NRGBA{R: 226, G: 238, B: 242, A: 255}
)

// Snapshotter renders the jar as a PNG. Stickers whose images have been
// registered are drawn with them; the rest as coloured tiles.
type Snapshotter struct {
	scene Scene

	mu     sync.RWMutex
	images map[string]image.Image
}

// NewSnapshotter returns a snapshotter for scene.
func NewSnapshotter(scene Scene) *Snapshotter {
	return &Snapshotter{scene: scene, images: make(map[string]image.Image)}
}

// Put registers the image drawn for sticker id.
func (s *Snapshotter) Put(id string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = img
}

// Forget drops registered images.
func (s *Snapshotter) Forget(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.images, id)
	}
}

// Snapshot renders the current scene.
func (s *Snapshotter) Snapshot(ctx context.Context) ([]byte, error) {
	c, ok := s.scene.Boundary()
	if !ok {
		return nil, fmt.Errorf("no boundary installed")
	}
	w, h := int(math.Ceil(c.Width)), int(math.Ceil(c.Height))
	canvas := imaging.New(w, h, background)

	// Scene coordinates are y-up; image rows grow downward.
	for py := 0; py < h; py++ {
		if py%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for px := 0; px < w; px++ {
			if c.Contains(sceneToImage(px, py, h)) {
				canvas.SetNRGBA(px, py, glass)
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.scene.Bodies() {
		bw := int(math.Max(1, math.Round(b.Shape.W)))
		bh := int(math.Max(1, math.Round(b.Shape.H)))
		var tile image.Image
		if img, ok := s.images[b.ID]; ok {
			tile = imaging.Resize(img, bw, bh, imaging.Lanczos)
		} else {
			tile = imaging.New(bw, bh, tileColor(b.ID))
		}
		topLeft := image.Pt(
			int(math.Round(b.Position.X-b.Shape.W/2)),
			h-int(math.Round(b.Position.Y+b.Shape.H/2)),
		)
		canvas = imaging.Overlay(canvas, tile, topLeft, 1.0)
	}

	return EncodePNG(canvas)
}

// sceneToImage returns the scene point at the centre of pixel (px, py).
func sceneToImage(px, py, h int) geom.Vec {
	return geom.V(float64(px)+0.5, float64(h-py)-0.5)
}

// tileColor derives a stable colour from the sticker id.
func tileColor(id string) color.NRGBA {
	f := fnv.New32a()
	f.Write([]byte(id))
	v := f.Sum32()
	return color.NRGBA{R: uint8(96 + v%128), G: uint8(96 + (v>>8)%128), B: uint8(96 + (v>>16)%128), A: 255}
}
