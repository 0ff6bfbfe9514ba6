// Package jar is the session object for one user's sticker jar. It owns
// the physics world and wires the gesture, lifecycle and archive machinery
// to the stores, without any package-level state.
package jar

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/stickerjar/internal/analysis"
	"github.com/hpungsan/stickerjar/internal/archive"
	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/config"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/events"
	"github.com/hpungsan/stickerjar/internal/geom"
	"github.com/hpungsan/stickerjar/internal/gesture"
	"github.com/hpungsan/stickerjar/internal/lifecycle"
	"github.com/hpungsan/stickerjar/internal/media"
	"github.com/hpungsan/stickerjar/internal/metrics"
	"github.com/hpungsan/stickerjar/internal/physics"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// TickRate is the physics cadence of Run.
const TickRate = 60

// TiltScale converts device acceleration (in g) to world gravity.
const TiltScale = 12.0

// Store is the document store a jar needs.
type Store interface {
	lifecycle.DocumentStore
	archive.Store
	LoadStickers(ctx context.Context) ([]sticker.Sticker, error)
}

// Deps are a jar's collaborators. Store, Blobs, Analyzer and Reporter are
// required.
type Deps struct {
	Config   *config.Config
	Store    Store
	Blobs    lifecycle.BlobStore
	Analyzer lifecycle.Analyzer
	Reporter archive.Reporter
	Profile  *analysis.Profile

	Events  *events.Bus
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Jar is one live sticker jar.
type Jar struct {
	cfg *config.Config
	log logrus.FieldLogger

	store    Store
	bus      *events.Bus
	metrics  *metrics.Metrics
	world    *physics.World
	gestures *gesture.Disambiguator
	coord    *lifecycle.Coordinator
	engine   *archive.Engine
	snap     *media.Snapshotter
}

// New wires a jar from deps.
func New(deps Deps) (*Jar, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	weekday, err := cfg.Weekday()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	bus := deps.Events
	if bus == nil {
		bus = events.NewBus()
	}

	j := &Jar{
		cfg:     cfg,
		log:     log.WithField("user_id", cfg.UserID),
		store:   deps.Store,
		bus:     bus,
		metrics: deps.Metrics,
		world:   physics.NewWorld(),
	}
	j.snap = media.NewSnapshotter(j.world)
	j.gestures = gesture.New(j.world, bus, cfg.TapThreshold)

	collection := sticker.NewCollection()
	j.engine = archive.New(archive.Config{
		UserID:      cfg.UserID,
		Collection:  collection,
		World:       j.world,
		Snapshotter: j.snap,
		Reporter:    deps.Reporter,
		Blobs:       deps.Blobs,
		Store:       deps.Store,
		Images:      j.snap,
		Events:      bus,
		Metrics:     deps.Metrics,
		Logger:      log,
		Policy: archive.Policy{
			Capacity: cfg.ArchiveCapacity,
			Weekday:  weekday,
			Location: loc,
		},
		Now: deps.Now,
	})
	j.coord = lifecycle.New(lifecycle.Config{
		UserID:        cfg.UserID,
		Blobs:         deps.Blobs,
		Analyzer:      deps.Analyzer,
		Store:         deps.Store,
		World:         j.world,
		Collection:    collection,
		Images:        j.snap,
		Events:        bus,
		Metrics:       deps.Metrics,
		Logger:        log,
		Profile:       deps.Profile,
		MaxDimension:  cfg.MaxStickerDimension,
		ThumbnailSize: cfg.ThumbnailMaxSize,
		AfterCommit:   j.afterCommit,
		Now:           deps.Now,
	})
	return j, nil
}

func (j *Jar) afterCommit(id string) {
	if _, err := j.engine.Evaluate(context.Background(), archive.ReasonCommit); err != nil {
		j.log.WithField("sticker_id", id).WithError(err).Warn("post-commit archive check failed")
	}
}

// Events returns the jar's event bus.
func (j *Jar) Events() *events.Bus { return j.bus }

// World returns the physics world.
func (j *Jar) World() *physics.World { return j.world }

// Coordinator returns the sticker lifecycle coordinator.
func (j *Jar) Coordinator() *lifecycle.Coordinator { return j.coord }

// Engine returns the archive engine.
func (j *Jar) Engine() *archive.Engine { return j.engine }

// Snapshotter returns the jar renderer.
func (j *Jar) Snapshotter() *media.Snapshotter { return j.snap }

// Stickers returns the live collection, oldest first.
func (j *Jar) Stickers() []sticker.Sticker {
	return j.coord.Collection().Snapshot()
}

// Bodies returns the current body layout.
func (j *Jar) Bodies() []physics.BodyState {
	return j.world.Bodies()
}

// Resize regenerates the container for a new view size. Invalid sizes
// leave the previous boundary in place and report false.
func (j *Jar) Resize(width, height float64) bool {
	c, ok := boundary.New(width, height)
	if !ok {
		j.log.WithFields(logrus.Fields{"width": width, "height": height}).Debug("ignoring invalid jar size")
		return false
	}
	j.world.SetBoundary(c)
	j.resettle()
	return true
}

// Tilt applies device acceleration (x, y in g) as gravity.
func (j *Jar) Tilt(x, y float64) {
	j.world.SetGravity(geom.V(x*TiltScale, y*TiltScale))
}

// Tick advances the world by dt seconds and re-injects escaped bodies.
func (j *Jar) Tick(dt float64) {
	j.world.Step(dt)
	j.resettle()
	j.metrics.SetBodies(j.world.Count())
}

// Run steps the world at TickRate until ctx is done.
func (j *Jar) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / TickRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			j.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}

// resettle moves bodies that left the container back to the drop point,
// except those a pointer is holding.
func (j *Jar) resettle() {
	c, ok := j.world.Boundary()
	if !ok {
		return
	}
	for _, id := range j.world.Escaped() {
		if j.gestures.Holds(id) {
			continue
		}
		j.world.SetPosition(id, c.Drop)
		j.world.SetVelocity(id, geom.Vec{})
	}
}

// PointerDown forwards to the gesture machine.
func (j *Jar) PointerDown(pointer int, p geom.Vec) (string, bool) {
	return j.gestures.Down(pointer, p)
}

// PointerMove forwards to the gesture machine.
func (j *Jar) PointerMove(pointer int, p geom.Vec) {
	j.gestures.Move(pointer, p)
}

// PointerUp forwards to the gesture machine.
func (j *Jar) PointerUp(pointer int, p geom.Vec) gesture.Outcome {
	return j.gestures.Up(pointer, p)
}

// PointerCancel forwards to the gesture machine.
func (j *Jar) PointerCancel(pointer int) gesture.Outcome {
	return j.gestures.Cancel(pointer)
}

// CreateInput is a new sticker capture.
type CreateInput struct {
	Original []byte
	Image    []byte

	// IsSpecial overrides the configured special roll when set.
	IsSpecial *bool
}

// CreateSticker runs the whole creation flow: placeholder, remote work,
// then commit into the jar. A persist failure leaves the jar as it was.
func (j *Jar) CreateSticker(ctx context.Context, in CreateInput) (sticker.Sticker, error) {
	special := lifecycle.RollSpecial(j.cfg.SpecialProbability)
	if in.IsSpecial != nil {
		special = *in.IsSpecial
	}
	id, err := j.coord.Prepare(special)
	if err != nil {
		return sticker.Sticker{}, err
	}
	if err := j.coord.ProcessRemote(ctx, id, in.Original, in.Image); err != nil {
		return sticker.Sticker{}, err
	}

	// Read the merged state before commit: an archive triggered by this
	// commit may take the sticker straight out of the collection.
	s, _ := j.coord.Pending(id)
	j.coord.Commit(ctx, id)
	if live, ok := j.coord.Collection().Get(id); ok {
		s = live
	}
	return s, nil
}

// Foreground re-evaluates the archive policy, as when the app becomes
// active.
func (j *Jar) Foreground(ctx context.Context) (*sticker.ArchiveRecord, error) {
	return j.engine.Evaluate(ctx, archive.ReasonForeground)
}

// Archive forces an archive of the current jar.
func (j *Jar) Archive(ctx context.Context) (*sticker.ArchiveRecord, error) {
	return j.engine.Archive(ctx)
}

// Load restores the live jar and trigger state from the store and
// scatters the restored bodies inside the container. It returns the
// number of stickers restored.
func (j *Jar) Load(ctx context.Context) (int, error) {
	if err := j.engine.Load(ctx); err != nil {
		return 0, err
	}
	stickers, err := j.store.LoadStickers(ctx)
	if err != nil {
		return 0, err
	}
	added := j.coord.Restore(stickers)
	c, hasBound := j.world.Boundary()
	for _, s := range added {
		shape := physics.ShapeFor(s.AspectRatio, j.cfg.MaxStickerDimension)
		pos := geom.Vec{}
		if hasBound {
			pos = scatter(c)
		}
		j.world.InsertBody(s.ID, shape, pos, geom.Vec{})
	}
	j.metrics.SetBodies(j.world.Count())
	j.log.WithField("stickers", len(added)).Debug("jar loaded")
	return len(added), nil
}

// scatter picks a random point inside c, falling back to the drop point.
func scatter(c boundary.Container) geom.Vec {
	r := c.Shape.Bounds()
	for range 64 {
		p := geom.V(
			r.Min.X+rand.Float64()*r.Width(),
			r.Min.Y+rand.Float64()*r.Height(),
		)
		if c.Contains(p) {
			return p
		}
	}
	return c.Drop
}

// Close waits for in-flight sticker work.
func (j *Jar) Close() {
	j.coord.Wait()
}
