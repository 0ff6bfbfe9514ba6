// Package lifecycle creates stickers: an optimistic placeholder, two
// independent remote operations merged by id, and the single commit that
// puts the sticker into the jar.
package lifecycle

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/stickerjar/internal/analysis"
	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/events"
	"github.com/hpungsan/stickerjar/internal/geom"
	"github.com/hpungsan/stickerjar/internal/media"
	"github.com/hpungsan/stickerjar/internal/metrics"
	"github.com/hpungsan/stickerjar/internal/physics"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// EntryVelocity is the initial velocity of a newly committed body.
var EntryVelocity = geom.V(0, -50)

// BlobStore uploads bytes under a key and returns a stable reference.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, key string) (string, error)
}

// Analyzer identifies a sticker image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, isSpecial bool, profile *analysis.Profile) (sticker.Enrichment, error)
}

// DocumentStore is the durable sticker store.
type DocumentStore interface {
	CreateSticker(ctx context.Context, s sticker.Sticker) error
	UpdateSticker(ctx context.Context, s sticker.Sticker) error
}

// World is the part of the physics world the coordinator touches.
type World interface {
	InsertBody(id string, shape physics.Shape, pos, vel geom.Vec)
	RemoveBody(id string)
	SetShape(id string, shape physics.Shape)
	Boundary() (boundary.Container, bool)
}

// ImageSink receives decoded sticker images (the jar snapshotter).
type ImageSink interface {
	Put(id string, img image.Image)
	Forget(ids ...string)
}

// State is a sticker's creation state.
type State int

const (
	Preparing State = iota
	AwaitingRemote
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Preparing:
		return "preparing"
	case AwaitingRemote:
		return "awaiting_remote"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config wires a Coordinator. Blobs, Analyzer, Store, World and
// Collection are required.
type Config struct {
	UserID     string
	Blobs      BlobStore
	Analyzer   Analyzer
	Store      DocumentStore
	World      World
	Collection *sticker.Collection

	Images  ImageSink
	Events  events.Publisher
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	Profile *analysis.Profile

	MaxDimension  float64
	ThumbnailSize int

	// AfterCommit runs after a successful commit, outside any lock.
	AfterCommit func(id string)

	Now func() time.Time
}

// maxFailed bounds how many failed ids State keeps reporting.
const maxFailed = 64

type entry struct {
	st         sticker.Sticker
	state      State
	committed  bool
	started    bool
	remoteDone bool
}

// Coordinator owns sticker creation for one jar.
type Coordinator struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]*entry
	failed  []string // recent failures, oldest first

	inflight sync.WaitGroup
}

// New returns a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = physics.MaxStickerDimension
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = 150
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		cfg:     cfg,
		log:     log.WithField("component", "lifecycle"),
		entries: make(map[string]*entry),
	}
}

// Collection returns the live jar collection.
func (c *Coordinator) Collection() *sticker.Collection {
	return c.cfg.Collection
}

// Prepare allocates an id and exposes a placeholder sticker immediately.
func (c *Coordinator) Prepare(isSpecial bool) (string, error) {
	now := c.cfg.Now()
	id, err := sticker.NewID(now)
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to generate ID: %w", err))
	}

	e := &entry{
		st: sticker.Sticker{
			ID:        id,
			UserID:    c.cfg.UserID,
			CreatedAt: now.Unix(),
			IsSpecial: isSpecial,
		},
		state: Preparing,
	}
	c.mu.Lock()
	c.entries[id] = e
	e.state = AwaitingRemote
	snap := e.st.Clone()
	c.mu.Unlock()

	c.publish(events.Event{Kind: events.StickerPending, StickerID: id, Sticker: &snap})
	return id, nil
}

// Pending returns the current (possibly partial) state of a sticker that
// has not failed.
func (c *Coordinator) Pending(id string) (sticker.Sticker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.state == Failed {
		return sticker.Sticker{}, false
	}
	return e.st.Clone(), true
}

// State reports where a sticker is in its lifecycle.
func (c *Coordinator) State(id string) (State, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok {
		defer c.mu.Unlock()
		if e.state == Failed {
			return Failed, true
		}
		if e.committed {
			return Committed, true
		}
		return e.state, true
	}
	failed := slices.Contains(c.failed, id)
	c.mu.Unlock()
	if failed {
		return Failed, true
	}
	if c.cfg.Collection.Has(id) {
		return Committed, true
	}
	return 0, false
}

// ProcessRemote runs persist and analyze concurrently for a prepared
// sticker and blocks until both finish or ctx is done. The remote work is
// detached from ctx and keeps running after the caller stops waiting.
// The returned error is the persist failure, if any.
func (c *Coordinator) ProcessRemote(ctx context.Context, id string, original, stickerImage []byte) error {
	if len(stickerImage) == 0 {
		return errors.NewInvalidRequest("sticker image is required")
	}

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.state != AwaitingRemote {
		c.mu.Unlock()
		return errors.NewInvariantViolation(fmt.Sprintf("no prepared sticker %s", id))
	}
	if e.started {
		c.mu.Unlock()
		return errors.NewInvariantViolation(fmt.Sprintf("remote work already started for %s", id))
	}
	e.started = true
	isSpecial := e.st.IsSpecial
	c.mu.Unlock()

	work := context.WithoutCancel(ctx)
	done := make(chan error, 1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		done <- c.run(work, id, isSpecial, original, stickerImage)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, id string, isSpecial bool, original, stickerImage []byte) error {
	log := c.log.WithField("sticker_id", id)

	var (
		wg         sync.WaitGroup
		persistErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		persistErr = c.persist(ctx, id, original, stickerImage)
	}()
	go func() {
		defer wg.Done()
		c.analyze(ctx, id, isSpecial, stickerImage)
	}()
	wg.Wait()

	if persistErr != nil {
		log.WithError(persistErr).Warn("sticker creation failed")
		c.fail(id, persistErr)
		return persistErr
	}

	final, ok := c.finish(id)
	if !ok {
		return nil
	}
	if err := c.cfg.Store.UpdateSticker(ctx, final); err != nil {
		// The sticker exists with its image references; only the late
		// enrichment write is lost.
		log.WithError(err).Warn("enrichment write failed")
		c.cfg.Metrics.StickerFailed("update")
	}
	return nil
}

func (c *Coordinator) persist(ctx context.Context, id string, original, stickerImage []byte) error {
	img, err := decode(stickerImage)
	if err != nil {
		c.cfg.Metrics.StickerFailed("decode")
		return err
	}
	aspect := float64(img.Bounds().Dx()) / float64(img.Bounds().Dy())
	if c.cfg.Images != nil {
		c.cfg.Images.Put(id, img)
	}

	full, err := media.EncodePNG(img)
	if err != nil {
		c.cfg.Metrics.StickerFailed("encode")
		return errors.NewInternal(err)
	}
	thumb, err := thumbnail(img, c.cfg.ThumbnailSize)
	if err != nil {
		c.cfg.Metrics.StickerFailed("thumbnail")
		return errors.NewInternal(err)
	}

	keys := Keys(c.cfg.UserID, id)
	urls, err := c.uploadAll(ctx, keys, full, thumb, normalizeOriginal(original))
	if err != nil {
		c.cfg.Metrics.StickerFailed("upload")
		return err
	}

	merged, ok := c.merge(id, func(s *sticker.Sticker) {
		s.ApplyURLs(urls)
		s.AspectRatio = aspect
	})
	if !ok {
		return errors.NewInvariantViolation(fmt.Sprintf("sticker %s vanished during persist", id))
	}
	// A body committed before the image was decoded started out square.
	if c.cfg.Collection.Has(id) {
		c.cfg.World.SetShape(id, physics.ShapeFor(merged.AspectRatio, c.cfg.MaxDimension))
	}

	if err := c.cfg.Store.CreateSticker(ctx, merged); err != nil {
		c.cfg.Metrics.StickerFailed("create")
		if errors.IsRemote(err) {
			return err
		}
		return errors.NewRemoteFailure("create sticker", err)
	}
	return nil
}

// uploadAll uploads the sticker, its thumbnail and (optionally) the
// original photo concurrently.
func (c *Coordinator) uploadAll(ctx context.Context, keys UploadKeys, full, thumb, original []byte) (sticker.URLs, error) {
	type result struct {
		slot int
		url  string
		err  error
	}
	jobs := []struct {
		data []byte
		key  string
	}{
		{full, keys.Image},
		{thumb, keys.Thumbnail},
	}
	if len(original) > 0 {
		jobs = append(jobs, struct {
			data []byte
			key  string
		}{original, keys.Original})
	}

	results := make(chan result, len(jobs))
	for i, j := range jobs {
		go func() {
			url, err := c.cfg.Blobs.Upload(ctx, j.data, j.key)
			results <- result{slot: i, url: url, err: err}
		}()
	}

	urls := make([]string, len(jobs))
	var firstErr error
	for range jobs {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		urls[r.slot] = r.url
	}
	if firstErr != nil {
		if errors.IsRemote(firstErr) {
			return sticker.URLs{}, firstErr
		}
		return sticker.URLs{}, errors.NewRemoteFailure("upload", firstErr)
	}

	out := sticker.URLs{ImageURL: urls[0], ThumbnailURL: urls[1]}
	if len(urls) > 2 {
		out.OriginalURL = urls[2]
	}
	return out, nil
}

func (c *Coordinator) analyze(ctx context.Context, id string, isSpecial bool, stickerImage []byte) {
	enr, err := c.cfg.Analyzer.Analyze(ctx, stickerImage, isSpecial, c.cfg.Profile)
	if err != nil {
		c.log.WithField("sticker_id", id).WithError(err).Info("analysis failed, using fallback")
		c.cfg.Metrics.AnalysisFallback()
		enr = sticker.Fallback()
	}
	c.merge(id, func(s *sticker.Sticker) {
		s.ApplyEnrichment(enr)
	})
}

// merge applies fn to the pending sticker and mirrors the result into the
// collection when the sticker has been committed.
func (c *Coordinator) merge(id string, fn func(*sticker.Sticker)) (sticker.Sticker, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.state == Failed {
		c.mu.Unlock()
		return sticker.Sticker{}, false
	}
	fn(&e.st)
	snap := e.st.Clone()
	if e.committed {
		c.cfg.Collection.Update(id, func(s *sticker.Sticker) { *s = snap.Clone() })
	}
	c.mu.Unlock()

	c.publish(events.Event{Kind: events.StickerUpdated, StickerID: id, Sticker: &snap})
	return snap, true
}

// finish returns the merged sticker once both remote operations are done.
// Committed entries are retired; the collection holds them from now on.
func (c *Coordinator) finish(id string) (sticker.Sticker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.state == Failed {
		return sticker.Sticker{}, false
	}
	final := e.st.Clone()
	e.remoteDone = true
	if e.committed {
		delete(c.entries, id)
	}
	return final, true
}

// fail discards the pending sticker and rolls it out of the jar if it had
// already been committed.
func (c *Coordinator) fail(id string, cause error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	committed := e.committed
	delete(c.entries, id)
	c.failed = append(c.failed, id)
	if len(c.failed) > maxFailed {
		c.failed = slices.Delete(c.failed, 0, len(c.failed)-maxFailed)
	}
	c.mu.Unlock()

	if committed {
		c.cfg.Collection.Remove(id)
		c.cfg.World.RemoveBody(id)
	}
	if c.cfg.Images != nil {
		c.cfg.Images.Forget(id)
	}
	c.publish(events.Event{Kind: events.StickerFailed, StickerID: id, Err: cause})
}

// Commit adds a prepared sticker to the jar and inserts its body at the
// drop point. It reports false (a no-op) when the sticker is already in
// the jar, was never prepared, or has failed.
func (c *Coordinator) Commit(ctx context.Context, id string) bool {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.state == Failed || e.committed {
		c.mu.Unlock()
		if !ok && !c.cfg.Collection.Has(id) {
			c.log.WithField("sticker_id", id).Debug(errors.NewInvariantViolation("commit without a prepared sticker").Error())
		}
		return false
	}
	if !c.cfg.Collection.Add(e.st.Clone()) {
		c.mu.Unlock()
		return false
	}
	e.committed = true
	snap := e.st.Clone()
	if e.remoteDone {
		delete(c.entries, id)
	}
	c.mu.Unlock()

	shape := physics.ShapeFor(snap.AspectRatio, c.cfg.MaxDimension)
	c.cfg.World.InsertBody(id, shape, c.dropPoint(), EntryVelocity)

	c.cfg.Metrics.StickerCommitted()
	c.publish(events.Event{Kind: events.StickerCommitted, StickerID: id, Sticker: &snap})
	if c.cfg.AfterCommit != nil {
		c.cfg.AfterCommit(id)
	}
	return true
}

func (c *Coordinator) dropPoint() geom.Vec {
	if b, ok := c.cfg.World.Boundary(); ok {
		return b.Drop
	}
	return geom.Vec{}
}

// Restore puts stickers loaded from the document store back into the
// collection without creating bodies. It returns the stickers that were
// added.
func (c *Coordinator) Restore(stickers []sticker.Sticker) []sticker.Sticker {
	added := make([]sticker.Sticker, 0, len(stickers))
	for _, s := range stickers {
		if c.cfg.Collection.Add(s.Clone()) {
			added = append(added, s.Clone())
		}
	}
	return added
}

// Wait blocks until all in-flight remote work has finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) publish(e events.Event) {
	if c.cfg.Events != nil {
		c.cfg.Events.Publish(e)
	}
}

// RollSpecial reports whether a new sticker should be special, given the
// configured probability.
func RollSpecial(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return rand.Float64() < probability
}
