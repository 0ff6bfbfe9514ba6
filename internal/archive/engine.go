package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hpungsan/stickerjar/internal/blob"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/events"
	"github.com/hpungsan/stickerjar/internal/metrics"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// Reason says why an evaluation was requested.
type Reason string

const (
	ReasonCommit     Reason = "commit"
	ReasonForeground Reason = "foreground"
	ReasonSchedule   Reason = "schedule"
)

// Reporter writes the weekly recap for a sticker set.
type Reporter interface {
	Generate(ctx context.Context, stickers []sticker.Sticker) (string, error)
}

// Snapshotter renders the current jar view as an image.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Uploader stores the snapshot.
type Uploader interface {
	Upload(ctx context.Context, data []byte, key string) (string, error)
}

// Store commits archive records and remembers when the last one landed.
type Store interface {
	ArchiveJar(ctx context.Context, rec sticker.ArchiveRecord) error
	LastArchiveAt(ctx context.Context) (time.Time, bool, error)
}

// World is the part of the physics world cleared after an archive.
type World interface {
	RemoveBody(id string)
}

// ImageForgetter drops snapshot images of archived stickers.
type ImageForgetter interface {
	Forget(ids ...string)
}

// Config wires an Engine. Collection, World, Snapshotter, Reporter, Blobs
// and Store are required.
type Config struct {
	UserID      string
	Collection  *sticker.Collection
	World       World
	Snapshotter Snapshotter
	Reporter    Reporter
	Blobs       Uploader
	Store       Store

	Images  ImageForgetter
	Events  events.Publisher
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	Policy  Policy

	Now func() time.Time
}

// Engine evaluates archive triggers and runs at most one archive sequence
// at a time.
type Engine struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	running bool
	last    time.Time
	hasLast bool
}

// New returns an engine. Call Load to pick up the persisted trigger state.
func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy.Capacity <= 0 {
		cfg.Policy.Capacity = DefaultCapacity
	}
	if cfg.Policy.Location == nil {
		cfg.Policy.Location = time.UTC
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{cfg: cfg, log: log.WithField("component", "archive")}
}

// Load reads the last archive time from the store.
func (e *Engine) Load(ctx context.Context) error {
	last, ok, err := e.cfg.Store.LastArchiveAt(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.last, e.hasLast = last, ok
	e.mu.Unlock()
	return nil
}

// LastArchive returns the in-memory trigger state.
func (e *Engine) LastArchive() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// Policy returns the trigger rules in effect.
func (e *Engine) Policy() Policy { return e.cfg.Policy }

// Running reports whether an archive sequence is in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Due reports which trigger, if any, holds right now.
func (e *Engine) Due() Trigger {
	e.mu.Lock()
	last, hasLast := e.last, e.hasLast
	e.mu.Unlock()
	return e.cfg.Policy.Due(e.cfg.Collection.Len(), e.cfg.Now(), last, hasLast)
}

// Evaluate archives the jar when a trigger holds. It returns the new
// record, or nil when nothing was due or an archive is already running.
func (e *Engine) Evaluate(ctx context.Context, reason Reason) (*sticker.ArchiveRecord, error) {
	trigger := e.Due()
	if trigger == TriggerNone {
		return nil, nil
	}
	rec, err := e.run(ctx, trigger)
	if errors.Is(err, errors.ErrInvariantViolation) {
		e.log.WithField("reason", reason).Debug("archive already in progress")
		return nil, nil
	}
	if err != nil {
		e.log.WithFields(logrus.Fields{"reason": reason, "trigger": trigger}).WithError(err).Warn("archive failed")
	}
	return rec, err
}

// Archive runs the archive sequence regardless of triggers.
func (e *Engine) Archive(ctx context.Context) (*sticker.ArchiveRecord, error) {
	return e.run(ctx, TriggerManual)
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, trigger Trigger) (*sticker.ArchiveRecord, error) {
	if !e.begin() {
		return nil, errors.NewInvariantViolation("archive already in progress")
	}
	defer e.end()

	stickers := e.cfg.Collection.Snapshot()
	if len(stickers) == 0 {
		return nil, errors.NewInvalidRequest("jar is empty")
	}
	log := e.log.WithFields(logrus.Fields{"trigger": trigger, "stickers": len(stickers)})

	shot, err := e.cfg.Snapshotter.Snapshot(ctx)
	if err != nil {
		return nil, e.failed("snapshot", err)
	}

	var report *string
	text, err := e.cfg.Reporter.Generate(ctx, stickers)
	switch {
	case err == nil:
		report = &text
	case errors.Is(err, errors.ErrInvalidRequest):
		// Nothing identifiable to report on; archive without a recap.
		log.WithError(err).Info("archiving without report")
	default:
		return nil, e.failed("report", err)
	}

	now := e.cfg.Now()
	id, err := sticker.NewID(now)
	if err != nil {
		return nil, e.failed("id", errors.NewInternal(err))
	}

	key := fmt.Sprintf("jar_thumbnails/%s/%s.png", blob.SanitizeSegment(e.cfg.UserID), id)
	url, err := e.cfg.Blobs.Upload(ctx, shot, key)
	if err != nil {
		return nil, e.failed("upload", err)
	}

	rec := sticker.ArchiveRecord{
		ID:            id,
		UserID:        e.cfg.UserID,
		CreatedAt:     now.Unix(),
		ScreenshotURL: url,
		Report:        report,
		Stickers:      stickers,
	}
	if err := e.cfg.Store.ArchiveJar(ctx, rec); err != nil {
		return nil, e.failed("commit", err)
	}

	e.mu.Lock()
	e.last, e.hasLast = time.Unix(rec.CreatedAt, 0).UTC(), true
	e.mu.Unlock()

	ids := make([]string, len(stickers))
	var unpersisted []string
	for i, s := range stickers {
		ids[i] = s.ID
		if !s.Persisted() {
			unpersisted = append(unpersisted, s.ID)
		}
		e.cfg.World.RemoveBody(s.ID)
	}
	e.cfg.Collection.Remove(ids...)
	if e.cfg.Images != nil {
		e.cfg.Images.Forget(ids...)
	}

	e.cfg.Metrics.Archived(string(trigger))
	log.WithField("jar_id", rec.ID).Info("jar archived")
	if len(unpersisted) > 0 {
		log.WithFields(logrus.Fields{"jar_id": rec.ID, "unpersisted": unpersisted}).Warn("archived stickers without image references")
	}
	if e.cfg.Events != nil {
		e.cfg.Events.Publish(events.Event{Kind: events.JarArchived, JarID: rec.ID, Unpersisted: unpersisted})
	}
	return &rec, nil
}

func (e *Engine) failed(step string, err error) error {
	e.cfg.Metrics.ArchiveFailed(step)
	if e.cfg.Events != nil {
		e.cfg.Events.Publish(events.Event{Kind: events.ArchiveFailed, Err: err})
	}
	if errors.IsRemote(err) || errors.Is(err, errors.ErrInternal) {
		return err
	}
	return errors.NewRemoteFailure(step, err)
}

// Schedule evaluates the jar on a cron spec in the policy location. The
// returned function stops the scheduler and waits for a running check.
func (e *Engine) Schedule(ctx context.Context, spec string) (func(), error) {
	c := cron.New(cron.WithLocation(e.cfg.Policy.Zone()))
	_, err := c.AddFunc(spec, func() {
		if _, err := e.Evaluate(ctx, ReasonSchedule); err != nil {
			e.log.WithError(err).Warn("scheduled archive check failed")
		}
	})
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid archive_check_schedule %q: %v", spec, err))
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
