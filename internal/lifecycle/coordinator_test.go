package lifecycle

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/stickerjar/internal/analysis"
	"github.com/hpungsan/stickerjar/internal/boundary"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/events"
	"github.com/hpungsan/stickerjar/internal/logging"
	"github.com/hpungsan/stickerjar/internal/physics"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

type fakeBlobs struct {
	gate chan struct{}
	err  error

	mu   sync.Mutex
	keys []string
}

func (f *fakeBlobs) Upload(ctx context.Context, data []byte, key string) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return "mem://" + key, nil
}

type fakeAnalyzer struct {
	gate chan struct{}
	enr  sticker.Enrichment
	err  error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img []byte, isSpecial bool, profile *analysis.Profile) (sticker.Enrichment, error) {
	if f.gate != nil {
		<-f.gate
	}
	return f.enr, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	created []sticker.Sticker
	updated []sticker.Sticker
}

func (f *fakeStore) CreateSticker(ctx context.Context, s sticker.Sticker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, s.Clone())
	return nil
}

func (f *fakeStore) UpdateSticker(ctx context.Context, s sticker.Sticker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, s.Clone())
	return nil
}

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created), len(f.updated)
}

type harness struct {
	coord    *Coordinator
	world    *physics.World
	blobs    *fakeBlobs
	analyzer *fakeAnalyzer
	store    *fakeStore
	bus      *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	world := physics.NewWorld()
	c, ok := boundary.New(390, 600)
	require.True(t, ok)
	world.SetBoundary(c)

	h := &harness{
		world:    world,
		blobs:    &fakeBlobs{},
		analyzer: &fakeAnalyzer{enr: sticker.Enrichment{IsFood: true, Name: "Kiwi", FunFact: "fuzzy", Nutrition: "vitamin C"}},
		store:    &fakeStore{},
		bus:      events.NewBus(),
	}
	h.coord = New(Config{
		UserID:     "u1",
		Blobs:      h.blobs,
		Analyzer:   h.analyzer,
		Store:      h.store,
		World:      world,
		Collection: sticker.NewCollection(),
		Events:     h.bus,
		Logger:     logging.Discard(),
	})
	return h
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepare_PlaceholderVisible(t *testing.T) {
	h := newHarness(t)
	ch, unsub := h.bus.Subscribe(4)
	defer unsub()

	id, err := h.coord.Prepare(true)
	require.NoError(t, err)
	require.Len(t, id, 26)

	ev := <-ch
	require.Equal(t, events.StickerPending, ev.Kind)
	require.Equal(t, id, ev.StickerID)
	require.True(t, ev.Sticker.IsSpecial)
	require.Empty(t, ev.Sticker.ImageURL)
	require.Nil(t, ev.Sticker.Name)

	pending, ok := h.coord.Pending(id)
	require.True(t, ok)
	require.Equal(t, "u1", pending.UserID)

	state, ok := h.coord.State(id)
	require.True(t, ok)
	require.Equal(t, AwaitingRemote, state)
}

func TestCommit_Idempotent(t *testing.T) {
	h := newHarness(t)
	id, err := h.coord.Prepare(false)
	require.NoError(t, err)

	require.True(t, h.coord.Commit(context.Background(), id))
	require.False(t, h.coord.Commit(context.Background(), id))

	require.Equal(t, 1, h.coord.Collection().Len())
	require.Equal(t, 1, h.world.Count())

	b, ok := h.world.Body(id)
	require.True(t, ok)
	require.Equal(t, EntryVelocity, b.Velocity)
	cont, _ := h.world.Boundary()
	require.Equal(t, cont.Drop, b.Position)
}

func TestCommit_UnpreparedIsNoop(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.coord.Commit(context.Background(), "nope"))
	require.Equal(t, 0, h.world.Count())
}

func TestCommit_AfterCommitHook(t *testing.T) {
	h := newHarness(t)
	var hooked []string
	h.coord.cfg.AfterCommit = func(id string) { hooked = append(hooked, id) }

	id, err := h.coord.Prepare(false)
	require.NoError(t, err)
	h.coord.Commit(context.Background(), id)
	h.coord.Commit(context.Background(), id)
	require.Equal(t, []string{id}, hooked)
}

// normalized strips the id so stickers from separate runs can be compared.
func normalized(s sticker.Sticker) sticker.Sticker {
	s = s.Clone()
	s.ImageURL = strings.ReplaceAll(s.ImageURL, s.ID, "ID")
	s.ThumbnailURL = strings.ReplaceAll(s.ThumbnailURL, s.ID, "ID")
	s.OriginalURL = strings.ReplaceAll(s.OriginalURL, s.ID, "ID")
	s.ID = ""
	s.CreatedAt = 0
	return s
}

func TestMerge_OrderIndependent(t *testing.T) {
	img := testPNG(t, 40, 20)
	orig := testPNG(t, 8, 8)

	run := func(persistFirst bool) sticker.Sticker {
		h := newHarness(t)
		uploadGate := make(chan struct{})
		analyzeGate := make(chan struct{})
		h.blobs.gate = uploadGate
		h.analyzer.gate = analyzeGate

		id, err := h.coord.Prepare(false)
		require.NoError(t, err)
		require.True(t, h.coord.Commit(context.Background(), id))

		errc := make(chan error, 1)
		go func() { errc <- h.coord.ProcessRemote(context.Background(), id, orig, img) }()

		pending := func() sticker.Sticker {
			s, _ := h.coord.Collection().Get(id)
			return s
		}
		if persistFirst {
			close(uploadGate)
			require.Eventually(t, func() bool { c, _ := h.store.counts(); return c == 1 }, time.Second, time.Millisecond)
			s := pending()
			require.True(t, s.Persisted())
			require.False(t, s.Enriched())
			close(analyzeGate)
		} else {
			close(analyzeGate)
			require.Eventually(t, func() bool { s := pending(); return s.Enriched() }, time.Second, time.Millisecond)
			s := pending()
			require.False(t, s.Persisted())
			close(uploadGate)
		}
		require.NoError(t, <-errc)

		final := pending()
		_, updates := h.store.counts()
		require.Equal(t, 1, updates)
		require.Equal(t, final, h.store.updated[0])
		return normalized(final)
	}

	a := run(true)
	b := run(false)
	require.Equal(t, a, b)
	require.Equal(t, "mem://stickers/u1/ID.png", a.ImageURL)
	require.Equal(t, "mem://stickers/u1/ID_thumb.png", a.ThumbnailURL)
	require.Equal(t, "mem://originals/u1/ID.jpg", a.OriginalURL)
	require.Equal(t, "Kiwi", *a.Name)
	require.InDelta(t, 2.0, a.AspectRatio, 1e-9)
}

func TestE2E_AnalysisFailsUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.analyzer.err = errors.NewRemoteFailure("analyze", stderrors.New("timeout"))

	id, err := h.coord.Prepare(false)
	require.NoError(t, err)
	require.NoError(t, h.coord.ProcessRemote(context.Background(), id, nil, testPNG(t, 30, 30)))
	require.True(t, h.coord.Commit(context.Background(), id))

	require.Equal(t, 1, h.coord.Collection().Len())
	s, ok := h.coord.Collection().Get(id)
	require.True(t, ok)
	require.NotEmpty(t, s.ImageURL)
	require.NotEmpty(t, s.ThumbnailURL)
	require.Empty(t, s.OriginalURL)
	require.Equal(t, sticker.FallbackName, *s.Name)
	require.Equal(t, sticker.FallbackFunFact, *s.FunFact)
	require.Equal(t, sticker.FallbackNutrition, *s.Nutrition)

	created, updated := h.store.counts()
	require.Equal(t, 1, created)
	require.Equal(t, 1, updated)
	require.Equal(t, sticker.FallbackName, *h.store.updated[0].Name)

	state, ok := h.coord.State(id)
	require.True(t, ok)
	require.Equal(t, Committed, state)
	_, pending := h.coord.Pending(id)
	require.False(t, pending)
}

func TestPersistFailure_RollsBack(t *testing.T) {
	h := newHarness(t)
	h.blobs.err = stderrors.New("disk full")
	ch, unsub := h.bus.Subscribe(16)
	defer unsub()

	id, err := h.coord.Prepare(false)
	require.NoError(t, err)
	require.True(t, h.coord.Commit(context.Background(), id))

	err = h.coord.ProcessRemote(context.Background(), id, nil, testPNG(t, 10, 10))
	require.True(t, errors.IsRemote(err))

	require.Equal(t, 0, h.coord.Collection().Len())
	require.Equal(t, 0, h.world.Count())
	created, updated := h.store.counts()
	require.Zero(t, created)
	require.Zero(t, updated)

	state, ok := h.coord.State(id)
	require.True(t, ok)
	require.Equal(t, Failed, state)
	require.False(t, h.coord.Commit(context.Background(), id))

	var sawFailed bool
	for len(ch) > 0 {
		if ev := <-ch; ev.Kind == events.StickerFailed && ev.StickerID == id {
			sawFailed = true
		}
	}
	require.True(t, sawFailed)
}

func TestProcessRemote_Invariants(t *testing.T) {
	h := newHarness(t)

	err := h.coord.ProcessRemote(context.Background(), "nope", nil, testPNG(t, 4, 4))
	require.True(t, errors.Is(err, errors.ErrInvariantViolation))

	id, err := h.coord.Prepare(false)
	require.NoError(t, err)
	err = h.coord.ProcessRemote(context.Background(), id, nil, nil)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	require.NoError(t, h.coord.ProcessRemote(context.Background(), id, nil, testPNG(t, 4, 4)))
	err = h.coord.ProcessRemote(context.Background(), id, nil, testPNG(t, 4, 4))
	require.True(t, errors.Is(err, errors.ErrInvariantViolation))
}

func TestProcessRemote_UndecodableImageFails(t *testing.T) {
	h := newHarness(t)
	id, err := h.coord.Prepare(false)
	require.NoError(t, err)

	err = h.coord.ProcessRemote(context.Background(), id, nil, []byte("not an image"))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	state, _ := h.coord.State(id)
	require.Equal(t, Failed, state)
}

func TestProcessRemote_FailuresAreNotRetained(t *testing.T) {
	h := newHarness(t)

	ids := make([]string, 5)
	for i := range ids {
		id, err := h.coord.Prepare(false)
		require.NoError(t, err)
		require.Error(t, h.coord.ProcessRemote(context.Background(), id, nil, []byte("junk")))
		ids[i] = id
	}

	h.coord.mu.Lock()
	retained := len(h.coord.entries)
	h.coord.mu.Unlock()
	require.Zero(t, retained)

	for _, id := range ids {
		state, ok := h.coord.State(id)
		require.True(t, ok)
		require.Equal(t, Failed, state)
		require.False(t, h.coord.Commit(context.Background(), id))
	}
}

func TestFailedRecordIsBounded(t *testing.T) {
	h := newHarness(t)

	var first string
	for i := 0; i <= maxFailed; i++ {
		id, err := h.coord.Prepare(false)
		require.NoError(t, err)
		if i == 0 {
			first = id
		}
		require.Error(t, h.coord.ProcessRemote(context.Background(), id, nil, []byte("junk")))
	}

	h.coord.mu.Lock()
	kept := len(h.coord.failed)
	h.coord.mu.Unlock()
	require.Equal(t, maxFailed, kept)

	_, ok := h.coord.State(first)
	require.False(t, ok)
}

func TestCommitBeforePersist_ResizesBody(t *testing.T) {
	h := newHarness(t)

	id, err := h.coord.Prepare(false)
	require.NoError(t, err)
	require.True(t, h.coord.Commit(context.Background(), id))

	b, ok := h.world.Body(id)
	require.True(t, ok)
	require.Equal(t, physics.Shape{W: 80, H: 80}, b.Shape)

	require.NoError(t, h.coord.ProcessRemote(context.Background(), id, nil, testPNG(t, 40, 10)))

	b, ok = h.world.Body(id)
	require.True(t, ok)
	require.Equal(t, physics.Shape{W: 80, H: 20}, b.Shape)
}

func TestProcessRemote_DetachedFromCaller(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.blobs.gate = gate

	id, err := h.coord.Prepare(false)
	require.NoError(t, err)

	img := testPNG(t, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.coord.ProcessRemote(ctx, id, nil, img) }()
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(gate)
	h.coord.Wait()

	created, updated := h.store.counts()
	require.Equal(t, 1, created)
	require.Equal(t, 1, updated)
	s, ok := h.coord.Pending(id)
	require.True(t, ok)
	require.True(t, s.Persisted())
}

func TestRestore(t *testing.T) {
	h := newHarness(t)
	in := []sticker.Sticker{{ID: "a"}, {ID: "b"}, {ID: "a"}}
	added := h.coord.Restore(in)
	require.Len(t, added, 2)
	require.Equal(t, 2, h.coord.Collection().Len())
	require.Equal(t, 0, h.world.Count())
}

func TestRollSpecial(t *testing.T) {
	require.False(t, RollSpecial(0))
	require.False(t, RollSpecial(-1))
	require.True(t, RollSpecial(1))
}

func TestKeys(t *testing.T) {
	k := Keys("u/1", "01ABC")
	require.Equal(t, "stickers/u-1/01ABC.png", k.Image)
	require.Equal(t, "stickers/u-1/01ABC_thumb.png", k.Thumbnail)
	require.Equal(t, "originals/u-1/01ABC.jpg", k.Original)
}
