package ops

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hpungsan/stickerjar/internal/analysis"
	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/jar"
	"github.com/hpungsan/stickerjar/internal/logging"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

func boolPtr(b bool) *bool { return &b }

func newTestStore(t *testing.T, userID string) *db.Store {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return db.NewStore(database, userID)
}

func seedStickers(t *testing.T, store *db.Store, n int) []sticker.Sticker {
	t.Helper()
	out := make([]sticker.Sticker, 0, n)
	for i := 0; i < n; i++ {
		s := sticker.Sticker{
			ID:           fmt.Sprintf("01S%03d", i),
			CreatedAt:    int64(100 + i),
			ImageURL:     "file:///s.png",
			ThumbnailURL: "file:///s_thumb.png",
			IsFood:       i%2 == 0,
			IsSpecial:    i == 0,
			Name:         sticker.Ptr(fmt.Sprintf("item %d", i)),
			FunFact:      sticker.Ptr("fact"),
			Nutrition:    sticker.Ptr("none"),
		}
		if err := store.CreateSticker(context.Background(), s); err != nil {
			t.Fatalf("CreateSticker failed: %v", err)
		}
		s.UserID = store.UserID()
		out = append(out, s)
	}
	return out
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset   int
		wantL, wantOffs int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -3, DefaultListLimit, 0},
		{500, 10, MaxListLimit, 10},
		{7, 2, 7, 2},
	}
	for _, tt := range tests {
		l, o := clampPage(tt.limit, tt.offset)
		if l != tt.wantL || o != tt.wantOffs {
			t.Errorf("clampPage(%d, %d) = (%d, %d), want (%d, %d)", tt.limit, tt.offset, l, o, tt.wantL, tt.wantOffs)
		}
	}
}

func TestValidateID(t *testing.T) {
	if _, err := ValidateID("sticker", "  "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ValidateID(blank) err = %v, want INVALID_REQUEST", err)
	}
	id, err := ValidateID("sticker", " 01A ")
	if err != nil || id != "01A" {
		t.Errorf("ValidateID = (%q, %v), want (01A, nil)", id, err)
	}
}

func TestListStickers_Paging(t *testing.T) {
	store := newTestStore(t, "u1")
	seedStickers(t, store, 5)

	out, err := ListStickers(context.Background(), store, ListInput{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListStickers failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(out.Items))
	}
	if out.Items[0].ID != "01S001" {
		t.Errorf("Items[0].ID = %q, want 01S001", out.Items[0].ID)
	}
	if !out.Pagination.HasMore || out.Pagination.Total != 5 {
		t.Errorf("Pagination = %+v, want HasMore with Total 5", out.Pagination)
	}
	if out.Sort != "created_at_asc" {
		t.Errorf("Sort = %q", out.Sort)
	}
}

func TestListStickers_EmptyIsNotNil(t *testing.T) {
	store := newTestStore(t, "u1")
	out, err := ListStickers(context.Background(), store, ListInput{})
	if err != nil {
		t.Fatalf("ListStickers failed: %v", err)
	}
	if out.Items == nil {
		t.Error("Items = nil, want empty slice")
	}
	if out.Pagination.Limit != DefaultListLimit {
		t.Errorf("Limit = %d, want %d", out.Pagination.Limit, DefaultListLimit)
	}
}

func TestFetchSticker(t *testing.T) {
	store := newTestStore(t, "u1")
	seedStickers(t, store, 1)
	ctx := context.Background()

	s, err := FetchSticker(ctx, store, FetchStickerInput{ID: "01S000"})
	if err != nil {
		t.Fatalf("FetchSticker failed: %v", err)
	}
	if s.FunFact == nil || *s.FunFact != "fact" {
		t.Errorf("FunFact = %v, want fact", s.FunFact)
	}

	s, err = FetchSticker(ctx, store, FetchStickerInput{ID: "01S000", IncludeText: boolPtr(false)})
	if err != nil {
		t.Fatalf("FetchSticker failed: %v", err)
	}
	if s.FunFact != nil || s.Nutrition != nil {
		t.Error("text fields should be stripped")
	}
	if s.Name == nil {
		t.Error("Name should survive include_text=false")
	}
}

func TestFetchSticker_OtherUser(t *testing.T) {
	store := newTestStore(t, "u1")
	seedStickers(t, store, 1)
	other := db.NewStore(store.DB(), "u2")

	_, err := FetchSticker(context.Background(), other, FetchStickerInput{ID: "01S000"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestFetchJarAndListJars(t *testing.T) {
	store := newTestStore(t, "u1")
	ctx := context.Background()
	stickers := seedStickers(t, store, 3)

	report := "## Recap"
	if err := store.ArchiveJar(ctx, sticker.ArchiveRecord{
		ID: "01J1", CreatedAt: 500, ScreenshotURL: "file:///j.png", Report: &report, Stickers: stickers,
	}); err != nil {
		t.Fatalf("ArchiveJar failed: %v", err)
	}

	list, err := ListJars(ctx, store, ListInput{})
	if err != nil {
		t.Fatalf("ListJars failed: %v", err)
	}
	if list.Pagination.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("ListJars = %+v, want one jar", list)
	}
	if !list.Items[0].HasReport || list.Items[0].StickerCount != 3 {
		t.Errorf("summary = %+v", list.Items[0])
	}

	out, err := FetchJar(ctx, store, FetchJarInput{ID: "01J1"})
	if err != nil {
		t.Fatalf("FetchJar failed: %v", err)
	}
	if out.StickerCount != 3 || out.FoodCount != 2 || out.SpecialCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", out.StickerCount, out.FoodCount, out.SpecialCount)
	}
	if out.Report == nil || *out.Report != report {
		t.Errorf("Report = %v", out.Report)
	}

	out, err = FetchJar(ctx, store, FetchJarInput{ID: "01J1", IncludeStickers: boolPtr(false), IncludeReport: boolPtr(false)})
	if err != nil {
		t.Fatalf("FetchJar failed: %v", err)
	}
	if out.Stickers != nil || out.Report != nil {
		t.Error("stickers and report should be stripped")
	}
	if out.StickerCount != 3 {
		t.Errorf("StickerCount = %d, want 3 even when stripped", out.StickerCount)
	}
}

func TestFetchJar_NotFound(t *testing.T) {
	store := newTestStore(t, "u1")
	_, err := FetchJar(context.Background(), store, FetchJarInput{ID: "missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestStatus(t *testing.T) {
	store := newTestStore(t, "u1")
	j, err := jar.New(jar.Deps{
		Store:    store,
		Analyzer: analysis.Offline{},
		Reporter: analysis.LocalReporter{},
		Logger:   logging.Discard(),
		Now:      func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("jar.New failed: %v", err)
	}
	j.Resize(390, 600)

	st := Status(j)
	if st.Size != 0 || st.Bodies != 0 {
		t.Errorf("Size/Bodies = %d/%d, want 0/0", st.Size, st.Bodies)
	}
	if st.Capacity != 21 {
		t.Errorf("Capacity = %d, want 21", st.Capacity)
	}
	if st.ArchiveDay != "Sunday" || st.Timezone != "UTC" {
		t.Errorf("ArchiveDay/Timezone = %s/%s", st.ArchiveDay, st.Timezone)
	}
	if st.Due != "" || st.LastArchiveAt != nil {
		t.Errorf("Due = %q, LastArchiveAt = %v, want none", st.Due, st.LastArchiveAt)
	}
}
