package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/stickerjar/internal/analysis"
	"github.com/hpungsan/stickerjar/internal/blob"
	"github.com/hpungsan/stickerjar/internal/config"
	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/jar"
	"github.com/hpungsan/stickerjar/internal/logging"
	"github.com/hpungsan/stickerjar/internal/metrics"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

type testEnv struct {
	handler http.Handler
	jar     *jar.Jar
	store   *db.Store
	blobs   *blob.FileStore
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	blobs, err := blob.NewFileStore(db.BlobsDir(tmpDir))
	if err != nil {
		t.Fatalf("blob.NewFileStore: %v", err)
	}

	cfg := config.DefaultConfig()
	store := db.NewStore(database, cfg.UserID)
	m := metrics.New()
	j, err := jar.New(jar.Deps{
		Config:   cfg,
		Store:    store,
		Blobs:    blobs,
		Analyzer: analysis.Offline{},
		Reporter: analysis.LocalReporter{},
		Metrics:  m,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("jar.New: %v", err)
	}
	j.Resize(300, 400)
	t.Cleanup(j.Close)

	h := NewHandler(Deps{Jar: j, Store: store, Blobs: blobs, Metrics: m, Logger: logging.Discard()}, "test")
	return &testEnv{handler: h, jar: j, store: store, blobs: blobs}
}

func addSticker(t *testing.T, env *testEnv) sticker.Sticker {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(3, 3, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	s, err := env.jar.CreateSticker(context.Background(), jar.CreateInput{Image: buf.Bytes()})
	if err != nil {
		t.Fatalf("CreateSticker: %v", err)
	}
	return s
}

func do(env *testEnv, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

// --- Routing ---

func TestRootRedirects(t *testing.T) {
	env := setupTest(t)
	w := do(env, "GET", "/", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/jar" {
		t.Errorf("GET / = %d %q, want 302 /jar", w.Code, w.Header().Get("Location"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := setupTest(t)
	w := do(env, "GET", "/jar", nil)
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'self'") {
		t.Errorf("CSP = %q", got)
	}
}

// --- HandleJar ---

func TestHandleJar_HTML(t *testing.T) {
	env := setupTest(t)
	addSticker(t, env)

	w := do(env, "GET", "/jar", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "1 / 21") {
		t.Error("expected size/capacity in page")
	}
	if !strings.Contains(body, "???") {
		t.Error("expected fallback sticker name in page")
	}
	if !strings.Contains(body, `src="/blobs/stickers/local/`) {
		t.Error("expected thumbnail served through /blobs/")
	}
}

func TestHandleJar_HTMXRendersContentOnly(t *testing.T) {
	env := setupTest(t)
	w := do(env, "GET", "/jar", map[string]string{"HX-Request": "true"})
	if strings.Contains(w.Body.String(), "<html") {
		t.Error("HTMX response should not include the layout")
	}
	if !strings.Contains(w.Body.String(), "The jar is empty.") {
		t.Error("expected empty-jar message")
	}
}

func TestHandleJar_JSON(t *testing.T) {
	env := setupTest(t)
	addSticker(t, env)

	w := do(env, "GET", "/jar", map[string]string{"Accept": "application/json"})
	var out struct {
		Status struct {
			Size int `json:"size"`
		} `json:"status"`
		Stickers []sticker.Sticker `json:"stickers"`
		Bodies   []any             `json:"bodies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status.Size != 1 || len(out.Stickers) != 1 || len(out.Bodies) != 1 {
		t.Errorf("out = %+v", out)
	}
}

func TestHandleSnapshot(t *testing.T) {
	env := setupTest(t)
	addSticker(t, env)

	w := do(env, "GET", "/jar/snapshot.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 400 {
		t.Errorf("snapshot size = %v, want 300x400", b)
	}
}

// --- Archive and shelf ---

func TestHandleArchive_RedirectsToDetail(t *testing.T) {
	env := setupTest(t)
	addSticker(t, env)

	w := do(env, "POST", "/jar/archive", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/jars/") {
		t.Fatalf("Location = %q", loc)
	}

	w = do(env, "GET", loc, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("detail status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	// goldmark renders the local reporter's bold lead-ins.
	if !strings.Contains(body, "<strong>This week") || !strings.Contains(body, `class="report"`) {
		t.Error("expected rendered report")
	}
	if !strings.Contains(body, "1 stickers") {
		t.Error("expected sticker count")
	}
	if len(env.jar.Stickers()) != 0 {
		t.Error("jar should be empty after archive")
	}
}

func TestHandleArchive_EmptyJar(t *testing.T) {
	env := setupTest(t)
	w := do(env, "POST", "/jar/archive", map[string]string{"Accept": "application/json"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var out map[string]map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["error"]["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %v", out["error"]["code"])
	}
}

func TestHandleArchive_HTMX(t *testing.T) {
	env := setupTest(t)
	addSticker(t, env)
	w := do(env, "POST", "/jar/archive", map[string]string{"HX-Request": "true"})
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("HX-Redirect"), "/jars/") {
		t.Errorf("status = %d, HX-Redirect = %q", w.Code, w.Header().Get("HX-Redirect"))
	}
}

func TestHandleJars(t *testing.T) {
	env := setupTest(t)

	w := do(env, "GET", "/jars", nil)
	if !strings.Contains(w.Body.String(), "No archived jars yet.") {
		t.Error("expected empty shelf message")
	}

	addSticker(t, env)
	if _, err := env.jar.Archive(context.Background()); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	w = do(env, "GET", "/jars?limit=5", map[string]string{"Accept": "application/json"})
	var out struct {
		Items      []sticker.JarSummary `json:"items"`
		Pagination struct {
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Items) != 1 || out.Pagination.Total != 1 || out.Pagination.Limit != 5 {
		t.Errorf("out = %+v", out)
	}

	w = do(env, "GET", "/jars", nil)
	if !strings.Contains(w.Body.String(), `href="/jars/`+out.Items[0].ID+`"`) {
		t.Error("expected link to the archived jar")
	}
}

func TestHandleJarDetail_NotFound(t *testing.T) {
	env := setupTest(t)
	w := do(env, "GET", "/jars/01NOPE", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "jar not found") {
		t.Error("expected error page message")
	}
}

// --- Blobs and metrics ---

func TestHandleBlob(t *testing.T) {
	env := setupTest(t)
	s := addSticker(t, env)
	key, ok := env.blobs.KeyForURL(s.ImageURL)
	if !ok {
		t.Fatalf("KeyForURL(%q) failed", s.ImageURL)
	}

	w := do(env, "GET", "/blobs/"+key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}

	w = do(env, "GET", "/blobs/stickers/local/missing.png", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing blob status = %d, want 404", w.Code)
	}
	if strings.Contains(w.Body.String(), env.blobs.Root()) {
		t.Error("error page leaked the blob root")
	}

	w = do(env, "GET", "/blobs/notes.txt", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-image blob status = %d, want 400", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTest(t)
	addSticker(t, env)

	w := do(env, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stickerjar_") {
		t.Error("expected stickerjar metrics in exposition")
	}
}

// --- Helpers ---

func TestBlobLink(t *testing.T) {
	env := setupTest(t)
	url := blob.FileURL(env.blobs.Root() + "/stickers/u 1/a.png")

	if got := blobLink(env.blobs, url); got != "/blobs/stickers/u%201/a.png" {
		t.Errorf("blobLink = %q", got)
	}
	if got := blobLink(env.blobs, "https://cdn.example/a.png"); got != "https://cdn.example/a.png" {
		t.Errorf("blobLink(https) = %q", got)
	}
	if got := blobLink(env.blobs, "file:///elsewhere/a.png"); got != "" {
		t.Errorf("blobLink(outside root) = %q, want empty", got)
	}
	if got := blobLink(nil, url); got != "" {
		t.Errorf("blobLink(nil store) = %q, want empty", got)
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(0); got != "1970-01-01 00:00" {
		t.Errorf("formatTime(0) = %q", got)
	}
}

func TestRenderMarkdown_DropsRawHTML(t *testing.T) {
	got := string(renderMarkdown("# Week\n\n<script>alert(1)</script>"))
	if !strings.Contains(got, "<h1>Week</h1>") {
		t.Errorf("heading missing: %s", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML should be dropped: %s", got)
	}
}
