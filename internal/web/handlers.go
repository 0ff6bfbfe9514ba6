package web

import (
	stderrors "errors"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/hpungsan/stickerjar/internal/blob"
	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/jar"
	"github.com/hpungsan/stickerjar/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	jar      *jar.Jar
	store    *db.Store
	blobs    *blob.FileStore
	renderer *Renderer
}

// HandleJar handles GET /jar: the live jar and its archive status.
func (h *Handlers) HandleJar(w http.ResponseWriter, r *http.Request) {
	status := ops.Status(h.jar)
	stickers := h.jar.Stickers()

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"status":   status,
			"stickers": stickers,
			"bodies":   h.jar.Bodies(),
		})
		return
	}

	h.renderer.renderPage(w, r, "jar", JarPageData{
		PageData: PageData{
			Title:   "Jar",
			Version: h.renderer.version,
			Nav:     "jar",
		},
		Status:   status,
		Stickers: stickers,
		Stamp:    time.Now().UnixNano(),
	})
}

// HandleSnapshot handles GET /jar/snapshot.png: the rendered body layout.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	png, err := h.jar.Snapshotter().Snapshot(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// HandleArchive handles POST /jar/archive: archive the jar now.
func (h *Handlers) HandleArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := h.jar.Archive(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/jars/"+rec.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, rec.ToSummary())
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/jars/"+rec.ID, http.StatusSeeOther)
}

// HandleJars handles GET /jars: the shelf of archived jars.
func (h *Handlers) HandleJars(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListJars(r.Context(), h.store, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "jars", JarsPageData{
		PageData: PageData{
			Title:   "Shelf",
			Version: h.renderer.version,
			Nav:     "jars",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleJarDetail handles GET /jars/{id}: one archived jar with its report.
func (h *Handlers) HandleJarDetail(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FetchJar(r.Context(), h.store, ops.FetchJarInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	var rendered template.HTML
	if result.Report != nil {
		rendered = renderMarkdown(*result.Report)
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   "Jar " + formatTime(result.CreatedAt),
			Version: h.renderer.version,
			Nav:     "jars",
		},
		Jar:          result,
		RenderedHTML: rendered,
	})
}

// HandleBlob handles GET /blobs/{key...}: stored sticker and jar images.
func (h *Handlers) HandleBlob(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		http.NotFound(w, r)
		return
	}
	key := r.PathValue("key")
	f, err := h.blobs.Open(key)
	if err != nil {
		// Report the key, not the on-disk path.
		if errors.Is(err, errors.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			err = errors.NewNotFound("blob", key)
		}
		h.renderer.renderError(w, r, err)
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = io.Copy(w, f)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
