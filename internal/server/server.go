// Package server exposes the bookmark service over HTTP.
//
// All JSON endpoints share one envelope: {"success":true,"data":...} on
// success, {"success":false,"error":{"code","message"}} on failure, with the
// status code derived from the error kind. Asset and export endpoints stream
// raw bytes.
package server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"time"

	"github.com/bauset/marcador/internal/assetstore"
	"github.com/bauset/marcador/internal/exporter"
	"github.com/bauset/marcador/internal/history"
	"github.com/bauset/marcador/internal/models"
	"github.com/bauset/marcador/internal/storage"
)

// maxImportBytes caps import payloads. Zip imports carry image assets.
const maxImportBytes = 256 << 20

// Server wires the service into HTTP routes.
type Server struct {
	svc     *storage.Service
	assets  *assetstore.Store
	history *history.Repo // nil when history is disabled
}

// New creates a Server. history may be nil.
func New(svc *storage.Service, assets *assetstore.Store, hist *history.Repo) *Server {
	return &Server{svc: svc, assets: assets, history: hist}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	mux := &http.ServeMux{}

	mux.Handle("POST /api/bookmarks", Wrap(s.saveBookmark))
	mux.Handle("GET /api/bookmarks", Wrap(s.listBookmarks))
	mux.Handle("GET /api/bookmarks/duplicates", Wrap(s.listDuplicates))
	mux.Handle("POST /api/bookmarks/merge", Wrap(s.mergeBookmarks))
	mux.Handle("POST /api/bookmarks/bulk/delete", Wrap(s.bulkDelete))
	mux.Handle("POST /api/bookmarks/bulk/category", Wrap(s.bulkCategory))
	mux.Handle("GET /api/bookmarks/{id}", Wrap(s.getBookmark))
	mux.Handle("PATCH /api/bookmarks/{id}", Wrap(s.updateBookmark))
	mux.Handle("DELETE /api/bookmarks/{id}", Wrap(s.deleteBookmark))
	mux.Handle("POST /api/bookmarks/{id}/recapture", Wrap(s.recaptureBookmark))

	mux.Handle("GET /api/categories", Wrap(s.listCategories))
	mux.Handle("POST /api/categories", Wrap(s.createCategory))
	mux.Handle("PATCH /api/categories/{id}", Wrap(s.updateCategory))
	mux.Handle("DELETE /api/categories/{id}", Wrap(s.deleteCategory))

	mux.Handle("GET /api/tags", Wrap(s.listTags))
	mux.Handle("POST /api/tags/rescan", Wrap(s.rescanTags))

	mux.Handle("GET /api/settings", Wrap(s.getSettings))
	mux.Handle("PUT /api/settings", Wrap(s.setSetting))

	mux.Handle("GET /api/stats", Wrap(s.getStats))
	mux.Handle("POST /api/maintenance/cleanup", Wrap(s.cleanupAssets))
	mux.Handle("POST /api/maintenance/recompress", Wrap(s.recompressAssets))
	mux.Handle("GET /api/history", Wrap(s.listHistory))

	mux.HandleFunc("GET /api/export", s.exportJSON)
	mux.HandleFunc("GET /api/export/zip", s.exportZip)
	mux.HandleFunc("POST /api/import", s.importJSON)
	mux.HandleFunc("POST /api/import/zip", s.importZip)

	mux.HandleFunc("GET /assets/{bucket}/{name}", s.serveAsset)

	return logRequests(mux)
}

// logRequests logs one line per request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.DebugContext(r.Context(), "http", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start).Round(time.Microsecond))
	})
}

// serveAsset streams one stored image. Asset names are immutable, so clients
// may cache aggressively.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	name := r.PathValue("name")
	if !slices.Contains(assetstore.Buckets(), bucket) {
		writeError(w, models.Errorf(models.KindNotFound, "unknown bucket %q", bucket))
		return
	}
	data, err := s.assets.Get(bucket, name)
	if err != nil {
		writeError(w, models.WrapError(models.KindIOFailure, "read asset", err))
		return
	}
	if data == nil {
		writeError(w, models.Errorf(models.KindNotFound, "asset %s/%s not found", bucket, name))
		return
	}
	switch path.Ext(name) {
	case ".jpg", ".jpeg":
		w.Header().Set("Content-Type", "image/jpeg")
	case ".png":
		w.Header().Set("Content-Type", "image/png")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

func (s *Server) exportJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", exportDisposition(snap.ExportedAt, "json"))
	if err := exporter.WriteJSON(w, snap); err != nil {
		slog.ErrorContext(r.Context(), "server: export failed", "err", err)
	}
}

func (s *Server) exportZip(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Snapshot()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", exportDisposition(snap.ExportedAt, "zip"))
	if err := exporter.WriteZip(w, snap, s.assets); err != nil {
		slog.ErrorContext(r.Context(), "server: export failed", "err", err)
	}
}

func exportDisposition(exportedAt int64, ext string) string {
	day := time.UnixMilli(exportedAt).UTC().Format("2006-01-02")
	return fmt.Sprintf("attachment; filename=%q", "marcador-export-"+day+"."+ext)
}

func (s *Server) importJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	snap, err := exporter.ReadJSON(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Import(r.Context(), snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, res)
}

func (s *Server) importZip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, models.WrapError(models.KindIOFailure, "read import body", err))
		return
	}
	snap, err := exporter.ReadZip(bytes.NewReader(body), int64(len(body)), s.assets)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Import(r.Context(), snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, res)
}
