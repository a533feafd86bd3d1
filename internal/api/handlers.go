// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"precursor/internal/archive"
	"precursor/internal/bridge"
	"precursor/internal/change"
	"precursor/internal/diff"
	"precursor/internal/errors"
	"precursor/internal/snapshot"

	"go.uber.org/zap"
)

// EventSource applies editor events and rescans the workspace
type EventSource interface {
	Submit(ctx context.Context, ev change.Event) (string, error)
	Scan(ctx context.Context) (change.ScanResult, error)
	RelPath(path string) (string, error)
}

// Archiver stores and returns flushed records
type Archiver interface {
	snapshot.Sink
	List() ([]archive.Entry, error)
	Restore(id string) (snapshot.Record, error)
	Delete(id string) error
}

// Handler serves the file tracking API
type Handler struct {
	store   *snapshot.Store
	hub     *bridge.Hub
	events  EventSource
	archive Archiver
	logger  *zap.Logger
}

func NewHandler(store *snapshot.Store, hub *bridge.Hub, events EventSource, arch Archiver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:   store,
		hub:     hub,
		events:  events,
		archive: arch,
		logger:  logger,
	}
}

// Register adds every route to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/files", h.Files)
	mux.HandleFunc("GET /api/files/diff", h.Diff)
	mux.HandleFunc("GET /api/stream", h.Stream)

	mux.HandleFunc("POST /api/events", h.Event)
	mux.HandleFunc("POST /api/commands", h.Command)
	mux.HandleFunc("POST /api/scan", h.Scan)
	mux.HandleFunc("POST /api/flush", h.Flush)
	mux.HandleFunc("POST /api/reset", h.Reset)

	mux.HandleFunc("GET /api/archive", h.ArchiveList)
	mux.HandleFunc("GET /api/archive/{id}", h.ArchiveGet)
	mux.HandleFunc("DELETE /api/archive/{id}", h.ArchiveDelete)
}

// DiffResponse is the body of GET /api/files/diff
type DiffResponse struct {
	Path          string      `json:"path"`
	Mode          diff.Mode   `json:"mode"`
	Label         string      `json:"label"`
	Summary       string      `json:"summary"`
	Lines         []diff.Line `json:"lines"`
	Stats         diff.Stats  `json:"stats"`
	NoDifferences bool        `json:"no_differences"`
}

// EventResponse is the body of POST /api/events
type EventResponse struct {
	Path    string           `json:"path"`
	Tracked bool             `json:"tracked"`
	Record  *snapshot.Record `json:"record,omitempty"`
}

// FlushResponse is the body of POST /api/flush
type FlushResponse struct {
	Flushed int `json:"flushed"`
}

// ResetResponse is the body of POST /api/reset
type ResetResponse struct {
	Flushed int `json:"flushed"`
	Dropped int `json:"dropped"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"files":    h.store.Len(),
		"surfaces": h.hub.Subscribers(),
	})
}

// Files returns the hydration payload
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bridge.SerializeAll(h.store))
}

func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, r, errors.ValidationError("path is required", nil))
		return
	}
	mode, err := diff.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, r, errors.ValidationError(err.Error(), nil))
		return
	}

	path, err = h.events.RelPath(path)
	if err != nil {
		h.writeError(w, r, errors.ValidationError(err.Error(), nil))
		return
	}
	rec, ok := h.store.Get(path)
	if !ok {
		h.writeError(w, r, errors.MissingRecord(path))
		return
	}

	res := rec.Diff(mode)
	writeJSON(w, http.StatusOK, DiffResponse{
		Path:          path,
		Mode:          res.Mode,
		Label:         res.Label(),
		Summary:       res.Summary(),
		Lines:         res.Lines,
		Stats:         res.Stats,
		NoDifferences: res.NoDifferences,
	})
}

func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	var ev change.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	path, err := h.events.Submit(r.Context(), ev)
	if err != nil {
		if stderrors.Is(err, change.ErrListenerStopped) {
			h.writeError(w, r, errors.Internal("event loop stopped", err))
			return
		}
		h.writeError(w, r, err)
		return
	}

	resp := EventResponse{Path: path}
	if rec, ok := h.store.Get(path); ok {
		resp.Tracked = true
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	var cmd bridge.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return
	}

	if err := h.hub.Dispatch(r.Context(), cmd); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.events.Scan(r.Context())
	if err != nil {
		h.writeError(w, r, errors.Internal("scan failed", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeError(w, r, errors.ValidationError("archive is not configured", nil))
		return
	}

	n, err := h.store.Flush(r.Context(), h.archive)
	if err != nil {
		h.logger.Warn("flush incomplete", zap.Int("flushed", n), zap.Error(err))
		h.writeError(w, r, errors.Internal("flush incomplete", err))
		return
	}
	writeJSON(w, http.StatusOK, FlushResponse{Flushed: n})
}

// Reset archives detached records and then drops every record. Nothing is
// dropped if archiving fails.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	flushed := 0
	if len(h.store.Detached()) > 0 {
		if h.archive == nil {
			h.writeError(w, r, errors.ValidationError("closed buffers hold unsaved edits and no archive is configured", nil))
			return
		}
		n, err := h.store.Flush(r.Context(), h.archive)
		if err != nil {
			h.writeError(w, r, errors.Internal("flush before reset incomplete", err))
			return
		}
		flushed = n
	}

	dropped := h.store.Len()
	h.store.Reset()
	h.logger.Info("store reset", zap.Int("flushed", flushed), zap.Int("dropped", dropped))
	writeJSON(w, http.StatusOK, ResetResponse{Flushed: flushed, Dropped: dropped})
}

func (h *Handler) ArchiveList(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSON(w, http.StatusOK, []archive.Entry{})
		return
	}

	entries, err := h.archive.List()
	if err != nil {
		h.writeError(w, r, errors.Internal("listing archive", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) ArchiveGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, r, errors.ValidationError("missing id", nil))
		return
	}
	if h.archive == nil {
		h.writeError(w, r, errors.NotFound("archive is not configured"))
		return
	}

	rec, err := h.archive.Restore(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ArchiveDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, r, errors.ValidationError("missing id", nil))
		return
	}
	if h.archive == nil {
		h.writeError(w, r, errors.NotFound("archive is not configured"))
		return
	}

	if err := h.archive.Delete(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports err with the status its type maps to
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusCode(err)

	var apiErr *errors.Error
	if !stderrors.As(err, &apiErr) {
		apiErr = errors.Internal("internal error", err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, apiErr)
}
