// internal/api/stream.go
package api

import (
	"encoding/json"
	"net/http"

	"precursor/internal/bridge"

	"go.uber.org/zap"
)

// NDJSONContentType is the media type of the message stream
const NDJSONContentType = "application/x-ndjson"

// Stream subscribes the connection as a display surface and writes each
// bridge message as one JSON line until the client goes away. The first line
// is a FileList taken after subscribing, so every commit is either in it or
// follows it on the stream.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", NDJSONContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Surface-ID", sub.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := h.logger.With(zap.String("surface", sub.ID))
	logger.Info("surface connected")

	enc := json.NewEncoder(w)
	if err := enc.Encode(bridge.NewFileList(h.store)); err != nil {
		logger.Warn("writing file list", zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("surface disconnected", zap.Uint64("dropped", sub.Dropped()))
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := enc.Encode(msg); err != nil {
				logger.Warn("writing message", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
