// internal/bridge/hub.go
package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"precursor/internal/errors"
	"precursor/internal/snapshot"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultQueueSize is used when a hub is created with a non-positive size
const DefaultQueueSize = 256

// Authenticator runs the external login flow requested by a surface
type Authenticator interface {
	Login(ctx context.Context) error
}

// LogAuthenticator only records that a login was requested
type LogAuthenticator struct {
	Logger *zap.Logger
}

func (a LogAuthenticator) Login(ctx context.Context) error {
	if a.Logger != nil {
		a.Logger.Info("login requested")
	}
	return nil
}

// Subscription is one display surface's ordered message queue
type Subscription struct {
	ID       string
	messages chan Message
	dropped  atomic.Uint64
}

// Messages is closed when the subscription is removed
func (s *Subscription) Messages() <-chan Message {
	return s.messages
}

// Dropped counts messages lost because the queue was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub fans store notifications out to every subscribed surface. It
// implements snapshot.Notifier; the store calls it under its own lock, so
// each queue receives messages in commit order.
type Hub struct {
	mu        sync.RWMutex
	surfaces  map[string]*Subscription
	queueSize int
	auth      Authenticator
	logger    *zap.Logger
}

var _ snapshot.Notifier = (*Hub)(nil)

// NewHub creates a hub with the given per-surface queue size
func NewHub(queueSize int, auth Authenticator, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		surfaces:  make(map[string]*Subscription),
		queueSize: queueSize,
		auth:      auth,
		logger:    logger,
	}
}

// Subscribe registers a new surface
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:       uuid.New().String(),
		messages: make(chan Message, h.queueSize),
	}

	h.mu.Lock()
	h.surfaces[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug("surface subscribed", zap.String("surface", sub.ID))
	return sub
}

// Unsubscribe removes a surface and closes its queue. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.surfaces[id]
	if !ok {
		return
	}
	delete(h.surfaces, id)
	close(sub.messages)
	h.logger.Debug("surface unsubscribed",
		zap.String("surface", id),
		zap.Uint64("dropped", sub.Dropped()))
}

// Subscribers is the number of connected surfaces
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.surfaces)
}

// Changed sends the full updated record to every surface
func (h *Hub) Changed(rec snapshot.Record) {
	h.broadcast(NewDocumentContent(rec))
}

// Removed tells every surface to drop path
func (h *Hub) Removed(path string) {
	h.broadcast(RemoveUnsavedContent{Path: path})
}

// broadcast never blocks: a full queue loses the message
func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.surfaces {
		select {
		case sub.messages <- msg:
		default:
			sub.dropped.Add(1)
			h.logger.Warn("surface queue full, message dropped",
				zap.String("surface", sub.ID),
				zap.String("type", msg.Type()),
				zap.String("path", msg.FilePath()))
		}
	}
}

// Dispatch handles a command sent back from a surface
func (h *Hub) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Command {
	case CommandLogin:
		if h.auth == nil {
			return errors.ValidationError("login is not configured", nil)
		}
		if err := h.auth.Login(ctx); err != nil {
			return errors.Internal("login failed", err)
		}
		return nil
	case "":
		return errors.ValidationError("command is required", nil)
	}
	return errors.ValidationError("unknown command", map[string]any{"command": cmd.Command})
}
