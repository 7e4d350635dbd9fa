package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type (
	requestKey struct{}
	syncKey    struct{}
)

// NewID returns a short random ID for log correlation.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// WithID returns a context carrying the request correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// ID extracts the request correlation ID from ctx.
func ID(ctx context.Context) (string, bool) {
	return lookup(ctx, requestKey{})
}

// WithSyncID tags ctx with the session sync cycle it belongs to.
func WithSyncID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, syncKey{}, id)
}

func SyncID(ctx context.Context) (string, bool) {
	return lookup(ctx, syncKey{})
}

func lookup(ctx context.Context, key any) (string, bool) {
	id, ok := ctx.Value(key).(string)
	return id, ok && id != ""
}

// Handler wraps a slog.Handler and adds "correlation_id" and "sync_id"
// attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := SyncID(ctx); ok {
		r.AddAttrs(slog.String("sync_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
