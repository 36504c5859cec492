package observability

import (
	"context"
	"log/slog"
)

// SlogObserver renders events as structured log records: the event type
// becomes the message, the level maps through SlogLevel, and the source
// plus every Data key become attributes. A snapshot eviction, for example,
// logs as `snapshot.evict source=snapshot owner=agent-1 deleted=2`.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver emitting to logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	attrs := make([]slog.Attr, 0, len(event.Data)+1)
	attrs = append(attrs, slog.String("source", event.Source))
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}

	o.logger.LogAttrs(ctx, event.Level.SlogLevel(), string(event.Type), attrs...)
}
