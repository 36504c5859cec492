package observability

import "context"

// NoOpObserver discards every event. The zero value is ready to use; it is
// what the engine falls back to when no observer is injected.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}
