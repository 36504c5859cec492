// Package observability reports engine milestones as structured events.
// The collaboration engine never logs directly: snapshot creation, history
// appends, evictions, detected write conflicts and reclaim passes are all
// emitted as Event values through an injected Observer, so embedders decide
// what becomes a log line, a metric, or nothing at all.
//
// Level values align with OpenTelemetry SeverityNumbers for
// zero-translation compatibility with OTel collectors.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8), maps to slog.LevelDebug
	LevelInfo    Level = 9  // OTel INFO (9-12), maps to slog.LevelInfo
	LevelWarning Level = 13 // OTel WARN (13-16), maps to slog.LevelWarn
	LevelError   Level = 17 // OTel ERROR (17-20), maps to slog.LevelError
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps this level to the corresponding slog.Level for log emission.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType identifies the kind of engine milestone, dot-scoped by
// subsystem: "execute.start", "snapshot.evict", "memory.reclaim".
type EventType string

// Event is one engine milestone. Routine lifecycle steps (snapshot
// creation, history appends, per-owner eviction) carry LevelVerbose;
// detected conflicts and swallowed bookkeeping failures carry
// LevelWarning or above. Fields map to OTel LogRecord fields:
// Type→EventName, Level→SeverityNumber, Timestamp→Timestamp,
// Source→InstrumentationScope, Data→Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// NewEvent builds an Event stamped with the current time. Source names the
// emitting subsystem ("snapshot", "history", "governor", "collab"); Data
// carries the milestone's attributes, typically including the owner id.
func NewEvent(eventType EventType, level Level, source string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      data,
	}
}

// Observer receives engine events. Implementations must be safe for
// concurrent use and must not block: OnEvent is called inline on the
// engine's execute path.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
