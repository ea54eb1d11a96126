package starlark

import (
	"context"
	"log/slog"
	"time"
)

// EventKind identifies a lifecycle event.
type EventKind string

// Lifecycle event kinds.
const (
	EventConstruct       EventKind = "construct"
	EventDestruct        EventKind = "destruct"
	EventDestructError   EventKind = "destruct_error"
	EventAccessViolation EventKind = "access_violation"
	EventScopeEnter      EventKind = "scope_enter"
	EventScopeExit       EventKind = "scope_exit"
)

// Event is one observable step of an instance or scope lifecycle.
type Event struct {
	Kind     EventKind
	Class    string
	Instance string
	Scope    string
	Depth    int
	Err      error
	At       time.Time
}

// Observer receives lifecycle events. Observers are called synchronously on
// the runtime's thread.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

// Observe forwards e to every observer in order.
func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

// LogObserver writes events to a structured logger. Scope transitions are
// logged at debug level, failures at warn.
type LogObserver struct {
	Logger *slog.Logger
}

// Observe logs e.
func (l LogObserver) Observe(e Event) {
	if l.Logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("scope", e.Scope),
		slog.Int("depth", e.Depth),
	}
	if e.Class != "" {
		attrs = append(attrs, slog.String("class", e.Class))
	}
	if e.Instance != "" {
		attrs = append(attrs, slog.String("instance", e.Instance))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}

	level := slog.LevelDebug
	switch e.Kind {
	case EventDestructError, EventAccessViolation:
		level = slog.LevelWarn
	}
	l.Logger.LogAttrs(context.Background(), level, string(e.Kind), attrs...)
}
