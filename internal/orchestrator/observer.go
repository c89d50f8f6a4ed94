package orchestrator

import (
	"github.com/mark3labs/monet/internal/canvas"
	"github.com/mark3labs/monet/internal/provider"
)

// EventKind identifies an engine event.
type EventKind int

const (
	EventSessionStart EventKind = iota
	EventPhase                  // Phase changed; Reason says why drawing ended
	EventTurnStart
	EventTurnEnd // Note is empty when nothing was committed
	EventStatement
	EventFailed
)

// Event is emitted by the engine as a session progresses.
type Event struct {
	Kind          EventKind
	Session       string
	Prompt        string
	Phase         Phase
	Iteration     int
	MaxIterations int
	Note          string
	Layer         *canvas.Layer
	Definitions   int
	Usage         provider.Usage // This turn
	Total         provider.Usage // Whole session so far
	Statement     string
	Reason        string
	Err           error
}

// Observer is notified of engine events. Observers run synchronously on the
// engine goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

func (e *Engine) emit(ev Event) {
	for _, o := range e.observers {
		o.Observe(ev)
	}
}
