package orchestrator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/monet/internal/canvas"
	"github.com/mark3labs/monet/internal/provider"
)

// Phase is a session's position in the Plan → Draw → Statement lifecycle.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseDrawing
	PhaseStatement
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseDrawing:
		return "drawing"
	case PhaseStatement:
		return "statement"
	case PhaseTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Origin says which phase produced a note.
type Origin string

const (
	OriginPlan Origin = "plan"
	OriginDraw Origin = "draw"
)

// Note is one committed note. Notes are append-only and never edited.
type Note struct {
	Origin    Origin
	Iteration int // 0 for the plan
	Text      string
}

// Label is the heading the note is sent under.
func (n Note) Label() string {
	if n.Origin == OriginPlan {
		return "== Plan =="
	}
	return fmt.Sprintf("== Iteration %d notes ==", n.Iteration)
}

// Stop reasons recorded when leaving the drawing loop.
const (
	ReasonDone          = "done"
	ReasonMaxIterations = "max iterations reached"
	ReasonEmptyTurns    = "too many turns without drawing"
	ReasonEmptyResponse = "empty response"
	ReasonStopped       = "stopped"
)

// ErrTerminated is returned when a terminated session is asked to change.
var ErrTerminated = errors.New("session is terminated")

// Session is the state of one drawing run. It is owned by a single engine
// and must not be shared between goroutines while a turn is running.
type Session struct {
	id            string
	prompt        string
	phase         Phase
	iteration     int
	maxIterations int
	doc           *canvas.Document
	notes         []Note
	cacheMarkers  []int
	emptyStreak   int
	usage         provider.Usage
	statement     string
	stopReason    string
	failure       error
}

// NewSession returns a session in the planning phase with a fresh id.
func NewSession(prompt string, doc *canvas.Document, maxIterations int) *Session {
	if doc == nil {
		doc = canvas.New(0, 0, "")
	}
	return &Session{
		id:            uuid.NewString(),
		prompt:        prompt,
		phase:         PhasePlanning,
		maxIterations: maxIterations,
		doc:           doc,
	}
}

// ResumeForStatement rebuilds a finished or interrupted session so that only
// the statement turn remains.
func ResumeForStatement(id, prompt string, doc *canvas.Document, notes []Note) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	iteration := 0
	for _, n := range notes {
		if n.Iteration > iteration {
			iteration = n.Iteration
		}
	}
	return &Session{
		id:            id,
		prompt:        prompt,
		phase:         PhaseStatement,
		iteration:     iteration,
		maxIterations: iteration,
		doc:           doc,
		notes:         append([]Note(nil), notes...),
	}
}

func (s *Session) ID() string                 { return s.id }
func (s *Session) Prompt() string             { return s.prompt }
func (s *Session) Phase() Phase               { return s.phase }
func (s *Session) Iteration() int             { return s.iteration }
func (s *Session) MaxIterations() int         { return s.maxIterations }
func (s *Session) Document() *canvas.Document { return s.doc }
func (s *Session) Usage() provider.Usage      { return s.usage }
func (s *Session) Statement() string          { return s.statement }
func (s *Session) StopReason() string         { return s.stopReason }

// Failure is the error that terminated the session, if any.
func (s *Session) Failure() error { return s.failure }

// Notes returns a copy of the committed notes in order.
func (s *Session) Notes() []Note {
	return append([]Note(nil), s.notes...)
}

func (s *Session) setPhase(p Phase) error {
	if s.phase == PhaseTerminated {
		return ErrTerminated
	}
	s.phase = p
	return nil
}

func (s *Session) appendNote(n Note) error {
	if s.phase == PhaseTerminated {
		return ErrTerminated
	}
	s.notes = append(s.notes, n)
	return nil
}

func (s *Session) terminate(err error) {
	if s.phase == PhaseTerminated {
		return
	}
	s.phase = PhaseTerminated
	s.failure = err
}
