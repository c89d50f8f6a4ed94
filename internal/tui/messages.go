package tui

import "github.com/mark3labs/monet/internal/provider"

// PhaseMsg reports a phase change.
type PhaseMsg struct {
	Phase  string
	Reason string
}

// TurnStartMsg is sent when a provider call begins.
type TurnStartMsg struct {
	Phase         string
	Iteration     int
	MaxIterations int
}

// TurnEndMsg is sent when a turn is committed. Note is empty when nothing
// was committed.
type TurnEndMsg struct {
	Iteration int
	Note      string
	NewLayer  bool
	Total     provider.Usage
}

// StatementMsg carries the artist statement.
type StatementMsg struct {
	Text  string
	Total provider.Usage
}

// FailedMsg reports the error that ended the session.
type FailedMsg struct {
	Err error
}

// DoneMsg is sent once the session has terminated and artifacts are written.
type DoneMsg struct {
	OutputDir string
}
