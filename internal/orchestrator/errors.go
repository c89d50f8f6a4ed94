package orchestrator

import "fmt"

// SessionError wraps the fatal error that ended a session with the phase and
// iteration it happened in.
type SessionError struct {
	Phase     Phase
	Iteration int
	Err       error
}

func (e *SessionError) Error() string {
	if e.Phase == PhaseDrawing {
		return fmt.Sprintf("%s iteration %d: %v", e.Phase, e.Iteration, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
