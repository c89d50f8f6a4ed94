package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/monet/internal/nats"
)

// StartParams describes a new session.
type StartParams struct {
	Prompt    string
	Provider  string
	Model     string
	OutputDir string
	Width     int
	Height    int
}

type startMeta struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	OutputDir string `json:"output_dir"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// SessionStart records the beginning of a session.
func (s *Store) SessionStart(ctx context.Context, session string, params StartParams) error {
	if params.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	meta, _ := json.Marshal(startMeta{
		Provider:  params.Provider,
		Model:     params.Model,
		OutputDir: params.OutputDir,
		Width:     params.Width,
		Height:    params.Height,
	})
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeControl,
		Action:  "start",
		Meta:    meta,
		Data:    params.Prompt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish session start event: %w", err)
	}
	return nil
}

// PhaseChange records a phase transition.
func (s *Store) PhaseChange(ctx context.Context, session, phase, reason string) error {
	meta, _ := json.Marshal(map[string]any{"reason": reason})
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypePhase,
		Action:  "change",
		Meta:    meta,
		Data:    phase,
	})
	return err
}

// StatementSave records the artist statement and the usage of its turn.
func (s *Store) StatementSave(ctx context.Context, session, text string, usage Usage) error {
	meta, _ := json.Marshal(map[string]any{"usage": usage})
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeStatement,
		Action:  "save",
		Meta:    meta,
		Data:    text,
	})
	return err
}

// SessionComplete marks a session as complete.
// Creates an event of type "control" with action "complete".
func (s *Store) SessionComplete(ctx context.Context, session string) error {
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeControl,
		Action:  "complete",
		Data:    "Session marked as complete",
	})
	if err != nil {
		return fmt.Errorf("failed to publish session complete event: %w", err)
	}
	return nil
}

// SessionFail records the error that terminated a session.
func (s *Store) SessionFail(ctx context.Context, session string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeControl,
		Action:  "fail",
		Data:    msg,
	})
	if err != nil {
		return fmt.Errorf("failed to publish session fail event: %w", err)
	}
	return nil
}
