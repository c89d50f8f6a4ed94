package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/monet/internal/nats"
)

// IterationStart records the start of drawing turn number.
func (s *Store) IterationStart(ctx context.Context, session string, number int) error {
	meta, _ := json.Marshal(map[string]any{"number": number})
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeIteration,
		Action:  "start",
		Meta:    meta,
		Data:    fmt.Sprintf("Iteration #%d started", number),
	})
	return err
}

// IterationComplete records the end of a turn together with its token usage.
// The plan turn is recorded as iteration 0.
func (s *Store) IterationComplete(ctx context.Context, session string, number int, usage Usage) error {
	meta, _ := json.Marshal(map[string]any{"number": number, "usage": usage})
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeIteration,
		Action:  "complete",
		Meta:    meta,
		Data:    fmt.Sprintf("Iteration #%d completed", number),
	})
	return err
}

// LayerAddParams describes a committed layer.
type LayerAddParams struct {
	ID          string `json:"id"`
	Iteration   int    `json:"iteration"`
	Elements    int    `json:"elements"`
	Definitions int    `json:"definitions"`
}

// LayerAdd records a layer appended to the canvas.
func (s *Store) LayerAdd(ctx context.Context, session string, params LayerAddParams) error {
	if params.ID == "" {
		return fmt.Errorf("layer id is required")
	}
	meta, _ := json.Marshal(map[string]any{
		"iteration":   params.Iteration,
		"elements":    params.Elements,
		"definitions": params.Definitions,
	})
	_, err := s.PublishEvent(ctx, Event{
		Session: session,
		Type:    nats.EventTypeLayer,
		Action:  "add",
		Meta:    meta,
		Data:    params.ID,
	})
	return err
}
