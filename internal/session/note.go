package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/monet/internal/nats"
)

// Note origins.
const (
	OriginPlan = "plan"
	OriginDraw = "draw"
)

// NoteAddParams represents the parameters for adding a note.
type NoteAddParams struct {
	Content   string `json:"content"`
	Origin    string `json:"origin"`    // plan, draw
	Iteration int    `json:"iteration"` // Iteration number that created this note
}

// NoteListParams represents the parameters for listing notes.
type NoteListParams struct {
	Origin string `json:"origin,omitempty"` // Optional: filter by origin
}

// NoteAdd records a committed note.
func (s *Store) NoteAdd(ctx context.Context, session string, params NoteAddParams) (*Note, error) {
	if params.Content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if !isValidOrigin(params.Origin) {
		return nil, fmt.Errorf("invalid origin: %q (must be plan or draw)", params.Origin)
	}

	id := uuid.NewString()
	now := time.Now()

	meta, _ := json.Marshal(map[string]any{
		"origin":    params.Origin,
		"iteration": params.Iteration,
	})

	event := Event{
		ID:        id,
		Timestamp: now,
		Session:   session,
		Type:      nats.EventTypeNote,
		Action:    "add",
		Data:      params.Content,
		Meta:      meta,
	}
	if _, err := s.PublishEvent(ctx, event); err != nil {
		return nil, err
	}

	return &Note{
		ID:        id,
		Content:   params.Content,
		Origin:    params.Origin,
		CreatedAt: now,
		Iteration: params.Iteration,
	}, nil
}

// NoteList returns all notes, optionally filtered by origin.
func (s *Store) NoteList(ctx context.Context, session string, params NoteListParams) ([]*Note, error) {
	state, err := s.LoadState(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	if params.Origin == "" {
		return state.Notes, nil
	}
	if !isValidOrigin(params.Origin) {
		return nil, fmt.Errorf("invalid origin filter: %q (must be plan or draw)", params.Origin)
	}

	var filtered []*Note
	for _, note := range state.Notes {
		if note.Origin == params.Origin {
			filtered = append(filtered, note)
		}
	}
	return filtered, nil
}

func isValidOrigin(origin string) bool {
	return origin == OriginPlan || origin == OriginDraw
}
