package session

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/monet/internal/nats"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return store
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session := "3f2a9c1e-0000-4000-8000-000000000001"

	if err := store.SessionStart(ctx, session, StartParams{
		Prompt: "a lighthouse at dusk", Provider: "anthropic", Model: "m", OutputDir: "out", Width: 800, Height: 600,
	}); err != nil {
		t.Fatalf("SessionStart failed: %v", err)
	}
	if err := store.PhaseChange(ctx, session, "planning", ""); err != nil {
		t.Fatalf("PhaseChange failed: %v", err)
	}
	if _, err := store.NoteAdd(ctx, session, NoteAddParams{Content: "plan", Origin: OriginPlan}); err != nil {
		t.Fatalf("NoteAdd failed: %v", err)
	}
	if err := store.IterationComplete(ctx, session, 0, Usage{InputTokens: 100, ThinkingTokens: 40}); err != nil {
		t.Fatalf("IterationComplete failed: %v", err)
	}
	if err := store.PhaseChange(ctx, session, "drawing", ""); err != nil {
		t.Fatalf("PhaseChange failed: %v", err)
	}
	if err := store.IterationStart(ctx, session, 1); err != nil {
		t.Fatalf("IterationStart failed: %v", err)
	}
	if err := store.LayerAdd(ctx, session, LayerAddParams{ID: "layer-1", Iteration: 1, Elements: 3, Definitions: 1}); err != nil {
		t.Fatalf("LayerAdd failed: %v", err)
	}
	if _, err := store.NoteAdd(ctx, session, NoteAddParams{Content: "sky", Origin: OriginDraw, Iteration: 1}); err != nil {
		t.Fatalf("NoteAdd failed: %v", err)
	}
	if err := store.IterationComplete(ctx, session, 1, Usage{InputTokens: 50, OutputTokens: 10, CacheReadTokens: 5}); err != nil {
		t.Fatalf("IterationComplete failed: %v", err)
	}
	if err := store.StatementSave(ctx, session, "It glows.", Usage{OutputTokens: 7}); err != nil {
		t.Fatalf("StatementSave failed: %v", err)
	}
	if err := store.SessionComplete(ctx, session); err != nil {
		t.Fatalf("SessionComplete failed: %v", err)
	}

	state, err := store.LoadState(ctx, session)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	if state.Prompt != "a lighthouse at dusk" || state.Provider != "anthropic" || state.Width != 800 {
		t.Errorf("unexpected start data: %+v", state)
	}
	if state.Phase != "drawing" {
		t.Errorf("expected phase drawing, got %q", state.Phase)
	}
	if len(state.Notes) != 2 || state.Notes[0].Origin != OriginPlan || state.Notes[1].Iteration != 1 {
		t.Errorf("unexpected notes: %+v", state.Notes)
	}
	if len(state.Iterations) != 1 || !state.Iterations[0].Complete || state.Iterations[0].Usage.InputTokens != 50 {
		t.Errorf("unexpected iterations: %+v", state.Iterations)
	}
	if len(state.Layers) != 1 || state.Layers[0].ID != "layer-1" || state.Layers[0].Elements != 3 {
		t.Errorf("unexpected layers: %+v", state.Layers)
	}
	if state.Statement != "It glows." {
		t.Errorf("unexpected statement %q", state.Statement)
	}
	want := Usage{InputTokens: 150, OutputTokens: 17, CacheReadTokens: 5, ThinkingTokens: 40}
	if state.Usage != want {
		t.Errorf("expected usage %+v, got %+v", want, state.Usage)
	}
	if !state.Complete || state.Failure != "" {
		t.Errorf("expected complete session, got complete=%v failure=%q", state.Complete, state.Failure)
	}
}

func TestSessionFail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SessionFail(ctx, "s1", errors.New("provider unavailable")); err != nil {
		t.Fatalf("SessionFail failed: %v", err)
	}
	state, err := store.LoadState(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state.Complete {
		t.Error("failed session must not be complete")
	}
	if state.Failure != "provider unavailable" {
		t.Errorf("unexpected failure %q", state.Failure)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, s := range []string{"b-session", "a-session"} {
		if _, err := store.NoteAdd(ctx, s, NoteAddParams{Content: "note for " + s, Origin: OriginDraw, Iteration: 1}); err != nil {
			t.Fatalf("NoteAdd failed: %v", err)
		}
	}

	state, err := store.LoadState(ctx, "a-session")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(state.Notes) != 1 || state.Notes[0].Content != "note for a-session" {
		t.Errorf("unexpected notes: %+v", state.Notes)
	}

	ids, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a-session" || ids[1] != "b-session" {
		t.Errorf("unexpected sessions: %v", ids)
	}
}

func TestNoteValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.NoteAdd(ctx, "s", NoteAddParams{Origin: OriginDraw}); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := store.NoteAdd(ctx, "s", NoteAddParams{Content: "x", Origin: "tip"}); err == nil {
		t.Error("expected error for invalid origin")
	}
	if _, err := store.NoteList(ctx, "s", NoteListParams{Origin: "tip"}); err == nil {
		t.Error("expected error for invalid origin filter")
	}
}

func TestNoteListFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	store.NoteAdd(ctx, "s", NoteAddParams{Content: "plan", Origin: OriginPlan})
	store.NoteAdd(ctx, "s", NoteAddParams{Content: "one", Origin: OriginDraw, Iteration: 1})
	store.NoteAdd(ctx, "s", NoteAddParams{Content: "two", Origin: OriginDraw, Iteration: 2})

	notes, err := store.NoteList(ctx, "s", NoteListParams{Origin: OriginDraw})
	if err != nil {
		t.Fatalf("NoteList failed: %v", err)
	}
	if len(notes) != 2 || notes[0].Content != "one" || notes[1].Content != "two" {
		t.Errorf("unexpected notes: %+v", notes)
	}
}

func TestMalformedEventSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.js.Publish(ctx, nats.SubjectForEvent("s", nats.EventTypeNote), []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	store.NoteAdd(ctx, "s", NoteAddParams{Content: "ok", Origin: OriginDraw, Iteration: 1})

	state, err := store.LoadState(ctx, "s")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(state.Notes) != 1 {
		t.Errorf("expected 1 note, got %d", len(state.Notes))
	}
}
