package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/markup"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/session"
)

// JournalInfo is the session metadata recorded when a session starts.
type JournalInfo struct {
	Provider  string
	Model     string
	OutputDir string
	Width     int
	Height    int
}

// Journal records engine events in the session event store. Journal
// failures are logged and never interrupt the session.
type Journal struct {
	ctx   context.Context
	store *session.Store
	info  JournalInfo
}

// NewJournal returns an observer writing to store.
func NewJournal(ctx context.Context, store *session.Store, info JournalInfo) *Journal {
	return &Journal{ctx: ctx, store: store, info: info}
}

// Observe implements Observer.
func (j *Journal) Observe(ev Event) {
	// Events must still land after the run context is cancelled.
	ctx := context.WithoutCancel(j.ctx)

	var err error
	switch ev.Kind {
	case EventSessionStart:
		err = j.store.SessionStart(ctx, ev.Session, session.StartParams{
			Prompt:    ev.Prompt,
			Provider:  j.info.Provider,
			Model:     j.info.Model,
			OutputDir: j.info.OutputDir,
			Width:     j.info.Width,
			Height:    j.info.Height,
		})
		if err == nil {
			err = j.store.PhaseChange(ctx, ev.Session, ev.Phase.String(), "")
		}

	case EventPhase:
		err = j.store.PhaseChange(ctx, ev.Session, ev.Phase.String(), ev.Reason)

	case EventTurnStart:
		if ev.Phase == PhaseDrawing {
			err = j.store.IterationStart(ctx, ev.Session, ev.Iteration)
		}

	case EventTurnEnd:
		err = j.turnEnd(ctx, ev)

	case EventStatement:
		err = j.store.StatementSave(ctx, ev.Session, ev.Statement, journalUsage(ev.Usage))
		if err == nil {
			err = j.store.SessionComplete(ctx, ev.Session)
		}

	case EventFailed:
		err = j.store.SessionFail(ctx, ev.Session, ev.Err)
	}

	if err != nil {
		logger.Warn("Failed to journal event for session %s: %v", ev.Session, err)
	}
}

func (j *Journal) turnEnd(ctx context.Context, ev Event) error {
	if ev.Layer != nil {
		if err := j.store.LayerAdd(ctx, ev.Session, session.LayerAddParams{
			ID:          ev.Layer.ID(),
			Iteration:   ev.Iteration,
			Elements:    markup.CountElements(ev.Layer.Markup),
			Definitions: ev.Definitions,
		}); err != nil {
			return err
		}
	}
	if ev.Note != "" {
		origin := session.OriginDraw
		if ev.Phase == PhasePlanning {
			origin = session.OriginPlan
		}
		if _, err := j.store.NoteAdd(ctx, ev.Session, session.NoteAddParams{
			Content:   ev.Note,
			Origin:    origin,
			Iteration: ev.Iteration,
		}); err != nil {
			return err
		}
	}
	return j.store.IterationComplete(ctx, ev.Session, ev.Iteration, journalUsage(ev.Usage))
}

func journalUsage(u provider.Usage) session.Usage {
	return session.Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens,
		ThinkingTokens:      u.ThinkingTokens,
	}
}

// Console prints progress lines in headless mode.
type Console struct {
	w io.Writer
}

// NewConsole returns an observer printing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Observe implements Observer.
func (c *Console) Observe(ev Event) {
	switch ev.Kind {
	case EventTurnStart:
		switch ev.Phase {
		case PhasePlanning:
			fmt.Fprintln(c.w, "Planning...")
		case PhaseDrawing:
			fmt.Fprintf(c.w, "Running iteration #%d of %d...\n", ev.Iteration, ev.MaxIterations)
		case PhaseStatement:
			fmt.Fprintln(c.w, "Writing artist statement...")
		}
	case EventTurnEnd:
		if ev.Phase == PhaseDrawing {
			status := "no new layer"
			if ev.Layer != nil {
				status = ev.Layer.ID()
			}
			fmt.Fprintf(c.w, "✓ Iteration #%d complete (%s, %d in / %d out tokens)\n",
				ev.Iteration, status, ev.Usage.InputTokens, ev.Usage.OutputTokens)
		}
	case EventPhase:
		if ev.Phase == PhaseStatement && ev.Reason != "" {
			fmt.Fprintf(c.w, "Drawing finished: %s\n", ev.Reason)
		}
	case EventStatement:
		fmt.Fprintf(c.w, "\n%s\n\n", strings.TrimSpace(ev.Statement))
		fmt.Fprintf(c.w, "Total tokens: %d in / %d out / %d cached\n",
			ev.Total.InputTokens, ev.Total.OutputTokens, ev.Total.CacheReadTokens)
	case EventFailed:
		fmt.Fprintf(c.w, "✗ %v\n", ev.Err)
	}
}
