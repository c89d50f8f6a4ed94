package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/monet/internal/cachewindow"
	"github.com/mark3labs/monet/internal/canvas"
	ierr "github.com/mark3labs/monet/internal/errors"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/render"
	"github.com/mark3labs/monet/internal/response"
	"github.com/mark3labs/monet/internal/template"
)

// EngineConfig tunes the iteration engine. Zero values take defaults.
type EngineConfig struct {
	MaxEmptyTurns      int     // Consecutive turns without drawing before moving on
	CacheWindow        int     // Notes a cache breakpoint stays reachable for
	CacheBreakpoints   int     // Cache-stable markers per call
	PlanThinkingBudget int     // Reasoning budget for the planning turn
	MaxOutputTokens    int     // Per-turn output limit
	ExportScale        float64 // Scale of final.png
	TemplatePath       string  // Custom draw template (optional)
	ExtraInstructions  string  // Appended to the draw prompt (optional)
}

func (c *EngineConfig) setDefaults() {
	if c.MaxEmptyTurns <= 0 {
		c.MaxEmptyTurns = 3
	}
	if c.CacheWindow <= 0 {
		c.CacheWindow = cachewindow.DefaultWindow
	}
	if c.CacheBreakpoints <= 0 {
		c.CacheBreakpoints = cachewindow.DefaultBreakpoints
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 8192
	}
	if c.ExportScale <= 0 {
		c.ExportScale = 2
	}
}

// Sink receives artifacts as soon as they are committed. Any error it
// returns ends the session.
type Sink interface {
	Begin(id, prompt string, width, height int, background string) error
	Note(iteration int, text string, usage provider.Usage) error
	Snapshot(iteration int, source string, png []byte) error
	Final(source string, png []byte) error
	Statement(text string) error
}

// Engine drives a Session through its phases, one provider call per turn.
type Engine struct {
	cfg       EngineConfig
	provider  provider.Provider
	renderer  render.Renderer
	sink      Sink
	observers []Observer
	prompts   map[template.Kind]string
	rendered  map[float64]renderedCanvas
}

type renderedCanvas struct {
	source string
	png    []byte
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSink sets the artifact sink.
func WithSink(s Sink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithObserver adds an observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// NewEngine creates an engine for one session.
func NewEngine(cfg EngineConfig, p provider.Provider, r render.Renderer, opts ...EngineOption) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:      cfg,
		provider: p,
		renderer: r,
		prompts:  make(map[template.Kind]string),
		rendered: make(map[float64]renderedCanvas),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives s until it terminates. Closing stop asks for a graceful stop:
// the drawing loop ends at the next turn boundary and the statement is
// still written. Cancelling ctx aborts the session.
//
// Run returns nil when the session reached its statement, otherwise the
// *SessionError that terminated it.
func (e *Engine) Run(ctx context.Context, s *Session, stop <-chan struct{}) error {
	if s.phase == PhasePlanning && s.iteration == 0 && len(s.notes) == 0 {
		if err := e.Begin(s); err != nil {
			return err
		}
	}

	for {
		if s.phase == PhaseTerminated {
			if s.failure != nil {
				return s.failure
			}
			return nil
		}

		if (s.phase == PhasePlanning || s.phase == PhaseDrawing) && stopRequested(stop) {
			logger.Info("Stop requested, moving to statement")
			if err := e.transition(s, PhaseStatement, ReasonStopped); err != nil {
				return err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return e.fail(s, s.phase, s.iteration+1, err)
		}

		var err error
		switch s.phase {
		case PhasePlanning:
			err = e.Plan(ctx, s)
		case PhaseDrawing:
			err = e.Draw(ctx, s)
		case PhaseStatement:
			err = e.Statement(ctx, s)
		}
		if err != nil {
			return err
		}
	}
}

// Begin announces a fresh session and writes the artifact header.
func (e *Engine) Begin(s *Session) error {
	if s.phase != PhasePlanning {
		return fmt.Errorf("begin: session is %s", s.phase)
	}
	e.emit(Event{Kind: EventSessionStart, Session: s.id, Prompt: s.prompt, Phase: s.phase, MaxIterations: s.maxIterations})
	if e.sink != nil {
		doc := s.doc
		if err := e.sink.Begin(s.id, s.prompt, doc.Width(), doc.Height(), doc.Background()); err != nil {
			return e.fail(s, PhasePlanning, 0, err)
		}
	}
	return nil
}

func stopRequested(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Plan runs the planning turn: one reasoning-enabled call whose notes open
// the session. Drawing content returned while planning is discarded.
func (e *Engine) Plan(ctx context.Context, s *Session) error {
	if s.phase != PhasePlanning {
		return fmt.Errorf("plan: session is %s", s.phase)
	}
	return e.turn(s, 0, func() error { return e.plan(ctx, s) })
}

func (e *Engine) plan(ctx context.Context, s *Session) error {
	_, png, err := e.render(ctx, s.doc, 1)
	if err != nil {
		return err
	}
	system, err := e.systemPrompt(template.KindPlan, s)
	if err != nil {
		return err
	}

	logger.Info("=== Planning ===")
	e.emit(Event{Kind: EventTurnStart, Session: s.id, Phase: PhasePlanning, MaxIterations: s.maxIterations})

	resp, err := e.provider.Send(ctx, provider.Request{
		SystemPrompt:      system,
		Prompt:            s.prompt,
		Notes:             e.noteBlocks(s),
		Image:             png,
		Context:           planContext(s),
		ExtendedReasoning: true,
		ThinkingBudget:    e.cfg.PlanThinkingBudget,
		MaxOutputTokens:   e.cfg.MaxOutputTokens,
	})
	if err != nil {
		return err
	}
	s.usage.Add(resp.Usage)

	turn, err := response.Parse(resp.RawText)
	if err != nil {
		return err
	}
	if !turn.Empty() {
		logger.Warn("Discarding drawing content returned while planning")
	}

	if err := s.appendNote(Note{Origin: OriginPlan, Text: turn.Notes}); err != nil {
		return err
	}
	if e.sink != nil {
		if err := e.sink.Note(0, turn.Notes, resp.Usage); err != nil {
			return err
		}
	}
	e.emit(Event{Kind: EventTurnEnd, Session: s.id, Phase: PhasePlanning, Note: turn.Notes, Usage: resp.Usage, Total: s.usage})

	return e.transition(s, PhaseDrawing, "")
}

// Draw runs one drawing turn. A well-formed fragment becomes a new layer,
// its definitions are namespaced and pooled, and the turn's notes are
// appended. The session moves to the statement phase when the model is
// done, the iteration bound is hit, too many turns in a row drew nothing,
// or the model returned nothing at all.
func (e *Engine) Draw(ctx context.Context, s *Session) error {
	if s.phase != PhaseDrawing {
		return fmt.Errorf("draw: session is %s", s.phase)
	}
	return e.turn(s, s.iteration+1, func() error { return e.draw(ctx, s) })
}

func (e *Engine) draw(ctx context.Context, s *Session) error {
	iteration := s.iteration + 1

	_, png, err := e.render(ctx, s.doc, 1)
	if err != nil {
		return err
	}
	system, err := e.systemPrompt(template.KindDraw, s)
	if err != nil {
		return err
	}

	logger.Info("=== Iteration #%d of %d ===", iteration, s.maxIterations)
	e.emit(Event{Kind: EventTurnStart, Session: s.id, Phase: PhaseDrawing, Iteration: iteration, MaxIterations: s.maxIterations})

	var message string
	if iteration == s.maxIterations {
		message = "This is your final iteration. Finish the piece and set status to done."
	}
	resp, err := e.provider.Send(ctx, provider.Request{
		SystemPrompt: system,
		Prompt:       s.prompt,
		Notes:        e.noteBlocks(s),
		Image:        png,
		Context: template.TurnContext(template.TurnConfig{
			Iteration:     iteration,
			MaxIterations: s.maxIterations,
			LayerSummary:  s.doc.Summary(),
			HasNotes:      s.iteration > 0,
			Message:       message,
		}),
		DrawingAllowed:  true,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
	})
	if err != nil {
		return err
	}
	s.usage.Add(resp.Usage)

	if strings.TrimSpace(resp.RawText) == "" {
		logger.Warn("Iteration #%d returned an empty response", iteration)
		e.emit(Event{Kind: EventTurnEnd, Session: s.id, Phase: PhaseDrawing, Iteration: iteration, Usage: resp.Usage, Total: s.usage})
		return e.transition(s, PhaseStatement, ReasonEmptyResponse)
	}

	turn, err := response.Parse(resp.RawText)
	if err != nil {
		return err
	}

	if turn.Done && turn.Empty() {
		logger.Info("Model finished the piece at iteration #%d", iteration)
		e.emit(Event{Kind: EventTurnEnd, Session: s.id, Phase: PhaseDrawing, Iteration: iteration, Usage: resp.Usage, Total: s.usage})
		return e.transition(s, PhaseStatement, ReasonDone)
	}

	var (
		layer *canvas.Layer
		defs  []canvas.Definition
	)
	if turn.Empty() {
		s.emptyStreak++
		logger.Warn("Iteration #%d drew nothing (%d in a row)", iteration, s.emptyStreak)
	} else {
		var fragment string
		defs, fragment = namespace(turn, iteration, s.doc.HasDefinition)
		layer, err = s.doc.Apply(defs, fragment, iteration)
		if err != nil {
			return err
		}
		s.emptyStreak = 0
	}

	if err := s.appendNote(Note{Origin: OriginDraw, Iteration: iteration, Text: turn.Notes}); err != nil {
		return err
	}
	s.iteration = iteration

	source, snapshot, err := e.render(ctx, s.doc, 1)
	if err != nil {
		return err
	}
	if e.sink != nil {
		if err := e.sink.Note(iteration, turn.Notes, resp.Usage); err != nil {
			return err
		}
		if err := e.sink.Snapshot(iteration, source, snapshot); err != nil {
			return err
		}
	}
	e.emit(Event{
		Kind:        EventTurnEnd,
		Session:     s.id,
		Phase:       PhaseDrawing,
		Iteration:   iteration,
		Note:        turn.Notes,
		Layer:       layer,
		Definitions: len(defs),
		Usage:       resp.Usage,
		Total:       s.usage,
	})

	switch {
	case turn.Done:
		return e.transition(s, PhaseStatement, ReasonDone)
	case s.iteration >= s.maxIterations:
		return e.transition(s, PhaseStatement, ReasonMaxIterations)
	case s.emptyStreak >= e.cfg.MaxEmptyTurns:
		return e.transition(s, PhaseStatement, ReasonEmptyTurns)
	}
	return nil
}

// Statement exports the final canvas and asks for the closing statement.
// The session is terminated afterwards, whatever the outcome.
func (e *Engine) Statement(ctx context.Context, s *Session) error {
	if s.phase != PhaseStatement {
		return fmt.Errorf("statement: session is %s", s.phase)
	}
	return e.turn(s, s.iteration, func() error { return e.statement(ctx, s) })
}

func (e *Engine) statement(ctx context.Context, s *Session) error {
	_, png, err := e.render(ctx, s.doc, 1)
	if err != nil {
		return err
	}
	if e.sink != nil {
		source, export, err := e.render(ctx, s.doc, e.cfg.ExportScale)
		if err != nil {
			return err
		}
		if err := e.sink.Final(source, export); err != nil {
			return err
		}
	}
	system, err := e.systemPrompt(template.KindStatement, s)
	if err != nil {
		return err
	}

	logger.Info("=== Artist statement ===")
	e.emit(Event{Kind: EventTurnStart, Session: s.id, Phase: PhaseStatement, Iteration: s.iteration, MaxIterations: s.maxIterations})

	resp, err := e.provider.Send(ctx, provider.Request{
		SystemPrompt:    system,
		Prompt:          s.prompt,
		Notes:           e.noteBlocks(s),
		Image:           png,
		Context:         statementContext(s),
		MaxOutputTokens: e.cfg.MaxOutputTokens,
	})
	if err != nil {
		return err
	}
	s.usage.Add(resp.Usage)

	s.statement = strings.TrimSpace(resp.RawText)
	if e.sink != nil {
		if err := e.sink.Statement(s.statement); err != nil {
			return err
		}
	}
	e.emit(Event{Kind: EventStatement, Session: s.id, Phase: PhaseStatement, Iteration: s.iteration, Statement: s.statement, Usage: resp.Usage, Total: s.usage})

	return e.transition(s, PhaseTerminated, "")
}

// turn runs fn with panic recovery and turns any error into a terminating
// *SessionError.
func (e *Engine) turn(s *Session, iteration int, fn func() error) error {
	phase := s.phase
	err := ierr.Recover(fn)
	if err == nil {
		return nil
	}
	var panicErr *ierr.PanicError
	if errors.As(err, &panicErr) {
		logger.Error("%s turn panicked with stack trace: %s", phase, panicErr.StackTrace)
	}
	return e.fail(s, phase, iteration, err)
}

func (e *Engine) fail(s *Session, phase Phase, iteration int, err error) error {
	var serr *SessionError
	if !errors.As(err, &serr) {
		serr = &SessionError{Phase: phase, Iteration: iteration, Err: err}
	}
	logger.Error("Session %s failed: %v", s.id, serr)
	s.terminate(serr)
	e.emit(Event{Kind: EventFailed, Session: s.id, Phase: phase, Iteration: iteration, Err: serr, Total: s.usage})
	return serr
}

func (e *Engine) transition(s *Session, to Phase, reason string) error {
	from := s.phase
	if err := s.setPhase(to); err != nil {
		return err
	}
	if reason != "" {
		s.stopReason = reason
	}
	logger.Debug("Phase %s -> %s (%s)", from, to, reason)
	e.emit(Event{Kind: EventPhase, Session: s.id, Phase: to, Iteration: s.iteration, Reason: reason, Total: s.usage})
	return nil
}

// render rasterizes doc, reusing the previous result when nothing changed.
func (e *Engine) render(ctx context.Context, doc *canvas.Document, scale float64) (string, []byte, error) {
	source := doc.RenderSource()
	if cached, ok := e.rendered[scale]; ok && cached.source == source {
		return source, cached.png, nil
	}
	png, err := e.renderer.Render(ctx, source, scale)
	if err != nil {
		return "", nil, err
	}
	e.rendered[scale] = renderedCanvas{source: source, png: png}
	return source, png, nil
}

func (e *Engine) systemPrompt(kind template.Kind, s *Session) (string, error) {
	if p, ok := e.prompts[kind]; ok {
		return p, nil
	}
	p, err := template.BuildPrompt(kind, template.BuildConfig{
		Width:             s.doc.Width(),
		Height:            s.doc.Height(),
		MaxIterations:     s.maxIterations,
		TemplatePath:      e.cfg.TemplatePath,
		ExtraInstructions: e.cfg.ExtraInstructions,
	})
	if err != nil {
		return "", err
	}
	e.prompts[kind] = p
	return p, nil
}

// noteBlocks lays out the committed notes for the next call and moves the
// cache markers forward.
func (e *Engine) noteBlocks(s *Session) []provider.NoteBlock {
	s.cacheMarkers = cachewindow.Select(len(s.notes), s.cacheMarkers, e.cfg.CacheWindow, e.cfg.CacheBreakpoints)
	blocks := make([]provider.NoteBlock, 0, len(s.notes))
	for i, n := range s.notes {
		blocks = append(blocks, provider.NoteBlock{
			Label:       n.Label(),
			Text:        n.Text,
			CacheStable: cachewindow.Marked(s.cacheMarkers, i),
		})
	}
	return blocks
}

func planContext(s *Session) string {
	return fmt.Sprintf("Plan the artwork before drawing. You will have up to %d iterations on a %dx%d canvas.\n"+
		"Respond with your plan inside <notes>. Do not draw yet.",
		s.maxIterations, s.doc.Width(), s.doc.Height())
}

func statementContext(s *Session) string {
	return fmt.Sprintf("The artwork is finished after %d iterations.\nLayers: %s\nWrite the artist statement.",
		s.iteration, s.doc.Summary())
}
