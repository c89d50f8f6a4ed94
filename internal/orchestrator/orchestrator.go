package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/canvas"
	ierr "github.com/mark3labs/monet/internal/errors"
	"github.com/mark3labs/monet/internal/hooks"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/render"
	"github.com/mark3labs/monet/internal/session"
	"github.com/mark3labs/monet/internal/state"
	"github.com/mark3labs/monet/internal/tui"
)

// Config holds configuration for the orchestrator.
type Config struct {
	Prompt        string       // Art prompt
	OutputDir     string       // Artifact directory for this session
	DataDir       string       // Data directory for the event journal
	Width         int          // Canvas width
	Height        int          // Canvas height
	Background    string       // Canvas background color
	MaxIterations int          // Drawing turn bound
	Engine        EngineConfig // Engine tuning
	Headless      bool         // Run without TUI
	Journal       bool         // Record events in the embedded journal
	HooksDir      string       // Directory holding .monet.hooks.yml (default ".")
}

// Orchestrator wires an Engine to the artifact writer, the event journal and
// the TUI, and owns their lifecycle.
type Orchestrator struct {
	cfg        Config
	provider   provider.Provider
	renderer   render.Renderer
	store      *session.Store     // Event journal (nil when disabled)
	writer     *artifacts.Writer  // Artifact writer
	engine     *Engine            // Iteration engine
	session    *Session           // Session being drawn
	tuiProgram *tea.Program       // Bubbletea program
	tuiDone    chan struct{}      // TUI completion signal
	ctx        context.Context    // Context for cancellation
	cancel     context.CancelFunc // Cancel function
	stop       chan struct{}      // Closed to request a graceful stop
	stopOnce   sync.Once
	stopped    bool // Track if Stop() was already called
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config, p provider.Provider, r render.Renderer) (*Orchestrator, error) {
	if cfg.Prompt == "" {
		return nil, errors.New("prompt is required")
	}
	if p == nil || r == nil {
		return nil, errors.New("provider and renderer are required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = ".monet"
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.HooksDir == "" {
		cfg.HooksDir = "."
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		cfg:      cfg,
		provider: p,
		renderer: r,
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		tuiDone:  make(chan struct{}),
	}, nil
}

// Start initializes all components.
func (o *Orchestrator) Start() error {
	logger.Info("Starting orchestrator (provider=%s model=%s)", o.provider.Name(), o.provider.Model())

	writer, err := artifacts.NewWriter(o.cfg.OutputDir)
	if err != nil {
		logger.Error("Failed to prepare output directory: %v", err)
		return err
	}
	o.writer = writer

	if o.cfg.Journal {
		logger.Debug("Opening event journal")
		dataDir := filepath.Join(o.cfg.DataDir, "nats")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		store, err := session.Open(o.ctx, dataDir)
		if err != nil {
			logger.Error("Failed to open journal: %v", err)
			return fmt.Errorf("failed to open journal: %w", err)
		}
		o.store = store
	}

	doc := canvas.New(o.cfg.Width, o.cfg.Height, o.cfg.Background)
	o.session = NewSession(o.cfg.Prompt, doc, o.cfg.MaxIterations)

	opts := []EngineOption{WithSink(o.writer)}
	if o.store != nil {
		opts = append(opts, WithObserver(NewJournal(o.ctx, o.store, JournalInfo{
			Provider:  o.provider.Name(),
			Model:     o.provider.Model(),
			OutputDir: o.cfg.OutputDir,
			Width:     doc.Width(),
			Height:    doc.Height(),
		})))
	}

	hooksCfg, err := hooks.LoadConfig(o.cfg.HooksDir)
	if err != nil {
		return err
	}
	if hooksCfg != nil {
		opts = append(opts, WithObserver(NewHookRunner(o.ctx, hooksCfg, o.cfg.HooksDir, o.cfg.OutputDir)))
	}

	if o.cfg.Headless {
		opts = append(opts, WithObserver(NewConsole(os.Stdout)))
	} else {
		logger.Debug("Starting TUI")
		if err := o.startTUI(); err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		opts = append(opts, WithObserver(ObserverFunc(o.forwardToTUI)))
	}

	o.engine = NewEngine(o.cfg.Engine, o.provider, o.renderer, opts...)
	logger.Info("Session %s ready, writing to %s", o.session.ID(), o.cfg.OutputDir)
	return nil
}

// Run drives the session to termination.
func (o *Orchestrator) Run() error {
	if o.engine == nil {
		return errors.New("orchestrator not started")
	}

	if o.cfg.Headless {
		fmt.Printf("=== Session: %s ===\n", o.session.ID())
		fmt.Printf("Prompt: %s\n", o.cfg.Prompt)
		fmt.Printf("Max iterations: %d\n\n", o.cfg.MaxIterations)
	}

	err := o.engine.Run(o.ctx, o.session, o.stop)

	if o.tuiProgram != nil {
		if err != nil {
			o.tuiProgram.Send(tui.FailedMsg{Err: err})
		}
		o.tuiProgram.Send(tui.DoneMsg{OutputDir: o.cfg.OutputDir})
	}

	if err != nil {
		logger.Error("Session %s failed: %v", o.session.ID(), err)
		return err
	}
	logger.Info("Session %s finished after %d iterations (%s)", o.session.ID(), o.session.Iteration(), o.session.StopReason())
	return nil
}

// Wait blocks until the TUI exits. It returns immediately in headless mode.
func (o *Orchestrator) Wait() {
	if o.tuiProgram == nil {
		return
	}
	<-o.tuiDone
}

// RequestStop asks the session to finish after the current turn.
func (o *Orchestrator) RequestStop() {
	o.stopOnce.Do(func() {
		logger.Info("Graceful stop requested")
		close(o.stop)
	})
}

// Cancel aborts the session immediately.
func (o *Orchestrator) Cancel() {
	if o.cancel != nil {
		o.cancel()
	}
}

// Session returns the session being drawn.
func (o *Orchestrator) Session() *Session { return o.session }

// Stop gracefully shuts down all components.
// It collects errors from each component and returns a combined error if any fail.
// Multiple calls to Stop() are safe and idempotent.
func (o *Orchestrator) Stop() error {
	if o.stopped {
		return nil
	}
	o.stopped = true

	logger.Info("Stopping orchestrator")

	multiErr := &ierr.MultiError{}

	if o.cancel != nil {
		o.cancel()
	}

	if o.tuiProgram != nil {
		logger.Debug("Stopping TUI")
		o.tuiProgram.Quit()
		select {
		case <-o.tuiDone:
			logger.Debug("TUI stopped successfully")
		case <-time.After(2 * time.Second):
			logger.Warn("TUI shutdown timed out after 2s")
			multiErr.Append(ierr.NewTransientError("TUI shutdown", fmt.Errorf("timed out after 2s")))
		}
		o.tuiProgram = nil
	}

	if o.store != nil {
		logger.Debug("Closing event journal")
		if err := o.store.Close(); err != nil {
			logger.Error("Journal shutdown failed: %v", err)
			multiErr.Append(fmt.Errorf("journal shutdown failed: %w", err))
		}
		o.store = nil
	}

	logger.Info("Orchestrator stopped")
	return multiErr.ErrorOrNil()
}

// startTUI starts the Bubbletea progress view in the background.
func (o *Orchestrator) startTUI() error {
	prefs := state.Load(o.cfg.DataDir)
	app := tui.NewApp(tui.Config{
		Prompt:        o.cfg.Prompt,
		Session:       o.session.ID(),
		OutputDir:     o.cfg.OutputDir,
		MaxIterations: o.cfg.MaxIterations,
		HideNotes:     !prefs.Notes.Visible,
		NoteLines:     prefs.Notes.Lines,
		OnStop:        o.RequestStop,
		OnCancel:      o.Cancel,
		OnToggleNotes: func(visible bool) {
			prefs.Notes.Visible = visible
			if err := state.Save(o.cfg.DataDir, prefs); err != nil {
				logger.Warn("Failed to save UI state: %v", err)
			}
		},
	})
	o.tuiProgram = tea.NewProgram(app)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "TUI panic: %v\n", r)
			}
			close(o.tuiDone)
		}()

		if _, err := o.tuiProgram.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()
	return nil
}

func (o *Orchestrator) forwardToTUI(ev Event) {
	p := o.tuiProgram
	if p == nil {
		return
	}
	switch ev.Kind {
	case EventPhase:
		p.Send(tui.PhaseMsg{Phase: ev.Phase.String(), Reason: ev.Reason})
	case EventTurnStart:
		p.Send(tui.TurnStartMsg{Phase: ev.Phase.String(), Iteration: ev.Iteration, MaxIterations: ev.MaxIterations})
	case EventTurnEnd:
		p.Send(tui.TurnEndMsg{Iteration: ev.Iteration, Note: ev.Note, NewLayer: ev.Layer != nil, Total: ev.Total})
	case EventStatement:
		p.Send(tui.StatementMsg{Text: ev.Statement, Total: ev.Total})
	}
}
