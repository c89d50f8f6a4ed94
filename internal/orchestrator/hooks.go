package orchestrator

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/hooks"
	"github.com/mark3labs/monet/internal/logger"
)

// HookRunner runs the configured shell hooks as a session progresses. Hook
// failures are logged and never end the session.
type HookRunner struct {
	ctx       context.Context
	cfg       *hooks.Config
	workDir   string
	outputDir string
}

// NewHookRunner returns an observer running cfg's hooks in workDir.
func NewHookRunner(ctx context.Context, cfg *hooks.Config, workDir, outputDir string) *HookRunner {
	return &HookRunner{ctx: ctx, cfg: cfg, workDir: workDir, outputDir: outputDir}
}

// Observe implements Observer.
func (h *HookRunner) Observe(ev Event) {
	if h.cfg == nil {
		return
	}
	var (
		name string
		list []*hooks.HookConfig
		vars = hooks.Variables{
			Session:   ev.Session,
			Iteration: strconv.Itoa(ev.Iteration),
			OutputDir: h.outputDir,
		}
	)
	switch {
	case ev.Kind == EventTurnEnd && ev.Phase == PhaseDrawing && ev.Note != "":
		name, list = "post_iteration", h.cfg.Hooks.PostIteration
		vars.Image = filepath.Join(h.outputDir, artifacts.SnapshotName(ev.Iteration)+".png")
	case ev.Kind == EventStatement:
		name, list = "on_complete", h.cfg.Hooks.OnComplete
		vars.Image = filepath.Join(h.outputDir, artifacts.FinalPNG)
	default:
		return
	}
	if len(list) == 0 {
		return
	}

	output, err := hooks.ExecuteAll(h.ctx, list, h.workDir, vars)
	if err != nil {
		logger.Warn("%s hooks interrupted: %v", name, err)
		return
	}
	if output != "" {
		logger.Info("%s hook output:\n%s", name, output)
	}
}
