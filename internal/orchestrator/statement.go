package orchestrator

import (
	"context"

	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/render"
)

// WriteStatement runs only the statement turn for a session saved in dir,
// refreshing final.svg, final.png and artist-statement.txt there.
func WriteStatement(ctx context.Context, dir string, cfg EngineConfig, p provider.Provider, r render.Renderer, opts ...EngineOption) (*Session, error) {
	rec, err := artifacts.Load(dir)
	if err != nil {
		return nil, err
	}

	notes := make([]Note, 0, len(rec.Log.Entries))
	for _, entry := range rec.Log.Entries {
		origin := OriginDraw
		if entry.Iteration == 0 {
			origin = OriginPlan
		}
		notes = append(notes, Note{Origin: origin, Iteration: entry.Iteration, Text: entry.Text})
	}
	logger.Info("Loaded %s: %d notes, %d layers (from %s)", dir, len(notes), len(rec.Document.Layers()), rec.Source)

	w, err := artifacts.NewWriter(dir)
	if err != nil {
		return nil, err
	}
	s := ResumeForStatement(rec.Log.Session, rec.Log.Prompt, rec.Document, notes)
	engine := NewEngine(cfg, p, r, append([]EngineOption{WithSink(w)}, opts...)...)
	if err := engine.Run(ctx, s, nil); err != nil {
		return s, err
	}
	return s, nil
}
