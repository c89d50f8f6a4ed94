package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, newScripted(), &fakeRenderer{})
	assert.Error(t, err, "prompt is required")

	_, err = New(Config{Prompt: "x"}, nil, &fakeRenderer{})
	assert.Error(t, err)

	o, err := New(Config{Prompt: "x"}, newScripted(), &fakeRenderer{})
	require.NoError(t, err)
	assert.Equal(t, "output", o.cfg.OutputDir)
	assert.Equal(t, ".monet", o.cfg.DataDir)
	assert.Equal(t, 25, o.cfg.MaxIterations)
}

func TestRunBeforeStart(t *testing.T) {
	o, err := New(Config{Prompt: "x"}, newScripted(), &fakeRenderer{})
	require.NoError(t, err)
	assert.Error(t, o.Run())
}

// TestHeadlessSessionWithJournal runs a full session and checks the artifacts
// and the journal agree.
func TestHeadlessSessionWithJournal(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "out")

	p := newScripted(
		step{raw: planStep},
		drawStep("Sky.", `<rect width="200" height="100" fill="#f90"/>`),
		drawStep("Sun.", `<radialGradient id="glow"><stop offset="0" stop-color="#ff0"/></radialGradient><circle cx="100" cy="60" r="20" fill="url(#glow)"/>`),
		step{raw: "<notes>Done.</notes><status>done</status>"},
		step{raw: "Evening light."},
	)
	o, err := New(Config{
		Prompt:        "a sunset",
		OutputDir:     out,
		DataDir:       filepath.Join(tmp, ".monet"),
		Width:         200,
		Height:        100,
		MaxIterations: 5,
		Headless:      true,
		Journal:       true,
	}, p, &fakeRenderer{})
	require.NoError(t, err)
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })

	require.NoError(t, o.Run())
	o.Wait()

	s := o.Session()
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Len(t, s.Document().Layers(), 2)

	rec, err := artifacts.Load(out)
	require.NoError(t, err)
	assert.Equal(t, s.ID(), rec.Log.Session)
	assert.Equal(t, []int{1, 2}, rec.Snapshots)
	assert.Equal(t, artifacts.FinalSVG, rec.Source)
	assert.Equal(t, "Evening light.", rec.Statement)
	assert.True(t, rec.Document.HasDefinition("iter2-glow"))

	state, err := o.store.LoadState(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Equal(t, "a sunset", state.Prompt)
	assert.Equal(t, "scripted", state.Provider)
	assert.Equal(t, "terminated", state.Phase)
	assert.Len(t, state.Notes, 3)
	assert.Len(t, state.Layers, 2)
	assert.Equal(t, 1, state.Layers[1].Definitions)
	assert.Equal(t, "Evening light.", state.Statement)
	assert.True(t, state.Complete)

	require.NoError(t, o.Stop())
	require.NoError(t, o.Stop(), "Stop is idempotent")
}

func TestRequestStopIsIdempotent(t *testing.T) {
	o, err := New(Config{Prompt: "x"}, newScripted(), &fakeRenderer{})
	require.NoError(t, err)
	o.RequestStop()
	o.RequestStop()
	select {
	case <-o.stop:
	default:
		t.Fatal("stop channel should be closed")
	}
}

func TestConsoleObserver(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Observe(Event{Kind: EventTurnStart, Phase: PhaseDrawing, Iteration: 2, MaxIterations: 5})
	c.Observe(Event{Kind: EventPhase, Phase: PhaseStatement, Reason: ReasonDone})
	c.Observe(Event{Kind: EventFailed, Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "Running iteration #2 of 5...")
	assert.Contains(t, out, "Drawing finished: done")
	assert.Contains(t, out, "boom")
}

func TestHeadlessSessionRunsHooks(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "out")
	hooksYAML := `version: 1
hooks:
  post_iteration:
    - command: "echo {{iteration}} >> iterations.txt"
  on_complete:
    - command: "echo {{image}} > done.txt"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmp, hooks.ConfigFileName), []byte(hooksYAML), 0644))

	p := newScripted(
		step{raw: planStep},
		drawStep("Sky.", `<rect width="20" height="10"/>`),
		step{raw: "<notes>Done.</notes><status>done</status>"},
		step{raw: "Fin."},
	)
	o, err := New(Config{
		Prompt:        "a sky",
		OutputDir:     out,
		DataDir:       filepath.Join(tmp, ".monet"),
		MaxIterations: 3,
		Headless:      true,
		HooksDir:      tmp,
	}, p, &fakeRenderer{})
	require.NoError(t, err)
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })
	require.NoError(t, o.Run())

	data, err := os.ReadFile(filepath.Join(tmp, "iterations.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))

	data, err = os.ReadFile(filepath.Join(tmp, "done.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, artifacts.FinalPNG), strings.TrimSpace(string(data)))
}
