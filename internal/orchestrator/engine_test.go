package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/canvas"
	ierr "github.com/mark3labs/monet/internal/errors"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/render"
	"github.com/mark3labs/monet/internal/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planStep = "<notes>Warm sky, low hills, a setting sun.</notes>"

func newTestSession(maxIterations int) *Session {
	return NewSession("a sunset over hills", canvas.New(400, 300, "#ffffff"), maxIterations)
}

func TestExplicitCompletion(t *testing.T) {
	usage := provider.Usage{InputTokens: 10, OutputTokens: 2}
	p := newScripted(
		step{raw: planStep, usage: usage},
		step{raw: "<notes>Sky.</notes><svg-elements><rect width=\"400\" height=\"300\" fill=\"#f90\"/></svg-elements>", usage: usage},
		step{raw: "<notes>Hills.</notes><svg-elements><path d=\"M0 200 Q200 120 400 200 V300 H0Z\"/></svg-elements>", usage: usage},
		step{raw: "<notes>Sun.</notes><svg-elements><circle cx=\"200\" cy=\"180\" r=\"40\" fill=\"#ff0\"/></svg-elements><status>continue</status>", usage: usage},
		step{raw: "<notes>It is finished.</notes><status>done</status>", usage: usage},
		step{raw: "  A quiet evening.\n", usage: usage},
	)
	sink := &recordingSink{}
	e := NewEngine(EngineConfig{PlanThinkingBudget: 1000}, p, &fakeRenderer{}, WithSink(sink))
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))

	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Equal(t, ReasonDone, s.StopReason())
	assert.Len(t, s.Document().Layers(), 3)
	assert.Len(t, s.Notes(), 4)
	assert.Equal(t, 3, s.Iteration())
	assert.Equal(t, "A quiet evening.", s.Statement())
	assert.NoError(t, s.Failure())
	assert.Equal(t, provider.Usage{InputTokens: 60, OutputTokens: 12}, s.Usage())
	assert.Equal(t, 6, p.calls())

	assert.True(t, sink.begun)
	assert.Equal(t, []int{0, 1, 2, 3}, sink.notes)
	assert.Equal(t, []int{1, 2, 3}, sink.snapshots)
	assert.Contains(t, sink.final, `<g id="layer-3"`)
	assert.Contains(t, string(sink.finalPNG), ":2", "final export uses the export scale")
	assert.Equal(t, "A quiet evening.", sink.statement)

	plan := p.requests[0]
	assert.True(t, plan.ExtendedReasoning)
	assert.Equal(t, 1000, plan.ThinkingBudget)
	assert.False(t, plan.DrawingAllowed)
	assert.Empty(t, plan.Notes)
	assert.NotEmpty(t, plan.Image)

	first := p.requests[1]
	assert.True(t, first.DrawingAllowed)
	assert.False(t, first.ExtendedReasoning)
	require.Len(t, first.Notes, 1)
	assert.Equal(t, "== Plan ==", first.Notes[0].Label)
	assert.True(t, first.Notes[0].CacheStable)
	assert.Contains(t, first.Context, "Iteration: 1 of 10")
	assert.Contains(t, first.Context, "blank canvas")

	fourth := p.requests[4]
	require.Len(t, fourth.Notes, 4)
	assert.Equal(t, "== Iteration 3 notes ==", fourth.Notes[3].Label)
	assert.False(t, fourth.Notes[0].CacheStable, "oldest marker is evicted past three breakpoints")
	assert.True(t, fourth.Notes[1].CacheStable)
	assert.True(t, fourth.Notes[3].CacheStable)

	statement := p.requests[5]
	assert.False(t, statement.DrawingAllowed)
	assert.Len(t, statement.Notes, 4)
	assert.Contains(t, statement.Context, "3 iterations")
}

func TestIterationBound(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("one", `<circle r="1"/>`),
		drawStep("two", `<circle r="2"/>`),
		drawStep("three", `<circle r="3"/>`),
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(3)

	require.NoError(t, e.Run(context.Background(), s, nil))
	assert.Equal(t, 5, p.calls(), "exactly M drawing calls plus plan and statement")
	assert.Equal(t, ReasonMaxIterations, s.StopReason())
	assert.Len(t, s.Document().Layers(), 3)
	assert.Contains(t, p.requests[3].Context, "final iteration")
	assert.NotContains(t, p.requests[2].Context, "final iteration")
}

func TestEmptyTurnStreak(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		step{raw: "<notes>Thinking.</notes>"},
		drawStep("A tree.", `<rect width="5" height="40"/>`),
		step{raw: "<notes>Hmm.</notes><svg-elements> </svg-elements>"},
		step{raw: "<notes>Still hmm.</notes>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{MaxEmptyTurns: 2}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	assert.Equal(t, ReasonEmptyTurns, s.StopReason())
	assert.Equal(t, 4, s.Iteration())
	assert.Len(t, s.Notes(), 5, "notes from turns without drawing are kept")
	assert.Len(t, s.Document().Layers(), 1)
}

func TestEmptyResponseEndsDrawing(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		step{raw: "  \n\t"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	assert.Equal(t, ReasonEmptyResponse, s.StopReason())
	assert.Equal(t, 0, s.Iteration())
	assert.Len(t, s.Notes(), 1)
	assert.Equal(t, PhaseTerminated, s.Phase())
}

func TestMalformedTurnIsFatal(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("ok", `<circle r="1"/>`),
		step{raw: "<notes>broken</notes><svg-elements><g><circle r=\"2\"/></svg-elements>"},
	)
	sink := &recordingSink{}
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{}, WithSink(sink))
	s := newTestSession(10)

	err := e.Run(context.Background(), s, nil)
	require.Error(t, err)

	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PhaseDrawing, serr.Phase)
	assert.Equal(t, 2, serr.Iteration)

	var malformed *response.MalformedResponseError
	assert.ErrorAs(t, err, &malformed)

	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Equal(t, err, s.Failure())
	assert.Len(t, s.Document().Layers(), 1)
	assert.Len(t, s.Notes(), 2)
	assert.Equal(t, 3, p.calls(), "no statement after a fatal error")
	assert.Empty(t, sink.statement)
}

func TestMissingNotesIsFatal(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		step{raw: `<svg-elements><rect width="1" height="1"/></svg-elements>`},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	err := e.Run(context.Background(), s, nil)
	var missing *response.MissingNotesError
	assert.ErrorAs(t, err, &missing)
	assert.Empty(t, s.Document().Layers())
}

func TestReusedDefinitionIDsNeverCollide(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("sky", `<linearGradient id="iter1-sky"/><rect fill="url(#iter1-sky)"/>`),
		drawStep("again", `<linearGradient id="iter1-sky"/><circle r="2" fill="url(#iter1-sky)"/>`),
		step{raw: "<notes>done</notes><status>done</status>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	doc := s.Document()
	assert.True(t, doc.HasDefinition("iter1-sky"))
	assert.True(t, doc.HasDefinition("iter2-iter1-sky"))
	layers := doc.Layers()
	require.Len(t, layers, 2)
	assert.Contains(t, layers[1].Markup, "url(#iter2-iter1-sky)")
}

func TestForeignPrefixDoesNotBlockLaterIteration(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("early", `<filter id="iter2-glow"/><circle r="1" filter="url(#iter2-glow)"/>`),
		drawStep("glow", `<filter id="glow"/><circle r="2" filter="url(#glow)"/>`),
		step{raw: "<notes>done</notes><status>done</status>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	assert.NoError(t, s.Failure())
	doc := s.Document()
	assert.True(t, doc.HasDefinition("iter1-iter2-glow"))
	assert.True(t, doc.HasDefinition("iter2-glow"))
	layers := doc.Layers()
	require.Len(t, layers, 2)
	assert.Contains(t, layers[0].Markup, "url(#iter1-iter2-glow)")
	assert.Contains(t, layers[1].Markup, "url(#iter2-glow)")
}

func TestUnnamedDefinitionBesideBareDefName(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("filters", `<filter id="def1"/><filter/><circle r="1" filter="url(#def1)"/>`),
		step{raw: "<notes>done</notes><status>done</status>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	doc := s.Document()
	assert.True(t, doc.HasDefinition("iter1-def1"))
	assert.True(t, doc.HasDefinition("iter1-def2"))
	require.Len(t, doc.Layers(), 1)
	assert.Contains(t, doc.Layers()[0].Markup, "url(#iter1-def1)")
}

func TestBareDefinitionNamesAreNamespaced(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("glow 1", `<filter id="glow"/><circle r="1" filter="url(#glow)"/>`),
		drawStep("glow 2", `<filter id="glow"/><circle r="2" filter="url(#glow)"/>`),
		step{raw: "<notes>done</notes><status>done</status>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	doc := s.Document()
	assert.True(t, doc.HasDefinition("iter1-glow"))
	assert.True(t, doc.HasDefinition("iter2-glow"))
	layers := doc.Layers()
	require.Len(t, layers, 2)
	assert.Contains(t, layers[0].Markup, "url(#iter1-glow)")
	assert.Contains(t, layers[1].Markup, "url(#iter2-glow)")
}

func TestPlanningDiscardsDrawing(t *testing.T) {
	p := newScripted(
		step{raw: `<notes>plan</notes><svg-elements><rect width="9" height="9"/></svg-elements>`},
		step{raw: "<notes>nothing to add</notes><status>done</status>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, nil))
	assert.Empty(t, s.Document().Layers())
	notes := s.Notes()
	require.Len(t, notes, 1, "a done turn without drawing commits nothing")
	assert.Equal(t, OriginPlan, notes[0].Origin)
	assert.Equal(t, "plan", notes[0].Text)
}

func TestGracefulStop(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		drawStep("one", `<circle r="1"/>`),
		step{raw: "stopped early"},
	)
	stop := make(chan struct{})
	var once bool
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{}, WithObserver(ObserverFunc(func(ev Event) {
		if ev.Kind == EventTurnEnd && ev.Iteration == 1 && !once {
			once = true
			close(stop)
		}
	})))
	s := newTestSession(10)

	require.NoError(t, e.Run(context.Background(), s, stop))
	assert.Equal(t, ReasonStopped, s.StopReason())
	assert.Equal(t, 1, s.Iteration())
	assert.Equal(t, "stopped early", s.Statement())
	assert.Equal(t, 3, p.calls())
}

func TestCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newScripted(
		step{raw: planStep},
		drawStep("one", `<circle r="1"/>`),
		drawStep("two", `<circle r="2"/>`),
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{}, WithObserver(ObserverFunc(func(ev Event) {
		if ev.Kind == EventTurnEnd && ev.Iteration == 1 {
			cancel()
		}
	})))
	s := newTestSession(10)

	err := e.Run(ctx, s, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.Empty(t, s.Statement())
	assert.Equal(t, 2, p.calls())
}

func TestProviderErrorIsFatal(t *testing.T) {
	p := newScripted(step{err: &provider.Error{Provider: "scripted", Kind: provider.KindRateLimited, Status: 429, Err: provider.ErrRateLimited}})
	var failed []Event
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{}, WithObserver(ObserverFunc(func(ev Event) {
		if ev.Kind == EventFailed {
			failed = append(failed, ev)
		}
	})))
	s := newTestSession(10)

	err := e.Run(context.Background(), s, nil)
	assert.ErrorIs(t, err, provider.ErrRateLimited)
	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PhasePlanning, serr.Phase)
	require.Len(t, failed, 1)
	assert.Equal(t, err, failed[0].Err)
}

func TestPanicIsRecovered(t *testing.T) {
	p := newScripted(step{raw: planStep}, step{panic: true})
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)

	err := e.Run(context.Background(), s, nil)
	var panicErr *ierr.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, PhaseTerminated, s.Phase())
}

func TestRenderFailureIsFatal(t *testing.T) {
	p := newScripted(step{raw: planStep})
	r := &fakeRenderer{err: &render.Error{Backend: "fake", Err: errors.New("boom")}}
	e := NewEngine(EngineConfig{}, p, r)
	s := newTestSession(10)

	err := e.Run(context.Background(), s, nil)
	var rerr *render.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, p.calls())
}

func TestRenderIsReusedWhileCanvasUnchanged(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		step{raw: "<notes>done already</notes><status>done</status>"},
		step{raw: "statement"},
	)
	r := &fakeRenderer{}
	e := NewEngine(EngineConfig{}, p, r)

	require.NoError(t, e.Run(context.Background(), newTestSession(5), nil))
	assert.Equal(t, 1, r.calls)
}

func TestSinkErrorIsFatal(t *testing.T) {
	p := newScripted(step{raw: planStep}, drawStep("one", `<circle r="1"/>`))
	sink := &recordingSink{snapshotFn: func(int) error { return os.ErrPermission }}
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{}, WithSink(sink))
	s := newTestSession(10)

	err := e.Run(context.Background(), s, nil)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, PhaseTerminated, s.Phase())
}

func TestTerminatedSessionIsImmutable(t *testing.T) {
	p := newScripted(
		step{raw: planStep},
		step{raw: "<notes>n</notes><status>done</status>"},
		step{raw: "statement"},
	)
	e := NewEngine(EngineConfig{}, p, &fakeRenderer{})
	s := newTestSession(10)
	require.NoError(t, e.Run(context.Background(), s, nil))

	assert.Error(t, e.Draw(context.Background(), s))
	assert.Error(t, e.Plan(context.Background(), s))
	assert.Error(t, e.Statement(context.Background(), s))
	assert.ErrorIs(t, s.appendNote(Note{Text: "late"}), ErrTerminated)
	assert.ErrorIs(t, s.setPhase(PhaseDrawing), ErrTerminated)

	require.NoError(t, e.Run(context.Background(), s, nil))
	assert.Equal(t, 3, p.calls())
	assert.Len(t, s.Notes(), 1)
}

func TestWriteStatementFromDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sunset")
	w, err := artifacts.NewWriter(dir)
	require.NoError(t, err)

	first := newScripted(
		step{raw: planStep},
		drawStep("Sky.", `<rect width="400" height="300" fill="#f90"/>`),
		step{raw: "<notes>Done.</notes><status>done</status>"},
		step{raw: "first statement"},
	)
	s := newTestSession(10)
	require.NoError(t, NewEngine(EngineConfig{}, first, &fakeRenderer{}, WithSink(w)).Run(context.Background(), s, nil))

	second := newScripted(step{raw: "second statement"})
	resumed, err := WriteStatement(context.Background(), dir, EngineConfig{}, second, &fakeRenderer{})
	require.NoError(t, err)

	assert.Equal(t, s.ID(), resumed.ID())
	assert.Equal(t, "second statement", resumed.Statement())
	assert.Equal(t, PhaseTerminated, resumed.Phase())
	require.Equal(t, 1, second.calls())

	req := second.requests[0]
	assert.Equal(t, "a sunset over hills", req.Prompt)
	require.Len(t, req.Notes, 2)
	assert.Equal(t, "== Iteration 1 notes ==", req.Notes[1].Label)
	assert.Equal(t, "Sky.", req.Notes[1].Text)

	data, err := os.ReadFile(filepath.Join(dir, artifacts.StatementFile))
	require.NoError(t, err)
	assert.Equal(t, "second statement\n", string(data))

	final, err := os.ReadFile(filepath.Join(dir, artifacts.FinalSVG))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(final), `<g id="layer-1"`))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "planning", PhasePlanning.String())
	assert.Equal(t, "terminated", PhaseTerminated.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}
