package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/monet/internal/provider"
)

// step is one scripted provider reply.
type step struct {
	raw   string
	usage provider.Usage
	err   error
	panic bool
}

type scriptedProvider struct {
	mu       sync.Mutex
	steps    []step
	requests []provider.Request
}

func newScripted(steps ...step) *scriptedProvider {
	return &scriptedProvider{steps: steps}
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Send(ctx context.Context, req provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Provider: "scripted", Kind: provider.KindTransport, Err: err}
	}
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return nil, fmt.Errorf("script exhausted after %d calls", len(p.requests))
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	if s.panic {
		panic("scripted panic")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Response{RawText: s.raw, Usage: s.usage, Model: "scripted-1"}, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRenderer) Render(ctx context.Context, source string, scale float64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte(fmt.Sprintf("png:%d:%g", len(source), scale)), nil
}

type recordingSink struct {
	begun      bool
	notes      []int
	snapshots  []int
	final      string
	finalPNG   []byte
	statement  string
	snapshotFn func(iteration int) error
}

func (s *recordingSink) Begin(id, prompt string, width, height int, background string) error {
	s.begun = true
	return nil
}

func (s *recordingSink) Note(iteration int, text string, usage provider.Usage) error {
	s.notes = append(s.notes, iteration)
	return nil
}

func (s *recordingSink) Snapshot(iteration int, source string, png []byte) error {
	if s.snapshotFn != nil {
		if err := s.snapshotFn(iteration); err != nil {
			return err
		}
	}
	s.snapshots = append(s.snapshots, iteration)
	return nil
}

func (s *recordingSink) Final(source string, png []byte) error {
	s.final, s.finalPNG = source, png
	return nil
}

func (s *recordingSink) Statement(text string) error {
	s.statement = text
	return nil
}

func drawStep(note, fragment string) step {
	return step{raw: fmt.Sprintf("<notes>%s</notes>\n<svg-elements>%s</svg-elements>", note, fragment)}
}
