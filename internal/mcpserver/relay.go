package mcpserver

import (
	"context"
	"errors"

	"github.com/mark3labs/monet/internal/provider"
)

var errNoTurn = errors.New("no turn submitted")

// relay is the provider behind tool calls: each Send hands back the text the
// calling agent submitted for that turn.
type relay struct {
	pending string
	ready   bool
	last    provider.Request
}

func (r *relay) Name() string  { return "mcp" }
func (r *relay) Model() string { return "client" }

func (r *relay) Send(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Provider: "mcp", Kind: provider.KindTransport, Err: err}
	}
	if !r.ready {
		return nil, errNoTurn
	}
	r.last = req
	text := r.pending
	r.pending, r.ready = "", false
	return &provider.Response{RawText: text, Model: "client"}, nil
}

func (r *relay) submit(text string) {
	r.pending = text
	r.ready = true
}
