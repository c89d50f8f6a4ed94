package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/canvas"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/orchestrator"
	"github.com/mark3labs/monet/internal/response"
	"github.com/mark3labs/monet/internal/template"
)

// drawing is the session currently driven through the tools.
type drawing struct {
	session *orchestrator.Session
	engine  *orchestrator.Engine
	relay   *relay
	dir     string
}

// registerTools registers the drawing tools with the MCP server.
func (s *Server) registerTools() error {
	s.mcpServer.AddTool(
		mcp.NewTool("start_drawing",
			mcp.WithDescription("Start a new drawing on a blank canvas and get the planning instructions"),
			mcp.WithString("prompt", mcp.Required(),
				mcp.Description("What to draw"),
			),
			mcp.WithNumber("width", mcp.Description("Canvas width in pixels")),
			mcp.WithNumber("height", mcp.Description("Canvas height in pixels")),
			mcp.WithString("background", mcp.Description("Canvas background color")),
			mcp.WithNumber("max_iterations", mcp.Description("Maximum number of drawing turns")),
		),
		s.handleStartDrawing,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("submit_plan",
			mcp.WithDescription("Submit the plan for the drawing. Nothing is drawn while planning."),
			mcp.WithString("notes", mcp.Required(),
				mcp.Description("The plan: composition, palette and the order of layers"),
			),
		),
		s.handleSubmitPlan,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("submit_turn",
			mcp.WithDescription("Submit one drawing turn: <notes>...</notes> followed by an optional "+
				"<svg-elements>...</svg-elements> section and <status>continue|done</status>"),
			mcp.WithString("response", mcp.Required(),
				mcp.Description("Turn text in the notes / svg-elements / status format"),
			),
		),
		s.handleSubmitTurn,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("view_canvas",
			mcp.WithDescription("Show the current canvas"),
			mcp.WithString("format",
				mcp.Description("png (default) or svg"),
				mcp.Enum("png", "svg"),
			),
		),
		s.handleViewCanvas,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("submit_statement",
			mcp.WithDescription("Write the artist statement for the finished drawing"),
			mcp.WithString("statement", mcp.Required(),
				mcp.Description("The artist statement"),
			),
		),
		s.handleSubmitStatement,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("drawing_status",
			mcp.WithDescription("Show the phase, iteration and layers of the current drawing"),
		),
		s.handleDrawingStatus,
	)

	return nil
}

// handleStartDrawing creates a fresh session and returns the planning prompt.
func (s *Server) handleStartDrawing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultText("error: no arguments provided"), nil
	}
	prompt, ok := args["prompt"].(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultText("error: missing or empty 'prompt' parameter"), nil
	}

	width, err := intArg(args, "width", s.cfg.Width)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	height, err := intArg(args, "height", s.cfg.Height)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	maxIterations, err := intArg(args, "max_iterations", s.cfg.MaxIterations)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	background := s.cfg.Background
	if bg, ok := args["background"].(string); ok && bg != "" {
		background = bg
	}

	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	if d := s.drawing; d != nil && d.session.Phase() != orchestrator.PhaseTerminated {
		return mcp.NewToolResultText(fmt.Sprintf(
			"error: drawing %s is still in the %s phase; finish it before starting another",
			d.session.ID(), d.session.Phase())), nil
	}

	doc := canvas.New(width, height, background)
	sess := orchestrator.NewSession(prompt, doc, maxIterations)
	d := &drawing{session: sess, relay: &relay{}}

	var opts []orchestrator.EngineOption
	if s.cfg.OutputDir != "" {
		d.dir = filepath.Join(s.cfg.OutputDir, artifacts.DirName(prompt, time.Now()))
		w, err := artifacts.NewWriter(d.dir)
		if err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
		}
		opts = append(opts, orchestrator.WithSink(w))
	}
	d.engine = orchestrator.NewEngine(s.cfg.Engine, d.relay, s.renderer, opts...)
	if err := d.engine.Begin(sess); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	s.drawing = d
	logger.Info("MCP drawing %s started (%dx%d, max %d iterations)", sess.ID(), width, height, maxIterations)

	system, err := s.buildPrompt(template.KindPlan, d)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Started drawing %s\n", sess.ID())
	if d.dir != "" {
		fmt.Fprintf(&b, "Artifacts: %s\n", d.dir)
	}
	b.WriteString("\n")
	b.WriteString(system)
	fmt.Fprintf(&b, "\n\nPlan the artwork before drawing. You will have up to %d iterations on a %dx%d canvas.\n"+
		"Call submit_plan with your plan.", maxIterations, width, height)
	return mcp.NewToolResultText(b.String()), nil
}

// handleSubmitPlan commits the plan and returns the drawing instructions.
func (s *Server) handleSubmitPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultText("error: no arguments provided"), nil
	}
	notes, ok := args["notes"].(string)
	if !ok || strings.TrimSpace(notes) == "" {
		return mcp.NewToolResultText("error: missing or empty 'notes' parameter"), nil
	}

	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	d, res := s.current(orchestrator.PhasePlanning)
	if res != nil {
		return res, nil
	}

	d.relay.submit("<notes>\n" + notes + "\n</notes>")
	if err := d.engine.Plan(ctx, d.session); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	system, err := s.buildPrompt(template.KindDraw, d)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText("Plan saved.\n\n" + system + "\n\n" + nextTurn(d.session)), nil
}

// handleSubmitTurn validates one drawing turn and commits it. Text that does
// not parse is rejected without touching the drawing.
func (s *Server) handleSubmitTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultText("error: no arguments provided"), nil
	}
	raw, ok := args["response"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultText("error: missing or empty 'response' parameter"), nil
	}
	if _, err := response.Parse(raw); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	d, res := s.current(orchestrator.PhaseDrawing)
	if res != nil {
		return res, nil
	}

	sess := d.session
	before, iteration := len(sess.Document().Layers()), sess.Iteration()
	d.relay.submit(raw)
	if err := d.engine.Draw(ctx, sess); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: drawing terminated: %v", err)), nil
	}

	var b strings.Builder
	layers := sess.Document().Layers()
	switch {
	case sess.Iteration() == iteration:
		b.WriteString("Nothing committed.\n")
	case len(layers) > before:
		fmt.Fprintf(&b, "Iteration %d committed as %s.\n", sess.Iteration(), layers[len(layers)-1].ID())
	default:
		fmt.Fprintf(&b, "Iteration %d committed without drawing.\n", sess.Iteration())
	}
	if sess.Phase() == orchestrator.PhaseStatement {
		fmt.Fprintf(&b, "Drawing finished (%s). Call submit_statement with your artist statement.", sess.StopReason())
	} else {
		b.WriteString(nextTurn(sess))
	}

	png, err := s.renderer.Render(ctx, sess.Document().RenderSource(), 1)
	if err != nil {
		logger.Warn("Failed to render canvas preview: %v", err)
		return mcp.NewToolResultText(b.String()), nil
	}
	return mcp.NewToolResultImage(b.String(), base64.StdEncoding.EncodeToString(png), "image/png"), nil
}

// handleViewCanvas returns the current canvas as PNG or SVG source.
func (s *Server) handleViewCanvas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := "png"
	if args := request.GetArguments(); args != nil {
		if f, ok := args["format"].(string); ok && f != "" {
			format = f
		}
	}

	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	if s.drawing == nil {
		return mcp.NewToolResultText("error: no drawing started"), nil
	}
	doc := s.drawing.session.Document()
	source := doc.RenderSource()

	switch format {
	case "svg":
		return mcp.NewToolResultText(source), nil
	case "png":
		png, err := s.renderer.Render(ctx, source, 1)
		if err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
		}
		return mcp.NewToolResultImage("Layers: "+doc.Summary(), base64.StdEncoding.EncodeToString(png), "image/png"), nil
	default:
		return mcp.NewToolResultText(fmt.Sprintf("error: unknown format '%s' (use png or svg)", format)), nil
	}
}

// handleSubmitStatement exports the canvas and saves the statement.
func (s *Server) handleSubmitStatement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultText("error: no arguments provided"), nil
	}
	statement, ok := args["statement"].(string)
	if !ok || strings.TrimSpace(statement) == "" {
		return mcp.NewToolResultText("error: missing or empty 'statement' parameter"), nil
	}

	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	d, res := s.current(orchestrator.PhaseStatement)
	if res != nil {
		return res, nil
	}

	d.relay.submit(statement)
	if err := d.engine.Statement(ctx, d.session); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	msg := fmt.Sprintf("Statement saved. Drawing %s finished after %d iterations.", d.session.ID(), d.session.Iteration())
	if d.dir != "" {
		msg += "\nArtifacts: " + d.dir
	}
	return mcp.NewToolResultText(msg), nil
}

type statusResult struct {
	Session       string   `json:"session"`
	Prompt        string   `json:"prompt"`
	Phase         string   `json:"phase"`
	Iteration     int      `json:"iteration"`
	MaxIterations int      `json:"max_iterations"`
	Layers        []string `json:"layers"`
	Definitions   int      `json:"definitions"`
	Notes         int      `json:"notes"`
	StopReason    string   `json:"stop_reason,omitempty"`
	Failure       string   `json:"failure,omitempty"`
	OutputDir     string   `json:"output_dir,omitempty"`
}

// handleDrawingStatus returns the current drawing as JSON.
func (s *Server) handleDrawingStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	if s.drawing == nil {
		return mcp.NewToolResultText("No drawing started"), nil
	}
	sess := s.drawing.session
	doc := sess.Document()

	out := statusResult{
		Session:       sess.ID(),
		Prompt:        sess.Prompt(),
		Phase:         sess.Phase().String(),
		Iteration:     sess.Iteration(),
		MaxIterations: sess.MaxIterations(),
		Layers:        []string{},
		Definitions:   len(doc.Definitions()),
		Notes:         len(sess.Notes()),
		StopReason:    sess.StopReason(),
		OutputDir:     s.drawing.dir,
	}
	for _, l := range doc.Layers() {
		out.Layers = append(out.Layers, l.ID())
	}
	if err := sess.Failure(); err != nil {
		out.Failure = err.Error()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// current returns the drawing when it is in phase, or an error result.
// The caller must hold drawMu.
func (s *Server) current(phase orchestrator.Phase) (*drawing, *mcp.CallToolResult) {
	d := s.drawing
	if d == nil {
		return nil, mcp.NewToolResultText("error: no drawing started; call start_drawing first")
	}
	if got := d.session.Phase(); got != phase {
		return nil, mcp.NewToolResultText(fmt.Sprintf("error: drawing is in the %s phase, not %s", got, phase))
	}
	return d, nil
}

func (s *Server) buildPrompt(kind template.Kind, d *drawing) (string, error) {
	doc := d.session.Document()
	return template.BuildPrompt(kind, template.BuildConfig{
		Width:             doc.Width(),
		Height:            doc.Height(),
		MaxIterations:     d.session.MaxIterations(),
		TemplatePath:      s.cfg.Engine.TemplatePath,
		ExtraInstructions: s.cfg.Engine.ExtraInstructions,
	})
}

// nextTurn describes the turn the agent should submit next.
func nextTurn(sess *orchestrator.Session) string {
	next := sess.Iteration() + 1
	var message string
	if next == sess.MaxIterations() {
		message = "This is your final iteration. Finish the piece and set status to done."
	}
	return template.TurnContext(template.TurnConfig{
		Iteration:     next,
		MaxIterations: sess.MaxIterations(),
		LayerSummary:  sess.Document().Summary(),
		HasNotes:      sess.Iteration() > 0,
		Message:       message,
	})
}

// intArg reads a positive integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("'%s' must be a number", key)
	}
	if f < 1 || f != float64(int(f)) {
		return 0, fmt.Errorf("'%s' must be a positive integer", key)
	}
	return int(f), nil
}
