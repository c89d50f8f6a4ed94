package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	calls int
}

func (r *fakeRenderer) Render(ctx context.Context, source string, scale float64) ([]byte, error) {
	r.calls++
	return []byte("png-bytes"), nil
}

// setupTestServer creates a server writing artifacts under a temp dir
func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	out := t.TempDir()
	srv := New(Config{OutputDir: out, Width: 200, Height: 100, MaxIterations: 3}, &fakeRenderer{})
	return srv, out
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// extractText extracts text from CallToolResult.Content[0]
func extractText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if textContent, ok := result.Content[0].(mcp.TextContent); ok {
		return textContent.Text
	}
	return ""
}

func startDrawing(t *testing.T, srv *Server, prompt string) string {
	t.Helper()
	result, err := srv.handleStartDrawing(context.Background(), call("start_drawing", map[string]any{"prompt": prompt}))
	require.NoError(t, err)
	text := extractText(result)
	require.Contains(t, text, "Started drawing")
	return text
}

func TestDrawingLifecycle(t *testing.T) {
	ctx := context.Background()
	srv, out := setupTestServer(t)

	text := startDrawing(t, srv, "a red square")
	assert.Contains(t, text, "Call submit_plan")
	assert.Contains(t, text, "200x100")

	result, err := srv.handleSubmitPlan(ctx, call("submit_plan", map[string]any{"notes": "one red square, centered"}))
	require.NoError(t, err)
	text = extractText(result)
	assert.Contains(t, text, "Plan saved.")
	assert.Contains(t, text, "Iteration: 1 of 3")

	result, err = srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
		"response": `<notes>square first</notes>
<svg-elements>
<linearGradient id="warm"><stop offset="0" stop-color="red"/></linearGradient>
<rect x="50" y="25" width="100" height="50" fill="url(#warm)"/>
</svg-elements>
<status>continue</status>`,
	}))
	require.NoError(t, err)
	text = extractText(result)
	assert.Contains(t, text, "Iteration 1 committed as layer-1.")
	assert.Contains(t, text, "Iteration: 2 of 3")
	require.Len(t, result.Content, 2)
	img, ok := result.Content[1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), img.Data)

	result, err = srv.handleViewCanvas(ctx, call("view_canvas", map[string]any{"format": "svg"}))
	require.NoError(t, err)
	svg := extractText(result)
	assert.Contains(t, svg, `<linearGradient id="iter1-warm">`)
	assert.Contains(t, svg, `fill="url(#iter1-warm)"`)
	assert.Contains(t, svg, `<g id="layer-1" data-iteration="1">`)

	result, err = srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
		"response": "<notes>it is finished</notes><status>done</status>",
	}))
	require.NoError(t, err)
	text = extractText(result)
	assert.Contains(t, text, "Nothing committed.")
	assert.Contains(t, text, "Drawing finished (done)")

	result, err = srv.handleSubmitStatement(ctx, call("submit_statement", map[string]any{"statement": "  A square, alone.  "}))
	require.NoError(t, err)
	text = extractText(result)
	assert.Contains(t, text, "finished after 1 iterations")

	result, err = srv.handleDrawingStatus(ctx, call("drawing_status", nil))
	require.NoError(t, err)
	var status statusResult
	require.NoError(t, json.Unmarshal([]byte(extractText(result)), &status))
	assert.Equal(t, "terminated", status.Phase)
	assert.Equal(t, 1, status.Iteration)
	assert.Equal(t, []string{"layer-1"}, status.Layers)
	assert.Equal(t, 1, status.Definitions)
	assert.Equal(t, 2, status.Notes)
	assert.Equal(t, "done", status.StopReason)
	assert.Empty(t, status.Failure)

	require.True(t, strings.HasPrefix(status.OutputDir, out))
	data, err := os.ReadFile(filepath.Join(status.OutputDir, artifacts.StatementFile))
	require.NoError(t, err)
	assert.Equal(t, "A square, alone.\n", string(data))
	for _, name := range []string{artifacts.LogFile, artifacts.FinalSVG, artifacts.FinalPNG, artifacts.SnapshotName(1) + ".svg"} {
		_, err := os.Stat(filepath.Join(status.OutputDir, name))
		assert.NoError(t, err, name)
	}
}

func TestStartDrawing_MissingPrompt(t *testing.T) {
	srv, _ := setupTestServer(t)

	result, err := srv.handleStartDrawing(context.Background(), call("start_drawing", map[string]any{}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: missing or empty 'prompt' parameter")
}

func TestStartDrawing_InvalidSize(t *testing.T) {
	srv, _ := setupTestServer(t)

	result, err := srv.handleStartDrawing(context.Background(), call("start_drawing", map[string]any{
		"prompt": "x",
		"width":  "wide",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: 'width' must be a number")

	result, err = srv.handleStartDrawing(context.Background(), call("start_drawing", map[string]any{
		"prompt": "x",
		"height": float64(-4),
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: 'height' must be a positive integer")
}

func TestStartDrawing_InProgress(t *testing.T) {
	srv, _ := setupTestServer(t)
	startDrawing(t, srv, "first")

	result, err := srv.handleStartDrawing(context.Background(), call("start_drawing", map[string]any{"prompt": "second"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "is still in the planning phase")
}

func TestSubmitTurn_NoDrawing(t *testing.T) {
	srv, _ := setupTestServer(t)

	result, err := srv.handleSubmitTurn(context.Background(), call("submit_turn", map[string]any{
		"response": "<notes>hello</notes>",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: no drawing started")
}

func TestSubmitTurn_WrongPhase(t *testing.T) {
	srv, _ := setupTestServer(t)
	startDrawing(t, srv, "a tree")

	result, err := srv.handleSubmitTurn(context.Background(), call("submit_turn", map[string]any{
		"response": "<notes>hello</notes>",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: drawing is in the planning phase, not drawing")
}

func TestSubmitTurn_MalformedKeepsDrawing(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupTestServer(t)
	startDrawing(t, srv, "a tree")
	_, err := srv.handleSubmitPlan(ctx, call("submit_plan", map[string]any{"notes": "trunk then leaves"}))
	require.NoError(t, err)

	result, err := srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
		"response": "<notes>trunk<svg-elements><rect/></svg-elements>",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: malformed response")

	result, err = srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
		"response": "<svg-elements><rect/></svg-elements>",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: response has no <notes> section")

	result, err = srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
		"response": `<notes>trunk</notes><svg-elements><rect width="5" height="40"/></svg-elements>`,
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "Iteration 1 committed as layer-1.")
}

func TestSubmitTurn_MaxIterations(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupTestServer(t)
	startDrawing(t, srv, "dots")
	_, err := srv.handleSubmitPlan(ctx, call("submit_plan", map[string]any{"notes": "three dots"}))
	require.NoError(t, err)

	var text string
	for i := 0; i < 3; i++ {
		result, err := srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
			"response": `<notes>dot</notes><svg-elements><circle r="2"/></svg-elements>`,
		}))
		require.NoError(t, err)
		text = extractText(result)
		if i == 1 {
			assert.Contains(t, text, "This is your final iteration.")
		}
	}
	assert.Contains(t, text, "Iteration 3 committed as layer-3.")
	assert.Contains(t, text, "Drawing finished (max iterations reached)")

	result, err := srv.handleSubmitTurn(ctx, call("submit_turn", map[string]any{
		"response": "<notes>one more</notes>",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: drawing is in the statement phase, not drawing")
}

func TestViewCanvas(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupTestServer(t)

	result, err := srv.handleViewCanvas(ctx, call("view_canvas", nil))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: no drawing started")

	startDrawing(t, srv, "empty")

	result, err = srv.handleViewCanvas(ctx, call("view_canvas", nil))
	require.NoError(t, err)
	assert.Equal(t, "Layers: No layers yet.", extractText(result))
	require.Len(t, result.Content, 2)

	result, err = srv.handleViewCanvas(ctx, call("view_canvas", map[string]any{"format": "gif"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: unknown format 'gif'")
}

func TestSubmitStatement_Validation(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupTestServer(t)
	startDrawing(t, srv, "x")

	result, err := srv.handleSubmitStatement(ctx, call("submit_statement", map[string]any{}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "error: missing or empty 'statement' parameter")

	result, err = srv.handleSubmitStatement(ctx, call("submit_statement", map[string]any{"statement": "too early"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(result), "not statement")
}

func TestDrawingStatus_NoDrawing(t *testing.T) {
	srv, _ := setupTestServer(t)

	result, err := srv.handleDrawingStatus(context.Background(), call("drawing_status", nil))
	require.NoError(t, err)
	assert.Equal(t, "No drawing started", extractText(result))
}

func TestServerStartStop(t *testing.T) {
	srv, _ := setupTestServer(t)

	port, err := srv.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.Contains(t, srv.URL(), "/mcp")

	_, err = srv.Start(context.Background(), "")
	assert.Error(t, err)

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
}
