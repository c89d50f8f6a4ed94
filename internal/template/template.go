package template

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/monet/internal/logger"
)

// Kind selects which system prompt to build.
type Kind string

const (
	KindPlan      Kind = "plan"
	KindDraw      Kind = "draw"
	KindStatement Kind = "statement"
)

// Variables holds the data to be injected into template placeholders.
type Variables struct {
	Width         string // Canvas width in pixels
	Height        string // Canvas height in pixels
	CenterX       string
	CenterY       string
	MaxIterations string
	Canvas        string // Canvas description block
	Guidelines    string // Numbered artistic guidelines
	Extra         string // Extra instructions
}

// Render replaces {{variable}} placeholders in template with actual values.
// Supports the following variables:
// - {{width}}, {{height}} - Canvas size in pixels
// - {{center_x}}, {{center_y}} - Canvas center
// - {{max_iterations}} - Drawing turn budget
// - {{canvas}} - Canvas description (size, coordinates, elements)
// - {{guidelines}} - Artistic guidelines
// - {{extra}} - Extra instructions (empty if none)
func Render(template string, vars Variables) string {
	result := template

	replacements := map[string]string{
		"{{width}}":          vars.Width,
		"{{height}}":         vars.Height,
		"{{center_x}}":       vars.CenterX,
		"{{center_y}}":       vars.CenterY,
		"{{max_iterations}}": vars.MaxIterations,
		"{{canvas}}":         vars.Canvas,
		"{{guidelines}}":     vars.Guidelines,
		"{{extra}}":          vars.Extra,
	}

	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}

// LoadFromFile loads a template from a file.
// If the file doesn't exist or can't be read, returns an error.
func LoadFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	return string(data), nil
}

// GetTemplate returns the template content for kind.
// A custom path only replaces the draw template; plan and statement
// prompts always use the embedded defaults.
func GetTemplate(kind Kind, customPath string) (string, error) {
	switch kind {
	case KindPlan:
		return PlanTemplate, nil
	case KindStatement:
		return StatementTemplate, nil
	case KindDraw:
		if customPath == "" {
			return DefaultTemplate, nil
		}
		return LoadFromFile(customPath)
	default:
		return "", fmt.Errorf("unknown prompt kind %q", kind)
	}
}

// BuildConfig holds configuration for building a system prompt.
type BuildConfig struct {
	Width             int
	Height            int
	MaxIterations     int
	TemplatePath      string // Path to custom draw template (optional)
	ExtraInstructions string // Extra instructions (optional)
}

// BuildPrompt returns the system prompt for kind with the canvas frame and
// budget injected.
func BuildPrompt(kind Kind, cfg BuildConfig) (string, error) {
	logger.Debug("Building %s prompt (%dx%d, max %d iterations)", kind, cfg.Width, cfg.Height, cfg.MaxIterations)

	if cfg.TemplatePath != "" && kind == KindDraw {
		logger.Debug("Using custom template: %s", cfg.TemplatePath)
	}
	templateContent, err := GetTemplate(kind, cfg.TemplatePath)
	if err != nil {
		logger.Error("Failed to get template: %v", err)
		return "", fmt.Errorf("failed to get template: %w", err)
	}

	vars := Variables{
		Width:         strconv.Itoa(cfg.Width),
		Height:        strconv.Itoa(cfg.Height),
		CenterX:       strconv.Itoa(cfg.Width / 2),
		CenterY:       strconv.Itoa(cfg.Height / 2),
		MaxIterations: strconv.Itoa(cfg.MaxIterations),
		Canvas:        CanvasDescription(cfg.Width, cfg.Height),
		Guidelines:    Guidelines(cfg.MaxIterations),
		Extra:         cfg.ExtraInstructions,
	}

	result := strings.TrimRight(Render(templateContent, vars), "\n")
	logger.Debug("Prompt rendered: %d characters", len(result))
	return result, nil
}

// CanvasDescription describes the frame and coordinate system.
func CanvasDescription(width, height int) string {
	return fmt.Sprintf(`- Size: %dx%d pixels
- Coordinate system: (0,0) is top-left, (%d,%d) is bottom-right
- Center: (%d,%d)

## Available SVG Elements
Use any standard SVG elements: <rect>, <circle>, <ellipse>, <line>, <polyline>, <polygon>, <path>, <text>, <g>, <use>, etc.
You can use transforms, gradients, filters, patterns, masks, and clip paths.`,
		width, height, width, height, width/2, height/2)
}

// Guidelines returns the numbered artistic guidelines. A positive
// maxIterations adds pacing advice for that budget.
func Guidelines(maxIterations int) string {
	lines := []string{
		"1. Work in stages: background/atmosphere, then major forms, details, refinement and final touches",
		"2. Each iteration adds a new layer. Build up complexity gradually; aim for 3-15 elements per layer.",
		"3. Never redraw the full background or cover the entire canvas. Previous layers are preserved" +
			" automatically, so only add NEW elements that build on what is already there.",
		"4. Use gradients, opacity, and blending for depth and atmosphere",
		"5. Consider composition, color harmony, and visual balance",
		"6. A good piece typically takes 8-15 iterations. Don't keep going for marginal" +
			" changes; when it looks complete, stop.",
	}
	if maxIterations > 0 {
		lines = append(lines, fmt.Sprintf("7. You have a maximum of %d iterations. Plan your work accordingly:"+
			" don't rush, but don't waste iterations either.", maxIterations))
	}
	return strings.Join(lines, "\n")
}

// TurnConfig describes the changing part of one drawing turn.
type TurnConfig struct {
	Iteration     int    // 1-based number of the turn being requested
	MaxIterations int
	LayerSummary  string
	HasNotes      bool   // Any drawing notes exist yet
	Message       string // Overrides the default hint line
}

// TurnContext builds the per-turn text sent after the canvas image.
func TurnContext(cfg TurnConfig) string {
	lines := []string{
		fmt.Sprintf("Iteration: %d of %d", cfg.Iteration, cfg.MaxIterations),
		"Layers: " + cfg.LayerSummary,
	}
	switch {
	case cfg.Message != "":
		lines = append(lines, cfg.Message)
	case !cfg.HasNotes:
		lines = append(lines, "This is the blank canvas. Begin your artwork.")
	}
	if cfg.HasNotes {
		lines = append(lines, "If your notes are repeating similar ideas, move on to the next stage or set status to done.")
	}
	return strings.Join(lines, "\n")
}
