// Package tui shows the progress of a drawing session.
package tui

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/provider"
)

// Config configures the App.
type Config struct {
	Prompt        string
	Session       string
	OutputDir     string
	MaxIterations int
	HideNotes     bool
	NoteLines     int                // Lines of the latest note to show (default 6)
	OnStop        func()             // Finish after the current turn and write the statement
	OnCancel      func()             // Abort immediately
	OnToggleNotes func(visible bool) // Notes panel shown or hidden
}

// App is the Bubbletea model for a running session.
type App struct {
	cfg     Config
	spinner Spinner
	width   int

	phase     string
	iteration int
	layers    int
	usage     provider.Usage
	lastNote  string
	reason    string
	statement string
	err       error
	outputDir string

	showNotes     bool
	stopRequested bool
	done          bool
	quitting      bool
}

// NewApp creates the progress view.
func NewApp(cfg Config) *App {
	if cfg.NoteLines <= 0 {
		cfg.NoteLines = 6
	}
	return &App{
		cfg:       cfg,
		spinner:   NewSpinner(),
		width:     80,
		phase:     "planning",
		showNotes: !cfg.HideNotes,
	}
}

// Init starts the spinner.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick()
}

// Update handles messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return a, a.handleKey(msg.String())

	case tea.WindowSizeMsg:
		a.width = msg.Width

	case PhaseMsg:
		a.phase = msg.Phase
		if msg.Reason != "" {
			a.reason = msg.Reason
		}

	case TurnStartMsg:
		a.phase = msg.Phase
		a.iteration = msg.Iteration
		if msg.MaxIterations > 0 {
			a.cfg.MaxIterations = msg.MaxIterations
		}

	case TurnEndMsg:
		a.iteration = msg.Iteration
		a.usage = msg.Total
		if msg.Note != "" {
			a.lastNote = msg.Note
		}
		if msg.NewLayer {
			a.layers++
		}

	case StatementMsg:
		a.statement = msg.Text
		a.usage = msg.Total

	case FailedMsg:
		a.err = msg.Err

	case DoneMsg:
		a.done = true
		a.outputDir = msg.OutputDir

	default:
		return a, a.spinner.Update(msg)
	}
	return a, nil
}

func (a *App) handleKey(key string) tea.Cmd {
	switch key {
	case "n":
		a.showNotes = !a.showNotes
		if a.cfg.OnToggleNotes != nil {
			a.cfg.OnToggleNotes(a.showNotes)
		}
	case "q", "esc":
		if a.done {
			a.quitting = true
			return tea.Quit
		}
		a.requestStop()
	case "ctrl+c":
		if a.done {
			a.quitting = true
			return tea.Quit
		}
		if a.stopRequested {
			logger.Warn("Abort requested from TUI")
			if a.cfg.OnCancel != nil {
				a.cfg.OnCancel()
			}
			a.quitting = true
			return tea.Quit
		}
		a.requestStop()
	}
	return nil
}

func (a *App) requestStop() {
	if a.stopRequested {
		return
	}
	a.stopRequested = true
	logger.Info("Stop requested from TUI")
	if a.cfg.OnStop != nil {
		a.cfg.OnStop()
	}
}

// View renders the progress screen.
func (a *App) View() tea.View {
	var view tea.View
	if a.quitting {
		view.Content = lipgloss.NewLayer("")
		return view
	}
	view.Content = lipgloss.NewLayer(a.render())
	return view
}

func (a *App) render() string {
	width := a.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("monet"))
	if a.cfg.Session != "" {
		b.WriteString(styleHint.Render("  " + a.cfg.Session))
	}
	b.WriteString("\n")
	b.WriteString(stylePrompt.Render(truncate(a.cfg.Prompt, width)))
	b.WriteString("\n\n")

	b.WriteString(a.statusLine())
	b.WriteString("\n")
	if a.cfg.MaxIterations > 0 {
		b.WriteString(progressBar(a.iteration, a.cfg.MaxIterations, min(40, width-12)))
		b.WriteString(styleLabel.Render(fmt.Sprintf(" %d/%d", a.iteration, a.cfg.MaxIterations)))
		b.WriteString("\n")
	}
	b.WriteString(styleLabel.Render("layers ") + styleValue.Render(fmt.Sprintf("%d", a.layers)))
	b.WriteString(styleLabel.Render("  tokens ") + styleValue.Render(formatUsage(a.usage)))
	b.WriteString("\n")

	if a.showNotes && a.lastNote != "" && a.statement == "" {
		b.WriteString("\n")
		b.WriteString(styleNote.Width(min(100, width-2)).Render(lastLines(wrapText(a.lastNote, min(96, width-4)), a.cfg.NoteLines)))
		b.WriteString("\n")
	}
	if a.statement != "" {
		b.WriteString("\n")
		b.WriteString(renderMarkdown(a.statement, width-2))
		b.WriteString("\n")
	}
	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(styleError.Render("Error: ") + a.err.Error())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styleHint.Render(a.hints()))
	return b.String()
}

func (a *App) statusLine() string {
	switch {
	case a.err != nil:
		return styleError.Render("✗ failed")
	case a.done:
		line := styleDone.Render("✓ finished")
		if a.outputDir != "" {
			line += styleLabel.Render("  " + a.outputDir)
		}
		return line
	}
	line := a.spinner.View() + " " + stylePhase.Render(a.phase)
	if a.phase == "drawing" && a.iteration > 0 {
		line += styleLabel.Render(fmt.Sprintf("  iteration %d", a.iteration))
	}
	if a.reason != "" {
		line += styleLabel.Render("  (" + a.reason + ")")
	}
	if a.stopRequested {
		line += styleWarn.Render("  stopping after this turn")
	}
	return line
}

func (a *App) hints() string {
	switch {
	case a.done:
		return "q quit"
	case a.stopRequested:
		return "n notes • ctrl+c abort"
	default:
		return "n notes • q finish early • ctrl+c twice abort"
	}
}

func progressBar(done, total, width int) string {
	if width < 4 {
		width = 4
	}
	filled := 0
	if total > 0 {
		filled = min(width, done*width/total)
	}
	return styleBarFull.Render(strings.Repeat("█", filled)) + styleBarRest.Render(strings.Repeat("░", width-filled))
}

func formatUsage(u provider.Usage) string {
	s := fmt.Sprintf("%d in / %d out", u.InputTokens, u.OutputTokens)
	if u.CacheReadTokens > 0 {
		s += fmt.Sprintf(" / %d cached", u.CacheReadTokens)
	}
	if u.ThinkingTokens > 0 {
		s += fmt.Sprintf(" / %d thinking", u.ThinkingTokens)
	}
	return s
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if width > 1 && len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
