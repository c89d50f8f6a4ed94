package tui

import (
	"strings"

	"charm.land/glamour/v2"
)

// renderMarkdown renders markdown with glamour, falling back to plain
// wrapping if rendering fails.
func renderMarkdown(content string, width int) string {
	if width > 100 {
		width = 100
	}
	if width < 20 {
		width = 20
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return wrapText(content, width)
	}
	rendered, err := r.Render(content)
	if err != nil {
		return wrapText(content, width)
	}
	return strings.Trim(rendered, "\n")
}

// wrapText wraps on word boundaries.
func wrapText(content string, width int) string {
	var out []string
	for _, para := range strings.Split(content, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) > width:
				out = append(out, line)
				line = word
			default:
				line += " " + word
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// lastLines keeps at most n lines of s, marking the cut.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(append([]string{"…"}, lines[len(lines)-n:]...), "\n")
}
