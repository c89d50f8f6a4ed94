// Package artifacts writes a session's output directory and reads it back.
//
// Layout:
//
//	artist-log.txt          prompt header followed by one block per committed note
//	iter-NNN.svg / .png     canvas snapshot after each drawing turn
//	final.svg / final.png   finished canvas, PNG at export scale
//	artist-statement.txt    closing statement
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/provider"
)

// File names inside an output directory.
const (
	LogFile       = "artist-log.txt"
	StatementFile = "artist-statement.txt"
	FinalSVG      = "final.svg"
	FinalPNG      = "final.png"
)

// SnapshotName returns the base name of an iteration snapshot without extension.
func SnapshotName(iteration int) string {
	return fmt.Sprintf("iter-%03d", iteration)
}

// DirName names a session directory after the first words of its prompt
// and the time it started.
func DirName(prompt string, started time.Time) string {
	words := strings.Fields(prompt)
	if len(words) > 6 {
		words = words[:6]
	}
	name := slug.Make(strings.Join(words, " "))
	if len(name) > 48 {
		name = strings.TrimRight(name[:48], "-")
	}
	if name == "" {
		name = "drawing"
	}
	return name + "-" + started.Format("20060102-150405")
}

// Writer persists artifacts for one session.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Begin starts a fresh artist log.
func (w *Writer) Begin(id, prompt string, width, height int, background string) error {
	var b strings.Builder
	b.WriteString(formatPrompt(prompt))
	fmt.Fprintf(&b, "%s %dx%d %s\n", headerCanvas, width, height, background)
	fmt.Fprintf(&b, "%s %s\n\n", headerSession, id)
	return w.write(LogFile, []byte(b.String()))
}

// Note appends one committed note to the artist log. Iteration 0 is the plan.
func (w *Writer) Note(iteration int, text string, usage provider.Usage) error {
	f, err := os.OpenFile(filepath.Join(w.dir, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening artist log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n%s\n\n%s\n\n", blockHeader(iteration), tokensLine(usage), escapeBody(strings.TrimSpace(text))); err != nil {
		return fmt.Errorf("writing artist log: %w", err)
	}
	return nil
}

// Snapshot writes iter-NNN.svg and, when png is non-empty, iter-NNN.png.
func (w *Writer) Snapshot(iteration int, source string, png []byte) error {
	base := SnapshotName(iteration)
	if err := w.write(base+".svg", []byte(source)); err != nil {
		return err
	}
	if len(png) > 0 {
		return w.write(base+".png", png)
	}
	return nil
}

// Final writes final.svg and final.png.
func (w *Writer) Final(source string, png []byte) error {
	if err := w.write(FinalSVG, []byte(source)); err != nil {
		return err
	}
	if len(png) > 0 {
		return w.write(FinalPNG, png)
	}
	return nil
}

// Statement writes the artist statement.
func (w *Writer) Statement(text string) error {
	return w.write(StatementFile, []byte(strings.TrimSpace(text)+"\n"))
}

func (w *Writer) write(name string, data []byte) error {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	logger.Debug("Wrote %s (%d bytes)", path, len(data))
	return nil
}
