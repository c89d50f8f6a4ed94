package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/monet/internal/canvas"
)

// Record is a finished or interrupted session read back from disk.
type Record struct {
	Dir       string
	Log       *Log
	Document  *canvas.Document
	Source    string // file the document was read from, empty for a blank canvas
	Statement string
	Snapshots []int
}

// Load reads an output directory. The document comes from final.svg, then
// the newest snapshot, then a blank canvas sized from the log header.
func Load(dir string) (*Record, error) {
	f, err := os.Open(filepath.Join(dir, LogFile))
	if err != nil {
		return nil, fmt.Errorf("opening artist log: %w", err)
	}
	defer f.Close()

	log, err := ParseLog(f)
	if err != nil {
		return nil, err
	}

	snapshots, err := Snapshots(dir)
	if err != nil {
		return nil, err
	}

	rec := &Record{Dir: dir, Log: log, Snapshots: snapshots}

	candidates := []string{FinalSVG}
	for i := len(snapshots) - 1; i >= 0; i-- {
		candidates = append(candidates, SnapshotName(snapshots[i])+".svg")
	}
	for _, name := range candidates {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		doc, err := canvas.Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		rec.Document = doc
		rec.Source = name
		break
	}
	if rec.Document == nil {
		rec.Document = canvas.New(log.Width, log.Height, log.Background)
	}

	statement, err := os.ReadFile(filepath.Join(dir, StatementFile))
	switch {
	case err == nil:
		rec.Statement = strings.TrimSpace(string(statement))
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading statement: %w", err)
	}

	return rec, nil
}

// Snapshots lists the iteration numbers of iter-NNN.svg files in dir, ascending.
func Snapshots(dir string) ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "iter-*.svg"))
	if err != nil {
		return nil, err
	}
	var out []int
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "iter-"), ".svg")
		n, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// SnapshotSource reads the SVG source of one iteration snapshot.
func SnapshotSource(dir string, iteration int) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, SnapshotName(iteration)+".svg"))
	if err != nil {
		return "", fmt.Errorf("reading snapshot %d: %w", iteration, err)
	}
	return string(data), nil
}
