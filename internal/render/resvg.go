package render

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Resvg shells out to the resvg command line tool.
type Resvg struct {
	Path string
}

// Render writes source to a temp dir, runs resvg and reads the PNG back.
func (r *Resvg) Render(ctx context.Context, source string, scale float64) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "monet-render-*")
	if err != nil {
		return nil, &Error{Backend: BackendResvg, Err: err}
	}
	defer os.RemoveAll(workDir)

	in := filepath.Join(workDir, "canvas.svg")
	out := filepath.Join(workDir, "canvas.png")
	if err := os.WriteFile(in, []byte(source), 0o644); err != nil {
		return nil, &Error{Backend: BackendResvg, Err: err}
	}

	args := []string{}
	if scale > 0 && scale != 1 {
		args = append(args, "--zoom", strconv.FormatFloat(scale, 'f', -1, 32))
	}
	args = append(args, in, out)

	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &Error{Backend: BackendResvg, Detail: strings.TrimSpace(stderr.String()), Err: err}
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, &Error{Backend: BackendResvg, Err: err}
	}
	if len(png) == 0 {
		return nil, &Error{Backend: BackendResvg, Err: errors.New("resvg produced an empty image")}
	}
	return png, nil
}
