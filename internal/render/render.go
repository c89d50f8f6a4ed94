// Package render rasterizes canvas documents to PNG.
package render

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Renderer turns a complete SVG document into PNG bytes. Scale multiplies
// the document's pixel size; 1 renders at native size.
type Renderer interface {
	Render(ctx context.Context, source string, scale float64) ([]byte, error)
}

// Error is returned when a document cannot be rasterized.
type Error struct {
	Backend string
	Detail  string // Tool output, if any
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("render (%s): %v", e.Backend, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Backend names accepted by New.
const (
	BackendAuto   = "auto"
	BackendResvg  = "resvg"
	BackendNative = "native"
)

// New returns the named backend. "auto" (or empty) picks resvg when the
// binary can be found and the native rasterizer otherwise.
func New(backend, resvgPath string) (Renderer, error) {
	switch strings.ToLower(backend) {
	case BackendResvg:
		path, err := lookResvg(resvgPath)
		if err != nil {
			return nil, err
		}
		return &Resvg{Path: path}, nil
	case BackendNative:
		return &Native{}, nil
	case BackendAuto, "":
		if path, err := lookResvg(resvgPath); err == nil {
			return &Resvg{Path: path}, nil
		}
		return &Native{}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q (expected %s, %s or %s)", backend, BackendAuto, BackendResvg, BackendNative)
	}
}

func lookResvg(path string) (string, error) {
	if path == "" {
		path = "resvg"
	}
	found, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("resvg not found: %w", err)
	}
	return found, nil
}
