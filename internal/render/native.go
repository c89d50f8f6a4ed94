package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Native rasterizes in-process with oksvg. It supports a subset of SVG
// (no filters or text), which is enough for previews when resvg is absent.
type Native struct{}

// Render parses source and draws it onto an RGBA image.
func (n *Native) Render(ctx context.Context, source string, scale float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Backend: BackendNative, Err: err}
	}
	if scale <= 0 {
		scale = 1
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(source), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, &Error{Backend: BackendNative, Err: err}
	}

	w := int(math.Round(icon.ViewBox.W * scale))
	h := int(math.Round(icon.ViewBox.H * scale))
	if w <= 0 || h <= 0 {
		return nil, &Error{Backend: BackendNative, Err: errors.New("document has no size")}
	}

	icon.SetTarget(0, 0, float64(w), float64(h))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &Error{Backend: BackendNative, Err: err}
	}
	return buf.Bytes(), nil
}
