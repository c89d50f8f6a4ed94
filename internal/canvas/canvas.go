// Package canvas holds the accumulating SVG document a session draws on.
//
// A Document is an append-only log: layers are added in sequence order and
// definitions are added to a pool keyed by id. Neither is ever removed,
// replaced or reordered.
package canvas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/monet/internal/markup"
)

// Default frame values.
const (
	DefaultWidth      = 800
	DefaultHeight     = 600
	DefaultBackground = "#FFFFFF"
)

// Layer is one drawing turn's visual contribution.
type Layer struct {
	Index     int    // 0-based sequence index
	Markup    string // Raw fragment, trimmed
	Iteration int    // Iteration that produced the layer
}

// ID returns the element id used for the layer's group in the rendered document.
func (l Layer) ID() string {
	return fmt.Sprintf("layer-%d", l.Index+1)
}

// Definition is a reusable named resource (gradient, filter, pattern...).
type Definition struct {
	ID        string
	Markup    string
	Iteration int
}

// DuplicateDefinitionError is returned when a definition id is already in
// the pool. Callers must namespace ids per iteration before adding them.
type DuplicateDefinitionError struct {
	ID        string
	Iteration int // Iteration of the definition already holding the id
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate definition id %q (already defined by iteration %d)", e.ID, e.Iteration)
}

// Document is the in-memory canvas: a fixed frame, a definitions pool and
// an ordered layer sequence.
type Document struct {
	width      int
	height     int
	background string
	layers     []Layer
	defs       []Definition   // insertion order, for deterministic output
	defIndex   map[string]int // id -> position in defs
}

// New creates an empty document. Zero or empty frame values fall back to
// the defaults.
func New(width, height int, background string) *Document {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if strings.TrimSpace(background) == "" {
		background = DefaultBackground
	}
	return &Document{
		width:      width,
		height:     height,
		background: background,
		defIndex:   make(map[string]int),
	}
}

// Width returns the canvas width in pixels.
func (d *Document) Width() int { return d.width }

// Height returns the canvas height in pixels.
func (d *Document) Height() int { return d.height }

// Background returns the background color.
func (d *Document) Background() string { return d.background }

// Layers returns a copy of the layer sequence.
func (d *Document) Layers() []Layer {
	out := make([]Layer, len(d.layers))
	copy(out, d.layers)
	return out
}

// Definitions returns a copy of the definitions pool in insertion order.
func (d *Document) Definitions() []Definition {
	out := make([]Definition, len(d.defs))
	copy(out, d.defs)
	return out
}

// HasDefinition reports whether id is already in the pool.
func (d *Document) HasDefinition(id string) bool {
	_, ok := d.defIndex[id]
	return ok
}

// AppendLayer appends a fragment at the next sequence index. The fragment
// must be non-empty; its well-formedness is not checked here.
func (d *Document) AppendLayer(fragment string, iteration int) (Layer, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return Layer{}, fmt.Errorf("layer fragment is empty")
	}
	layer := Layer{Index: len(d.layers), Markup: fragment, Iteration: iteration}
	d.layers = append(d.layers, layer)
	return layer, nil
}

// AddDefinitions adds every entry to the pool. If any id is already present
// (or repeated within entries) nothing is added and a
// *DuplicateDefinitionError is returned.
func (d *Document) AddDefinitions(entries []Definition, iteration int) error {
	if err := d.checkDefinitions(entries); err != nil {
		return err
	}
	for _, e := range entries {
		d.defIndex[e.ID] = len(d.defs)
		d.defs = append(d.defs, Definition{ID: e.ID, Markup: strings.TrimSpace(e.Markup), Iteration: iteration})
	}
	return nil
}

// Apply commits one turn: definitions first, then the layer. Either both
// succeed or the document is left exactly as it was. An empty fragment
// commits definitions only and returns a nil layer.
func (d *Document) Apply(entries []Definition, fragment string, iteration int) (*Layer, error) {
	if err := d.checkDefinitions(entries); err != nil {
		return nil, err
	}
	// Checked above, cannot fail.
	_ = d.AddDefinitions(entries, iteration)
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	layer, err := d.AppendLayer(fragment, iteration)
	if err != nil {
		return nil, err
	}
	return &layer, nil
}

func (d *Document) checkDefinitions(entries []Definition) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("definition has no id")
		}
		if i, ok := d.defIndex[e.ID]; ok {
			return &DuplicateDefinitionError{ID: e.ID, Iteration: d.defs[i].Iteration}
		}
		if seen[e.ID] {
			return &DuplicateDefinitionError{ID: e.ID, Iteration: e.Iteration}
		}
		seen[e.ID] = true
	}
	return nil
}

// RenderSource serializes the document: frame, background, defs pool, then
// layers in sequence order. Identical document state always yields
// byte-identical output.
func (d *Document) RenderSource() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">`,
		d.width, d.height, d.width, d.height)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="%s"/>`, d.width, d.height, escapeAttr(d.background))
	b.WriteString("\n")

	if len(d.defs) > 0 {
		b.WriteString("<defs>\n")
		for _, def := range d.defs {
			b.WriteString(def.Markup)
			b.WriteString("\n")
		}
		b.WriteString("</defs>\n")
	}

	for _, l := range d.layers {
		fmt.Fprintf(&b, `<g id="%s" data-iteration="%d">`, l.ID(), l.Iteration)
		b.WriteString("\n")
		b.WriteString(l.Markup)
		b.WriteString("\n</g>\n")
	}
	b.WriteString("</svg>\n")
	return b.String()
}

// Summary describes the layers for the model, e.g. "layer-1: ~4 elements".
func (d *Document) Summary() string {
	if len(d.layers) == 0 {
		return "No layers yet."
	}
	parts := make([]string, 0, len(d.layers))
	for _, l := range d.layers {
		parts = append(parts, fmt.Sprintf("%s: ~%d elements", l.ID(), markup.CountElements(l.Markup)))
	}
	return strings.Join(parts, ", ")
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;")
	return r.Replace(s)
}

// Parse reconstructs a document from the output of RenderSource.
func Parse(source string) (*Document, error) {
	nodes, err := markup.TopLevel(strings.TrimSpace(source))
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	var root *markup.Node
	for i := range nodes {
		if nodes[i].Kind == markup.KindElement && nodes[i].Name == "svg" {
			root = &nodes[i]
			break
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parsing document: no <svg> root element")
	}

	width, err := dimension(root.Attrs, "width")
	if err != nil {
		return nil, err
	}
	height, err := dimension(root.Attrs, "height")
	if err != nil {
		return nil, err
	}

	children, err := markup.TopLevel(root.Inner())
	if err != nil {
		return nil, fmt.Errorf("parsing document body: %w", err)
	}

	doc := New(width, height, "")
	backgroundSeen := false
	for _, child := range children {
		if child.Kind != markup.KindElement {
			continue
		}
		switch child.Name {
		case "rect":
			if !backgroundSeen {
				if fill := child.Attrs["fill"]; fill != "" {
					doc.background = fill
				}
				backgroundSeen = true
			}
		case "defs":
			defs, err := markup.TopLevel(child.Inner())
			if err != nil {
				return nil, fmt.Errorf("parsing defs: %w", err)
			}
			for _, def := range defs {
				if def.Kind != markup.KindElement {
					continue
				}
				iter, _ := IDIteration(def.ID)
				entry := Definition{ID: def.ID, Markup: def.Raw, Iteration: iter}
				if err := doc.AddDefinitions([]Definition{entry}, entry.Iteration); err != nil {
					return nil, err
				}
			}
		case "g":
			if !strings.HasPrefix(child.ID, "layer-") {
				continue
			}
			iter, err := strconv.Atoi(child.Attrs["data-iteration"])
			if err != nil || iter < 1 {
				return nil, fmt.Errorf("parsing %s: invalid data-iteration %q", child.ID, child.Attrs["data-iteration"])
			}
			inner := strings.TrimPrefix(child.Inner(), "\n")
			inner = strings.TrimSuffix(inner, "\n")
			if _, err := doc.AppendLayer(inner, iter); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", child.ID, err)
			}
		}
	}
	return doc, nil
}

// IDIteration extracts N from an "iterN-" id prefix.
func IDIteration(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "iter")
	if !ok {
		return 0, false
	}
	dash := strings.IndexByte(rest, '-')
	if dash <= 0 || dash == len(rest)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:dash])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func dimension(attrs map[string]string, name string) (int, error) {
	v, ok := attrs[name]
	if !ok {
		return 0, fmt.Errorf("parsing document: <svg> has no %s", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("parsing document: invalid %s %q", name, v)
	}
	return n, nil
}
