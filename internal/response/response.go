// Package response turns a model's raw turn output into a structured Turn.
//
// The expected grammar is small:
//
//	<notes> ... </notes>                     exactly once, required
//	<svg-elements> ... </svg-elements>       at most once
//	<status>continue|done</status>           at most once, inside or next to the drawing section
//
// Text outside the sections is ignored. Anything else that looks like a
// section marker but does not follow the grammar is rejected instead of
// being repaired.
package response

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/monet/internal/markup"
)

// Section marker names.
const (
	SectionNotes   = "notes"
	SectionDrawing = "svg-elements"
	SectionStatus  = "status"
)

// definitionElements are routed to the definitions pool instead of the layer.
var definitionElements = map[string]bool{
	"linearGradient": true,
	"radialGradient": true,
	"filter":         true,
	"pattern":        true,
	"clipPath":       true,
	"mask":           true,
	"marker":         true,
	"symbol":         true,
}

// Definition is a reusable element extracted from the drawing section.
// ID is empty when the model did not give the element an id.
type Definition struct {
	ID      string
	Element string
	Markup  string
}

// Turn is the structured result of one model turn.
type Turn struct {
	Notes       string
	Layer       string       // Non-definition top-level elements, in order
	Definitions []Definition // Definition elements, in order
	Done        bool
	HasDrawing  bool // A drawing section was present, even if empty
}

// Empty reports whether the turn carries no drawing content at all.
func (t *Turn) Empty() bool {
	return strings.TrimSpace(t.Layer) == "" && len(t.Definitions) == 0
}

// MissingNotesError is returned when the notes section is absent or empty.
type MissingNotesError struct{}

func (e *MissingNotesError) Error() string {
	return "response has no <notes> section"
}

// MalformedResponseError is returned when section markers are unterminated,
// nested, duplicated or the drawing content cannot be split into elements.
type MalformedResponseError struct {
	Reason string
	Offset int
	Err    error
}

func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("malformed response at offset %d: %s", e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

type marker struct {
	name  string
	open  bool
	start int // offset of '<'
	end   int // offset just past '>'
}

type section struct {
	name  string
	body  string
	start int
}

// Parse extracts a Turn from raw model output.
func Parse(raw string) (*Turn, error) {
	sections, err := scan(raw)
	if err != nil {
		return nil, err
	}

	turn := &Turn{}
	notesSeen := false
	statusSeen := false
	for _, s := range sections {
		switch s.name {
		case SectionNotes:
			if notesSeen {
				return nil, &MalformedResponseError{Reason: "duplicate <notes> section", Offset: s.start}
			}
			notesSeen = true
			turn.Notes = strings.TrimSpace(s.body)
		case SectionDrawing:
			if turn.HasDrawing {
				return nil, &MalformedResponseError{Reason: "duplicate <svg-elements> section", Offset: s.start}
			}
			turn.HasDrawing = true
			if err := splitDrawing(turn, s); err != nil {
				return nil, err
			}
		case SectionStatus:
			if statusSeen {
				return nil, &MalformedResponseError{Reason: "duplicate <status> marker", Offset: s.start}
			}
			statusSeen = true
			done, err := parseStatus(s)
			if err != nil {
				return nil, err
			}
			turn.Done = done
		}
	}

	if turn.Notes == "" {
		return nil, &MissingNotesError{}
	}
	return turn, nil
}

// scan finds section markers and pairs them. The status section may sit
// inside the drawing section, in which case it is cut out of the drawing
// body. Every other nesting is an error.
func scan(raw string) ([]section, error) {
	var (
		sections []section
		stack    []marker
		parts    []string // drawing body pieces around a nested status
		from     int      // start of the current drawing piece
	)
	for _, m := range findMarkers(raw) {
		if m.open {
			if len(stack) > 0 {
				outer := stack[len(stack)-1]
				if outer.name != SectionDrawing || m.name != SectionStatus {
					return nil, &MalformedResponseError{
						Reason: fmt.Sprintf("<%s> nested inside <%s>", m.name, outer.name),
						Offset: m.start,
					}
				}
				parts = append(parts, raw[from:m.start])
			}
			if m.name == SectionDrawing {
				parts = nil
				from = m.end
			}
			stack = append(stack, m)
			continue
		}

		if len(stack) == 0 {
			return nil, &MalformedResponseError{Reason: fmt.Sprintf("</%s> without opening marker", m.name), Offset: m.start}
		}
		open := stack[len(stack)-1]
		if open.name != m.name {
			return nil, &MalformedResponseError{
				Reason: fmt.Sprintf("<%s> closed by </%s>", open.name, m.name),
				Offset: m.start,
			}
		}
		stack = stack[:len(stack)-1]

		switch {
		case m.name == SectionDrawing:
			parts = append(parts, raw[from:m.start])
			sections = append(sections, section{name: m.name, body: strings.Join(parts, ""), start: open.start})
		case len(stack) > 0:
			// status nested in the drawing section
			sections = append(sections, section{name: m.name, body: raw[open.end:m.start], start: open.start})
			from = m.end
		default:
			sections = append(sections, section{name: m.name, body: raw[open.end:m.start], start: open.start})
		}
	}
	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("unterminated <%s>", open.name), Offset: open.start}
	}

	sort.SliceStable(sections, func(i, j int) bool { return sections[i].start < sections[j].start })
	return sections, nil
}

// findMarkers returns every section marker in offset order. Matching is
// ASCII case-insensitive so offsets stay aligned with raw.
func findMarkers(raw string) []marker {
	lower := asciiLower(raw)
	var out []marker
	for _, name := range []string{SectionNotes, SectionDrawing, SectionStatus} {
		for _, open := range []bool{true, false} {
			tag := "<" + name + ">"
			if !open {
				tag = "</" + name + ">"
			}
			from := 0
			for {
				i := strings.Index(lower[from:], tag)
				if i < 0 {
					break
				}
				start := from + i
				out = append(out, marker{name: name, open: open, start: start, end: start + len(tag)})
				from = start + len(tag)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func splitDrawing(turn *Turn, s section) error {
	nodes, err := markup.TopLevel(s.body)
	if err != nil {
		return &MalformedResponseError{Reason: "drawing content is not well-formed", Offset: s.start, Err: err}
	}

	var layer []string
	for _, n := range nodes {
		switch {
		case n.Kind == markup.KindElement && n.Name == "defs":
			children, err := markup.TopLevel(n.Inner())
			if err != nil {
				return &MalformedResponseError{Reason: "<defs> content is not well-formed", Offset: s.start, Err: err}
			}
			for _, c := range children {
				if c.Kind != markup.KindElement {
					continue
				}
				turn.Definitions = append(turn.Definitions, Definition{ID: c.ID, Element: c.Name, Markup: c.Raw})
			}
		case n.Kind == markup.KindElement && definitionElements[n.Name]:
			turn.Definitions = append(turn.Definitions, Definition{ID: n.ID, Element: n.Name, Markup: n.Raw})
		default:
			layer = append(layer, strings.TrimSpace(n.Raw))
		}
	}
	turn.Layer = strings.Join(layer, "\n")
	return nil
}

func parseStatus(s section) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s.body)) {
	case "done", "complete", "finished":
		return true, nil
	case "continue", "":
		return false, nil
	default:
		return false, &MalformedResponseError{
			Reason: fmt.Sprintf("unknown status %q", strings.TrimSpace(s.body)),
			Offset: s.start,
		}
	}
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
