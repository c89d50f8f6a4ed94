// Package markup scans SVG markup fragments without interpreting them.
//
// The scanner works on exact byte offsets so the source text of every
// top-level element is returned verbatim. Nothing is re-serialized.
package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind distinguishes element nodes from the text between them.
type Kind int

const (
	KindElement Kind = iota
	KindText
	KindComment
)

// Node is one top-level item of a fragment.
type Node struct {
	Kind  Kind
	Name  string            // Local element name (empty for text and comments)
	ID    string            // Value of the id attribute, if any
	Attrs map[string]string // Attributes of the start tag keyed by local name
	Raw   string            // Exact source text of the node
}

// Inner returns the markup between the element's start and end tags.
// Self-closing elements have no inner markup.
func (n Node) Inner() string {
	if n.Kind != KindElement || strings.HasSuffix(n.Raw, "/>") {
		return ""
	}
	start := strings.Index(n.Raw, ">")
	end := strings.LastIndex(n.Raw, "</")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return n.Raw[start+1 : end]
}

// SyntaxError reports a fragment that cannot be split into balanced elements.
type SyntaxError struct {
	Offset int64
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("markup syntax error at offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

const (
	rootOpen  = "<monet-fragment>"
	rootClose = "</monet-fragment>"
)

// TopLevel splits a fragment into its top-level nodes, preserving order.
// Whitespace-only text between elements is dropped.
func TopLevel(fragment string) ([]Node, error) {
	src := rootOpen + fragment + rootClose
	dec := xml.NewDecoder(strings.NewReader(src))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	var (
		nodes []Node
		stack []string
		start int64 // offset of the current top-level element
		cur   Node
	)
	base := int64(len(rootOpen))

	for {
		before := dec.InputOffset()
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SyntaxError{Offset: maxOffset(dec.InputOffset()-base, 0), Err: err}
		}
		after := dec.InputOffset()

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				if t.Name.Local != "monet-fragment" {
					return nil, &SyntaxError{Offset: 0, Err: errors.New("unexpected root")}
				}
				stack = append(stack, t.Name.Local)
				continue
			}
			if len(stack) == 1 {
				start = before
				cur = Node{Kind: KindElement, Name: t.Name.Local, Attrs: attrMap(t.Attr)}
				cur.ID = cur.Attrs["id"]
			}
			stack = append(stack, qualified(t.Name))
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, &SyntaxError{Offset: before - base, Err: fmt.Errorf("unexpected </%s>", t.Name.Local)}
			}
			top := stack[len(stack)-1]
			if top != qualified(t.Name) {
				return nil, &SyntaxError{
					Offset: before - base,
					Err:    fmt.Errorf("element <%s> closed by </%s>", top, qualified(t.Name)),
				}
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 1 {
				cur.Raw = src[start:after]
				nodes = append(nodes, cur)
			}
		case xml.CharData:
			if len(stack) == 1 && len(bytes.TrimSpace(t)) > 0 {
				nodes = append(nodes, Node{Kind: KindText, Raw: src[before:after]})
			}
		case xml.Comment:
			if len(stack) == 1 {
				nodes = append(nodes, Node{Kind: KindComment, Raw: src[before:after]})
			}
		case xml.ProcInst:
			if len(stack) <= 1 {
				return nil, &SyntaxError{Offset: before - base, Err: errors.New("processing instruction in fragment")}
			}
		}
	}

	if len(stack) != 0 {
		return nil, &SyntaxError{Offset: int64(len(fragment)), Err: fmt.Errorf("unclosed <%s>", stack[len(stack)-1])}
	}
	return nodes, nil
}

// CountElements returns the number of element start tags in a fragment,
// nested ones included. Unparseable fragments count as zero.
func CountElements(fragment string) int {
	dec := xml.NewDecoder(strings.NewReader(rootOpen + fragment + rootClose))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	n := -1 // the synthetic root
	for {
		tok, err := dec.RawToken()
		if err != nil {
			break
		}
		if _, ok := tok.(xml.StartElement); ok {
			n++
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func maxOffset(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
