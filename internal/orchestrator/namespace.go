package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mark3labs/monet/internal/canvas"
	"github.com/mark3labs/monet/internal/response"
)

// namespace gives every definition of a turn an iteration-scoped id that is
// free both in the turn and in the pool (taken reports pool ids). Bare ids
// become "iter<N>-<id>", ids already carrying this iteration's prefix are
// kept, ids prefixed for another iteration are prefixed again and unnamed
// definitions become "iter<N>-def<k>". A clash gets a "-<n>" suffix.
// References to renamed ids are rewritten in the layer and in the turn's own
// definitions; the first definition of a repeated id wins.
func namespace(turn *response.Turn, iteration int, taken func(string) bool) ([]canvas.Definition, string) {
	prefix := fmt.Sprintf("iter%d-", iteration)
	renames := make(map[string]string)
	defs := make([]canvas.Definition, len(turn.Definitions))
	used := make(map[string]bool)
	free := func(id string) bool {
		return !used[id] && (taken == nil || !taken(id))
	}
	claim := func(base string) string {
		id := base
		for n := 2; !free(id); n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		used[id] = true
		return id
	}

	// Named definitions first so they keep their natural ids.
	for i, d := range turn.Definitions {
		if d.ID == "" {
			continue
		}
		base := d.ID
		if k, ok := canvas.IDIteration(d.ID); !ok || k != iteration {
			base = prefix + d.ID
		}
		id := claim(base)
		markup := d.Markup
		if id != d.ID {
			markup = renameID(markup, d.ID, id)
			if _, seen := renames[d.ID]; !seen {
				renames[d.ID] = id
			}
		}
		defs[i] = canvas.Definition{ID: id, Markup: markup, Iteration: iteration}
	}

	unnamed := 0
	for i, d := range turn.Definitions {
		if d.ID != "" {
			continue
		}
		var id string
		for {
			unnamed++
			id = fmt.Sprintf("%sdef%d", prefix, unnamed)
			if free(id) {
				break
			}
		}
		used[id] = true
		defs[i] = canvas.Definition{ID: id, Markup: injectID(d.Markup, id), Iteration: iteration}
	}

	if len(renames) == 0 {
		return defs, turn.Layer
	}
	r := referenceReplacer(renames)
	for i := range defs {
		defs[i].Markup = r.Replace(defs[i].Markup)
	}
	return defs, r.Replace(turn.Layer)
}

func referenceReplacer(renames map[string]string) *strings.Replacer {
	var pairs []string
	for from, to := range renames {
		pairs = append(pairs,
			"url(#"+from+")", "url(#"+to+")",
			"url('#"+from+"')", "url('#"+to+"')",
			`url("#`+from+`")`, `url("#`+to+`")`,
			`href="#`+from+`"`, `href="#`+to+`"`,
			`href='#`+from+`'`, `href='#`+to+`'`,
		)
	}
	return strings.NewReplacer(pairs...)
}

// renameID rewrites the first id attribute equal to from.
func renameID(markup, from, to string) string {
	for _, q := range []string{`"`, `'`} {
		old := "id=" + q + from + q
		for at := 0; ; {
			i := strings.Index(markup[at:], old)
			if i < 0 {
				break
			}
			i += at
			if i > 0 && isSpace(markup[i-1]) {
				return markup[:i] + "id=" + q + to + q + markup[i+len(old):]
			}
			at = i + len(old)
		}
	}
	return markup
}

// injectID adds an id attribute to the start tag of markup.
func injectID(markup, id string) string {
	if !strings.HasPrefix(markup, "<") {
		return markup
	}
	i := 1
	for i < len(markup) && !isSpace(markup[i]) && markup[i] != '/' && markup[i] != '>' {
		i++
	}
	return markup[:i] + ` id="` + id + `"` + markup[i:]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
