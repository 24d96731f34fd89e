// Package render holds the shared visitor-base protocol every format
// engine builds on:
// a Context tracking paragraph/list/char-style state while a run stream
// is walked, a Renderer interface each format engine implements, and the
// ProcessRuns driver that walks an ir.RunList and dispatches to it.
package render

import (
	"path/filepath"
	"strconv"
	"strings"

	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// ListState mirrors the current paragraph's list membership, derived
// from the most recent ParRun.
type ListState struct {
	Level int
	Type  ir.ListType
	Raw   string
}

// Context carries the state a run stream walk accumulates: the active
// paragraph style, a char-style stack for nested styled spans, list
// state, and whether a paragraph has been opened yet for the current
// block.
type Context struct {
	ParStyle          ir.ParRun
	charStyleStack    []ir.Style
	List              ListState
	ParagraphStarted  bool
}

// NewContext returns a Context with an empty bottom char style, so the
// stack is never popped empty.
func NewContext() *Context {
	return &Context{charStyleStack: []ir.Style{{}}}
}

// UpdatePar applies a ParRun's style/list state to the context, called
// once per "par" token before the renderer starts a new block.
func (c *Context) UpdatePar(p ir.ParRun) {
	c.ParStyle = p
	if p.List != nil {
		c.List = ListState{Level: ListLevelFromMargin(p.LeftMargin), Type: p.List.Type, Raw: p.List.Raw}
	} else {
		c.List = ListState{}
	}
}

// ListLevelFromMargin derives a list paragraph's nesting level from its
// left margin in half-inch steps: the default margin is level 1, each
// additional half inch of indent adds one.
func ListLevelFromMargin(leftmargin string) int {
	s := strings.ToLower(strings.TrimSpace(leftmargin))
	s = strings.TrimSuffix(s, "in")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 1
	}
	return 1 + int(v/0.5)
}

// PushStyle layers style onto the char style stack for a nested styled
// run.
func (c *Context) PushStyle(s ir.Style) {
	c.charStyleStack = append(c.charStyleStack, s)
}

// PopStyle removes the most recently pushed style, refusing to pop the
// bottom element.
func (c *Context) PopStyle() {
	if len(c.charStyleStack) > 1 {
		c.charStyleStack = c.charStyleStack[:len(c.charStyleStack)-1]
	}
}

// CurrentStyle merges the char style stack top to bottom, the same
// set-union/right-bias rules core/dxl uses while building a run's style
// in the first place.
func (c *Context) CurrentStyle() ir.Style {
	var out ir.Style
	for _, s := range c.charStyleStack {
		out = mergeStyle(out, s)
	}
	return out
}

func mergeStyle(a, b ir.Style) ir.Style {
	out := ir.Style{}
	marks := map[ir.StyleMark]bool{}
	for _, m := range a.Marks {
		marks[m] = true
	}
	for _, m := range b.Marks {
		marks[m] = true
	}
	for m := range marks {
		out.Marks = append(out.Marks, m)
	}
	if a.Attrs != nil || b.Attrs != nil {
		out.Attrs = &ir.StyleAttrs{}
		if a.Attrs != nil {
			*out.Attrs = *a.Attrs
		}
		if b.Attrs != nil {
			if b.Attrs.Color != "" {
				out.Attrs.Color = b.Attrs.Color
			}
			if b.Attrs.BgColor != "" {
				out.Attrs.BgColor = b.Attrs.BgColor
			}
			if b.Attrs.Size != "" {
				out.Attrs.Size = b.Attrs.Size
			}
			if b.Attrs.FontFamily != "" {
				out.Attrs.FontFamily = b.Attrs.FontFamily
			}
			if b.Attrs.Script != "" {
				out.Attrs.Script = b.Attrs.Script
			}
			seen := map[ir.FXMark]bool{}
			for _, fx := range out.Attrs.FX {
				seen[fx] = true
			}
			for _, fx := range b.Attrs.FX {
				if !seen[fx] {
					out.Attrs.FX = append(out.Attrs.FX, fx)
					seen[fx] = true
				}
			}
		}
	}
	return out
}

// ResolveAttachmentPath joins contentPath onto attachDir and refuses to
// return a result that would escape it, guarding against a maliciously
// or accidentally crafted content_path (e.g. containing "..") reaching
// outside the document's own attachment tree.
// An empty contentPath returns "", false.
func ResolveAttachmentPath(attachDir, contentPath string) (string, bool) {
	if contentPath == "" {
		return "", false
	}
	if filepath.IsAbs(contentPath) {
		return "", false
	}
	joined := filepath.Join(attachDir, contentPath)
	root, err := filepath.Abs(attachDir)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", false
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		err := &cerrors.PathEscapeError{Root: root, Resolved: resolved}
		logging.Warn("attachment reference dropped", "error", err.Error())
		return "", false
	}
	return resolved, true
}
