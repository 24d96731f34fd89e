package dxl

import (
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
)

// styleTagNames are the inline style-bearing elements the parser
// recognizes while walking richtext.
var styleTagNames = map[string]bool{
	"font": true, "b": true, "i": true, "u": true,
	"strike": true, "sup": true, "sub": true, "run": true,
}

// mergeStyle applies the style merge rules: set-union for marks,
// right-bias overwrite for scalar attributes, list-union for fx. b's
// values win on conflicting scalar attributes.
func mergeStyle(a, b ir.Style) ir.Style {
	markSet := map[ir.StyleMark]bool{}
	for _, m := range a.Marks {
		markSet[m] = true
	}
	for _, m := range b.Marks {
		markSet[m] = true
	}

	out := ir.Style{}
	if len(markSet) > 0 {
		marks := make([]ir.StyleMark, 0, len(markSet))
		for m := range markSet {
			marks = append(marks, m)
		}
		sort.Slice(marks, func(i, j int) bool { return marks[i] < marks[j] })
		out.Marks = marks
	}

	attrs := mergeAttrs(a.Attrs, b.Attrs)
	if attrs != nil {
		out.Attrs = attrs
	}
	return out
}

func mergeAttrs(a, b *ir.StyleAttrs) *ir.StyleAttrs {
	if a == nil && b == nil {
		return nil
	}
	out := &ir.StyleAttrs{}
	fxSet := map[ir.FXMark]bool{}
	var fxOrder []ir.FXMark
	apply := func(s *ir.StyleAttrs) {
		if s == nil {
			return
		}
		if s.Color != "" {
			out.Color = s.Color
		}
		if s.BgColor != "" {
			out.BgColor = s.BgColor
		}
		if s.Size != "" {
			out.Size = s.Size
		}
		if s.FontFamily != "" {
			out.FontFamily = s.FontFamily
		}
		if s.Script != "" {
			out.Script = s.Script
		}
		for _, fx := range s.FX {
			if !fxSet[fx] {
				fxSet[fx] = true
				fxOrder = append(fxOrder, fx)
			}
		}
	}
	apply(a)
	apply(b)
	if len(fxOrder) > 0 {
		out.FX = fxOrder
	}
	if attrsEmpty(out) {
		return nil
	}
	return out
}

// attrsEmpty reports whether every attribute field is unset. StyleAttrs
// carries a slice (FX), so it cannot be compared to its zero value
// directly.
func attrsEmpty(a *ir.StyleAttrs) bool {
	return a.Color == "" && a.BgColor == "" && a.Size == "" &&
		a.FontFamily == "" && a.Script == "" && len(a.FX) == 0
}

// styleFromTag derives the style contributed by a single style-bearing
// element (not its descendants). <font> carries the richest attribute
// set; the other tags each contribute one mark or script position;
// <run> only contributes a background color, accepting any of the
// highlight/background/bgcolor spellings a run container uses.
func styleFromTag(n *xmlquery.Node) ir.Style {
	switch n.Data {
	case "font":
		return styleFromFont(n)
	case "run":
		if bg := firstAttr(n, "bgcolor", "background", "highlight"); bg != "" {
			return ir.Style{Attrs: &ir.StyleAttrs{BgColor: bg}}
		}
		return ir.Style{}
	case "b":
		return ir.Style{Marks: []ir.StyleMark{ir.MarkBold}}
	case "i":
		return ir.Style{Marks: []ir.StyleMark{ir.MarkItalic}}
	case "u":
		return ir.Style{Marks: []ir.StyleMark{ir.MarkUnderline}}
	case "strike":
		return ir.Style{Marks: []ir.StyleMark{ir.MarkStrike}}
	case "sup":
		return ir.Style{Attrs: &ir.StyleAttrs{Script: ir.ScriptSuper, FX: []ir.FXMark{ir.FXSuper}}}
	case "sub":
		return ir.Style{Attrs: &ir.StyleAttrs{Script: ir.ScriptSub, FX: []ir.FXMark{ir.FXSub}}}
	default:
		return ir.Style{}
	}
}

func styleFromFont(n *xmlquery.Node) ir.Style {
	attrs := &ir.StyleAttrs{}
	if v := attr(n, "color"); v != "" {
		attrs.Color = v
	}
	if v := attr(n, "size"); v != "" {
		attrs.Size = v
	}
	if v := firstAttr(n, "bgcolor", "background", "highlight"); v != "" {
		attrs.BgColor = v
	}
	if v := attr(n, "name"); v != "" {
		attrs.FontFamily = v
	}

	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(strings.ReplaceAll(attr(n, "style"), ",", " "))) {
		words[w] = true
	}

	var marks []ir.StyleMark
	if words["bold"] {
		marks = append(marks, ir.MarkBold)
	}
	if words["italic"] {
		marks = append(marks, ir.MarkItalic)
	}
	if words["underline"] {
		marks = append(marks, ir.MarkUnderline)
	}
	if words["strikethrough"] || words["strikeout"] {
		marks = append(marks, ir.MarkStrike)
	}

	var fx []ir.FXMark
	for _, k := range []string{"shadow", "emboss", "extrude"} {
		if words[k] {
			fx = append(fx, ir.FXMark(k))
		}
	}

	baseline := firstAttr(n, "baseline", "position")
	isSuper := words["superscript"] || baseline == "super" || baseline == "superscript"
	isSub := words["subscript"] || baseline == "sub" || baseline == "subscript"
	switch {
	case isSuper && !isSub:
		attrs.Script = ir.ScriptSuper
		fx = append(fx, ir.FXSuper)
	case isSub && !isSuper:
		attrs.Script = ir.ScriptSub
		fx = append(fx, ir.FXSub)
	}
	if len(fx) > 0 {
		attrs.FX = fx
	}

	style := ir.Style{Marks: marks}
	if !attrsEmpty(attrs) {
		style.Attrs = attrs
	}
	return style
}

// attr returns the value of the named attribute, or "".
func attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// firstAttr returns the value of the first present attribute among names.
func firstAttr(n *xmlquery.Node, names ...string) string {
	for _, name := range names {
		if v := attr(n, name); v != "" {
			return v
		}
	}
	return ""
}
