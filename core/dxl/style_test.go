package dxl

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
)

func parseFragment(t *testing.T, xml string) *xmlquery.Node {
	t.Helper()
	doc, err := xmlquery.Parse(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("parseFragment: %v", err)
	}
	el := xmlquery.FindOne(doc, "*")
	if el == nil {
		t.Fatalf("parseFragment: no root element in %q", xml)
	}
	return el
}

func TestStyleFromTagMarks(t *testing.T) {
	cases := map[string]ir.StyleMark{
		"<b/>":      ir.MarkBold,
		"<i/>":      ir.MarkItalic,
		"<u/>":      ir.MarkUnderline,
		"<strike/>": ir.MarkStrike,
	}
	for xml, want := range cases {
		n := parseFragment(t, xml)
		style := styleFromTag(n)
		if len(style.Marks) != 1 || style.Marks[0] != want {
			t.Errorf("styleFromTag(%q) marks = %v, want [%v]", xml, style.Marks, want)
		}
	}
}

func TestStyleFromFontAttrs(t *testing.T) {
	n := parseFragment(t, `<font color="red" size="12pt" name="Arial" style="bold,italic"/>`)
	style := styleFromFont(n)
	if style.Attrs == nil {
		t.Fatal("expected non-nil Attrs")
	}
	if style.Attrs.Color != "red" || style.Attrs.Size != "12pt" || style.Attrs.FontFamily != "Arial" {
		t.Errorf("unexpected attrs: %+v", style.Attrs)
	}
	marks := map[ir.StyleMark]bool{}
	for _, m := range style.Marks {
		marks[m] = true
	}
	if !marks[ir.MarkBold] || !marks[ir.MarkItalic] {
		t.Errorf("expected bold+italic marks, got %v", style.Marks)
	}
}

func TestStyleFromFontSuperscript(t *testing.T) {
	n := parseFragment(t, `<font style="superscript"/>`)
	style := styleFromFont(n)
	if style.Attrs == nil || style.Attrs.Script != ir.ScriptSuper {
		t.Errorf("expected superscript, got %+v", style.Attrs)
	}
}

func TestMergeStyleUnionsMarksAndOverwritesAttrs(t *testing.T) {
	a := ir.Style{Marks: []ir.StyleMark{ir.MarkBold}, Attrs: &ir.StyleAttrs{Color: "red"}}
	b := ir.Style{Marks: []ir.StyleMark{ir.MarkItalic}, Attrs: &ir.StyleAttrs{Color: "blue"}}

	merged := mergeStyle(a, b)
	if len(merged.Marks) != 2 {
		t.Errorf("expected 2 merged marks, got %v", merged.Marks)
	}
	if merged.Attrs == nil || merged.Attrs.Color != "blue" {
		t.Errorf("expected b's color to win, got %+v", merged.Attrs)
	}
}

func TestMergeStyleUnionsFX(t *testing.T) {
	a := ir.Style{Attrs: &ir.StyleAttrs{FX: []ir.FXMark{ir.FXShadow}}}
	b := ir.Style{Attrs: &ir.StyleAttrs{FX: []ir.FXMark{ir.FXEmboss}}}

	merged := mergeStyle(a, b)
	if merged.Attrs == nil || len(merged.Attrs.FX) != 2 {
		t.Errorf("expected 2 fx marks, got %+v", merged.Attrs)
	}
}

func TestMergeStyleNilAttrsBothSides(t *testing.T) {
	merged := mergeStyle(ir.Style{}, ir.Style{})
	if merged.Attrs != nil || merged.Marks != nil {
		t.Errorf("expected empty merge, got %+v", merged)
	}
}
