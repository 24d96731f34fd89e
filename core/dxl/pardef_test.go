package dxl

import (
	"testing"

	"github.com/tosuru/notesdb-export/core/ir"
)

func TestPardefAttrsAlignFullBecomesJustify(t *testing.T) {
	pd := parseFragment(t, `<pardef id="1" align="full" leftmargin="36" spaceafter="6" list="bullet"/>`)
	a := pardefAttrs(pd)
	if a.Align != ir.AlignJustify {
		t.Errorf("align = %q, want justify", a.Align)
	}
	if a.LeftMargin != "36" || a.SpaceAfter != "6" {
		t.Errorf("unexpected margins: %+v", a)
	}
	if a.List == nil || a.List.Type != ir.ListBullet {
		t.Errorf("expected bullet list, got %+v", a.List)
	}
}

func TestPardefAttrsUnknownListPassesThroughRaw(t *testing.T) {
	pd := parseFragment(t, `<pardef id="2" list="customlist"/>`)
	a := pardefAttrs(pd)
	if a.List == nil || a.List.Raw != "customlist" {
		t.Errorf("expected raw customlist preserved, got %+v", a.List)
	}
}

func TestCollectPardefsKeysByID(t *testing.T) {
	root := parseFragment(t, `<document><pardef id="a" align="center"/><pardef id="b" align="right"/></document>`)
	table := collectPardefs(root)
	if len(table) != 2 {
		t.Fatalf("expected 2 pardefs, got %d", len(table))
	}
	if table["a"].Align != ir.AlignCenter || table["b"].Align != ir.AlignRight {
		t.Errorf("unexpected table: %+v", table)
	}
}

func TestEqualParComparesAttributes(t *testing.T) {
	a := parAttrs{Align: ir.AlignLeft}
	b := parAttrs{Align: ir.AlignLeft}
	if !equalPar(a, b) {
		t.Error("expected equal parAttrs to compare equal")
	}
	c := parAttrs{Align: ir.AlignRight}
	if equalPar(a, c) {
		t.Error("expected different parAttrs to compare unequal")
	}
}
