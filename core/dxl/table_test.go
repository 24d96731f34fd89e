package dxl

import (
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
)

func TestParseTableColumnsRowsCells(t *testing.T) {
	root := parseFragment(t, `<table>
		<tablecolumn width="100px"/>
		<tablecolumn width="200px"/>
		<tablerow tablabel="Header">
			<tablecell colspan="2" bgcolor="#eee">head</tablecell>
		</tablerow>
		<tablerow>
			<tablecell>a</tablecell>
			<tablecell rowspan="2">b</tablecell>
		</tablerow>
	</table>`)

	counter := 0
	p := newRichTextParser(map[string]parAttrs{}, map[*xmlquery.Node]bool{}, &counter, nil, nil)
	table := p.parseTable(root)

	if len(table.Columns) != 2 || table.Columns[0].Width != "100px" {
		t.Fatalf("unexpected columns: %+v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0].Attributes["tablabel"] != "Header" {
		t.Errorf("expected tablabel preserved, got %+v", table.Rows[0].Attributes)
	}
	headCell := table.Rows[0].Cells[0]
	if headCell.Colspan != 2 || headCell.Style.BgColor != "#eee" {
		t.Errorf("unexpected head cell: %+v", headCell)
	}
	if table.Rows[1].Cells[1].Rowspan != 2 {
		t.Errorf("expected rowspan 2 on second cell, got %+v", table.Rows[1].Cells[1])
	}
}

func TestParseTableCellDefaultsSpanToOne(t *testing.T) {
	root := parseFragment(t, `<table><tablerow><tablecell>x</tablecell></tablerow></table>`)
	counter := 0
	p := newRichTextParser(map[string]parAttrs{}, map[*xmlquery.Node]bool{}, &counter, nil, nil)
	table := p.parseTable(root)
	cell := table.Rows[0].Cells[0]
	if cell.Colspan != 1 || cell.Rowspan != 1 {
		t.Errorf("expected default span of 1, got %+v", cell)
	}
}

func TestParseSectionTitleAndBody(t *testing.T) {
	root := parseFragment(t, `<section><sectiontitle>Title text</sectiontitle>Body text</section>`)
	counter := 0
	p := newRichTextParser(map[string]parAttrs{}, map[*xmlquery.Node]bool{}, &counter, nil, nil)
	section := p.parseSection(root)

	var titleText, bodyText string
	for _, r := range section.TitleRuns {
		if tr, ok := r.(ir.TextRun); ok {
			titleText += tr.Text
		}
	}
	for _, r := range section.BodyRuns {
		if tr, ok := r.(ir.TextRun); ok {
			bodyText += tr.Text
		}
	}
	if titleText != "Title text" {
		t.Errorf("unexpected title text: %q", titleText)
	}
	if bodyText != "Body text" {
		t.Errorf("unexpected body text: %q", bodyText)
	}
}

func TestParseIntDefault(t *testing.T) {
	if v := parseIntDefault("", "colspan", 1); v != 1 {
		t.Errorf("expected default 1 for empty string, got %d", v)
	}
	if v := parseIntDefault("not-a-number", "colspan", 1); v != 1 {
		t.Errorf("expected default 1 for malformed input, got %d", v)
	}
	if v := parseIntDefault("5", "colspan", 1); v != 5 {
		t.Errorf("expected 5, got %d", v)
	}
}
