package dxl

import (
	"strconv"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// parseTable collects column widths from
// <tablecolumn>, the preserved `tablabel` row attribute, and
// colspan/rowspan promoted to cell-level fields with the remainder of a
// cell's attributes (e.g. bgcolor) folded into cell.style. Each cell's
// content is parsed by a fresh richTextParser sub-walker sharing this
// parser's inline-image counter.
func (p *richTextParser) parseTable(n *xmlquery.Node) ir.TableRun {
	table := ir.TableRun{}

	for _, col := range xmlquery.Find(n, "tablecolumn") {
		table.Columns = append(table.Columns, ir.Column{Width: attr(col, "width")})
	}

	for _, rowEl := range xmlquery.Find(n, "tablerow") {
		row := ir.Row{}
		if label := attr(rowEl, "tablabel"); label != "" {
			row.Attributes = map[string]string{"tablabel": label}
		}
		for _, cellEl := range xmlquery.Find(rowEl, "tablecell") {
			cell := ir.Cell{
				Colspan: parseIntDefault(attr(cellEl, "colspan"), "colspan", 1),
				Rowspan: parseIntDefault(attr(cellEl, "rowspan"), "rowspan", 1),
			}
			if bg := attr(cellEl, "bgcolor"); bg != "" {
				cell.Style = ir.CellStyle{BgColor: bg}
			}
			cell.Runs = p.sub().parse(cellEl)
			row.Cells = append(row.Cells, cell)
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// parseSection splits a collapsible region: a <sectiontitle> child's runs
// become TitleRuns; every other child is parsed as BodyRuns. Both halves
// share this parser's inline-image counter.
func (p *richTextParser) parseSection(n *xmlquery.Node) ir.SectionRun {
	section := ir.SectionRun{}

	titleEl := xmlquery.FindOne(n, "sectiontitle")
	if titleEl != nil {
		section.TitleRuns = p.sub().parse(titleEl)
	}

	body := p.sub()
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child == titleEl {
			continue
		}
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			body.emitText(child.Data, body.currentStyle())
		case xmlquery.ElementNode:
			body.walkElement(child)
		}
	}
	body.finalizePar()
	section.BodyRuns = body.runs

	return section
}

func parseIntDefault(s, name string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logging.Warn("dxl: non-numeric table cell attribute, using default", "attr", name, "value", s)
		return def
	}
	return v
}
