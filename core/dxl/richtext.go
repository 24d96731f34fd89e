package dxl

import (
	"encoding/json"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// richTextParser is the richtext state-machine sub-walker: it turns
// one richtext-bearing element's children into a typed ir.RunList,
// handling the dialect's awkward corners (style tails, icon pictures,
// duplicate empty paragraphs, adjacent-text merging). It is re-entered
// for each table cell and each section half, sharing the parent's
// inline-image counter by pointer.
type richTextParser struct {
	pardefs      map[string]parAttrs
	iconPictures map[*xmlquery.Node]bool
	imageCounter *int
	linksHTTP    *[]string
	linksNotes   *[]ir.NotesLink

	runs       ir.RunList
	styleStack []ir.Style

	lastPar       *parAttrs
	parHasContent bool
	parOpened     bool
}

func newRichTextParser(pardefs map[string]parAttrs, iconPictures map[*xmlquery.Node]bool, counter *int, httpLinks *[]string, notesLinks *[]ir.NotesLink) *richTextParser {
	return &richTextParser{
		pardefs:      pardefs,
		iconPictures: iconPictures,
		imageCounter: counter,
		linksHTTP:    httpLinks,
		linksNotes:   notesLinks,
	}
}

// sub spawns a fresh parser for a nested richtext region (table cell,
// section title/body) that shares this parser's inline-image counter and
// link collections, so nested images keep document-order numbering.
func (p *richTextParser) sub() *richTextParser {
	return newRichTextParser(p.pardefs, p.iconPictures, p.imageCounter, p.linksHTTP, p.linksNotes)
}

func (p *richTextParser) currentStyle() ir.Style {
	s := ir.Style{}
	for _, st := range p.styleStack {
		s = mergeStyle(s, st)
	}
	return s
}

// parse walks parent's children and returns the resulting run stream.
func (p *richTextParser) parse(parent *xmlquery.Node) ir.RunList {
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			p.emitText(child.Data, p.currentStyle())
		case xmlquery.ElementNode:
			p.walkElement(child)
		}
	}
	p.finalizePar()
	return p.runs
}

func (p *richTextParser) walkElement(n *xmlquery.Node) {
	switch n.Data {
	case "par":
		p.emitPar(p.parAttrsFor(n))
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.TextNode, xmlquery.CharDataNode:
				p.emitText(child.Data, p.currentStyle())
			case xmlquery.ElementNode:
				p.walkElement(child)
			}
		}
	case "font", "b", "i", "u", "strike", "sup", "sub", "run":
		p.walkStyleTag(n)
	case "picture":
		if p.iconPictures[n] {
			// Icon pictures never produce an img token.
			return
		}
		p.emitImg(n)
	case "attachmentref":
		p.emitAttachmentRef(n)
	case "table":
		p.finalizePar()
		p.runs = append(p.runs, p.parseTable(n))
		p.closeBlock()
	case "section":
		p.finalizePar()
		p.runs = append(p.runs, p.parseSection(n))
		p.closeBlock()
	case "horizrule":
		p.finalizePar()
		p.runs = append(p.runs, ir.HRRun{})
		p.closeBlock()
	case "break":
		p.ensurePar()
		p.runs = append(p.runs, ir.BRRun{})
		p.parHasContent = true
	case "link":
		p.emitLink(n)
	default:
		// Unknown inline container: descend into children with the
		// current style rather than dropping their content.
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.TextNode, xmlquery.CharDataNode:
				p.emitText(child.Data, p.currentStyle())
			case xmlquery.ElementNode:
				p.walkElement(child)
			}
		}
	}
}

// walkStyleTag handles the font-with-tail pattern: a self-closed style element
// immediately followed by a text sibling applies its style to that text
// (the "font-with-tail" pattern) and then continues normally; an element
// with its own children is processed in the ordinary push/walk/pop
// fashion.
func (p *richTextParser) walkStyleTag(n *xmlquery.Node) {
	style := styleFromTag(n)

	if n.FirstChild == nil {
		if tail := n.NextSibling; tail != nil && (tail.Type == xmlquery.TextNode || tail.Type == xmlquery.CharDataNode) {
			p.emitText(tail.Data, mergeStyle(p.currentStyle(), style))
			// Advance past the tail text so the outer loop in parse()
			// does not re-emit it under the ambient style. Safe because
			// xmlquery nodes expose NextSibling as a live link we can
			// splice past by rewriting n's successor.
			n.NextSibling = tail.NextSibling
			if tail.NextSibling != nil {
				tail.NextSibling.PrevSibling = n
			}
		}
		return
	}

	p.styleStack = append(p.styleStack, style)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			p.emitText(child.Data, p.currentStyle())
		case xmlquery.ElementNode:
			p.walkElement(child)
		}
	}
	p.styleStack = p.styleStack[:len(p.styleStack)-1]
}

func (p *richTextParser) parAttrsFor(n *xmlquery.Node) parAttrs {
	if def := attr(n, "def"); def != "" {
		if a, ok := p.pardefs[def]; ok {
			return a
		}
		logging.Warn("dxl: par references unknown pardef, using defaults", "def", def)
	}
	return parAttrs{}
}

func (p *richTextParser) ensurePar() {
	if !p.parOpened {
		p.emitPar(parAttrs{})
	}
}

// emitPar suppresses duplicate empty paragraphs: a paragraph token identical to the
// last emitted one, with no content emitted since, is suppressed.
func (p *richTextParser) emitPar(a parAttrs) {
	if p.lastPar != nil && !p.parHasContent && equalPar(*p.lastPar, a) {
		return
	}
	p.runs = append(p.runs, a.toRun())
	cp := a
	p.lastPar = &cp
	p.parHasContent = false
	p.parOpened = true
}

// finalizePar is a no-op placeholder for the render-side "finalize
// paragraph" lifecycle step; at parse time a paragraph needs no closing
// token, only its content-tracking state reset on the next block.
func (p *richTextParser) finalizePar() {}

// closeBlock resets paragraph-open state after a block token so the next
// inline content reopens a (possibly default) paragraph.
func (p *richTextParser) closeBlock() {
	p.parOpened = false
	p.parHasContent = false
}

// emitText merges adjacent text: text adjacent to a prior text run
// with identical normalized style is merged rather than starting a new
// run.
func (p *richTextParser) emitText(s string, style ir.Style) {
	if s == "" {
		return
	}
	p.ensurePar()
	if n := len(p.runs); n > 0 {
		if last, ok := p.runs[n-1].(ir.TextRun); ok && styleEqual(last.Style, style) {
			last.Text += s
			p.runs[n-1] = last
			p.parHasContent = true
			return
		}
	}
	p.runs = append(p.runs, ir.TextRun{Text: s, Style: style})
	p.parHasContent = true
}

func (p *richTextParser) emitImg(n *xmlquery.Node) {
	p.ensurePar()
	name := inlineImageName(*p.imageCounter)
	*p.imageCounter++
	p.runs = append(p.runs, ir.ImgRun{Alt: name, Name: name, Style: p.currentStyle()})
	p.parHasContent = true
}

// emitAttachmentRef always emits a token, even when the referenced file
// has no $FILE entry or icon; the stub attachment metadata entry itself
// is created separately in extractAttachmentsMetadata.
func (p *richTextParser) emitAttachmentRef(n *xmlquery.Node) {
	p.ensurePar()
	p.runs = append(p.runs, ir.AttachmentRefRun{
		Name:        attr(n, "name"),
		DisplayName: attr(n, "displayname"),
		Style:       p.currentStyle(),
	})
	p.parHasContent = true
}

func (p *richTextParser) emitLink(n *xmlquery.Node) {
	p.ensurePar()
	run := ir.LinkRun{Style: p.currentStyle()}
	if href := firstAttr(n, "href", "url"); href != "" {
		run.URL = href
		if p.linksHTTP != nil {
			*p.linksHTTP = append(*p.linksHTTP, href)
		}
	} else {
		run.Server = attr(n, "server")
		run.Replica = attr(n, "replica")
		run.UNID = attr(n, "unid")
		run.View = attr(n, "view")
		if p.linksNotes != nil {
			*p.linksNotes = append(*p.linksNotes, ir.NotesLink{
				Server: run.Server, Replica: run.Replica, UNID: run.UNID, View: run.View,
			})
		}
	}
	p.runs = append(p.runs, run)
	p.parHasContent = true
}

func styleEqual(a, b ir.Style) bool {
	az, _ := json.Marshal(a)
	bz, _ := json.Marshal(b)
	return string(az) == string(bz)
}
