// Package dxl turns one DXL export record into a normalized ir.NDoc.
// It parses with github.com/antchfx/xmlquery directly: DXL's pardef/$FILE
// lookups need live XPath queries over the whole tree, and xmlquery.Node.Data already
// strips any namespace prefix, so legacy unnamespaced DXL and namespaced DXL
// are walked identically with no separate bookkeeping.
package dxl

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
)

// stripControlChars strips the C0 control characters DXL exports are
// occasionally littered with (U+0000-U+0008, U+000B, U+000C,
// U+000E-U+001F), preserving tab, LF and CR, before handing the bytes to
// the XML parser.
func stripControlChars(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch {
		case b == 0x09 || b == 0x0A || b == 0x0D:
			out = append(out, b)
		case b <= 0x08, b == 0x0B, b == 0x0C, b >= 0x0E && b <= 0x1F:
			continue
		default:
			out = append(out, b)
		}
	}
	return out
}

// primaryFieldsAllowlist is the fixed set of fields every renderer is
// expected to surface in the header rather than the appendix.
var primaryFieldsAllowlist = []string{"Subject", "From", "To", "CC", "Body", "Categories", "Created", "Modified"}

// SanitizeXML strips a leading UTF-8 BOM and every C0 control character
// forbidden by XML 1.0, the same pre-processing Parse applies before
// handing bytes to xmlquery. Exported so core/attach can re-parse the
// same DXL bytes for attachment payload lookup without duplicating this
// step.
func SanitizeXML(data []byte) []byte {
	return stripControlChars(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
}

// Parse decodes one DXL <document> record into an ir.NDoc. An XML parse
// error never surfaces as a Go error: it
// produces a minimal NDoc with meta.error set instead, so a pipeline run
// can record the failure against the record's UNID and continue with the
// rest of the database.
func Parse(data []byte, unid string) *ir.NDoc {
	doc := ir.New(unid)

	cleaned := SanitizeXML(data)
	root, err := xmlquery.Parse(bytes.NewReader(cleaned))
	if err != nil {
		doc.Meta.Error = err.Error()
		return doc
	}

	docEl := xmlquery.FindOne(root, "*")
	if docEl == nil {
		doc.Meta.Error = "dxl: no root element"
		return doc
	}

	if v := attr(docEl, "unid"); v != "" {
		doc.Meta.UNID = v
	}
	doc.Meta.Created = datetimeChild(docEl, "created")
	doc.Meta.Modified = datetimeChild(docEl, "modified")
	doc.Meta.Revised = datetimeChild(docEl, "revised")

	pardefs := collectPardefs(docEl)
	doc.Attachments = extractAttachmentsMetadata(docEl)

	iconPictures := map[*xmlquery.Node]bool{}
	for _, ref := range xmlquery.QuerySelectorAll(docEl, attachmentRefQuery) {
		if pic := xmlquery.FindOne(ref, "picture"); pic != nil {
			iconPictures[pic] = true
		}
	}

	imageCounter := 0
	var httpLinks []string
	var notesLinks []ir.NotesLink

	fields := map[string]ir.Field{}
	for _, item := range xmlquery.Find(docEl, "item") {
		name := attr(item, "name")
		if name == "" || strings.HasPrefix(name, ir.ReservedFieldPrefix) {
			continue
		}
		if name == "Form" {
			doc.Meta.Form = strings.TrimSpace(item.InnerText())
			continue
		}

		field, ok := fieldFromItem(item, pardefs, iconPictures, &imageCounter, &httpLinks, &notesLinks)
		if !ok {
			continue
		}
		fields[name] = field
	}
	doc.Fields = fields
	doc.Links.HTTP = httpLinks
	doc.Links.Notes = notesLinks
	doc.Layout.PrimaryFieldsAllowlist = append([]string{}, primaryFieldsAllowlist...)
	doc.Layout.UsedInBody = []string{"Subject", ir.BodyFieldName}

	return doc
}

// fieldFromItem classifies one <item> by its first recognized child
// element and converts it to a typed ir.Field. Empty lists are dropped;
// items whose child element is not
// one of the recognized value containers are skipped rather than guessed
// at.
func fieldFromItem(item *xmlquery.Node, pardefs map[string]parAttrs, iconPictures map[*xmlquery.Node]bool, imageCounter *int, httpLinks *[]string, notesLinks *[]ir.NotesLink) (ir.Field, bool) {
	child := firstChildElement(item)
	if child == nil {
		return ir.Field{}, false
	}

	switch child.Data {
	case "text":
		return ir.Field{Type: ir.FieldText, Value: child.InnerText()}, true

	case "number":
		v, err := strconv.ParseFloat(strings.TrimSpace(child.InnerText()), 64)
		if err != nil {
			return ir.Field{}, false
		}
		return ir.Field{Type: ir.FieldNumber, Value: v}, true

	case "datetime":
		return ir.Field{Type: ir.FieldDatetime, Value: NormalizeDatetime(child.InnerText())}, true

	case "textlist":
		var values []any
		for _, t := range xmlquery.Find(item, "textlist/text") {
			values = append(values, t.InnerText())
		}
		if len(values) == 0 {
			return ir.Field{}, false
		}
		return ir.Field{Type: ir.FieldTextList, Value: values}, true

	case "numberlist":
		var values []any
		for _, t := range xmlquery.Find(item, "numberlist/number") {
			v, err := strconv.ParseFloat(strings.TrimSpace(t.InnerText()), 64)
			if err != nil {
				continue
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return ir.Field{}, false
		}
		return ir.Field{Type: ir.FieldNumberList, Value: values}, true

	case "datetimelist":
		var values []any
		for _, t := range xmlquery.Find(item, "datetimelist/datetime") {
			values = append(values, NormalizeDatetime(t.InnerText()))
		}
		if len(values) == 0 {
			return ir.Field{}, false
		}
		return ir.Field{Type: ir.FieldDatetimeList, Value: values}, true

	case "richtext":
		rtp := newRichTextParser(pardefs, iconPictures, imageCounter, httpLinks, notesLinks)
		runs := rtp.parse(child)
		return ir.Field{Type: ir.FieldRichText, Text: plainText(runs), Runs: runs}, true

	default:
		return ir.Field{}, false
	}
}

func firstChildElement(n *xmlquery.Node) *xmlquery.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

// plainText projects a run stream down to its visible text, concatenating
// TextRun content and separating paragraphs and block tokens with
// newlines, for the richtext field's flat `text` convenience value.
func plainText(runs ir.RunList) string {
	var b strings.Builder
	for _, r := range runs {
		switch v := r.(type) {
		case ir.TextRun:
			b.WriteString(v.Text)
		case ir.ParRun:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
		case ir.BRRun:
			b.WriteByte('\n')
		case ir.SectionRun:
			b.WriteString(plainText(v.TitleRuns))
			b.WriteByte('\n')
			b.WriteString(plainText(v.BodyRuns))
		case ir.TableRun:
			for _, row := range v.Rows {
				for _, cell := range row.Cells {
					b.WriteString(plainText(cell.Runs))
					b.WriteByte(' ')
				}
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}
