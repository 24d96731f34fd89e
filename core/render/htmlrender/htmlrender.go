// Package htmlrender renders a normalized document to hypertext:
// text/template for the outer chrome, structured wrapping elements
// for inline decoration, visually-empty-paragraph collapse into a soft
// break, tab-flagged-table grouping by a document-unique id, and both a
// pretty-printed and a minified output mode.
package htmlrender

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/tosuru/notesdb-export/core/encoding"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/config"
)

// chromeTemplate is the outer document shell, executed with text/template
// rather than html/template: every dynamic string reaching it (header,
// body, appendix) was already escaped at the point it was appended to the
// renderer's own block accumulator, so html/template's autoescaping would
// double-escape it.
var chromeTemplate = template.Must(template.New("chrome").Parse(
	`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<a class="skip-link" href="#main">Skip to content</a>
{{.Header}}
<main id="main">
{{.Body}}
{{.Appendix}}
</main>
{{.Footer}}
</body>
</html>
`))

type chromeData struct {
	Lang     string
	Title    string
	Header   string
	Body     string
	Appendix string
	Footer   string
}

// Renderer accumulates HTML block strings, joined into the document body
// once GetOutput runs the outer chrome template.
type Renderer struct {
	attachDir string
	cfg       config.Config
	pretty    bool

	header   string
	footer   string
	appendix string
	icons    map[string]string

	blocks     []string
	current    strings.Builder
	open       bool
	pendingTag string

	inList     bool
	listType   ir.ListType
	listNumber int

	tabTableSeq int
}

// New returns a Renderer in pretty-printed mode. Call Minify to switch to
// the minified output mode before GetOutput runs.
func New(attachDir string, cfg config.Config) *Renderer {
	return &Renderer{attachDir: attachDir, cfg: cfg, pretty: true}
}

// Minify switches the renderer to emit collapsed, unindented HTML.
func (r *Renderer) Minify() { r.pretty = false }

var _ render.Renderer = (*Renderer)(nil)

func (r *Renderer) RenderHeader(doc *ir.NDoc) {
	subject := "No Subject"
	if f, ok := doc.Fields["Subject"]; ok {
		if s, ok := f.Value.(string); ok && s != "" {
			subject = s
		}
	}
	r.icons = map[string]string{}
	for _, att := range doc.Attachments {
		if att.ContentPath != "" && att.IconPath != "" {
			r.icons[att.ContentPath] = att.IconPath
		}
	}

	var b strings.Builder
	b.WriteString("<h1>" + encoding.EscapeHTML(subject) + "</h1>\n")
	b.WriteString(`<dl class="doc-meta">` + "\n")
	writeMeta(&b, "UNID", doc.Meta.UNID)
	writeMeta(&b, "Form", doc.Meta.Form)
	writeMeta(&b, "Created", doc.Meta.Created)
	writeMeta(&b, "Modified", doc.Meta.Modified)
	b.WriteString("</dl>\n<hr class=\"doc-separator\">")
	r.header = b.String()
}

func writeMeta(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("<dt>" + label + "</dt><dd>" + encoding.EscapeHTML(value) + "</dd>\n")
}

func (r *Renderer) RenderFooter(doc *ir.NDoc) {}

func (r *Renderer) RenderAppendix(rows []render.AppendixRow) {
	if len(rows) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(`<section class="appendix"><h2>Other Fields</h2>` + "\n")
	b.WriteString(`<table><caption class="sr-only">Other document fields</caption><thead><tr>`)
	b.WriteString(`<th scope="col">Field</th><th scope="col">Type</th><th scope="col">Preview</th></tr></thead><tbody>` + "\n")
	for _, row := range rows {
		b.WriteString("<tr><td>" + encoding.EscapeHTML(row.Name) + "</td><td>" +
			encoding.EscapeHTML(string(row.Type)) + "</td><td>" + encoding.EscapeHTML(row.Preview) + "</td></tr>\n")
	}
	b.WriteString("</tbody></table></section>")
	r.appendix = b.String()
}

func (r *Renderer) flush() {
	if !r.open {
		return
	}
	content := r.current.String()
	tag := r.pendingTag
	r.current.Reset()
	r.open = false
	r.pendingTag = ""

	closeTag := "</p>"
	if strings.HasPrefix(tag, "<li") {
		closeTag = "</li>"
	}

	if strings.TrimSpace(content) == "" {
		// Collapse a visually empty paragraph into a soft break on the
		// previous block, never into a paragraph holding a bare nbsp.
		if n := len(r.blocks); n > 0 {
			r.blocks[n-1] += "<br>"
			return
		}
		return
	}
	r.blocks = append(r.blocks, tag+content+closeTag)
}

func (r *Renderer) StartParagraph(par ir.ParRun) {
	r.flush()
	r.open = true

	class := "p"
	if par.ParStyle != "" {
		class += " ps-" + sanitizeClass(par.ParStyle)
	}
	style := ""
	switch par.Align {
	case ir.AlignCenter:
		style += "text-align:center;"
	case ir.AlignRight:
		style += "text-align:right;"
	case ir.AlignJustify:
		style += "text-align:justify;"
	}
	if par.LeftMargin != "" {
		style += "margin-left:" + encoding.EscapeHTML(par.LeftMargin) + ";"
	}
	if par.SpaceAfter != "" {
		style += "margin-bottom:" + encoding.EscapeHTML(par.SpaceAfter) + ";"
	}

	if par.List != nil {
		if !r.inList || r.listType != par.List.Type {
			r.closeList()
			r.openList(par.List.Type)
		}
		r.pendingTag = fmt.Sprintf(`<li class="%s"`, class)
	} else {
		r.closeList()
		r.pendingTag = fmt.Sprintf(`<p class="%s"`, class)
	}
	if style != "" {
		r.pendingTag += ` style="` + style + `"`
	}
	r.pendingTag += ">"
}

func (r *Renderer) openList(t ir.ListType) {
	tag := "ul"
	if isOrdered(t) {
		tag = "ol"
	}
	r.blocks = append(r.blocks, "<"+tag+" class=\"list-"+string(t)+"\">")
	r.inList = true
	r.listType = t
	r.listNumber = 1
}

func (r *Renderer) closeList() {
	if !r.inList {
		return
	}
	tag := "ul"
	if isOrdered(r.listType) {
		tag = "ol"
	}
	r.blocks = append(r.blocks, "</"+tag+">")
	r.inList = false
}

func isOrdered(t ir.ListType) bool {
	switch t {
	case ir.ListNumber, ir.ListAlphaUpper, ir.ListAlphaLower, ir.ListRomanUpper, ir.ListRomanLower:
		return true
	default:
		return false
	}
}

func sanitizeClass(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (r *Renderer) FinalizeParagraph() {
	r.flush()
}

func (r *Renderer) EnsureParagraphStarted() {
	if !r.open {
		r.StartParagraph(ir.ParRun{})
	}
}

func (r *Renderer) HandleText(run ir.TextRun) {
	text := encoding.EscapeHTML(run.Text)
	if run.Style.Attrs != nil {
		switch run.Style.Attrs.Script {
		case ir.ScriptSuper:
			text = "<sup>" + text + "</sup>"
		case ir.ScriptSub:
			text = "<sub>" + text + "</sub>"
		}
	}

	marks := map[ir.StyleMark]bool{}
	for _, m := range run.Style.Marks {
		marks[m] = true
	}
	if marks[ir.MarkMono] {
		text = "<code>" + text + "</code>"
	}
	if marks[ir.MarkStrike] {
		text = "<s>" + text + "</s>"
	}
	if marks[ir.MarkUnderline] {
		text = "<u>" + text + "</u>"
	}
	if marks[ir.MarkItalic] {
		text = "<em>" + text + "</em>"
	}
	if marks[ir.MarkBold] {
		text = "<strong>" + text + "</strong>"
	}

	style := inlineStyle(run.Style)
	if style != "" {
		text = `<span style="` + style + `">` + text + "</span>"
	}
	r.current.WriteString(text)
}

func inlineStyle(s ir.Style) string {
	if s.Attrs == nil {
		return ""
	}
	var b strings.Builder
	if s.Attrs.Color != "" {
		b.WriteString("color:" + encoding.EscapeHTML(s.Attrs.Color) + ";")
	}
	if s.Attrs.BgColor != "" {
		b.WriteString("background-color:" + encoding.EscapeHTML(s.Attrs.BgColor) + ";")
	}
	if s.Attrs.Size != "" {
		b.WriteString("font-size:" + encoding.EscapeHTML(s.Attrs.Size) + ";")
	}
	if s.Attrs.FontFamily != "" {
		b.WriteString("font-family:" + encoding.EscapeHTML(s.Attrs.FontFamily) + ";")
	}
	for _, fx := range s.Attrs.FX {
		switch fx {
		case ir.FXShadow:
			b.WriteString("text-shadow:1px 1px 2px #888;")
		case ir.FXEmboss:
			b.WriteString("text-shadow:1px 1px 0 #fff, -1px -1px 0 #555;")
		case ir.FXExtrude:
			b.WriteString("text-shadow:1px 1px 0 #888;")
		}
	}
	return b.String()
}

func (r *Renderer) HandleLink(run ir.LinkRun) {
	href := run.URL
	aux := ""
	if run.IsExternal() {
		href = encoding.EscapeHTML(run.URL)
	} else {
		raw := fmt.Sprintf("unid=%s;server=%s;replica=%s;view=%s", run.UNID, run.Server, run.Replica, run.View)
		if r.cfg.NotesRedirectBase != "" {
			sep := "?"
			if strings.Contains(r.cfg.NotesRedirectBase, "?") {
				sep = "&"
			}
			href = encoding.EscapeHTML(r.cfg.NotesRedirectBase + sep + "NotesURL=" + url.QueryEscape(raw))
		} else {
			href = "#notes-" + encoding.EscapeHTML(run.UNID)
		}
		if r.cfg.BoxSearchBase != "" {
			aux = fmt.Sprintf(` <a class="aux-search" href="%s%s">search</a>`,
				encoding.EscapeHTML(r.cfg.BoxSearchBase), url.QueryEscape(run.UNID))
		}
	}
	label := run.UNID
	if run.IsExternal() {
		label = run.URL
	}
	r.current.WriteString(`<a href="` + href + `">` + encoding.EscapeHTML(label) + "</a>" + aux)
}

func (r *Renderer) HandleImg(run ir.ImgRun) {
	alt := encoding.EscapeHTML(run.Alt)
	if _, ok := render.ResolveAttachmentPath(r.attachDir, run.Src); run.Src == "" || !ok {
		r.current.WriteString(`<span class="missing-image">[image unavailable: ` + alt + `]</span>`)
		return
	}
	r.current.WriteString(`<img src="` + encoding.EscapeHTML(run.Src) + `" alt="` + alt + `">`)
}

func (r *Renderer) HandleAttachmentRef(run ir.AttachmentRefRun) {
	display := run.DisplayName
	if display == "" {
		display = run.Name
	}
	display = encoding.EscapeHTML(display)

	if _, ok := render.ResolveAttachmentPath(r.attachDir, run.ContentPath); run.ContentPath != "" && ok {
		icon := ""
		if iconPath := r.icons[run.ContentPath]; iconPath != "" {
			icon = `<img class="attachment-icon" src="` + encoding.EscapeHTML(iconPath) + `" alt="">`
		}
		href := encoding.EscapeHTML(run.ContentPath)
		r.current.WriteString(`<a class="attachment-link" href="` + href + `">` + icon + display + "</a>")
		return
	}
	r.current.WriteString(`<span class="attachment-link missing">` + display + " (unavailable)</span>")
}

func (r *Renderer) StartSection() {
	r.flush()
	r.closeList()
	r.blocks = append(r.blocks, "<details><summary>")
}

func (r *Renderer) StartSectionBody() {
	r.flush()
	r.closeList()
	r.blocks = append(r.blocks, "</summary>")
}

func (r *Renderer) EndSection() {
	r.flush()
	r.closeList()
	r.blocks = append(r.blocks, "</details>")
}

func (r *Renderer) HandleHR() {
	r.closeList()
	r.blocks = append(r.blocks, "<hr>")
}

func (r *Renderer) HandleBR() {
	r.current.WriteString("<br>")
}

func (r *Renderer) HandleUnknown(run ir.Run) {
	r.current.WriteString(fmt.Sprintf("<!-- unknown run: %s -->", encoding.EscapeHTML(run.RunTag())))
}

// HandleTable renders a block-level table honoring colspan/rowspan and
// per-cell background colors. Tab-flagged rows (carrying a "tablabel"
// row attribute) are grouped under a document-unique identifier and
// rendered as a flat table with a leading label column.
func (r *Renderer) HandleTable(run ir.TableRun) {
	r.flush()
	r.closeList()

	tabFlagged := false
	for _, row := range run.Rows {
		if row.Attributes["tablabel"] != "" {
			tabFlagged = true
			break
		}
	}

	var b strings.Builder
	if tabFlagged {
		r.tabTableSeq++
		fmt.Fprintf(&b, `<div class="tab-table" data-tab-id="tabtable-%d">`, r.tabTableSeq)
	}
	b.WriteString("<table>")
	if len(run.Columns) > 0 {
		b.WriteString("<colgroup>")
		for _, c := range run.Columns {
			if c.Width != "" {
				fmt.Fprintf(&b, `<col style="width:%s">`, encoding.EscapeHTML(c.Width))
			} else {
				b.WriteString("<col>")
			}
		}
		b.WriteString("</colgroup>")
	}
	b.WriteString("<tbody>")
	for _, row := range run.Rows {
		b.WriteString("<tr>")
		if tabFlagged {
			fmt.Fprintf(&b, "<td>%s</td>", encoding.EscapeHTML(row.Attributes["tablabel"]))
		}
		for _, cell := range row.Cells {
			attrs := ""
			if cell.Colspan > 1 {
				attrs += fmt.Sprintf(` colspan="%d"`, cell.Colspan)
			}
			if cell.Rowspan > 1 {
				attrs += fmt.Sprintf(` rowspan="%d"`, cell.Rowspan)
			}
			if cell.Style.BgColor != "" {
				attrs += fmt.Sprintf(` style="background-color:%s"`, encoding.EscapeHTML(cell.Style.BgColor))
			}
			b.WriteString("<td" + attrs + ">")
			b.WriteString(renderCellRuns(r, cell.Runs))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	if tabFlagged {
		b.WriteString("</div>")
	}
	r.blocks = append(r.blocks, b.String())
}

// renderCellRuns renders a cell's nested run stream through a scratch
// Renderer sharing this renderer's attachment directory and config, so
// nested inline/block content (including nested tables) uses the same
// escaping and path-resolution rules as the top-level document.
func renderCellRuns(parent *Renderer, runs ir.RunList) string {
	sub := New(parent.attachDir, parent.cfg)
	sub.icons = parent.icons
	ctx := render.NewContext()
	render.ProcessRuns(sub, ctx, runs)
	sub.flush()
	return strings.Join(sub.blocks, "")
}

func (r *Renderer) GetOutput() ([]byte, error) {
	r.flush()
	r.closeList()

	body := strings.Join(r.blocks, "\n")
	data := chromeData{
		Lang:     "en",
		Title:    "Document",
		Header:   r.header,
		Body:     body,
		Appendix: r.appendix,
		Footer:   r.footer,
	}

	var buf bytes.Buffer
	if err := chromeTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	if !r.pretty {
		out = minify(out)
	}
	return out, nil
}

// minify trims every line and joins the non-blank ones with no
// separator, so newlines and line-edge whitespace inside element content
// are removed as well.
func minify(b []byte) []byte {
	s := string(b)
	lines := strings.Split(s, "\n")
	var kept []string
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t != "" {
			kept = append(kept, t)
		}
	}
	return []byte(strings.Join(kept, ""))
}
