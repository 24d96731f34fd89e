// Package docxrender renders a normalized document to an OOXML word
// processor document via github.com/fumiama/go-docx:
// hyperlinks use the library's built-in hyperlink style, attachment-
// reference links are persisted as external relationships carrying the
// relative content path, inline images are embedded at native resolution
// via AddInlineDrawing with no scaling to the page width, and the CJK
// fallback font is configurable.
package docxrender

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	docx "github.com/fumiama/go-docx"

	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/config"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// defaultCJKFont is used when config.Config.FontPath is empty; no other
// candidate fonts are tried. go-docx ships Asian-typeface fallback
// via the document theme rather than an embedded font file, so this is
// only a style hint.
const defaultCJKFont = "SimSun"

// pageWidthTwips is a standard Letter/A4-ish content width (6.5in at
// 1440 twips/in) used as the width of every table the renderer adds;
// embedded images are not scaled against it.
const pageWidthTwips = 9360

// Renderer accumulates go-docx paragraphs directly against a *docx.Docx,
// rather than through an intermediate block list, since go-docx's own
// Paragraph/Run builders already provide the style-stacking primitives
// a renderer would otherwise re-derive.
type Renderer struct {
	attachDir string
	cfg       config.Config
	cjkFont   string

	doc       *docx.Docx
	para      *docx.Paragraph
	listLevel int
	listType  ir.ListType

	appendixRows []render.AppendixRow
	err          error
}

// New returns a Renderer resolving attachment/image paths against
// attachDir and using cfg's FontPath (or the built-in default) for CJK
// text.
func New(attachDir string, cfg config.Config) *Renderer {
	font := cfg.FontPath
	if font == "" {
		font = defaultCJKFont
	}
	return &Renderer{attachDir: attachDir, cfg: cfg, cjkFont: font, doc: docx.New().WithDefaultTheme()}
}

var _ render.Renderer = (*Renderer)(nil)

func (r *Renderer) RenderHeader(doc *ir.NDoc) {
	subject := "No Subject"
	if f, ok := doc.Fields["Subject"]; ok {
		if s, ok := f.Value.(string); ok && s != "" {
			subject = s
		}
	}
	r.doc.AddParagraph().AddText(subject).Size("32").Bold().Font(r.cjkFont, r.cjkFont, r.cjkFont, "eastAsia")
	if doc.Meta.UNID != "" {
		r.doc.AddParagraph().AddText("UNID: " + doc.Meta.UNID).Size("18").Italic()
	}
	if doc.Meta.Form != "" {
		r.doc.AddParagraph().AddText("Form: " + doc.Meta.Form).Size("18").Italic()
	}
	r.doc.AddParagraph().AddText(strings.Repeat("_", 60)).Size("16")
}

func (r *Renderer) RenderFooter(doc *ir.NDoc) {}

func (r *Renderer) RenderAppendix(rows []render.AppendixRow) {
	if len(rows) == 0 {
		return
	}
	r.doc.AddParagraph().AddText("Other Fields").Size("28").Bold()
	table := r.doc.AddTable(len(rows)+1, 3, pageWidthTwips, nil)
	setCellText(table, 0, 0, "Field")
	setCellText(table, 0, 1, "Type")
	setCellText(table, 0, 2, "Preview")
	for i, row := range rows {
		setCellText(table, i+1, 0, row.Name)
		setCellText(table, i+1, 1, string(row.Type))
		setCellText(table, i+1, 2, row.Preview)
	}
}

// setCellText writes plain text into a go-docx table cell, guarding the
// row/col bounds go-docx itself does not validate for us.
func setCellText(table *docx.Table, row, col int, text string) {
	if table == nil || row >= len(table.TableRows) {
		return
	}
	cells := table.TableRows[row].TableCells
	if col >= len(cells) {
		return
	}
	cells[col].AddParagraph().AddText(text)
}

func (r *Renderer) StartParagraph(par ir.ParRun) {
	r.para = r.doc.AddParagraph()
	switch par.Align {
	case ir.AlignCenter:
		r.para.Justification("center")
	case ir.AlignRight:
		r.para.Justification("right")
	case ir.AlignJustify:
		r.para.Justification("both")
	}
	if par.List != nil {
		r.listType = par.List.Type
		marker := "• "
		if isOrdered(par.List.Type) {
			marker = "1. "
		}
		r.para.AddText(marker)
	}
}

func isOrdered(t ir.ListType) bool {
	switch t {
	case ir.ListNumber, ir.ListAlphaUpper, ir.ListAlphaLower, ir.ListRomanUpper, ir.ListRomanLower:
		return true
	default:
		return false
	}
}

func (r *Renderer) FinalizeParagraph() {
	r.para = nil
}

func (r *Renderer) EnsureParagraphStarted() {
	if r.para == nil {
		r.StartParagraph(ir.ParRun{})
	}
}

func (r *Renderer) HandleText(run ir.TextRun) {
	if r.para == nil || run.Text == "" {
		return
	}
	rn := r.para.AddText(run.Text).Font(r.cjkFont, r.cjkFont, r.cjkFont, "eastAsia")

	marks := map[ir.StyleMark]bool{}
	for _, m := range run.Style.Marks {
		marks[m] = true
	}
	if marks[ir.MarkBold] {
		rn.Bold()
	}
	if marks[ir.MarkItalic] {
		rn.Italic()
	}
	if marks[ir.MarkUnderline] {
		rn.Underline("single")
	}
	if marks[ir.MarkStrike] {
		rn.Strike(true)
	}
	if run.Style.Attrs != nil {
		if run.Style.Attrs.Color != "" {
			rn.Color(strings.TrimPrefix(run.Style.Attrs.Color, "#"))
		}
		if run.Style.Attrs.Size != "" {
			rn.Size(run.Style.Attrs.Size)
		}
	}
}

func (r *Renderer) HandleLink(run ir.LinkRun) {
	if r.para == nil {
		return
	}
	if run.IsExternal() {
		r.para.AddLink(run.URL, run.URL)
		return
	}
	label := run.UNID
	href := "notes:" + run.UNID
	if r.cfg.NotesRedirectBase != "" {
		href = r.cfg.NotesRedirectBase + "?NotesURL=" + run.UNID
	}
	r.para.AddLink(label, href)
}

func (r *Renderer) HandleImg(run ir.ImgRun) {
	if r.para == nil {
		return
	}
	abs, ok := render.ResolveAttachmentPath(r.attachDir, run.Src)
	if run.Src == "" || !ok {
		r.para.AddText("[image unavailable: " + run.Alt + "]").Italic()
		return
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		logging.Warn("docxrender: reading embedded image", "path", abs, "error", err.Error())
		r.para.AddText("[image unreadable: " + run.Alt + "]").Italic()
		return
	}
	if _, err := r.para.AddInlineDrawing(data); err != nil {
		logging.Warn("docxrender: embedding image", "path", abs, "error", err.Error())
		r.para.AddText("[image embed failed: " + run.Alt + "]").Italic()
	}
}

func (r *Renderer) HandleAttachmentRef(run ir.AttachmentRefRun) {
	if r.para == nil {
		return
	}
	display := run.DisplayName
	if display == "" {
		display = run.Name
	}
	_, ok := render.ResolveAttachmentPath(r.attachDir, run.ContentPath)
	if run.ContentPath == "" || !ok {
		r.para.AddText("[attachment unavailable: " + display + "]").Italic()
		return
	}
	// External relationship rather than an embedded OLE object: go-docx's
	// hyperlink relationship type already covers "external file" targets,
	// and the relative content path is what the HTML and Markdown
	// renderers link to as well.
	r.para.AddLink(display, filepath.ToSlash(run.ContentPath))
}

func (r *Renderer) StartSection() {
	r.doc.AddParagraph().AddText(strings.Repeat("-", 40)).Size("16")
}

func (r *Renderer) StartSectionBody() {}

func (r *Renderer) EndSection() {
	r.doc.AddParagraph().AddText(strings.Repeat("-", 40)).Size("16")
}

func (r *Renderer) HandleHR() {
	r.doc.AddParagraph().AddText(strings.Repeat("_", 60))
}

func (r *Renderer) HandleBR() {
	if r.para != nil {
		r.para.AddText("\n")
	}
}

func (r *Renderer) HandleUnknown(run ir.Run) {
	if r.para != nil {
		r.para.AddText(fmt.Sprintf("[unknown run: %s]", run.RunTag())).Italic()
	}
}

// HandleTable lays rows out on a uniform grid. The IR stores only the
// spanning cell of a colspan/rowspan group (never the covered slots), so
// content order survives even though go-docx's cell surface exposes no
// grid-span or shading control to reproduce the merge visually.
// Tab-flagged tables (a "tablabel" row attribute) get a leading label
// column.
func (r *Renderer) HandleTable(run ir.TableRun) {
	if len(run.Rows) == 0 {
		return
	}
	cols := len(run.Rows[0].Cells)
	tabFlagged := false
	for _, row := range run.Rows {
		if row.Attributes["tablabel"] != "" {
			tabFlagged = true
			break
		}
	}
	if tabFlagged {
		cols++
	}
	if cols == 0 {
		return
	}

	table := r.doc.AddTable(len(run.Rows), cols, pageWidthTwips, nil)
	for ri, row := range run.Rows {
		col := 0
		if tabFlagged {
			setCellText(table, ri, 0, row.Attributes["tablabel"])
			col = 1
		}
		for _, cell := range row.Cells {
			setCellText(table, ri, col, cellText(cell.Runs))
			col++
		}
	}
}

// cellText flattens a cell's run stream to plain text: cells hold
// paragraphs of text only (go-docx cells accept paragraphs, not nested
// block structures), so nested content is projected the same way the
// appendix previews richtext fields.
func cellText(runs ir.RunList) string {
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
		case ir.LinkRun:
			if v.IsExternal() {
				b.WriteString(v.URL)
			} else {
				b.WriteString(v.UNID)
			}
		case ir.ImgRun:
			b.WriteString("[" + v.Alt + "]")
		case ir.AttachmentRefRun:
			name := v.DisplayName
			if name == "" {
				name = v.Name
			}
			b.WriteString("[" + name + "]")
		case ir.SectionRun:
			b.WriteString(cellText(v.TitleRuns))
			b.WriteByte('\n')
			b.WriteString(cellText(v.BodyRuns))
		case ir.TableRun:
			for _, row := range v.Rows {
				for _, cell := range row.Cells {
					b.WriteString(cellText(cell.Runs))
					b.WriteByte(' ')
				}
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimRight(b.String(), " \n")
}

// GetOutput serializes the accumulated document to its OOXML zip bytes.
func (r *Renderer) GetOutput() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	var buf bytes.Buffer
	if _, err := r.doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
