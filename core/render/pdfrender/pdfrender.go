// Package pdfrender renders a normalized document to a paginated PDF via
// github.com/phpdave11/gofpdf: the font at config FontPath is registered
// up front as a UTF-8 font when it can be read (otherwise the Helvetica
// core font is used, and no other candidate fonts are tried), inline images are scaled to fit the page while
// preserving aspect ratio, tab-flagged tables get a leading label
// column, and the fx.extrude effect is approximated with a 1pt-offset
// gray duplicate of the run.
package pdfrender

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/config"
	"github.com/tosuru/notesdb-export/internal/logging"
)

const (
	fontFamily = "body"
	lineHeight = 5.5
	marginLeft = 15.0
	imgCounter = "img"
)

// Renderer drives a *gofpdf.Fpdf page by page. Paragraphs and table rows
// are flowed with MultiCell/Write rather than fixed-position cells, since
// the source documents have unpredictable length and gofpdf's automatic
// page-break handling only kicks in for the flowing APIs.
type Renderer struct {
	attachDir string
	cfg       config.Config

	pdf          *gofpdf.Fpdf
	fontReady    bool
	inList       bool
	pendingAlign string
	imageSeq     int
}

// New returns a Renderer resolving attachment/image paths against
// attachDir, registering cfg.FontPath as a UTF-8 font when present.
func New(attachDir string, cfg config.Config) *Renderer {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, 15, 15)
	pdf.SetAutoPageBreak(true, 15)

	r := &Renderer{attachDir: attachDir, cfg: cfg, pdf: pdf}
	r.registerFont()
	pdf.AddPage()
	return r
}

var _ render.Renderer = (*Renderer)(nil)

func (r *Renderer) registerFont() {
	if r.cfg.FontPath != "" {
		if data, err := os.ReadFile(r.cfg.FontPath); err == nil {
			r.pdf.AddUTF8FontFromBytes(fontFamily, "", data)
			r.pdf.AddUTF8FontFromBytes(fontFamily, "B", data)
			r.pdf.AddUTF8FontFromBytes(fontFamily, "I", data)
			r.fontReady = true
			return
		}
		logging.Warn("pdfrender: loading configured font, falling back to core font", "path", r.cfg.FontPath)
	}
	r.pdf.SetFont("Helvetica", "", 11)
}

func (r *Renderer) setFont(style string, size float64) {
	if r.fontReady {
		r.pdf.SetFont(fontFamily, style, size)
		return
	}
	r.pdf.SetFont("Helvetica", style, size)
}

func (r *Renderer) RenderHeader(doc *ir.NDoc) {
	subject := "No Subject"
	if f, ok := doc.Fields["Subject"]; ok {
		if s, ok := f.Value.(string); ok && s != "" {
			subject = s
		}
	}
	r.setFont("B", 18)
	r.pdf.MultiCell(0, 9, subject, "", "L", false)

	r.setFont("I", 9)
	if doc.Meta.UNID != "" {
		r.pdf.MultiCell(0, lineHeight, "UNID: "+doc.Meta.UNID, "", "L", false)
	}
	if doc.Meta.Form != "" {
		r.pdf.MultiCell(0, lineHeight, "Form: "+doc.Meta.Form, "", "L", false)
	}
	r.pdf.Ln(2)
	r.drawRule()
	r.pdf.Ln(3)
	r.setFont("", 11)
}

func (r *Renderer) drawRule() {
	x, y := r.pdf.GetX(), r.pdf.GetY()
	w, _ := r.pdf.GetPageSize()
	_, _, right, _ := r.pdf.GetMargins()
	r.pdf.Line(x, y, w-right, y)
}

func (r *Renderer) RenderFooter(doc *ir.NDoc) {}

func (r *Renderer) RenderAppendix(rows []render.AppendixRow) {
	if len(rows) == 0 {
		return
	}
	r.pdf.Ln(4)
	r.setFont("B", 14)
	r.pdf.MultiCell(0, 8, "Other Fields", "", "L", false)
	r.setFont("", 10)

	colWidths := []float64{40, 25, 105}
	r.setFont("B", 10)
	r.pdf.CellFormat(colWidths[0], 7, "Field", "1", 0, "L", false, 0, "")
	r.pdf.CellFormat(colWidths[1], 7, "Type", "1", 0, "L", false, 0, "")
	r.pdf.CellFormat(colWidths[2], 7, "Preview", "1", 1, "L", false, 0, "")
	r.setFont("", 10)
	for _, row := range rows {
		preview := row.Preview
		if len(preview) > 80 {
			preview = preview[:80] + "..."
		}
		y := r.pdf.GetY()
		r.pdf.CellFormat(colWidths[0], 7, row.Name, "1", 0, "L", false, 0, "")
		r.pdf.CellFormat(colWidths[1], 7, string(row.Type), "1", 0, "L", false, 0, "")
		r.pdf.CellFormat(colWidths[2], 7, preview, "1", 1, "L", false, 0, "")
		_ = y
	}
}

func (r *Renderer) StartParagraph(par ir.ParRun) {
	align := "L"
	switch par.Align {
	case ir.AlignCenter:
		align = "C"
	case ir.AlignRight:
		align = "R"
	case ir.AlignJustify:
		align = "J"
	}
	r.pendingAlign = align

	if par.List != nil {
		r.inList = true
		marker := "-  "
		if isOrdered(par.List.Type) {
			marker = "1. "
		}
		r.writeInline(marker, "", 0, 0, 0)
	} else {
		r.inList = false
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
	r.pdf.Ln(lineHeight)
}

func (r *Renderer) EnsureParagraphStarted() {}

// writeInline emits one styled text run via Write, which wraps onto the
// following line automatically within the page's remaining width; a
// trailing SetTextColor reset keeps styling local to the run.
func (r *Renderer) writeInline(text, style string, size float64, grey int, extrudeOffset float64) {
	if text == "" {
		return
	}
	if size == 0 {
		size = 11
	}
	if extrudeOffset > 0 {
		r.pdf.SetTextColor(190, 190, 190)
		x, y := r.pdf.GetX(), r.pdf.GetY()
		r.setFont(style, size)
		r.pdf.SetXY(x+extrudeOffset, y+extrudeOffset)
		r.pdf.Write(lineHeight, text)
		r.pdf.SetXY(x, y)
	}
	r.pdf.SetTextColor(grey, grey, grey)
	r.setFont(style, size)
	r.pdf.Write(lineHeight, text)
	r.pdf.SetTextColor(0, 0, 0)
}

func (r *Renderer) HandleText(run ir.TextRun) {
	if run.Text == "" {
		return
	}
	style := ""
	size := 11.0
	extrude := 0.0
	marks := map[ir.StyleMark]bool{}
	for _, m := range run.Style.Marks {
		marks[m] = true
	}
	if marks[ir.MarkBold] {
		style += "B"
	}
	if marks[ir.MarkItalic] {
		style += "I"
	}
	if marks[ir.MarkMono] && !r.fontReady {
		r.pdf.SetFont("Courier", style, size)
	}
	if run.Style.Attrs != nil {
		if run.Style.Attrs.Size != "" {
			if pt, err := strconv.ParseFloat(strings.TrimSuffix(run.Style.Attrs.Size, "pt"), 64); err == nil && pt > 0 {
				size = pt
			}
		}
		for _, fx := range run.Style.Attrs.FX {
			if fx == ir.FXExtrude {
				extrude = 0.35
			}
		}
	}
	text := run.Text
	if marks[ir.MarkUnderline] {
		style += "U"
	}
	r.writeInline(text, style, size, 0, extrude)
	if marks[ir.MarkStrike] {
		r.strikeLastRun(text, size)
	}
}

// strikeLastRun draws a horizontal rule through the just-written text's
// approximate bounding box; gofpdf has no native strike-through decorator.
func (r *Renderer) strikeLastRun(text string, size float64) {
	w := r.pdf.GetStringWidth(text)
	x, y := r.pdf.GetX(), r.pdf.GetY()
	mid := y + lineHeight/2
	r.pdf.Line(x-w, mid, x, mid)
}

func (r *Renderer) HandleLink(run ir.LinkRun) {
	label := run.URL
	if !run.IsExternal() {
		label = run.UNID
	}
	r.pdf.SetTextColor(20, 60, 180)
	r.setFont("U", 11)
	if run.IsExternal() {
		r.pdf.WriteLinkString(lineHeight, label, run.URL)
	} else {
		href := "notes:" + run.UNID
		if r.cfg.NotesRedirectBase != "" {
			href = r.cfg.NotesRedirectBase + "?NotesURL=" + run.UNID
		}
		r.pdf.WriteLinkString(lineHeight, label, href)
	}
	r.pdf.SetTextColor(0, 0, 0)
	r.setFont("", 11)
}

func (r *Renderer) HandleImg(run ir.ImgRun) {
	abs, ok := render.ResolveAttachmentPath(r.attachDir, run.Src)
	if run.Src == "" || !ok {
		r.writeInline(fmt.Sprintf("[image unavailable: %s]", run.Alt), "I", 10, 120, 0)
		return
	}
	r.pdf.Ln(lineHeight)
	r.imageSeq++
	name := fmt.Sprintf("%s%d", imgCounter, r.imageSeq)

	data, err := os.ReadFile(abs)
	if err != nil {
		logging.Warn("pdfrender: reading embedded image", "path", abs, "error", err.Error())
		r.writeInline(fmt.Sprintf("[image unreadable: %s]", run.Alt), "I", 10, 120, 0)
		return
	}
	opt := gofpdf.ImageOptions{ImageType: imageType(abs), ReadDpi: true}
	r.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(data))
	if r.pdf.Err() {
		logging.Warn("pdfrender: registering image", "path", abs, "error", r.pdf.Error())
		r.pdf.ClearError()
		r.writeInline(fmt.Sprintf("[image embed failed: %s]", run.Alt), "I", 10, 120, 0)
		return
	}

	pageW, _ := r.pdf.GetPageSize()
	left, _, right, _ := r.pdf.GetMargins()
	maxW := pageW - left - right

	info := r.pdf.GetImageInfo(name)
	w := maxW
	if info != nil {
		pointsToMM := 25.4 / 72.0
		nativeW := info.Width() * pointsToMM
		if nativeW > 0 && nativeW < maxW {
			w = nativeW
		}
	}
	// Height 0 tells gofpdf to preserve the image's own aspect ratio.
	r.pdf.ImageOptions(name, r.pdf.GetX(), r.pdf.GetY(), w, 0, true, opt, 0, "")
}

func imageType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "PNG"
	case strings.HasSuffix(lower, ".gif"):
		return "GIF"
	case strings.HasSuffix(lower, ".bmp"):
		return "BMP"
	default:
		return "JPG"
	}
}

func (r *Renderer) HandleAttachmentRef(run ir.AttachmentRefRun) {
	display := run.DisplayName
	if display == "" {
		display = run.Name
	}
	abs, ok := render.ResolveAttachmentPath(r.attachDir, run.ContentPath)
	if run.ContentPath == "" || !ok {
		r.writeInline(fmt.Sprintf("[attachment unavailable: %s]", display), "I", 10, 120, 0)
		return
	}
	r.pdf.SetTextColor(20, 60, 180)
	r.setFont("U", 11)
	r.pdf.WriteLinkString(lineHeight, "Attachment: "+display, "file://"+abs)
	r.pdf.SetTextColor(0, 0, 0)
	r.setFont("", 11)
}

func (r *Renderer) StartSection() {
	r.pdf.Ln(lineHeight)
	r.drawRule()
	r.pdf.Ln(2)
}

func (r *Renderer) StartSectionBody() {
	r.pdf.Ln(2)
}

func (r *Renderer) EndSection() {
	r.pdf.Ln(2)
	r.drawRule()
	r.pdf.Ln(lineHeight)
}

func (r *Renderer) HandleHR() {
	r.pdf.Ln(2)
	r.drawRule()
	r.pdf.Ln(4)
}

func (r *Renderer) HandleBR() {
	r.pdf.Ln(lineHeight)
}

func (r *Renderer) HandleUnknown(run ir.Run) {
	r.writeInline(fmt.Sprintf("[unknown run: %s]", run.RunTag()), "I", 9, 150, 0)
}

// HandleTable lays the grid out with uniform column widths (gofpdf has
// no native colspan), merging a spanned cell's width by summing the
// widths of the columns it covers and skipping the cells it shadows.
func (r *Renderer) HandleTable(run ir.TableRun) {
	if len(run.Rows) == 0 {
		return
	}
	numCols := len(run.Rows[0].Cells)
	tabFlagged := false
	for _, row := range run.Rows {
		if row.Attributes["tablabel"] != "" {
			tabFlagged = true
			break
		}
	}
	if tabFlagged {
		numCols++
	}
	if numCols == 0 {
		return
	}

	pageW, _ := r.pdf.GetPageSize()
	left, _, right, _ := r.pdf.GetMargins()
	colW := (pageW - left - right) / float64(numCols)

	r.pdf.Ln(2)
	for _, row := range run.Rows {
		y0 := r.pdf.GetY()
		x := left
		if tabFlagged {
			r.pdf.SetXY(x, y0)
			r.pdf.CellFormat(colW, 7, row.Attributes["tablabel"], "1", 0, "L", false, 0, "")
			x += colW
		}
		for _, cell := range row.Cells {
			w := colW * float64(maxInt(cell.Colspan, 1))
			if cell.Style.BgColor != "" {
				rC, gC, bC := parseHexColor(cell.Style.BgColor)
				r.pdf.SetFillColor(rC, gC, bC)
				r.pdf.Rect(x, y0, w, 7, "F")
			}
			r.pdf.SetXY(x, y0)
			r.pdf.CellFormat(w, 7, extractCellText(cell.Runs), "1", 0, "L", false, 0, "")
			x += w
		}
		r.pdf.Ln(7)
	}
	r.pdf.Ln(3)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func parseHexColor(s string) (int, int, int) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

// extractCellText projects a cell's runs to one line of plain text:
// images become "[Image]", attachments "[Attachment: NAME]", and breaks
// " / ".
func extractCellText(runs ir.RunList) string {
	var b strings.Builder
	for _, run := range runs {
		switch v := run.(type) {
		case ir.TextRun:
			b.WriteString(v.Text)
		case ir.LinkRun:
			if v.IsExternal() {
				b.WriteString(v.URL)
			} else {
				b.WriteString(v.UNID)
			}
		case ir.ImgRun:
			b.WriteString("[Image]")
		case ir.AttachmentRefRun:
			name := v.DisplayName
			if name == "" {
				name = v.Name
			}
			b.WriteString("[Attachment: " + name + "]")
		case ir.BRRun:
			b.WriteString(" / ")
		}
	}
	return b.String()
}

// GetOutput serializes the accumulated pages to PDF bytes.
func (r *Renderer) GetOutput() ([]byte, error) {
	if r.pdf.Err() {
		return nil, r.pdf.Error()
	}
	var buf bytes.Buffer
	if err := r.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
