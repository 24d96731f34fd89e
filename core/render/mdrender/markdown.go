// Package mdrender renders a normalized document to a lightweight
// markup dialect (GFM-flavored Markdown). Visual
// attributes with no Markdown equivalent (color, background, size, most
// effects) are dropped with a debug log; style marks map onto the
// nearest GFM construct.
package mdrender

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// Renderer accumulates Markdown as a sequence of blocks, joined by a
// blank line in GetOutput.
type Renderer struct {
	attachDir string

	blocks  []string
	current strings.Builder
	prefix  string

	inList      bool
	listNumber  int
}

// New returns a Renderer resolving attachment paths against attachDir.
func New(attachDir string) *Renderer {
	return &Renderer{attachDir: attachDir, listNumber: 1}
}

var _ render.Renderer = (*Renderer)(nil)

func (r *Renderer) RenderHeader(doc *ir.NDoc) {
	subject := "No Subject"
	if f, ok := doc.Fields["Subject"]; ok {
		if s, ok := f.Value.(string); ok && s != "" {
			subject = s
		}
	}
	r.blocks = append(r.blocks, "# "+subject)

	var meta []string
	if doc.Meta.UNID != "" {
		meta = append(meta, fmt.Sprintf("- **UNID:** `%s`", doc.Meta.UNID))
	}
	if doc.Meta.Form != "" {
		meta = append(meta, "- **Form:** "+doc.Meta.Form)
	}
	if doc.Meta.Created != "" {
		meta = append(meta, "- **Created:** "+doc.Meta.Created)
	}
	if doc.Meta.Modified != "" {
		meta = append(meta, "- **Modified:** "+doc.Meta.Modified)
	}
	if len(meta) > 0 {
		r.blocks = append(r.blocks, strings.Join(meta, "\n"))
	}

	r.blocks = append(r.blocks, "---")
}

func (r *Renderer) RenderFooter(doc *ir.NDoc) {}

func (r *Renderer) RenderAppendix(rows []render.AppendixRow) {
	if len(rows) == 0 {
		return
	}
	if len(r.blocks) == 0 || strings.TrimSpace(r.blocks[len(r.blocks)-1]) != "---" {
		r.blocks = append(r.blocks, "---")
	}
	r.blocks = append(r.blocks, "## Appendix: Other Fields")

	lines := []string{
		"| Field | Type | Preview |",
		"| --- | --- | --- |",
	}
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("| %s | %s | %s |",
			escapeCell(row.Name), escapeCell(string(row.Type)), escapeCell(row.Preview)))
	}
	r.blocks = append(r.blocks, strings.Join(lines, "\n"))
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "<br>")
	return s
}

func (r *Renderer) flush() {
	content := strings.TrimSpace(r.current.String())
	if content == "" {
		if r.inList && strings.TrimSpace(r.prefix) != "" {
			r.blocks = append(r.blocks, strings.TrimRight(r.prefix, " "))
		}
		return
	}
	r.blocks = append(r.blocks, strings.TrimSpace(r.prefix+content))
	r.current.Reset()
}

func (r *Renderer) StartParagraph(par ir.ParRun) {
	r.flush()

	prefix := ""
	if margin := parseInches(par.LeftMargin); margin > 0 {
		level := int(margin / 0.5)
		prefix += strings.Repeat("  ", level)
	}

	if par.List != nil {
		if !r.inList {
			r.listNumber = 1
		}
		switch par.List.Type {
		case ir.ListNumber, ir.ListAlphaUpper, ir.ListAlphaLower, ir.ListRomanUpper, ir.ListRomanLower:
			prefix += strconv.Itoa(r.listNumber) + ". "
			r.listNumber++
		default:
			prefix += "* "
		}
		r.inList = true
	} else {
		r.inList = false
		r.listNumber = 1
	}

	r.prefix = prefix
}

func parseInches(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "in")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return math.Abs(v)
}

func (r *Renderer) FinalizeParagraph() {}

func (r *Renderer) EnsureParagraphStarted() {
	r.StartParagraph(ir.ParRun{})
}

func (r *Renderer) append(s string) {
	if s != "" {
		r.current.WriteString(s)
	}
}

var backtickRun = regexp.MustCompile("`+")

func (r *Renderer) HandleText(run ir.TextRun) {
	if run.Text == "" {
		return
	}
	text := run.Text

	script := ir.ScriptPosition("")
	if run.Style.Attrs != nil {
		script = run.Style.Attrs.Script
		if dropped := visualOnlyAttrs(run.Style.Attrs); len(dropped) > 0 {
			logging.Debug("mdrender: dropping visual attributes with no Markdown equivalent", "attrs", strings.Join(dropped, ","))
		}
	}
	switch script {
	case ir.ScriptSuper:
		text = "<sup>" + text + "</sup>"
	case ir.ScriptSub:
		text = "<sub>" + text + "</sub>"
	}

	marks := map[ir.StyleMark]bool{}
	for _, m := range run.Style.Marks {
		marks[m] = true
	}

	if marks[ir.MarkMono] {
		if strings.Contains(text, "`") {
			max := 0
			for _, m := range backtickRun.FindAllString(text, -1) {
				if len(m) > max {
					max = len(m)
				}
			}
			delim := strings.Repeat("`", max+1)
			space := ""
			if strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") {
				space = " "
			}
			text = delim + space + text + space + delim
		} else {
			text = "`" + text + "`"
		}
	}
	if marks[ir.MarkStrike] {
		text = "~~" + text + "~~"
	}
	if marks[ir.MarkItalic] {
		text = "*" + text + "*"
	}
	if marks[ir.MarkBold] {
		text = "**" + text + "**"
	}

	r.append(text)
}

// visualOnlyAttrs names the style attributes Markdown cannot express,
// so the drop is visible in the log rather than silent.
func visualOnlyAttrs(a *ir.StyleAttrs) []string {
	var dropped []string
	if a.Color != "" {
		dropped = append(dropped, "color")
	}
	if a.BgColor != "" {
		dropped = append(dropped, "bgcolor")
	}
	if a.Size != "" {
		dropped = append(dropped, "size")
	}
	if a.FontFamily != "" {
		dropped = append(dropped, "font_family")
	}
	for _, fx := range a.FX {
		switch fx {
		case ir.FXShadow, ir.FXEmboss, ir.FXExtrude:
			dropped = append(dropped, "fx."+string(fx))
		}
	}
	return dropped
}

func (r *Renderer) HandleLink(run ir.LinkRun) {
	label := run.URL
	href := run.URL
	if !run.IsExternal() {
		label = run.UNID
		href = "#"
	}
	label = strings.ReplaceAll(strings.ReplaceAll(label, "[", "\\["), "]", "\\]")
	href = escapeHref(href)
	r.append(fmt.Sprintf("[%s](%s)", label, href))
}

func (r *Renderer) HandleImg(run ir.ImgRun) {
	alt := run.Alt
	if alt == "" {
		alt = "image"
	}
	alt = strings.ReplaceAll(strings.ReplaceAll(alt, "[", "\\["), "]", "\\]")

	if run.Src == "" {
		r.append(fmt.Sprintf("*[Image: %s]*", alt))
		return
	}
	if _, ok := render.ResolveAttachmentPath(r.attachDir, run.Src); !ok {
		r.append(fmt.Sprintf("*[Image: %s (unavailable)]*", alt))
		return
	}
	src := escapeHref(run.Src)
	r.append(fmt.Sprintf("![%s](%s)", alt, src))
}

func (r *Renderer) HandleAttachmentRef(run ir.AttachmentRefRun) {
	display := run.DisplayName
	if display == "" {
		display = run.Name
	}
	label := strings.ReplaceAll(strings.ReplaceAll("Attachment: "+display, "[", "\\["), "]", "\\]")
	if run.ContentPath == "" {
		r.append(fmt.Sprintf("*[%s]*", label))
		return
	}
	if _, ok := render.ResolveAttachmentPath(r.attachDir, run.ContentPath); !ok {
		r.append(fmt.Sprintf("*[%s (unavailable)]*", label))
		return
	}
	href := escapeHref(run.ContentPath)
	r.append(fmt.Sprintf("[*[%s](%s)*]", label, href))
}

func escapeHref(s string) string {
	s = strings.ReplaceAll(s, "(", "\\(")
	s = strings.ReplaceAll(s, ")", "\\)")
	s = strings.ReplaceAll(s, " ", "%20")
	return s
}

// StartSection opens a collapsible region as a raw HTML <details> element
// with the title inside <summary>; GFM has no native disclosure widget
// and passes raw HTML through untouched.
func (r *Renderer) StartSection() {
	r.flush()
	r.blocks = append(r.blocks, "<details>", "<summary>")
}

func (r *Renderer) StartSectionBody() {
	r.flush()
	r.blocks = append(r.blocks, "</summary>")
}

func (r *Renderer) EndSection() {
	r.flush()
	r.blocks = append(r.blocks, "</details>")
}

func (r *Renderer) HandleHR() {
	r.flush()
	r.blocks = append(r.blocks, "---")
}

func (r *Renderer) HandleBR() {
	s := r.current.String()
	if !strings.HasSuffix(s, "  \n") {
		r.append("  \n")
	}
}

func (r *Renderer) HandleUnknown(run ir.Run) {
	r.append(fmt.Sprintf("`[Unknown Run: %s]`", run.RunTag()))
}

// extractCellText projects a table cell's runs down to escaped plain
// text for GFM table cells, which cannot nest block structure.
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
			alt := v.Alt
			if alt == "" {
				alt = "image"
			}
			b.WriteString("[Image: " + alt + "]")
		case ir.AttachmentRefRun:
			name := v.DisplayName
			if name == "" {
				name = v.Name
			}
			b.WriteString("[Attachment: " + name + "]")
		case ir.BRRun:
			b.WriteString("<br>")
		case ir.TableRun:
			b.WriteString("[Nested Table]")
		}
	}
	text := b.String()
	text = strings.ReplaceAll(text, "|", "\\|")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "\n", "<br>")
	return text
}

func (r *Renderer) HandleTable(run ir.TableRun) {
	r.flush()
	r.inList = false
	r.listNumber = 1
	r.prefix = ""

	if len(run.Rows) == 0 {
		return
	}
	numCols := len(run.Rows[0].Cells)
	if numCols == 0 {
		return
	}

	header := make([]string, numCols)
	for i, cell := range run.Rows[0].Cells {
		header[i] = extractCellText(cell.Runs)
	}
	sep := make([]string, numCols)
	for i := range sep {
		sep[i] = "---"
	}

	// Tab-flagged tables render as a sequence of same-shaped tables, one
	// per contiguous run of rows sharing a "tablabel", each preceded by a
	// "> Tab: NAME" line in a block of its own, since GFM tables can't carry that marker as a row.
	var group []ir.Row
	var groupLabel string
	flush := func() {
		if len(group) == 0 {
			return
		}
		if groupLabel != "" {
			r.blocks = append(r.blocks, "> Tab: "+groupLabel)
		}
		lines := []string{
			"| " + strings.Join(header, " | ") + " |",
			"| " + strings.Join(sep, " | ") + " |",
		}
		for _, row := range group {
			cells := make([]string, numCols)
			for i := 0; i < numCols; i++ {
				if i < len(row.Cells) {
					cells[i] = extractCellText(row.Cells[i].Runs)
				}
			}
			lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		}
		r.blocks = append(r.blocks, strings.Join(lines, "\n"))
		group = nil
	}

	for _, row := range run.Rows[1:] {
		label := row.Attributes["tablabel"]
		if label != groupLabel && len(group) > 0 {
			flush()
		}
		groupLabel = label
		group = append(group, row)
	}
	flush()
}

func (r *Renderer) GetOutput() ([]byte, error) {
	r.flush()
	var kept []string
	for _, b := range r.blocks {
		if strings.TrimSpace(b) != "" {
			kept = append(kept, strings.TrimSpace(b))
		}
	}
	return []byte(strings.Join(kept, "\n\n")), nil
}
