package htmlrender

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/config"
)

func writeFile(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte("content"), 0o644)
}

func TestRenderHeaderEscapesSubjectAndWritesMeta(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	doc := ir.New("U1")
	doc.Meta.Form = "Memo"
	doc.Fields["Subject"] = ir.Field{Type: ir.FieldText, Value: "<script>alert(1)</script>"}

	r.RenderHeader(doc)
	if strings.Contains(r.header, "<script>") {
		t.Errorf("expected subject to be HTML-escaped, got %s", r.header)
	}
	if !strings.Contains(r.header, "UNID") || !strings.Contains(r.header, "U1") {
		t.Errorf("expected meta dl to include UNID, got %s", r.header)
	}
	if !strings.Contains(r.header, "Memo") {
		t.Errorf("expected meta dl to include the form, got %s", r.header)
	}
}

func TestHandleTextAppliesStyleMarksInFixedOrder(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.StartParagraph(ir.ParRun{})
	r.HandleText(ir.TextRun{
		Text:  "hi",
		Style: ir.Style{Marks: []ir.StyleMark{ir.MarkBold, ir.MarkItalic}},
	})
	got := r.current.String()
	if !strings.Contains(got, "<strong><em>hi</em></strong>") {
		t.Errorf("expected bold wrapping italic wrapping text, got %q", got)
	}
}

func TestHandleTextSuperscript(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.StartParagraph(ir.ParRun{})
	r.HandleText(ir.TextRun{
		Text:  "2",
		Style: ir.Style{Attrs: &ir.StyleAttrs{Script: ir.ScriptSuper}},
	})
	if !strings.Contains(r.current.String(), "<sup>2</sup>") {
		t.Errorf("expected a sup wrapper, got %q", r.current.String())
	}
}

func TestEmptyParagraphCollapsesToSoftBreak(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.StartParagraph(ir.ParRun{})
	r.HandleText(ir.TextRun{Text: "first"})
	r.FinalizeParagraph()

	r.StartParagraph(ir.ParRun{})
	r.FinalizeParagraph()

	if len(r.blocks) != 1 {
		t.Fatalf("expected the empty paragraph to collapse into the previous block, got %d blocks: %v", len(r.blocks), r.blocks)
	}
	if !strings.HasSuffix(r.blocks[0], "<br>") {
		t.Errorf("expected a trailing soft break, got %q", r.blocks[0])
	}
}

func TestHandleLinkInternalWithoutRedirectBaseUsesAnchor(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.HandleLink(ir.LinkRun{UNID: "ABC123"})
	got := r.current.String()
	if !strings.Contains(got, `href="#notes-ABC123"`) {
		t.Errorf("expected an in-page anchor fallback, got %q", got)
	}
}

func TestHandleLinkInternalWithRedirectBase(t *testing.T) {
	r := New("/tmp/attach", config.Config{NotesRedirectBase: "https://redirect.example/go"})
	r.HandleLink(ir.LinkRun{UNID: "ABC123", Server: "srv", Replica: "repl", View: "vw"})
	got := r.current.String()
	if !strings.Contains(got, "https://redirect.example/go?NotesURL=") {
		t.Errorf("expected the redirect base to be used, got %q", got)
	}
}

func TestHandleLinkExternal(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.HandleLink(ir.LinkRun{URL: "https://example.com/page"})
	got := r.current.String()
	if !strings.Contains(got, `href="https://example.com/page"`) {
		t.Errorf("expected the raw external URL as the href, got %q", got)
	}
}

func TestHandleImgMissingSourceRendersPlaceholder(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.HandleImg(ir.ImgRun{Alt: "a photo"})
	got := r.current.String()
	if !strings.Contains(got, "image unavailable") {
		t.Errorf("expected a missing-image placeholder, got %q", got)
	}
}

func TestHandleAttachmentRefMissingContentPath(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.HandleAttachmentRef(ir.AttachmentRefRun{Name: "report.pdf"})
	got := r.current.String()
	if !strings.Contains(got, "report.pdf") || !strings.Contains(got, "unavailable") {
		t.Errorf("expected an unavailable attachment placeholder, got %q", got)
	}
}

func TestSectionTitleClosesSummaryBeforeBody(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.StartSection()
	r.StartParagraph(ir.ParRun{})
	r.HandleText(ir.TextRun{Text: "title"})
	r.FinalizeParagraph()
	r.StartSectionBody()
	r.StartParagraph(ir.ParRun{})
	r.HandleText(ir.TextRun{Text: "body"})
	r.FinalizeParagraph()
	r.EndSection()

	joined := strings.Join(r.blocks, "")
	open := strings.Index(joined, "<summary>")
	closeIdx := strings.Index(joined, "</summary>")
	bodyIdx := strings.Index(joined, "body")
	if open == -1 || closeIdx == -1 || closeIdx < open {
		t.Fatalf("expected a balanced summary element, got %q", joined)
	}
	if bodyIdx < closeIdx {
		t.Errorf("expected body content after the summary closes, got %q", joined)
	}
}

func TestHandleAttachmentRefEmitsTypeIcon(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(dir, "report.pdf"); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	r := New(dir, config.Config{})
	doc := ir.New("U1")
	doc.Attachments = []ir.Attachment{{
		Name:        "report.pdf",
		Type:        ir.AttachmentFile,
		ContentPath: "report.pdf",
		IconPath:    "attachments/icons/pdf.gif",
	}}
	r.RenderHeader(doc)
	r.HandleAttachmentRef(ir.AttachmentRefRun{Name: "report.pdf", ContentPath: "report.pdf"})
	got := r.current.String()
	if !strings.Contains(got, `class="attachment-icon"`) || !strings.Contains(got, "pdf.gif") {
		t.Errorf("expected an icon image inside the attachment link, got %q", got)
	}
}

func TestGetOutputWrapsChromeAndAppendix(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	doc := ir.New("U1")
	r.RenderHeader(doc)
	r.RenderAppendix([]render.AppendixRow{{Name: "Category", Type: ir.FieldText, Preview: "misc"}})

	out, err := r.GetOutput()
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "<!DOCTYPE html>") {
		t.Errorf("expected the outer chrome template, got %s", s)
	}
	if !strings.Contains(s, "Category") {
		t.Errorf("expected the appendix table to be present, got %s", s)
	}
}

func TestMinifyCollapsesBlankLines(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.Minify()
	doc := ir.New("U1")
	r.RenderHeader(doc)

	out, err := r.GetOutput()
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if strings.Contains(string(out), "\n") {
		t.Errorf("expected minified output to contain no newlines, got %q", out)
	}
}

func TestHandleTableTabFlaggedGroupsUnderLabel(t *testing.T) {
	r := New("/tmp/attach", config.Config{})
	r.HandleTable(ir.TableRun{
		Rows: []ir.Row{
			{Attributes: map[string]string{"tablabel": "Week 1"}, Cells: []ir.Cell{{Runs: ir.RunList{ir.TextRun{Text: "x"}}}}},
		},
	})
	if len(r.blocks) != 1 {
		t.Fatalf("expected a single table block, got %d", len(r.blocks))
	}
	if !strings.Contains(r.blocks[0], "tab-table") || !strings.Contains(r.blocks[0], "Week 1") {
		t.Errorf("expected a tab-table wrapper carrying the label, got %q", r.blocks[0])
	}
}
