package render

import (
	"testing"

	"github.com/tosuru/notesdb-export/core/ir"
)

// recordingRenderer implements Renderer, logging every call it receives so
// tests can assert on ProcessRuns' and RenderDoc's dispatch order.
type recordingRenderer struct {
	calls []string
}

func (r *recordingRenderer) log(s string) { r.calls = append(r.calls, s) }

func (r *recordingRenderer) RenderHeader(doc *ir.NDoc)            { r.log("header") }
func (r *recordingRenderer) RenderFooter(doc *ir.NDoc)            { r.log("footer") }
func (r *recordingRenderer) RenderAppendix(rows []AppendixRow)    { r.log("appendix") }
func (r *recordingRenderer) StartParagraph(par ir.ParRun)         { r.log("start_par") }
func (r *recordingRenderer) FinalizeParagraph()                  { r.log("finalize_par") }
func (r *recordingRenderer) EnsureParagraphStarted()              { r.log("ensure_par") }
func (r *recordingRenderer) HandleText(run ir.TextRun)            { r.log("text:" + run.Text) }
func (r *recordingRenderer) HandleLink(run ir.LinkRun)            { r.log("link") }
func (r *recordingRenderer) HandleImg(run ir.ImgRun)              { r.log("img") }
func (r *recordingRenderer) HandleTable(run ir.TableRun)          { r.log("table") }
func (r *recordingRenderer) HandleAttachmentRef(run ir.AttachmentRefRun) { r.log("attachmentref") }
func (r *recordingRenderer) StartSection()                       { r.log("start_section") }
func (r *recordingRenderer) StartSectionBody()                   { r.log("start_section_body") }
func (r *recordingRenderer) EndSection()                          { r.log("end_section") }
func (r *recordingRenderer) HandleHR()                            { r.log("hr") }
func (r *recordingRenderer) HandleBR()                            { r.log("br") }
func (r *recordingRenderer) HandleUnknown(run ir.Run)             { r.log("unknown") }
func (r *recordingRenderer) GetOutput() ([]byte, error)           { return []byte("done"), nil }

var _ Renderer = (*recordingRenderer)(nil)

func TestProcessRunsEmptyListStillOpensOneParagraph(t *testing.T) {
	rr := &recordingRenderer{}
	ProcessRuns(rr, NewContext(), nil)

	want := []string{"ensure_par", "finalize_par"}
	if !equalCalls(rr.calls, want) {
		t.Errorf("got %v, want %v", rr.calls, want)
	}
}

func TestProcessRunsDispatchesEachRunType(t *testing.T) {
	rr := &recordingRenderer{}
	runs := ir.RunList{
		ir.ParRun{},
		ir.TextRun{Text: "hello"},
		ir.LinkRun{URL: "http://example.com"},
		ir.HRRun{},
		ir.BRRun{},
	}
	ProcessRuns(rr, NewContext(), runs)

	want := []string{
		"finalize_par", "start_par",
		"ensure_par", "text:hello",
		"ensure_par", "link",
		"ensure_par", "finalize_par", "hr",
		"ensure_par", "br",
		"finalize_par",
	}
	if !equalCalls(rr.calls, want) {
		t.Errorf("got %v, want %v", rr.calls, want)
	}
}

func TestProcessRunsTableFinalizesSurroundingParagraph(t *testing.T) {
	rr := &recordingRenderer{}
	runs := ir.RunList{
		ir.ParRun{},
		ir.TextRun{Text: "before"},
		ir.TableRun{Rows: []ir.Row{{Cells: []ir.Cell{{}}}}},
	}
	ProcessRuns(rr, NewContext(), runs)

	want := []string{
		"finalize_par", "start_par",
		"ensure_par", "text:before",
		"ensure_par", "finalize_par", "table",
		"finalize_par",
	}
	if !equalCalls(rr.calls, want) {
		t.Errorf("got %v, want %v", rr.calls, want)
	}
}

func TestProcessRunsSectionRecursesIntoTitleAndBody(t *testing.T) {
	rr := &recordingRenderer{}
	runs := ir.RunList{
		ir.SectionRun{
			TitleRuns: ir.RunList{ir.TextRun{Text: "title"}},
			BodyRuns:  ir.RunList{ir.TextRun{Text: "body"}},
		},
	}
	ProcessRuns(rr, NewContext(), runs)

	want := []string{
		"ensure_par", "finalize_par", "start_section",
		"ensure_par", "text:title", "finalize_par",
		"start_section_body",
		"ensure_par", "text:body", "finalize_par",
		"end_section",
		"finalize_par",
	}
	if !equalCalls(rr.calls, want) {
		t.Errorf("got %v, want %v", rr.calls, want)
	}
}

func TestRenderDocCallsHeaderBodyAppendixFooterInOrder(t *testing.T) {
	rr := &recordingRenderer{}
	doc := ir.New("U1")
	doc.Fields["Body"] = ir.Field{Type: ir.FieldRichText, Runs: ir.RunList{ir.TextRun{Text: "hi"}}}

	out, err := RenderDoc(rr, doc)
	if err != nil {
		t.Fatalf("RenderDoc: %v", err)
	}
	if string(out) != "done" {
		t.Errorf("expected GetOutput's own return value, got %q", out)
	}

	if len(rr.calls) < 2 || rr.calls[0] != "header" || rr.calls[len(rr.calls)-1] != "footer" {
		t.Errorf("expected header first and footer last, got %v", rr.calls)
	}
	footerIdx, appendixIdx := -1, -1
	for i, c := range rr.calls {
		if c == "footer" {
			footerIdx = i
		}
		if c == "appendix" {
			appendixIdx = i
		}
	}
	if footerIdx == -1 || appendixIdx == -1 || appendixIdx > footerIdx {
		t.Errorf("expected appendix to precede footer, got %v", rr.calls)
	}
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
