package render

import "github.com/tosuru/notesdb-export/core/ir"

// Format identifies one of the four output engines.
type Format string

const (
	FormatHTML Format = "html"
	FormatMD   Format = "md"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// Renderer is the visitor every format engine implements, driven by
// ProcessRuns. A Renderer owns its own output accumulator;
// GetOutput extracts the final bytes/string once RenderHeader,
// ProcessRuns, RenderFooter, and RenderAppendix have all run.
type Renderer interface {
	RenderHeader(doc *ir.NDoc)
	RenderFooter(doc *ir.NDoc)
	RenderAppendix(rows []AppendixRow)

	StartParagraph(par ir.ParRun)
	FinalizeParagraph()
	EnsureParagraphStarted()

	HandleText(r ir.TextRun)
	HandleLink(r ir.LinkRun)
	HandleImg(r ir.ImgRun)
	HandleTable(r ir.TableRun)
	HandleAttachmentRef(r ir.AttachmentRefRun)
	StartSection()
	StartSectionBody()
	EndSection()
	HandleHR()
	HandleBR()
	HandleUnknown(r ir.Run)

	GetOutput() ([]byte, error)
}

// ProcessRuns walks runs in order, finalizing/starting paragraphs around
// "par" tokens and dispatching every other token to the matching Handle*
// method.
// An empty run list still opens and finalizes one default paragraph, so
// every renderer sees one paragraph start and finish for a field with no
// content (a renderer may still drop that paragraph as empty).
func ProcessRuns(rd Renderer, ctx *Context, runs ir.RunList) {
	if len(runs) == 0 {
		rd.EnsureParagraphStarted()
		rd.FinalizeParagraph()
		return
	}

	for _, run := range runs {
		if par, ok := run.(ir.ParRun); ok {
			rd.FinalizeParagraph()
			ctx.UpdatePar(par)
			rd.StartParagraph(par)
			ctx.ParagraphStarted = true
			continue
		}

		rd.EnsureParagraphStarted()

		switch v := run.(type) {
		case ir.TextRun:
			rd.HandleText(v)
		case ir.LinkRun:
			rd.HandleLink(v)
		case ir.ImgRun:
			rd.HandleImg(v)
		case ir.TableRun:
			rd.FinalizeParagraph()
			rd.HandleTable(v)
			ctx.UpdatePar(ir.ParRun{})
			ctx.ParagraphStarted = false
		case ir.AttachmentRefRun:
			rd.HandleAttachmentRef(v)
		case ir.SectionRun:
			rd.FinalizeParagraph()
			rd.StartSection()
			ProcessRuns(rd, ctx, v.TitleRuns)
			rd.StartSectionBody()
			ProcessRuns(rd, ctx, v.BodyRuns)
			rd.EndSection()
			ctx.UpdatePar(ir.ParRun{})
			ctx.ParagraphStarted = false
		case ir.HRRun:
			rd.FinalizeParagraph()
			rd.HandleHR()
			ctx.ParagraphStarted = false
		case ir.BRRun:
			rd.HandleBR()
		default:
			rd.HandleUnknown(v)
		}
	}

	rd.FinalizeParagraph()
}

// RenderDoc runs RenderHeader, ProcessRuns over the Body field,
// RenderAppendix, and RenderFooter against rd in that fixed order, and
// returns its final output. Kept here (rather than as a Renderer method) so
// every format engine shares one execution order instead of re-deriving it.
func RenderDoc(rd Renderer, doc *ir.NDoc) ([]byte, error) {
	ctx := NewContext()
	rd.RenderHeader(doc)

	if body, ok := doc.Fields[ir.BodyFieldName]; ok {
		ProcessRuns(rd, ctx, body.Runs)
	} else {
		ProcessRuns(rd, ctx, nil)
	}

	rd.RenderAppendix(BuildAppendixRows(doc))
	rd.RenderFooter(doc)

	return rd.GetOutput()
}
