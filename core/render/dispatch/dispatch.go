// Package dispatch selects and drives one of the four format renderers.
// It is the one place that imports all of them together: each
// renderer package only depends on core/render, never on its siblings,
// so this is the sole import site that could otherwise cycle.
package dispatch

import (
	"fmt"

	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/core/render/docxrender"
	"github.com/tosuru/notesdb-export/core/render/htmlrender"
	"github.com/tosuru/notesdb-export/core/render/mdrender"
	"github.com/tosuru/notesdb-export/core/render/pdfrender"
	"github.com/tosuru/notesdb-export/internal/config"
)

// Render produces doc's rendered output in format, resolving any
// attachment content_path against attachDir. HTML and Markdown results
// are UTF-8 text; DOCX and PDF results are their native binary
// container bytes.
func Render(format render.Format, doc *ir.NDoc, attachDir string, cfg config.Config) ([]byte, error) {
	var rd render.Renderer
	switch format {
	case render.FormatHTML:
		rd = htmlrender.New(attachDir, cfg)
	case render.FormatMD:
		rd = mdrender.New(attachDir)
	case render.FormatDOCX:
		rd = docxrender.New(attachDir, cfg)
	case render.FormatPDF:
		rd = pdfrender.New(attachDir, cfg)
	default:
		return nil, &cerrors.UnsupportedError{Feature: "render format", Reason: fmt.Sprintf("unknown format %q", format)}
	}

	out, err := render.RenderDoc(rd, doc)
	if err != nil {
		return nil, &cerrors.RenderError{Format: string(format), UNID: doc.Meta.UNID, Err: err}
	}
	return out, nil
}
