// Package pipeline implements the per-document orchestrator:
// PARSE -> COMPOSE_PATH -> WRITE_INITIAL_IR -> EXTRACT ->
// WRITE_FINAL_IR -> RENDER(per format), each phase failure logged and
// recorded rather than aborting the run.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tosuru/notesdb-export/core/attach"
	"github.com/tosuru/notesdb-export/core/cas"
	"github.com/tosuru/notesdb-export/core/dxl"
	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/core/render/dispatch"
	"github.com/tosuru/notesdb-export/internal/config"
	"github.com/tosuru/notesdb-export/internal/journal"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// Phase tags the six stages of the per-document state machine; a
// failure is logged and recorded against the phase it occurred in.
type Phase string

const (
	PhaseParse        Phase = "parse"
	PhaseComposePath  Phase = "compose_path"
	PhaseWriteInitial Phase = "write_initial_ir"
	PhaseExtract      Phase = "extract"
	PhaseWriteFinal   Phase = "write_final_ir"
	PhaseRender       Phase = "render"
)

// PhaseError records which phase of the state machine failed, so both
// the journal entry and the "*.FAILED_<phase>.json" sidecar can name
// it precisely.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Result describes one document's successful run.
type Result struct {
	UNID   string
	OutDir string
}

// Orchestrator drives one document at a time through parse, extract,
// and render, optionally appending progress-journal entries for a
// caller that wants resume/retry support (core/manifest, or
// run-single-db driven directly).
type Orchestrator struct {
	OutBase   string
	Config    config.Config
	Formats   []render.Format
	Extractor *attach.Extractor

	// Journal, if non-nil, receives each document's terminal
	// "done"/"error"/"skipped" entry from ProcessOne; RunSingleDB also
	// appends the "processing" entry before each attempt, so every state
	// transition is recoverable on resume.
	Journal *journal.Writer
}

// New returns an Orchestrator writing under outBase, rendering formats,
// with no journal attached (set Journal afterward to enable it).
func New(outBase string, cfg config.Config, formats []render.Format) *Orchestrator {
	return &Orchestrator{
		OutBase:   outBase,
		Config:    cfg,
		Formats:   formats,
		Extractor: attach.New(cfg),
	}
}

func (o *Orchestrator) appendJournal(db, unid string, status journal.Status, try int, out, errMsg string) {
	if o.Journal == nil {
		return
	}
	entry := journal.Entry{
		Ts:     time.Now().UTC().Format(time.RFC3339),
		DB:     db,
		UNID:   unid,
		Status: status,
		Try:    try,
		Out:    out,
		Err:    errMsg,
	}
	if err := o.Journal.Append(entry); err != nil {
		logging.Error("pipeline: journal append failed", "db", db, "unid", unid, "err", err)
	}
}

// ProcessOne runs the full state machine for one document's raw DXL
// bytes, belonging to database db with the given UNID (already known
// from the caller's enumeration) and attempt number try (for the
// journal's "try" counter). The caller is expected to have already
// appended a "processing" entry (RunSingleDB does, covering the export
// step that precedes this call too); ProcessOne only appends the
// terminal outcome. A zero-length dxlData is treated as "skipped"
// rather than a failure.
func (o *Orchestrator) ProcessOne(db, unid string, dxlData []byte, try int) (*Result, error) {
	if len(dxlData) == 0 {
		o.appendJournal(db, unid, journal.StatusSkipped, try, "", "empty DXL export")
		return nil, nil
	}

	// Phase 1: Parse.
	logging.PhaseStart(db, unid, string(PhaseParse))
	doc := dxl.Parse(dxlData, unid)
	if doc.Meta.Error != "" {
		parseErr := fmt.Errorf("%s", doc.Meta.Error)
		// The minimal IR still composes an output directory, which holds
		// the FAILED_parse sidecar.
		doc.Meta.DBTitle = db
		if outDir := o.composeOutDir(db, doc); os.MkdirAll(outDir, 0o755) == nil {
			return nil, o.fail(db, unid, doc, outDir, filepath.Base(outDir), PhaseParse, try, parseErr)
		}
		err := &PhaseError{Phase: PhaseParse, Err: parseErr}
		logging.PhaseError(db, unid, string(PhaseParse), err)
		o.appendJournal(db, unid, journal.StatusError, try, "", journal.ClipErr(err.Error()))
		return nil, err
	}
	doc.Meta.DBTitle = db
	logging.PhaseDone(db, unid, string(PhaseParse))

	// Phase 2: Compose & create the document's output directory.
	outDir := o.composeOutDir(db, doc)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		perr := &PhaseError{Phase: PhaseComposePath, Err: err}
		logging.PhaseError(db, unid, string(PhaseComposePath), err)
		o.appendJournal(db, unid, journal.StatusError, try, "", journal.ClipErr(perr.Error()))
		return nil, perr
	}
	stem := filepath.Base(outDir)
	irPath := filepath.Join(outDir, stem+".normalized.json")

	// Phase 3: Write the initial IR.
	if err := writeIR(irPath, doc); err != nil {
		return nil, o.fail(db, unid, doc, outDir, stem, PhaseWriteInitial, try, err)
	}
	logging.PhaseDone(db, unid, string(PhaseWriteInitial))

	// Phase 4: Extract attachments.
	attachDir := filepath.Join(outDir, "attachments")
	if err := o.Extractor.Extract(dxlData, doc, attachDir); err != nil {
		return nil, o.fail(db, unid, doc, outDir, stem, PhaseExtract, try, err)
	}
	logging.PhaseDone(db, unid, string(PhaseExtract))

	// Phase 5: Write the updated IR.
	if err := writeIR(irPath, doc); err != nil {
		return nil, o.fail(db, unid, doc, outDir, stem, PhaseWriteFinal, try, err)
	}
	logging.PhaseDone(db, unid, string(PhaseWriteFinal))

	// Phase 6: Render every requested format. A single
	// format's RenderError does not abort the document: it is logged
	// and the orchestrator moves on to the next format.
	for _, format := range o.Formats {
		out, err := dispatch.Render(format, doc, attachDir, o.Config)
		if err != nil {
			logging.RenderResult(db, unid, string(format), err)
			continue
		}
		renderPath := filepath.Join(outDir, stem+"."+string(format))
		if err := os.WriteFile(renderPath, out, 0o644); err != nil {
			logging.RenderResult(db, unid, string(format), err)
			continue
		}
		logging.RenderResult(db, unid, string(format), nil)
	}

	o.appendJournal(db, unid, journal.StatusDone, try, outDir, "")
	return &Result{UNID: unid, OutDir: outDir}, nil
}

// fail writes the best-available IR to a "*.FAILED_<phase>.json"
// sidecar with meta.pipeline_error populated, records the phase-tagged
// error in the journal, and returns it to the caller.
func (o *Orchestrator) fail(db, unid string, doc *ir.NDoc, outDir, stem string, phase Phase, try int, err error) error {
	perr := &PhaseError{Phase: phase, Err: err}
	doc.Meta.PipelineError = perr.Error()
	failPath := filepath.Join(outDir, fmt.Sprintf("%s.FAILED_%s.json", stem, phase))
	if writeErr := writeIR(failPath, doc); writeErr != nil {
		logging.Error("pipeline: failed to write FAILED sidecar", "path", failPath, "err", writeErr)
	}
	logging.PhaseError(db, unid, string(phase), err)
	o.appendJournal(db, unid, journal.StatusError, try, "", journal.ClipErr(perr.Error()))
	return perr
}

// slashSplit matches the run of path-separator characters a legacy
// title-as-subfolder layout split on.
var slashSplit = regexp.MustCompile(`[\\/]+`)

// composeOutDir builds <out_base>/<db_title>/<form>/<up to two
// categories>/Doc_<yyyymmdd>_<title>/, detecting and
// reusing a legacy layout that treated "/" in the title as directory
// separators when one already exists on disk.
func (o *Orchestrator) composeOutDir(db string, doc *ir.NDoc) string {
	form := doc.Meta.Form
	if form == "" {
		form = "NoForm"
	}
	title := fieldText(doc.Fields["Subject"], "NoTitle_"+doc.Meta.UNID)
	cats := categoriesOf(doc.Fields["Categories"])
	dateStr := yyyymmdd(doc.Meta.Created)

	primary := o.buildPath(db, form, cats, dateStr, title, false)
	legacy := o.buildPath(db, form, cats, dateStr, title, true)

	if _, err := os.Stat(primary); os.IsNotExist(err) {
		if info, err := os.Stat(legacy); err == nil && info.IsDir() {
			logging.Warn("pipeline: reusing legacy slash-split output directory", "unid", doc.Meta.UNID, "dir", legacy)
			return legacy
		}
	}
	return primary
}

func (o *Orchestrator) buildPath(db, form string, cats []string, dateStr, title string, legacy bool) string {
	p := filepath.Join(o.OutBase, cas.SanitizeFilename(db), cas.SanitizeFilename(form))
	for i, c := range cats {
		if i >= 2 {
			break
		}
		p = filepath.Join(p, cas.SanitizeFilename(c))
	}

	if !legacy {
		return filepath.Join(p, fmt.Sprintf("Doc_%s_%s", dateStr, cas.SanitizeFilename(title)))
	}

	parts := slashSplit.Split(title, -1)
	head := "NoTitle"
	if len(parts) > 0 && parts[0] != "" {
		head = parts[0]
	}
	p = filepath.Join(p, fmt.Sprintf("Doc_%s_%s", dateStr, cas.SanitizeFilename(head)))
	for _, tail := range parts[1:] {
		if tail != "" {
			p = filepath.Join(p, cas.SanitizeFilename(tail))
		}
	}
	return p
}

// fieldText projects a text/textlist field's value down to a single
// display string (e.g. the Subject field used for the document
// directory title), falling back when the field is absent or empty.
func fieldText(f ir.Field, fallback string) string {
	switch v := f.Value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	case []any:
		var parts []string
		for _, e := range v {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return fallback
		}
		return strings.Join(parts, " ")
	default:
		return fallback
	}
}

// categoriesOf extracts the Categories field's values as a slice,
// splitting a scalar text value on ";" the way the source groupware's
// multi-value text fields are conventionally delimited.
func categoriesOf(f ir.Field) []string {
	switch v := f.Value.(type) {
	case string:
		var out []string
		for _, c := range strings.Split(v, ";") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
		return out
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// yyyymmdd derives the document directory's date segment from an
// ISO-8601 created timestamp, falling back to "NODATE" when absent and
// "INVALIDDATE" when present but unparsable.
func yyyymmdd(created string) string {
	if created == "" {
		return "NODATE"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, created); err == nil {
			return t.Format("20060102")
		}
	}
	logging.Warn("pipeline: invalid created timestamp", "created", created)
	return "INVALIDDATE"
}

// writeIR persists doc as pretty-printed, ensure_ascii=false UTF-8 JSON
//: two-space indent, and SetEscapeHTML(false) so encoding/json's
// default HTML-escaping of "<", ">", "&" doesn't corrupt attachment paths
// or richtext content carrying those bytes.
func writeIR(path string, doc *ir.NDoc) error {
	if err := ir.Save(path, doc); err != nil {
		return &cerrors.IOError{Operation: "write IR", Path: path, Err: err}
	}
	return nil
}
