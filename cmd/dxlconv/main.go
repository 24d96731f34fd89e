// Command dxlconv converts legacy groupware DXL exports into a
// normalized intermediate representation, extracts attachments with
// content-addressed deduplication, and renders the result into
// hypertext, lightweight-markup, word-processor, and paginated PDF
// formats.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/tosuru/notesdb-export/core/attach"
	"github.com/tosuru/notesdb-export/core/dxl"
	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/core/manifest"
	"github.com/tosuru/notesdb-export/core/notesdb"
	"github.com/tosuru/notesdb-export/core/pipeline"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/core/render/dispatch"
	"github.com/tosuru/notesdb-export/internal/config"
	"github.com/tosuru/notesdb-export/internal/logging"
)

const version = "0.1.0"

// CLI defines dxlconv's command surface: the five pipeline commands plus
// version. The commands are flat, not grouped under a noun, since there
// is no second verb competing for any of these names.
var CLI struct {
	Normalize   NormalizeCmd   `cmd:"" help:"Parse a directory of raw DXL exports into normalized IR JSON"`
	Extract     ExtractCmd     `cmd:"" help:"Extract attachments for a directory of normalized IR JSON"`
	Render      RenderCmd      `cmd:"" help:"Render a directory of IR JSON into one or more output formats"`
	RunSingleDB RunSingleDBCmd `cmd:"" name:"run-single-db" help:"Run the full pipeline against one source database"`
	RunManifest RunManifestCmd `cmd:"" name:"run-manifest" help:"Run the full pipeline across every database in a manifest"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

// parseFormats splits a comma-separated --formats value into
// render.Format values, rejecting anything outside the four known
// engines.
func parseFormats(raw string) ([]render.Format, error) {
	var out []render.Format
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		switch render.Format(part) {
		case render.FormatHTML, render.FormatMD, render.FormatDOCX, render.FormatPDF:
			out = append(out, render.Format(part))
		default:
			return nil, &cerrors.ConfigurationError{Key: "formats", Message: fmt.Sprintf("unknown render format %q", part)}
		}
	}
	if len(out) == 0 {
		return nil, &cerrors.ConfigurationError{Key: "formats", Message: "at least one format is required"}
	}
	return out, nil
}

// stripNormalizedStem removes a ".normalized" segment from a JSON
// file's base name, the stem the render command derives its output
// filenames from.
func stripNormalizedStem(base string) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(stem, ".normalized")
}

// NormalizeCmd implements "normalize": parses every "*.xml" file in
// DxlDir into normalized IR, tagging each document with DBTitle, and
// writes "<unid>.normalized.json" into JSONDir.
type NormalizeCmd struct {
	DxlDir  string `name:"dxl-dir" required:"" type:"existingdir" help:"Directory of raw *.xml DXL exports"`
	JSONDir string `name:"json-dir" required:"" type:"path" help:"Directory to write normalized IR JSON into"`
	DBTitle string `name:"db-title" required:"" help:"Database title stamped into each document's meta.db_title"`
}

func (c *NormalizeCmd) Run() error {
	if err := os.MkdirAll(c.JSONDir, 0o755); err != nil {
		return &cerrors.IOError{Operation: "mkdir", Path: c.JSONDir, Err: err}
	}

	matches, err := filepath.Glob(filepath.Join(c.DxlDir, "*.xml"))
	if err != nil {
		return &cerrors.IOError{Operation: "glob", Path: c.DxlDir, Err: err}
	}

	var ok, failed int
	for _, path := range matches {
		unid := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Error("normalize: read failed", "path", path, "err", err)
			failed++
			continue
		}

		doc := dxl.Parse(data, unid)
		doc.Meta.DBTitle = c.DBTitle

		outPath := filepath.Join(c.JSONDir, unid+".normalized.json")
		if err := ir.Save(outPath, doc); err != nil {
			logging.Error("normalize: write failed", "path", outPath, "err", err)
			failed++
			continue
		}
		ok++
	}

	fmt.Printf("normalize: %d document(s) written, %d failed\n", ok, failed)
	return nil
}

// ExtractCmd implements "extract": for every "*.json" file in JSONDir,
// re-reads the matching "*.xml" in DxlDir, extracts attachments into a
// per-document subdirectory of AttachDir named by the JSON stem, and rewrites the IR JSON with attachment paths resolved.
type ExtractCmd struct {
	DxlDir    string `name:"dxl-dir" required:"" type:"existingdir" help:"Directory of raw *.xml DXL exports, matched to JSON by stem"`
	JSONDir   string `name:"json-dir" required:"" type:"existingdir" help:"Directory of normalized IR JSON files to update in place"`
	AttachDir string `name:"attach-dir" required:"" type:"path" help:"Directory to write extracted attachment files into"`
}

func (c *ExtractCmd) Run() error {
	if err := os.MkdirAll(c.AttachDir, 0o755); err != nil {
		return &cerrors.IOError{Operation: "mkdir", Path: c.AttachDir, Err: err}
	}

	matches, err := filepath.Glob(filepath.Join(c.JSONDir, "*.json"))
	if err != nil {
		return &cerrors.IOError{Operation: "glob", Path: c.JSONDir, Err: err}
	}

	extractor := attach.New(config.FromEnv())

	var ok, failed int
	for _, jsonPath := range matches {
		stem := stripNormalizedStem(filepath.Base(jsonPath))
		xmlPath := filepath.Join(c.DxlDir, stem+".xml")

		doc, err := ir.Load(jsonPath)
		if err != nil {
			logging.Error("extract: load IR failed", "path", jsonPath, "err", err)
			failed++
			continue
		}
		dxlData, err := os.ReadFile(xmlPath)
		if err != nil {
			logging.Error("extract: read matching DXL failed", "path", xmlPath, "err", err)
			failed++
			continue
		}

		attachDir := filepath.Join(c.AttachDir, stem)
		if err := extractor.Extract(dxlData, doc, attachDir); err != nil {
			logging.Error("extract: extraction failed", "unid", doc.Meta.UNID, "err", err)
			failed++
			continue
		}

		if err := ir.Save(jsonPath, doc); err != nil {
			logging.Error("extract: write updated IR failed", "path", jsonPath, "err", err)
			failed++
			continue
		}
		ok++
	}

	fmt.Printf("extract: %d document(s) updated, %d failed\n", ok, failed)
	return nil
}

// RenderCmd implements "render": walks JSONDir for "*.json" files
// (optionally recursively) and renders each into every requested
// format, either alongside its source JSON (--inplace) or mirrored
// under a separate output tree (--out).
type RenderCmd struct {
	JSONDir   string `name:"json-dir" required:"" type:"existingdir" help:"Directory of normalized IR JSON files"`
	Out       string `name:"out" type:"path" help:"Output directory (mutually exclusive with --inplace)"`
	Inplace   bool   `name:"inplace" help:"Write rendered output next to each source JSON file"`
	Recursive bool   `name:"recursive" help:"Recurse into subdirectories of json-dir"`
	Formats   string `name:"formats" required:"" help:"Comma-separated list of formats: html,md,docx,pdf"`
}

func (c *RenderCmd) Run() error {
	if (c.Out == "") == !c.Inplace {
		return &cerrors.ConfigurationError{Key: "out/inplace", Message: "exactly one of --out or --inplace is required"}
	}
	formats, err := parseFormats(c.Formats)
	if err != nil {
		return err
	}
	cfg := config.FromEnv()

	var jsonPaths []string
	if c.Recursive {
		err = filepath.Walk(c.JSONDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				jsonPaths = append(jsonPaths, path)
			}
			return nil
		})
	} else {
		jsonPaths, err = filepath.Glob(filepath.Join(c.JSONDir, "*.json"))
	}
	if err != nil {
		return &cerrors.IOError{Operation: "walk", Path: c.JSONDir, Err: err}
	}

	var ok, failed int
	for _, jsonPath := range jsonPaths {
		doc, err := ir.Load(jsonPath)
		if err != nil {
			logging.Error("render: load IR failed", "path", jsonPath, "err", err)
			failed++
			continue
		}

		docDir := filepath.Dir(jsonPath)
		stem := stripNormalizedStem(filepath.Base(jsonPath))
		attachDir := filepath.Join(docDir, "attachments")

		destDir := docDir
		if !c.Inplace {
			rel, err := filepath.Rel(c.JSONDir, docDir)
			if err != nil {
				rel = "."
			}
			destDir = filepath.Join(c.Out, rel)
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				logging.Error("render: mkdir failed", "path", destDir, "err", err)
				failed++
				continue
			}
		}

		for _, format := range formats {
			out, err := dispatch.Render(format, doc, attachDir, cfg)
			if err != nil {
				logging.RenderResult(doc.Meta.DBTitle, doc.Meta.UNID, string(format), err)
				continue
			}
			outPath := filepath.Join(destDir, stem+"."+string(format))
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				logging.RenderResult(doc.Meta.DBTitle, doc.Meta.UNID, string(format), err)
				continue
			}
			logging.RenderResult(doc.Meta.DBTitle, doc.Meta.UNID, string(format), nil)
		}
		ok++
	}

	fmt.Printf("render: %d document(s) processed, %d failed to load\n", ok, failed)
	return nil
}

// dbFlags are the flags run-single-db and run-manifest share for
// naming the external collaborator's stand-in: a directory of
// pre-exported DXL files served through notesdb.DirClient.
type dbFlags struct {
	Out      string `name:"out" required:"" type:"path" help:"Output directory for rendered documents"`
	State    string `name:"state" required:"" type:"path" help:"State directory holding the resume/retry progress journal"`
	Formats  string `name:"formats" required:"" help:"Comma-separated list of formats: html,md,docx,pdf"`
	RetryCap int    `name:"retry-cap" default:"3" help:"Maximum attempts for a document stuck in error"`
	Limit    int    `name:"limit" help:"Cap the number of documents attempted this run"`
}

// RunSingleDBCmd implements "run-single-db": drives the orchestrator
// against one database, reading DXL through a DirClient rooted at
// DxlDir, the stand-in for the real Notes/Domino collaborator.
type RunSingleDBCmd struct {
	dbFlags
	DxlDir  string   `name:"dxl-dir" required:"" type:"existingdir" help:"Directory of pre-exported <unid>.dxl files for this database"`
	DBTitle string   `name:"db-title" required:"" help:"Database title, used for output path composition and state directory naming"`
	DBFile  string   `name:"db-file" required:"" help:"Database filename, used as the journal's stable per-document key"`
	Server  string   `name:"server" help:"Server name this database is configured against"`
	Views   []string `name:"view" help:"View name(s) to enumerate documents from, tried in order; repeatable"`
}

func (c *RunSingleDBCmd) Run() error {
	formats, err := parseFormats(c.Formats)
	if err != nil {
		return err
	}

	o := pipeline.New(c.Out, config.FromEnv(), formats)
	client := notesdb.NewDirClient(c.DxlDir)
	cfg := pipeline.DBConfig{Title: c.DBTitle, DBFile: c.DBFile, Server: c.Server, ViewNames: c.Views}
	journalPath := pipeline.JournalPathFor(c.State, c.DBTitle)
	if err := os.MkdirAll(filepath.Dir(journalPath), 0o755); err != nil {
		return &cerrors.IOError{Operation: "mkdir", Path: filepath.Dir(journalPath), Err: err}
	}

	report, err := pipeline.RunSingleDB(context.Background(), o, client, cfg, journalPath, pipeline.RunOptions{RetryCap: c.RetryCap, Limit: c.Limit})
	if err != nil {
		return err
	}

	fmt.Printf("run-single-db %q: attempted=%d succeeded=%d failed=%d skipped=%d\n",
		c.DBTitle, report.Attempted, report.Succeeded, report.Failed, report.Skipped)
	return nil
}

// RunManifestCmd implements "run-manifest": drives core/manifest.Run
// across every entry in Manifest, routing each entry's DirClient to
// "<dxl-root>/<db_file>" so a single manifest directory tree can hold
// every database's pre-exported DXL side by side.
type RunManifestCmd struct {
	dbFlags
	Manifest        string `name:"manifest" required:"" type:"existingfile" help:"Path to the manifest JSON file"`
	DxlRoot         string `name:"dxl-root" required:"" type:"existingdir" help:"Root directory holding one subdirectory of *.dxl files per database, named by db_file"`
	RetryErrorsOnly bool   `name:"retry-errors-only" help:"Only re-attempt documents the journal already recorded as error"`
}

func (c *RunManifestCmd) Run() error {
	formats, err := parseFormats(c.Formats)
	if err != nil {
		return err
	}

	entries, err := manifest.Load(c.Manifest)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return &cerrors.ConfigurationError{Key: "manifest", Message: fmt.Sprintf("%s: no valid entries", c.Manifest)}
	}

	o := pipeline.New(c.Out, config.FromEnv(), formats)
	newClient := func(e manifest.Entry) notesdb.Client {
		return notesdb.NewDirClient(filepath.Join(c.DxlRoot, e.DBFile))
	}

	report := manifest.Run(context.Background(), entries, o, newClient, manifest.Options{
		StateBase:    c.State,
		RetryCap:     c.RetryCap,
		RetryErrOnly: c.RetryErrorsOnly,
		Limit:        c.Limit,
	})

	for title, run := range report.PerDB {
		fmt.Printf("run-manifest %q: attempted=%d succeeded=%d failed=%d skipped=%d\n",
			title, run.Attempted, run.Succeeded, run.Failed, run.Skipped)
	}
	return nil
}

// VersionCmd prints the tool's version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("dxlconv version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("dxlconv"),
		kong.Description("DXL to normalized-IR conversion, attachment extraction, and multi-format rendering"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
