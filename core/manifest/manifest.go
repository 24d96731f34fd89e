// Package manifest implements the multi-database batch runner: it
// reads a JSON array of database configurations and drives
// core/pipeline.RunSingleDB against each in turn, giving every
// database its own resume-capable progress journal under a shared
// state directory.
package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/notesdb"
	"github.com/tosuru/notesdb-export/core/pipeline"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// Entry is one manifest array element: the minimum required
// fields are Title and DBFile; Server and either ViewName or Views are
// optional and feed a Client's view-enumeration fallback chain.
type Entry struct {
	Title    string   `json:"title"`
	DBFile   string   `json:"db_file"`
	Server   string   `json:"server,omitempty"`
	ViewName string   `json:"view_name,omitempty"`
	Views    []string `json:"views,omitempty"`
}

// ViewNames returns the entry's configured views, preferring the
// plural form over the single view_name.
func (e Entry) ViewNames() []string {
	if len(e.Views) > 0 {
		return e.Views
	}
	if e.ViewName != "" {
		return []string{e.ViewName}
	}
	return nil
}

// Load reads and validates a manifest JSON file: a top-level array of
// entries, each requiring at least Title and DBFile (invalid entries
// are dropped with a warning rather than aborting the whole load, the
// same tolerance the source tool applies per-entry).
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &cerrors.IOError{Operation: "read", Path: path, Err: err}
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &cerrors.ParseError{Format: "manifest", Path: path, Message: err.Error()}
	}

	entries := make([]Entry, 0, len(raw))
	for i, e := range raw {
		if e.Title == "" || e.DBFile == "" {
			logging.Warn("manifest: skipping invalid entry", "index", i, "path", path)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ClientFactory builds the notesdb.Client a manifest run should drive
// one entry through; run-manifest's CLI wires this to a DirClient
// rooted at the entry's configured DXL source, since the real COM
// client is outside this module's scope.
type ClientFactory func(Entry) notesdb.Client

// Options configures Run beyond the manifest itself.
type Options struct {
	StateBase    string
	RetryCap     int
	RetryErrOnly bool
	Limit        int
}

// Report aggregates one Run invocation's per-database results, keyed
// by the entry's title.
type Report struct {
	PerDB map[string]pipeline.RunReport
}

// Run drives the orchestrator across every manifest entry in order,
// giving each its own journal at
// "<state_base>/<sanitized_title>/progress.jsonl". A
// failure enumerating or exporting one database is logged and does
// not stop the remaining entries from being attempted.
func Run(ctx context.Context, entries []Entry, o *pipeline.Orchestrator, newClient ClientFactory, opts Options) Report {
	report := Report{PerDB: make(map[string]pipeline.RunReport, len(entries))}

	for _, entry := range entries {
		logging.Info("manifest: starting database", "db", entry.Title)
		client := newClient(entry)
		journalPath := pipeline.JournalPathFor(opts.StateBase, entry.Title)
		if err := os.MkdirAll(filepath.Dir(journalPath), 0o755); err != nil {
			logging.Error("manifest: cannot create state directory", "db", entry.Title, "err", err)
			continue
		}

		cfg := pipeline.DBConfig{
			Title:     entry.Title,
			DBFile:    entry.DBFile,
			Server:    entry.Server,
			ViewNames: entry.ViewNames(),
		}
		runOpts := pipeline.RunOptions{RetryCap: opts.RetryCap, ErrorsOnly: opts.RetryErrOnly, Limit: opts.Limit}
		run, err := pipeline.RunSingleDB(ctx, o, client, cfg, journalPath, runOpts)
		if err != nil {
			logging.Error("manifest: database run failed", "db", entry.Title, "err", err)
		}
		report.PerDB[entry.Title] = run
	}

	return report
}
