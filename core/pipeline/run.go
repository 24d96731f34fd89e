package pipeline

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/tosuru/notesdb-export/core/cas"
	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/notesdb"
	"github.com/tosuru/notesdb-export/internal/journal"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// defaultViewCandidates mirrors the source tool's fallback view-name
// list, tried in order when a DB config names no view of its own
//.
var defaultViewCandidates = []string{
	"($All)", "AllDocuments", "All Documents",
}

// DBConfig names one source database to drive through the
// orchestrator: run-single-db supplies one built from flags;
// core/manifest supplies one per manifest entry.
type DBConfig struct {
	Title     string
	DBFile    string
	Server    string
	ViewNames []string
}

// RunReport summarizes one database run for the caller (run-single-db,
// or core/manifest on its behalf).
type RunReport struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

// RunOptions configures one RunSingleDB invocation's resume/retry and
// scope behavior.
type RunOptions struct {
	// RetryCap is the maximum "try" count an errored document may be
	// re-attempted up to.
	RetryCap int
	// ErrorsOnly restricts the run to documents the journal already
	// records as "error" and below RetryCap, skipping every UNID the
	// journal has never seen.
	ErrorsOnly bool
	// Limit caps the number of documents attempted, after journal
	// filtering; zero or negative means unlimited.
	Limit int
}

// RunSingleDB enumerates every UNID reachable from client per cfg,
// replays journalPath to compute which documents still need an
// attempt,
// and drives each one through o.ProcessOne, appending its own
// progress-journal entries as it goes.
func RunSingleDB(ctx context.Context, o *Orchestrator, client notesdb.Client, cfg DBConfig, journalPath string, opts RunOptions) (RunReport, error) {
	var report RunReport
	retryCap := opts.RetryCap
	if retryCap <= 0 {
		retryCap = 3
	}

	if err := client.Connect(ctx); err != nil {
		return report, &cerrors.IOError{Operation: "connect", Path: cfg.DBFile, Err: err}
	}
	defer client.Close()

	viewNames := cfg.ViewNames
	if len(viewNames) == 0 {
		viewNames = defaultViewCandidates
	}

	unids, err := client.IterUNIDs(ctx, viewNames)
	if err != nil {
		return report, &cerrors.IOError{Operation: "enumerate UNIDs", Path: cfg.DBFile, Err: err}
	}
	sort.Strings(unids)
	logging.Info("pipeline: enumerated documents", "db", cfg.Title, "count", len(unids))

	entries, err := journal.Load(journalPath)
	if err != nil {
		return report, err
	}
	states := journal.Reduce(entries)

	jw, err := journal.NewWriter(journalPath)
	if err != nil {
		return report, err
	}
	defer jw.Close()
	o.Journal = jw

	for _, unid := range unids {
		if opts.Limit > 0 && report.Attempted >= opts.Limit {
			break
		}
		key := journal.Key{DB: cfg.DBFile, UNID: unid}
		state, seen := states[key]
		if opts.ErrorsOnly {
			if !seen || state.Status != journal.StatusError || state.Try >= retryCap {
				continue
			}
		} else if !journal.ShouldAttempt(state, seen, retryCap) {
			continue
		}
		try := journal.NextTry(state, seen)

		report.Attempted++
		o.appendJournal(cfg.DBFile, unid, journal.StatusProcessing, try, "", "")
		dxlData, err := client.ExportDXL(ctx, unid)
		if err != nil {
			logging.Error("pipeline: export failed", "db", cfg.Title, "unid", unid, "err", err)
			o.appendJournal(cfg.DBFile, unid, journal.StatusError, try, "", journal.ClipErr(err.Error()))
			report.Failed++
			continue
		}

		result, err := o.ProcessOne(cfg.DBFile, unid, dxlData, try)
		switch {
		case err != nil:
			report.Failed++
		case result == nil:
			report.Skipped++
		default:
			report.Succeeded++
		}
	}

	logging.Info("pipeline: db run complete", "db", cfg.Title,
		"attempted", report.Attempted, "succeeded", report.Succeeded,
		"failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// JournalPathFor composes the default per-DB journal path under a
// state directory, the layout run-manifest uses to keep each
// database's resume state independent.
func JournalPathFor(stateBase, dbTitle string) string {
	return filepath.Join(stateBase, cas.SanitizeFilename(dbTitle), "progress.jsonl")
}
