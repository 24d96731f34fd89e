package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/config"
	"github.com/tosuru/notesdb-export/internal/journal"
)

// fakeClient is an in-memory notesdb.Client stand-in for exercising
// RunSingleDB without a filesystem-backed DirClient.
type fakeClient struct {
	docs map[string][]byte
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }

func (f *fakeClient) IterUNIDs(ctx context.Context, viewNames []string) ([]string, error) {
	unids := make([]string, 0, len(f.docs))
	for u := range f.docs {
		unids = append(unids, u)
	}
	return unids, nil
}

func (f *fakeClient) ExportDXL(ctx context.Context, unid string) ([]byte, error) {
	return f.docs[unid], nil
}

func (f *fakeClient) Close() error { return nil }

func dxlFor(unid string) []byte {
	return []byte(`<?xml version="1.0"?>
<document unid="` + unid + `">
	<created><datetime>20230101T090000,000000+0000</datetime></created>
	<item name="Form"><text>Memo</text></item>
	<item name="Subject"><text>Doc ` + unid + `</text></item>
	<item name="Body"><richtext><pardef id="1" align="left"/><par def="1">hi</par></richtext></item>
</document>`)
}

func TestRunSingleDBProcessesAllAndWritesJournal(t *testing.T) {
	outDir := t.TempDir()
	stateDir := t.TempDir()
	o := New(outDir, config.Config{}, []render.Format{render.FormatHTML})
	client := &fakeClient{docs: map[string][]byte{
		"UNID1": dxlFor("UNID1"),
		"UNID2": dxlFor("UNID2"),
	}}

	journalPath := filepath.Join(stateDir, "progress.jsonl")
	report, err := RunSingleDB(context.Background(), o, client, DBConfig{Title: "SalesDB", DBFile: "sales.nsf"}, journalPath, RunOptions{RetryCap: 3})
	if err != nil {
		t.Fatalf("RunSingleDB: %v", err)
	}
	if report.Attempted != 2 || report.Succeeded != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	entries, err := journal.Load(journalPath)
	if err != nil {
		t.Fatalf("journal.Load: %v", err)
	}
	states := journal.Reduce(entries)
	for _, unid := range []string{"UNID1", "UNID2"} {
		st, ok := states[journal.Key{DB: "sales.nsf", UNID: unid}]
		if !ok || st.Status != journal.StatusDone {
			t.Errorf("expected %s done in journal, got %+v (seen=%v)", unid, st, ok)
		}
	}
}

func TestRunSingleDBSkipsAlreadyDoneOnResume(t *testing.T) {
	outDir := t.TempDir()
	stateDir := t.TempDir()
	journalPath := filepath.Join(stateDir, "progress.jsonl")

	w, err := journal.NewWriter(journalPath)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(journal.Entry{Ts: "2023-01-01T00:00:00Z", DB: "sales.nsf", UNID: "UNID1", Status: journal.StatusDone, Try: 1}); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	w.Close()

	o := New(outDir, config.Config{}, []render.Format{render.FormatHTML})
	client := &fakeClient{docs: map[string][]byte{
		"UNID1": dxlFor("UNID1"),
		"UNID2": dxlFor("UNID2"),
	}}

	report, err := RunSingleDB(context.Background(), o, client, DBConfig{Title: "SalesDB", DBFile: "sales.nsf"}, journalPath, RunOptions{RetryCap: 3})
	if err != nil {
		t.Fatalf("RunSingleDB: %v", err)
	}
	if report.Attempted != 1 {
		t.Fatalf("expected only the unseen document attempted, got %+v", report)
	}
}

func TestRunSingleDBErrorsOnlySkipsUnseen(t *testing.T) {
	outDir := t.TempDir()
	stateDir := t.TempDir()
	journalPath := filepath.Join(stateDir, "progress.jsonl")

	w, err := journal.NewWriter(journalPath)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(journal.Entry{Ts: "2023-01-01T00:00:00Z", DB: "sales.nsf", UNID: "UNID1", Status: journal.StatusError, Try: 1}); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	w.Close()

	o := New(outDir, config.Config{}, []render.Format{render.FormatHTML})
	client := &fakeClient{docs: map[string][]byte{
		"UNID1": dxlFor("UNID1"),
		"UNID2": dxlFor("UNID2"),
	}}

	report, err := RunSingleDB(context.Background(), o, client, DBConfig{Title: "SalesDB", DBFile: "sales.nsf"}, journalPath, RunOptions{RetryCap: 3, ErrorsOnly: true})
	if err != nil {
		t.Fatalf("RunSingleDB: %v", err)
	}
	if report.Attempted != 1 {
		t.Fatalf("expected only the previously-errored document attempted, got %+v", report)
	}
}
