package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/tosuru/notesdb-export/core/notesdb"
	"github.com/tosuru/notesdb-export/core/pipeline"
	"github.com/tosuru/notesdb-export/core/render"
	"github.com/tosuru/notesdb-export/internal/config"
)

func TestLoadSkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	data, _ := json.Marshal([]map[string]any{
		{"title": "Sales", "db_file": "sales.nsf"},
		{"title": "Missing DB File"},
		{"db_file": "no-title.nsf"},
		{"title": "Support", "db_file": "support.nsf", "views": []string{"($All)"}},
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	entries, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 valid entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].ViewNames()[0] != "($All)" {
		t.Errorf("expected views preserved, got %+v", entries[1].ViewNames())
	}
}

func TestLoadRejectsNonArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"not": "an array"}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error for a non-array manifest")
	}
}

func TestRunDrivesEachEntry(t *testing.T) {
	dxlDir := t.TempDir()
	outDir := t.TempDir()
	stateDir := t.TempDir()

	writeDXL := func(unid string) {
		data := []byte(`<?xml version="1.0"?>
<document unid="` + unid + `">
	<created><datetime>20230101T090000,000000+0000</datetime></created>
	<item name="Subject"><text>Doc</text></item>
	<item name="Body"><richtext><pardef id="1" align="left"/><par def="1">hi</par></richtext></item>
</document>`)
		if err := os.WriteFile(filepath.Join(dxlDir, unid+".dxl"), data, 0o644); err != nil {
			t.Fatalf("write dxl: %v", err)
		}
	}
	writeDXL("UNID1")

	entries := []Entry{{Title: "Sales", DBFile: "sales.nsf"}}
	o := pipeline.New(outDir, config.Config{}, []render.Format{render.FormatHTML})

	report := Run(context.Background(), entries, o, func(e Entry) notesdb.Client {
		return notesdb.NewDirClient(dxlDir)
	}, Options{StateBase: stateDir, RetryCap: 3})

	run, ok := report.PerDB["Sales"]
	if !ok {
		t.Fatalf("expected a report for Sales, got %+v", report.PerDB)
	}
	if run.Succeeded != 1 {
		t.Errorf("expected 1 succeeded document, got %+v", run)
	}

	if _, err := os.Stat(filepath.Join(stateDir, "Sales", "progress.jsonl")); err != nil {
		t.Errorf("expected per-DB journal written: %v", err)
	}
}
