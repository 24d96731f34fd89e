package notesdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeDXL(t *testing.T, dir, unid string) {
	t.Helper()
	path := filepath.Join(dir, unid+".dxl")
	if err := os.WriteFile(path, []byte("<document unid=\""+unid+"\"></document>"), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestDirClientConnect(t *testing.T) {
	dir := t.TempDir()
	c := NewDirClient(dir)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	missing := NewDirClient(filepath.Join(dir, "does-not-exist"))
	if err := missing.Connect(context.Background()); err == nil {
		t.Error("Connect() on missing dir = nil, want error")
	}

	notDir := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(notDir, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fileClient := NewDirClient(notDir)
	if err := fileClient.Connect(context.Background()); err == nil {
		t.Error("Connect() on a file, not a directory, = nil, want error")
	}
}

func TestDirClientIterUNIDs(t *testing.T) {
	dir := t.TempDir()
	writeDXL(t, dir, "B0000000000001")
	writeDXL(t, dir, "A0000000000002")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir.dxl"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	c := NewDirClient(dir)
	got, err := c.IterUNIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("IterUNIDs() error = %v", err)
	}
	want := []string{"A0000000000002", "B0000000000001"}
	if len(got) != len(want) {
		t.Fatalf("IterUNIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IterUNIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDirClientExportDXL(t *testing.T) {
	dir := t.TempDir()
	writeDXL(t, dir, "C0000000000003")

	c := NewDirClient(dir)
	data, err := c.ExportDXL(context.Background(), "C0000000000003")
	if err != nil {
		t.Fatalf("ExportDXL() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("ExportDXL() returned empty data")
	}

	if _, err := c.ExportDXL(context.Background(), "does-not-exist"); err == nil {
		t.Error("ExportDXL() for missing unid = nil error, want not-found error")
	}
}

func TestDirClientClose(t *testing.T) {
	c := NewDirClient(t.TempDir())
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
