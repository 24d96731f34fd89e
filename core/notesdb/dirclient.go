package notesdb

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// DirClient implements Client against a directory of already-exported
// DXL files, one per document, named "<unid>.dxl". It exists so
// `run-single-db`/`run-manifest` are reachable end to end without a
// real COM session: view names are accepted but ignored, since a flat
// directory has no view concept to honor.
type DirClient struct {
	dxlDir string
}

// NewDirClient returns a DirClient serving DXL files out of dxlDir.
func NewDirClient(dxlDir string) *DirClient {
	return &DirClient{dxlDir: dxlDir}
}

var _ Client = (*DirClient)(nil)

// Connect verifies dxlDir exists and is a directory.
func (c *DirClient) Connect(ctx context.Context) error {
	info, err := os.Stat(c.dxlDir)
	if err != nil {
		return &cerrors.IOError{Operation: "stat", Path: c.dxlDir, Err: err}
	}
	if !info.IsDir() {
		return &cerrors.ValidationError{Field: "dxlDir", Value: c.dxlDir, Message: "not a directory"}
	}
	logging.Debug("notesdb: connected to directory-backed source", "dir", c.dxlDir)
	return nil
}

// IterUNIDs lists every "*.dxl" file's basename (without extension),
// sorted for deterministic run order. viewNames is accepted for
// interface parity but has no effect here.
func (c *DirClient) IterUNIDs(ctx context.Context, viewNames []string) ([]string, error) {
	entries, err := os.ReadDir(c.dxlDir)
	if err != nil {
		return nil, &cerrors.IOError{Operation: "readdir", Path: c.dxlDir, Err: err}
	}

	var unids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".dxl") {
			continue
		}
		unids = append(unids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(unids)
	return unids, nil
}

// ExportDXL reads "<unid>.dxl" from dxlDir, substituting for the real
// client's CreateDXLExporter/NotesStream round trip.
func (c *DirClient) ExportDXL(ctx context.Context, unid string) ([]byte, error) {
	path := filepath.Join(c.dxlDir, unid+".dxl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &cerrors.NotFoundError{Resource: "dxl document", ID: unid}
		}
		return nil, &cerrors.IOError{Operation: "read", Path: path, Err: err}
	}
	return data, nil
}

// Close is a no-op: DirClient holds no session resources.
func (c *DirClient) Close() error { return nil }
