// Package notesdb models the external Notes/Domino collaborator this
// tool talks to: a running Notes client session that can
// enumerate a database's documents by UNID and hand back each one's DXL
// export. The real collaborator is a COM automation session (Lotus
// Notes/Domino on Windows) that cannot exist in this environment, so it
// is modeled here purely as an interface plus a filesystem-backed stub
// that lets the orchestrator and manifest runner be exercised end to end
// against a directory of already-exported DXL files.
package notesdb

import (
	"context"
)

// Client is the collaborator boundary the orchestrator depends on. A
// real implementation would wrap a COM NotesSession/NotesDatabase pair;
// this module ships only DirClient, a stand-in for a pre-exported DXL
// tree.
type Client interface {
	// Connect establishes the session. Called once before any other
	// method.
	Connect(ctx context.Context) error

	// IterUNIDs enumerates every document UNID reachable from the
	// database, honoring viewNames when non-empty. A real client walks
	// the listed views first, falls back to a NoteCollection selecting
	// all data notes, and finally to AllDocuments if both come up
	// empty; DirClient has no views and resolves its document set from
	// the filesystem instead.
	IterUNIDs(ctx context.Context, viewNames []string) ([]string, error)

	// ExportDXL returns the raw DXL bytes for one document. A real
	// client drives CreateDXLExporter against a NotesStream (converting
	// embedded bitmaps to GIF) and falls back to the exporter's
	// in-memory string form when the streaming overload isn't
	// available on the session.
	ExportDXL(ctx context.Context, unid string) ([]byte, error)

	// Close releases the session.
	Close() error
}
