// Package journal implements the append-only progress journal: one
// JSON object per line, flushed and fsynced before the
// next document begins, used to resume a manifest run and to classify
// which documents still need an attempt.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	cerrors "github.com/tosuru/notesdb-export/core/errors"
)

// Status is one of the four journal entry states.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusSkipped    Status = "skipped"
	StatusError      Status = "error"
)

// maxErrLen is the clip length for the optional "err" field.
const maxErrLen = 400

// Entry is one line of the journal.
type Entry struct {
	Ts     string `json:"ts"`
	DB     string `json:"db"`
	UNID   string `json:"unid"`
	Status Status `json:"status"`
	Try    int    `json:"try"`
	Err    string `json:"err,omitempty"`
	Out    string `json:"out,omitempty"`
}

// ClipErr truncates an error message to the journal's 400-char budget.
func ClipErr(s string) string {
	runes := []rune(s)
	if len(runes) <= maxErrLen {
		return s
	}
	return string(runes[:maxErrLen])
}

// Writer appends entries to a JSONL file, flushing and fsyncing after
// every line so a crash between documents never leaves a torn or
// unflushed entry.
type Writer struct {
	file *os.File
}

// NewWriter opens path for append, creating it if absent.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &cerrors.IOError{Operation: "open journal", Path: path, Err: err}
	}
	return &Writer{file: f}, nil
}

// Append writes one entry as a single JSON line, then flushes and
// fsyncs before returning.
func (w *Writer) Append(e Entry) error {
	e.Err = ClipErr(e.Err)
	data, err := json.Marshal(e)
	if err != nil {
		return &cerrors.IOError{Operation: "marshal journal entry", Path: w.file.Name(), Err: err}
	}
	data = append(data, '\n')
	if _, err := w.file.Write(data); err != nil {
		return &cerrors.IOError{Operation: "write journal entry", Path: w.file.Name(), Err: err}
	}
	if err := w.file.Sync(); err != nil {
		return &cerrors.IOError{Operation: "fsync journal", Path: w.file.Name(), Err: err}
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Load reads every entry from a journal file in order. A missing file
// is treated as an empty journal (a first run has none yet), not an
// error.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &cerrors.IOError{Operation: "open journal", Path: path, Err: err}
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, &cerrors.ParseError{Format: "journal", Path: path, Message: fmt.Sprintf("line %d: %v", lineNum, err)}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &cerrors.IOError{Operation: "read journal", Path: path, Err: err}
	}
	return entries, nil
}

// Key identifies one document across journal entries.
type Key struct {
	DB   string
	UNID string
}

// DocState is a document's reduced journal state: its last recorded
// status and the attempt count that produced it.
type DocState struct {
	Status Status
	Try    int
}

// Reduce folds a journal's entries down to each document's final
// state, relying on journal monotonicity.
func Reduce(entries []Entry) map[Key]DocState {
	states := make(map[Key]DocState, len(entries))
	for _, e := range entries {
		states[Key{DB: e.DB, UNID: e.UNID}] = DocState{Status: e.Status, Try: e.Try}
	}
	return states
}

// ShouldAttempt reports whether a document in state should be
// (re)processed: "done" and "skipped" documents are final; "error"
// documents are retried while their try count is below retryCap;
// anything not yet seen, or left at "processing" by a crash mid-run,
// is attempted.
func ShouldAttempt(state DocState, seen bool, retryCap int) bool {
	if !seen {
		return true
	}
	switch state.Status {
	case StatusDone, StatusSkipped:
		return false
	case StatusError:
		return state.Try < retryCap
	default:
		return true
	}
}

// NextTry returns the attempt number to record for a document's next
// journal entry.
func NextTry(state DocState, seen bool) int {
	if !seen {
		return 1
	}
	return state.Try + 1
}
