// Package cas provides the named-file deduplication chain used when
// extracting attachments: a desired filename is resolved against a
// destination directory by content identity rather than by name alone, so
// that re-running extraction against the same DXL tree reuses files it has
// already written instead of piling up numbered duplicates.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrEmptyPayload is returned when Resolve is asked to place a zero-length
// attachment body.
var ErrEmptyPayload = errors.New("cas: empty attachment payload")

// firstStageBytes is how much of a candidate file is hashed during the
// second identity stage, before falling back to a full BLAKE2b compare.
const firstStageBytes = 1 << 20 // 1 MiB

// invalidNameChars matches characters that cannot appear in a sanitized
// attachment filename: the usual Windows-reserved set, whitespace, and C0
// controls.
var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?* \x00-\x1f]`)

// underscoreRuns collapses repeated underscores left behind by sanitization.
var underscoreRuns = regexp.MustCompile(`_+`)

// seqSuffix matches a trailing ".NNN" sequence suffix immediately before
// the extension, e.g. "文書_v1.002.txt" -> base "文書_v1.txt".
var seqSuffix = regexp.MustCompile(`^(.+?)\.(\d{3})$`)

const maxNameLength = 200

// SanitizeFilename rewrites name into a filesystem-safe attachment name:
// reserved characters and control bytes become underscores, underscore runs
// collapse, leading/trailing "._" is trimmed, and the result is truncated to
// maxNameLength while preserving the extension. An empty or all-invalid
// input falls back to a fixed placeholder name.
func SanitizeFilename(name string) string {
	if name == "" {
		return "_no_name_"
	}

	cleaned := invalidNameChars.ReplaceAllString(name, "_")
	cleaned = underscoreRuns.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, " ._")

	if cleaned == "" {
		return "_sanitized_"
	}

	if len(cleaned) > maxNameLength {
		ext := filepath.Ext(cleaned)
		base := cleaned[:len(cleaned)-len(ext)]
		keep := maxNameLength - len(ext)
		if keep < 1 {
			keep = 1
		}
		if keep < len(base) {
			base = base[:keep]
		}
		cleaned = base + ext
	}

	return cleaned
}

// StripSeqSuffix removes a trailing ".NNN" sequence suffix (exactly three
// digits, immediately before the extension) from name, e.g.
// "文書_v1.002.txt" -> "文書_v1.txt". It is used when re-deriving the
// canonical desired name from a displayname or original filename that
// already carries a Notes-assigned sequence counter.
func StripSeqSuffix(name string) string {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	if m := seqSuffix.FindStringSubmatch(stem); m != nil {
		return m[1] + ext
	}
	return name
}

// Resolution describes the outcome of resolving a desired attachment name
// against a destination directory.
type Resolution struct {
	// Path is the path the payload was written to (or already existed
	// at): the destination directory joined with Name, absolute only when
	// that directory is.
	Path string
	// Name is the base filename component of Path.
	Name string
	// Reused is true when an existing file with identical content was
	// found and no write occurred.
	Reused bool
	// SHA256 is the full-content SHA-256 hex digest of the payload.
	SHA256 string
}

// Store resolves desired filenames against a destination directory using a
// three-stage identity test, writing the payload atomically only when no
// existing file is identical.
type Store struct{}

// NewStore returns a Store. Construction takes no arguments: unlike the
// blob store this type replaces, the destination directory is supplied
// per-call so one Store can service every attachment directory in a run.
func NewStore() *Store {
	return &Store{}
}

// Resolve places data under dir using desiredName as the preferred
// filename. If a file already named desiredName exists and is identical to
// data (by size, then a first-1MiB SHA-256 prefilter, then a full BLAKE2b
// compare), that file is reused and Reused is true. If a same-named file
// exists with different content, Resolve searches numbered collision slots
// ("name_2.ext", "name_3.ext", ...) for either an identical match or the
// first free slot, and writes there. dir must already exist.
func (s *Store) Resolve(dir, desiredName string, data []byte) (Resolution, error) {
	if len(data) == 0 {
		return Resolution{}, ErrEmptyPayload
	}

	sanitized := SanitizeFilename(desiredName)
	ext := filepath.Ext(sanitized)
	base := sanitized[:len(sanitized)-len(ext)]

	sum := sha256.Sum256(data)
	sha256Hex := hex.EncodeToString(sum[:])

	candidate := sanitized
	for slot := 1; ; slot++ {
		path := filepath.Join(dir, candidate)
		info, err := os.Stat(path)
		switch {
		case err != nil && os.IsNotExist(err):
			if werr := writeAtomic(path, data); werr != nil {
				return Resolution{}, fmt.Errorf("cas: writing %s: %w", path, werr)
			}
			return Resolution{Path: path, Name: candidate, Reused: false, SHA256: sha256Hex}, nil
		case err != nil:
			return Resolution{}, fmt.Errorf("cas: stat %s: %w", path, err)
		default:
			same, err := identical(path, info.Size(), data)
			if err != nil {
				return Resolution{}, err
			}
			if same {
				return Resolution{Path: path, Name: candidate, Reused: true, SHA256: sha256Hex}, nil
			}
		}
		candidate = fmt.Sprintf("%s_%d%s", base, slot+1, ext)
	}
}

// identical runs the three-stage identity test between the file at path
// (whose size is already known) and data held in memory.
func identical(path string, existingSize int64, data []byte) (bool, error) {
	if existingSize != int64(len(data)) {
		return false, nil
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("cas: reading %s: %w", path, err)
	}

	n := len(data)
	if n > firstStageBytes {
		n = firstStageBytes
	}
	if sha256.Sum256(existing[:n]) != sha256.Sum256(data[:n]) {
		return false, nil
	}

	return blake2b.Sum256(existing) == blake2b.Sum256(data), nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a partial
// attachment at its final name.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".attach-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}

	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename blob: %w", err)
	}

	return nil
}

// Sha256Hex returns the full-content SHA-256 hex digest of data, the
// reporting hash recorded against each attachment's final IR entry.
func Sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake2bHex returns the full-content BLAKE2b-256 hex digest of data, the
// identity hash used for the dedup chain's final stage.
func Blake2bHex(data []byte) string {
	h := blake2b.Sum256(data)
	return hex.EncodeToString(h[:])
}
