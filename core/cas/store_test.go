package cas

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"reserved chars", `weird<>:"/\|?*name.txt`, "weird_name.txt"},
		{"control chars", "a\x00b\x1fc.doc", "a_b_c.doc"},
		{"collapses underscore runs", "a___b.txt", "a_b.txt"},
		{"trims dots and spaces", " .leading trailing. ", "leading_trailing"},
		{"empty", "", "_no_name_"},
		{"all invalid", "///", "_sanitized_"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeFilename(tc.in)
			if got != tc.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeFilenameTruncatesPreservingExtension(t *testing.T) {
	long := strings.Repeat("a", 400) + ".pdf"
	got := SanitizeFilename(long)
	if len(got) > maxNameLength {
		t.Fatalf("sanitized name too long: %d chars", len(got))
	}
	if filepath.Ext(got) != ".pdf" {
		t.Errorf("expected extension preserved, got %q", got)
	}
}

func TestStripSeqSuffix(t *testing.T) {
	cases := map[string]string{
		"文書_v1.002.txt": "文書_v1.txt",
		"report.002.pdf": "report.pdf",
		"report.pdf":     "report.pdf",
		"report.10.pdf":  "report.10.pdf",
	}
	for in, want := range cases {
		if got := StripSeqSuffix(in); got != want {
			t.Errorf("StripSeqSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveWritesNewFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	data := []byte("hello attachment")
	res, err := store.Resolve(dir, "notes.txt", data)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Reused {
		t.Error("first write should not be reported as reused")
	}
	if res.Name != "notes.txt" {
		t.Errorf("expected name notes.txt, got %q", res.Name)
	}

	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("written content mismatch")
	}
	if res.SHA256 != Sha256Hex(data) {
		t.Error("reported SHA256 does not match payload")
	}
}

func TestResolveReusesIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()
	data := []byte("same bytes every time")

	first, err := store.Resolve(dir, "doc.txt", data)
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := store.Resolve(dir, "doc.txt", data)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if !second.Reused {
		t.Error("second resolve with identical content should be reused")
	}
	if second.Path != first.Path {
		t.Errorf("expected same path, got %q vs %q", second.Path, first.Path)
	}
}

func TestResolveAllocatesCollisionSlotOnDifferentContent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	first, err := store.Resolve(dir, "doc.txt", []byte("version one"))
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := store.Resolve(dir, "doc.txt", []byte("version two, different length"))
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if second.Path == first.Path {
		t.Error("different content should not collapse onto the same path")
	}
	if second.Name != "doc_2.txt" {
		t.Errorf("expected collision slot doc_2.txt, got %q", second.Name)
	}

	third, err := store.Resolve(dir, "doc.txt", []byte("version two, different length"))
	if err != nil {
		t.Fatalf("third Resolve failed: %v", err)
	}
	if !third.Reused || third.Path != second.Path {
		t.Error("re-resolving the same second-version content should reuse the slot it was written to")
	}
}

func TestResolveRejectsEmptyPayload(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	_, err := store.Resolve(dir, "empty.txt", nil)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestResolveSameSizeDifferentContent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	a := []byte("aaaaaaaaaa")
	b := []byte("bbbbbbbbbb")

	first, err := store.Resolve(dir, "same-size.bin", a)
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := store.Resolve(dir, "same-size.bin", b)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if second.Path == first.Path {
		t.Error("same-size different-content payload must not be treated as identical")
	}
}

func TestResolveWriteError(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	origWrite := tempFileWrite
	defer func() { tempFileWrite = origWrite }()
	tempFileWrite = func(f *os.File, data []byte) (int, error) {
		return 0, errors.New("injected write error")
	}

	_, err := store.Resolve(dir, "fails.txt", []byte("payload"))
	if err == nil {
		t.Error("expected error when write fails")
	}
}

func TestResolveCloseError(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	origClose := tempFileClose
	defer func() { tempFileClose = origClose }()
	tempFileClose = func(f io.Closer) error {
		return errors.New("injected close error")
	}

	_, err := store.Resolve(dir, "fails.txt", []byte("payload"))
	if err == nil {
		t.Error("expected error when close fails")
	}
}

func TestResolveRenameError(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	origRename := osRename
	defer func() { osRename = origRename }()
	osRename = func(oldpath, newpath string) error {
		return errors.New("injected rename error")
	}

	_, err := store.Resolve(dir, "fails.txt", []byte("payload"))
	if err == nil {
		t.Error("expected error when rename fails")
	}
}

func TestSha256HexAndBlake2bHexDiffer(t *testing.T) {
	data := []byte("hash me")
	if Sha256Hex(data) == Blake2bHex(data) {
		t.Error("SHA-256 and BLAKE2b digests should not collide in this test")
	}
	if len(Sha256Hex(data)) != 64 || len(Blake2bHex(data)) != 64 {
		t.Error("expected 64-character hex digests")
	}
}
