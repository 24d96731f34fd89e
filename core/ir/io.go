package ir

import (
	"bytes"
	"encoding/json"
	"os"
)

// Save persists doc to path as pretty-printed, ensure_ascii=false UTF-8
// JSON: a two-space indent, with encoding/json's default
// HTML-escaping of "<", ">", and "&" disabled so attachment paths and
// richtext content carrying those bytes survive the round trip
// unmangled. Every writer of an NDoc (the parser's initial IR, the
// extractor's updated IR, a FAILED_<phase> sidecar) goes through this
// one function so the on-disk shape never drifts between call sites.
func Save(path string, doc *NDoc) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load reads and unmarshals an NDoc previously written by Save.
func Load(path string) (*NDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc NDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
