// Package attach implements the attachment extractor: it
// re-reads the raw DXL a second time (the parser already consumed it once
// to produce the initial IR) to locate each attachment's base64 payload,
// persists it through the content-addressed dedup chain in core/cas, and
// rewrites the IR's img/attachmentref runs to point at the written files.
package attach

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/tosuru/notesdb-export/core/cas"
	"github.com/tosuru/notesdb-export/core/dxl"
	cerrors "github.com/tosuru/notesdb-export/core/errors"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/internal/config"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// imageDataTags are the inner elements a <picture> may carry its payload
// in, tried in this order; "notesbitmap" has no standard extension and is
// treated as a generic binary blob.
var imageDataTags = []string{"gif", "jpeg", "png", "bmp", "notesbitmap"}

// Document-wide lookups repeated across the per-attachment pass share
// one compiled expression each instead of reparsing the query string on
// every attachment.
var (
	fileItemQuery      = xpath.MustCompile(`//item[@name="$FILE"]`)
	attachmentRefQuery = xpath.MustCompile("//attachmentref")
	pictureQuery       = xpath.MustCompile("//picture")
)

// iconPlaceholder is a 1x1 transparent GIF written for an attachment
// extension when no DXL-embedded icon could be recovered for it.
var iconPlaceholder = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x4c, 0x01, 0x00, 0x3b,
}

// Extractor runs attachment extraction against one document's raw DXL
// and initial IR.
type Extractor struct {
	Store  *cas.Store
	Config config.Config
}

// New returns an Extractor configured from cfg.
func New(cfg config.Config) *Extractor {
	return &Extractor{Store: cas.NewStore(), Config: cfg}
}

// Extract mutates doc in place: every attachment entry gains ContentPath/
// SavedName/SHA256 (or ExtractionError), icon assets are written for each
// file attachment's extension, and every img/attachmentref run across
// fields, tables, and sections is rewritten to point at the resolved
// files. attachDir is the document's "attachments" directory and MUST
// already be rooted under the document's own output directory; ContentPath
// values are always written relative to it as "attachments/...".
func (e *Extractor) Extract(dxlData []byte, doc *ir.NDoc, attachDir string) error {
	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		return &cerrors.IOError{Operation: "mkdir", Path: attachDir, Err: err}
	}

	root, err := xmlquery.Parse(strings.NewReader(string(dxl.SanitizeXML(dxlData))))
	if err != nil {
		return &cerrors.ParseError{Format: "DXL", Message: err.Error(), Err: err}
	}
	docEl := xmlquery.FindOne(root, "*")
	if docEl == nil {
		return &cerrors.ParseError{Format: "DXL", Message: "no root element"}
	}

	iconBytes := collectIconBytes(docEl)
	displayNames := collectDisplayNames(doc.Fields)

	for i := range doc.Attachments {
		att := &doc.Attachments[i]
		switch {
		case att.Type == ir.AttachmentFile && att.Ref.Kind == ir.RefFile:
			e.extractFile(docEl, att, attachDir, displayNames, iconBytes)
		case att.Type == ir.AttachmentImage && att.Ref.Kind == ir.RefPicture:
			e.extractInlinePicture(docEl, att, attachDir)
		case att.Ref.Kind == ir.RefAttachmentRef:
			// A stub entry: the reference has no backing $FILE item, so
			// there is nothing to extract.
			att.ExtractionError = cerrors.NewExtraction(att.Name, "no payload: attachmentref has no $FILE entry").Error()
			logging.Warn("attachment stub has no payload", "name", att.Name, "unid", doc.Meta.UNID)
		default:
			att.ExtractionError = cerrors.NewExtraction(att.Name, fmt.Sprintf("unsupported attachment ref kind %q", att.Ref.Kind)).Error()
		}
	}

	attrefMap := buildAttachRefMap(doc.Attachments, displayNames)
	imgMap := buildImgMap(doc.Attachments)
	for name, field := range doc.Fields {
		if field.Type != ir.FieldRichText {
			continue
		}
		rewriteRunList(field.Runs, attrefMap, imgMap, doc.Meta.UNID)
		doc.Fields[name] = field
	}

	return nil
}

// extractFile implements the `$FILE`/`<object><file>` lookup, name
// resolution (displayname over raw name, extension preserved, `.NNN`
// suffix stripped), dedup-chain write, and icon population for a
// type=file attachment.
func (e *Extractor) extractFile(root *xmlquery.Node, att *ir.Attachment, attachDir string, displayNames map[string]string, iconBytes map[string][]byte) {
	fileEl := findFileElement(root, att.Name)
	if fileEl == nil {
		att.ExtractionError = cerrors.NewExtraction(att.Name, "no matching <file> element found in $FILE items").Error()
		return
	}
	dataEl := xmlquery.FindOne(fileEl, "filedata")
	if dataEl == nil {
		att.ExtractionError = cerrors.NewExtraction(att.Name, "file element has no filedata").Error()
		return
	}
	data, err := decodeBase64(dataEl.InnerText())
	if err != nil || len(data) == 0 {
		att.ExtractionError = cerrors.NewExtraction(att.Name, "empty or invalid filedata payload").Error()
		return
	}

	desired := att.Name
	if disp := displayNames[att.Name]; disp != "" {
		desired = disp
	}
	if filepath.Ext(desired) == "" {
		desired += filepath.Ext(att.Name)
	}
	desired = cas.StripSeqSuffix(desired)

	res, err := e.Store.Resolve(attachDir, desired, data)
	if err != nil {
		att.ExtractionError = cerrors.NewExtraction(att.Name, err.Error()).Error()
		return
	}
	att.ContentPath = path.Join("attachments", res.Name)
	att.SavedName = res.Name
	att.SHA256 = res.SHA256
	applyMtime(filepath.Join(attachDir, res.Name), att.Modified, att.Created)

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(res.Name), "."))
	iconRel, err := e.writeIcon(ext, attachDir, iconBytes)
	if err != nil {
		logging.Warn("icon write failed", "ext", ext, "error", err.Error())
		return
	}
	att.IconPath = iconRel
}

// extractInlinePicture handles the inline-picture payload lookup: the
// i-th non-icon <picture> in document order, decoded from the
// first recognized image data tag.
func (e *Extractor) extractInlinePicture(root *xmlquery.Node, att *ir.Attachment, attachDir string) {
	if att.Ref.Index == nil {
		att.ExtractionError = cerrors.NewExtraction(att.Name, "inline image attachment missing ref.index").Error()
		return
	}
	pics := inlinePictures(root)
	idx := *att.Ref.Index
	if idx < 0 || idx >= len(pics) {
		att.ExtractionError = cerrors.NewExtraction(att.Name, "inline image index out of range").Error()
		return
	}

	data, ext := pictureData(pics[idx])
	if len(data) == 0 {
		att.ExtractionError = cerrors.NewExtraction(att.Name, "empty or missing inline image payload").Error()
		return
	}

	desired := att.Name
	if filepath.Ext(desired) == "" && ext != "" {
		desired += "." + ext
	}
	desired = cas.StripSeqSuffix(desired)

	res, err := e.Store.Resolve(attachDir, desired, data)
	if err != nil {
		att.ExtractionError = cerrors.NewExtraction(att.Name, err.Error()).Error()
		return
	}
	att.Name = desired
	att.ContentPath = path.Join("attachments", res.Name)
	att.SavedName = res.Name
	att.SHA256 = res.SHA256
	applyMtime(filepath.Join(attachDir, res.Name), att.Modified, att.Created)
}

// writeIcon ensures a shared, extension-keyed icon file exists (writing a
// DXL-extracted icon if one was found in the pre-scan, else a placeholder)
// and returns the icon_path string for the configured ICON_PATH_MODE.
func (e *Extractor) writeIcon(ext string, attachDir string, iconBytes map[string][]byte) (string, error) {
	if ext == "" {
		ext = "unknown"
	}

	physicalDir := filepath.Join(attachDir, "icons")
	if e.Config.SharedIconsDir != "" {
		physicalDir = e.Config.SharedIconsDir
	}
	if err := os.MkdirAll(physicalDir, 0o755); err != nil {
		return "", err
	}

	iconPath := filepath.Join(physicalDir, ext+".gif")
	if _, err := os.Stat(iconPath); os.IsNotExist(err) {
		data := iconBytes[ext]
		if len(data) == 0 {
			data = iconPlaceholder
		}
		if err := writeFileAtomic(iconPath, data); err != nil {
			return "", err
		}
	}

	if e.Config.IconPathMode == config.IconPathShared {
		return path.Join("icons", ext+".gif"), nil
	}
	return path.Join("attachments", "icons", ext+".gif"), nil
}

// findFileElement locates the <file name="..."> element for a $FILE
// attachment, descending through an optional <object> wrapper (both
// layouts occur in the wild and both are supported, <file> checked
// first by way of ".//file" matching the nearer one). Attribute
// comparison (rather than an interpolated XPath) sidesteps the quoting
// problem for names containing quote characters.
func findFileElement(root *xmlquery.Node, name string) *xmlquery.Node {
	for _, item := range xmlquery.QuerySelectorAll(root, fileItemQuery) {
		for _, fileEl := range xmlquery.Find(item, ".//file") {
			if attrValue(fileEl, "name") == name {
				return fileEl
			}
		}
	}
	return nil
}

// inlinePictures returns every <picture> element in document order that is
// not a direct child of an <attachmentref> (those are icons, handled
// separately).
func inlinePictures(root *xmlquery.Node) []*xmlquery.Node {
	icons := map[*xmlquery.Node]bool{}
	for _, ref := range xmlquery.QuerySelectorAll(root, attachmentRefQuery) {
		if pic := xmlquery.FindOne(ref, "picture"); pic != nil {
			icons[pic] = true
		}
	}
	var out []*xmlquery.Node
	for _, pic := range xmlquery.QuerySelectorAll(root, pictureQuery) {
		if !icons[pic] {
			out = append(out, pic)
		}
	}
	return out
}

// pictureData decodes the first recognized image tag inside pic, along
// with the tag name as a file extension ("notesbitmap" maps to "bin").
func pictureData(pic *xmlquery.Node) ([]byte, string) {
	for _, tag := range imageDataTags {
		el := xmlquery.FindOne(pic, tag)
		if el == nil {
			continue
		}
		data, err := decodeBase64(el.InnerText())
		if err != nil {
			continue
		}
		ext := tag
		if tag == "notesbitmap" {
			ext = "bin"
		}
		return data, ext
	}
	return nil, ""
}

// collectIconBytes pre-scans every <attachmentref> for an inner icon
// <picture>, keyed by the referenced file's extension. The first icon
// found for a given extension wins.
func collectIconBytes(root *xmlquery.Node) map[string][]byte {
	out := map[string][]byte{}
	for _, ref := range xmlquery.QuerySelectorAll(root, attachmentRefQuery) {
		name := attrValue(ref, "name")
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if ext == "" {
			continue
		}
		if _, ok := out[ext]; ok {
			continue
		}
		pic := xmlquery.FindOne(ref, "picture")
		if pic == nil {
			continue
		}
		data, _ := pictureData(pic)
		if len(data) > 0 {
			out[ext] = data
		}
	}
	return out
}

// collectDisplayNames walks every richtext field's runs (including nested
// tables and sections) to build the name -> displayname map used to
// prefer a human-chosen filename over the raw $FILE name.
func collectDisplayNames(fields map[string]ir.Field) map[string]string {
	out := map[string]string{}
	for _, f := range fields {
		if f.Type != ir.FieldRichText {
			continue
		}
		collectDisplayNamesFromRuns(f.Runs, out)
	}
	return out
}

func collectDisplayNamesFromRuns(runs ir.RunList, out map[string]string) {
	for _, r := range runs {
		switch v := r.(type) {
		case ir.AttachmentRefRun:
			if v.Name != "" && v.DisplayName != "" {
				if _, ok := out[v.Name]; !ok {
					out[v.Name] = v.DisplayName
				}
			}
		case ir.TableRun:
			for _, row := range v.Rows {
				for _, cell := range row.Cells {
					collectDisplayNamesFromRuns(cell.Runs, out)
				}
			}
		case ir.SectionRun:
			collectDisplayNamesFromRuns(v.TitleRuns, out)
			collectDisplayNamesFromRuns(v.BodyRuns, out)
		}
	}
}

// buildAttachRefMap maps both an attachment's raw name and its resolved
// displayname to its content_path, for type=file attachments only, so an
// attachmentref run can resolve by either key.
func buildAttachRefMap(attachments []ir.Attachment, displayNames map[string]string) map[string]string {
	out := map[string]string{}
	for _, a := range attachments {
		if a.Type != ir.AttachmentFile || a.ContentPath == "" {
			continue
		}
		if a.Name != "" {
			if _, ok := out[a.Name]; !ok {
				out[a.Name] = a.ContentPath
			}
		}
		if disp := displayNames[a.Name]; disp != "" {
			if _, ok := out[disp]; !ok {
				out[disp] = a.ContentPath
			}
		}
	}
	return out
}

// buildImgMap maps an inline image's name and name-without-extension to
// its content_path, for type=image/ref=picture attachments only, so an
// img run can resolve by either "inline_image_0" or "inline_image_0.gif".
func buildImgMap(attachments []ir.Attachment) map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if k == "" {
			return
		}
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	for _, a := range attachments {
		if a.Type != ir.AttachmentImage || a.Ref.Kind != ir.RefPicture || a.ContentPath == "" {
			continue
		}
		set(a.Name, a.ContentPath)
		set(strings.TrimSuffix(a.Name, filepath.Ext(a.Name)), a.ContentPath)
	}
	return out
}

// rewriteRunList resolves every img/
// attachmentref run's path from the lookup maps and recurses into table
// cells and section title/body runs. Unresolved references are logged and
// left without a path.
func rewriteRunList(runs ir.RunList, attrefMap, imgMap map[string]string, unid string) {
	for i, r := range runs {
		switch v := r.(type) {
		case ir.AttachmentRefRun:
			key := v.DisplayName
			if key == "" {
				key = v.Name
			}
			if p, ok := attrefMap[key]; ok {
				v.ContentPath = p
			} else if key != v.Name {
				if p, ok := attrefMap[v.Name]; ok {
					v.ContentPath = p
				}
			}
			if v.ContentPath == "" {
				logging.Warn("unresolved attachmentref", "name", v.Name, "displayname", v.DisplayName, "unid", unid)
			}
			runs[i] = v

		case ir.ImgRun:
			for _, key := range []string{v.Alt, v.Name, v.DisplayName} {
				if key == "" {
					continue
				}
				if p, ok := imgMap[key]; ok && p != "" {
					v.Src = p
					break
				}
			}
			if v.Src == "" {
				logging.Warn("unresolved img", "alt", v.Alt, "name", v.Name, "unid", unid)
			}
			runs[i] = v

		case ir.TableRun:
			for ri := range v.Rows {
				for ci := range v.Rows[ri].Cells {
					rewriteRunList(v.Rows[ri].Cells[ci].Runs, attrefMap, imgMap, unid)
				}
			}

		case ir.SectionRun:
			rewriteRunList(v.TitleRuns, attrefMap, imgMap, unid)
			rewriteRunList(v.BodyRuns, attrefMap, imgMap, unid)
		}
	}
}

// decodeBase64 strips all interior whitespace first: DXL exporters wrap
// filedata payloads into fixed-width lines, which StdEncoding rejects.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(s)
}

func attrValue(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// applyMtime sets the written file's mtime from the attachment's modified
// (preferred) or created ISO-8601 timestamp.
// Failures are non-fatal: the file keeps its write-time mtime.
func applyMtime(path string, modified, created string) {
	ts := modified
	if ts == "" {
		ts = created
	}
	if ts == "" {
		return
	}
	t, err := parseISO(ts)
	if err != nil {
		return
	}
	_ = os.Chtimes(path, t, t)
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.000000-07:00",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// writeFileAtomic writes data to path via a temp file in the same
// directory followed by a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".icon-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
