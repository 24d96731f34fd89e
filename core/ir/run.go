package ir

import (
	"encoding/json"
	"fmt"
)

// Run is a single typed token in a richtext run stream. Concrete types are ParRun, TextRun, LinkRun, ImgRun,
// AttachmentRefRun, TableRun, SectionRun, HRRun, and BRRun.
type Run interface {
	RunTag() string
}

// RunList is a sequence of Run that marshals/unmarshals as a JSON array
// tagged by each element's "t" field, since Run is a Go interface and
// encoding/json cannot dispatch to a concrete type on its own.
type RunList []Run

// StyleMark is one of the boolean style marks a run may carry in "s".
type StyleMark string

const (
	MarkBold      StyleMark = "bold"
	MarkItalic    StyleMark = "italic"
	MarkUnderline StyleMark = "underline"
	MarkStrike    StyleMark = "strike"
	MarkMono      StyleMark = "mono"
)

// FXMark is one of the text effect flags carried in a run's "a.fx" set.
type FXMark string

const (
	FXShadow  FXMark = "shadow"
	FXEmboss  FXMark = "emboss"
	FXExtrude FXMark = "extrude"
	FXSuper   FXMark = "super"
	FXSub     FXMark = "sub"
)

// ScriptPosition is the `script` style attribute.
type ScriptPosition string

const (
	ScriptSuper ScriptPosition = "super"
	ScriptSub   ScriptPosition = "sub"
)

// StyleAttrs holds a run's non-boolean style attributes ("a").
type StyleAttrs struct {
	Color      string         `json:"color,omitempty"`
	BgColor    string         `json:"bgcolor,omitempty"`
	Size       string         `json:"size,omitempty"`
	FontFamily string         `json:"font_family,omitempty"`
	Script     ScriptPosition `json:"script,omitempty"`
	FX         []FXMark       `json:"fx,omitempty"`
}

// Style is the style marks/attributes carried by style-bearing runs.
// Both are built up on the parser's style stack: set-union for Marks,
// right-bias overwrite for Attrs fields, and list-union for Attrs.FX.
type Style struct {
	Marks []StyleMark `json:"s,omitempty"`
	Attrs *StyleAttrs `json:"a,omitempty"`
}

// ListType enumerates the canonical paragraph list kinds.
type ListType string

const (
	ListBullet      ListType = "bullet"
	ListNumber      ListType = "number"
	ListUncheck     ListType = "uncheck"
	ListSquare      ListType = "square"
	ListAlphaUpper  ListType = "alphaupper"
	ListAlphaLower  ListType = "alphalower"
	ListRomanUpper  ListType = "romanupper"
	ListRomanLower  ListType = "romanlower"
)

// Align enumerates paragraph alignment values; DXL's `align="full"` is
// canonicalized to AlignJustify during pardef parsing.
type Align string

const (
	AlignLeft    Align = "left"
	AlignCenter  Align = "center"
	AlignRight   Align = "right"
	AlignJustify Align = "justify"
)

// ListAttrs describes a paragraph's list membership. Raw preserves the
// DXL-native list-type string alongside the canonicalized Type.
type ListAttrs struct {
	Type ListType `json:"type"`
	Raw  string   `json:"raw,omitempty"`
}

// ParRun marks a paragraph boundary.
type ParRun struct {
	Align       Align      `json:"align,omitempty"`
	LeftMargin  string     `json:"leftmargin,omitempty"`
	SpaceAfter  string     `json:"spaceafter,omitempty"`
	ParStyle    string     `json:"parstyle,omitempty"`
	List        *ListAttrs `json:"list,omitempty"`
}

func (ParRun) RunTag() string { return "par" }

// TextRun is a literal string with an optional style.
type TextRun struct {
	Text  string `json:"text"`
	Style Style  `json:"-"`
}

func (TextRun) RunTag() string { return "text" }

// LinkRun is either an external URL or an internal Notes reference.
type LinkRun struct {
	URL     string `json:"url,omitempty"`
	Server  string `json:"server,omitempty"`
	Replica string `json:"replica,omitempty"`
	UNID    string `json:"unid,omitempty"`
	View    string `json:"view,omitempty"`
	Style   Style  `json:"-"`
}

func (LinkRun) RunTag() string { return "link" }

// IsExternal reports whether the link is a bare external URL rather than
// an internal Notes reference.
func (l LinkRun) IsExternal() bool { return l.URL != "" }

// ImgRun is an inline image placeholder. Src is populated by the
// extractor once the backing attachment is written to disk.
type ImgRun struct {
	Alt         string `json:"alt,omitempty"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayname,omitempty"`
	Src         string `json:"src,omitempty"`
	Style       Style  `json:"-"`
}

func (ImgRun) RunTag() string { return "img" }

// AttachmentRefRun is a reference to a file attachment. ContentPath is
// populated by the extractor.
type AttachmentRefRun struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayname,omitempty"`
	ContentPath string `json:"content_path,omitempty"`
	Style       Style  `json:"-"`
}

func (AttachmentRefRun) RunTag() string { return "attachmentref" }

// Column is one `<tablecolumn>` entry.
type Column struct {
	Width string `json:"width,omitempty"`
}

// CellStyle carries the visual attributes of a table cell beyond
// colspan/rowspan.
type CellStyle struct {
	BgColor string `json:"bgcolor,omitempty"`
}

// Cell is a single table cell. Colspan/Rowspan greater than 1 mean the
// cell occupies the corresponding covered grid area; renderers MUST NOT
// re-render the cells it covers.
type Cell struct {
	Colspan int       `json:"colspan,omitempty"`
	Rowspan int       `json:"rowspan,omitempty"`
	Style   CellStyle `json:"style,omitempty"`
	Runs    RunList   `json:"runs"`
}

// Row is one table row. Attributes carries the preserved `tablabel`
// attribute used by tab-flagged tables.
type Row struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Cells      []Cell            `json:"cells"`
}

// TableRun is a block-level table.
type TableRun struct {
	Columns []Column `json:"columns,omitempty"`
	Rows    []Row    `json:"rows"`
}

func (TableRun) RunTag() string { return "table" }

// SectionRun is a collapsible region. Both TitleRuns and BodyRuns are
// parsed by a fresh RichTextParser sub-walker that inherits the parent's
// inline-image counter.
type SectionRun struct {
	TitleRuns RunList `json:"title_runs"`
	BodyRuns  RunList `json:"body_runs"`
}

func (SectionRun) RunTag() string { return "section" }

// HRRun is a horizontal rule.
type HRRun struct{}

func (HRRun) RunTag() string { return "hr" }

// BRRun is an explicit hard line break.
type BRRun struct{}

func (BRRun) RunTag() string { return "br" }

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (t TextRun) MarshalJSON() ([]byte, error) {
	type alias TextRun
	return marshalWithStyle(alias(t), t.Style)
}

func (l LinkRun) MarshalJSON() ([]byte, error) {
	type alias LinkRun
	return marshalWithStyle(alias(l), l.Style)
}

func (i ImgRun) MarshalJSON() ([]byte, error) {
	type alias ImgRun
	return marshalWithStyle(alias(i), i.Style)
}

func (a AttachmentRefRun) MarshalJSON() ([]byte, error) {
	type alias AttachmentRefRun
	return marshalWithStyle(alias(a), a.Style)
}

// marshalWithStyle flattens v's own JSON fields with the style fields
// "s"/"a" at the same level, matching the run-token shape where
// style marks/attributes sit alongside the run's own data.
func marshalWithStyle(v any, style Style) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	if len(style.Marks) > 0 {
		fields["s"] = mustMarshal(style.Marks)
	}
	if style.Attrs != nil {
		fields["a"] = mustMarshal(style.Attrs)
	}
	return json.Marshal(fields)
}

// MarshalJSON implements json.Marshaler for RunList, tagging each element
// with its "t" discriminator.
func (rl RunList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, len(rl))
	for i, r := range rl {
		data, err := marshalTaggedRun(r)
		if err != nil {
			return nil, fmt.Errorf("marshaling run %d (%s): %w", i, r.RunTag(), err)
		}
		out[i] = data
	}
	return json.Marshal(out)
}

func marshalTaggedRun(r Run) (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["t"] = mustMarshal(r.RunTag())
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler for RunList, dispatching each
// array element to its concrete Run type by its "t" discriminator.
func (rl *RunList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	runs := make(RunList, 0, len(raw))
	for i, item := range raw {
		run, err := unmarshalRun(item)
		if err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
		runs = append(runs, run)
	}
	*rl = runs
	return nil
}

func unmarshalRun(data json.RawMessage) (Run, error) {
	var tag struct {
		T string `json:"t"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}

	style, err := extractStyle(data)
	if err != nil {
		return nil, err
	}

	switch tag.T {
	case "par":
		var r ParRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "text":
		var r TextRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		r.Style = style
		return r, nil
	case "link":
		var r LinkRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		r.Style = style
		return r, nil
	case "img":
		var r ImgRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		r.Style = style
		return r, nil
	case "attachmentref":
		var r AttachmentRefRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		r.Style = style
		return r, nil
	case "table":
		var r TableRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "section":
		var r SectionRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "hr":
		return HRRun{}, nil
	case "br":
		return BRRun{}, nil
	default:
		return nil, fmt.Errorf("unknown run tag %q", tag.T)
	}
}

func extractStyle(data json.RawMessage) (Style, error) {
	var wrapper struct {
		S []StyleMark `json:"s"`
		A *StyleAttrs `json:"a"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return Style{}, err
	}
	return Style{Marks: wrapper.S, Attrs: wrapper.A}, nil
}
