// Package ir defines the normalized document (NDoc): the versioned,
// schema-tagged tree that the DXL parser produces, the attachment
// extractor mutates once, and every renderer treats as read-only input.
package ir

// SchemaVersion identifies the current IR dialect. It is echoed at both
// NDoc.SchemaVersion and Meta.SchemaVersion so a document carries its own
// version even after meta is handled independently of the envelope.
const SchemaVersion = "1.5-dev"

// Reserved field-name prefix: items named with this prefix are Notes
// system fields and never surface as NDoc fields.
const ReservedFieldPrefix = "$"

// BodyFieldName is the richtext entry point field, when present.
const BodyFieldName = "Body"

// NDoc is the root of a normalized document.
type NDoc struct {
	SchemaVersion string           `json:"schema_version"`
	Meta          Meta             `json:"meta"`
	Fields        map[string]Field `json:"fields"`
	Attachments   []Attachment     `json:"attachments"`
	Links         Links            `json:"links"`
	Layout        Layout           `json:"layout"`
}

// New returns an empty NDoc stamped with the current schema version and
// unid, ready for the parser to populate.
func New(unid string) *NDoc {
	return &NDoc{
		SchemaVersion: SchemaVersion,
		Meta: Meta{
			UNID:          unid,
			SchemaVersion: SchemaVersion,
		},
		Fields: make(map[string]Field),
		Layout: Layout{
			PrimaryFieldsAllowlist: []string{},
			UsedInBody:             []string{},
		},
	}
}

// Meta carries per-document identity and provenance.
type Meta struct {
	DBTitle       string `json:"db_title,omitempty"`
	UNID          string `json:"unid"`
	Form          string `json:"form,omitempty"`
	Created       string `json:"created,omitempty"`
	Modified      string `json:"modified,omitempty"`
	Revised       string `json:"revised,omitempty"`
	SchemaVersion string `json:"schema_version"`

	// Error is set when the parser could not produce a full IR: the
	// document still round-trips to disk with this set instead of
	// aborting the run.
	Error string `json:"error,omitempty"`

	// PipelineError is set by the orchestrator when a later phase fails;
	// it writes the best-available IR with this populated instead of
	// discarding prior work.
	PipelineError string `json:"pipeline_error,omitempty"`
}

// FieldType enumerates the tagged field variants.
type FieldType string

const (
	FieldText         FieldType = "text"
	FieldNumber       FieldType = "number"
	FieldDatetime     FieldType = "datetime"
	FieldTextList     FieldType = "textlist"
	FieldNumberList   FieldType = "numberlist"
	FieldDatetimeList FieldType = "datetimelist"
	FieldRichText     FieldType = "richtext"
)

// Field is a single item entry. Scalar and list variants carry Value;
// richtext carries Text (the plain projection) and Runs (the typed token
// stream produced by the RichTextParser).
type Field struct {
	Type  FieldType `json:"type"`
	Value any       `json:"value,omitempty"`
	Text  string    `json:"text,omitempty"`
	Runs  RunList   `json:"runs,omitempty"`
}

// IsList reports whether the field's Value is a sequence rather than a
// scalar.
func (f Field) IsList() bool {
	switch f.Type {
	case FieldTextList, FieldNumberList, FieldDatetimeList:
		return true
	default:
		return false
	}
}

// Links collects the internal (Notes) and external (HTTP) references
// found while walking richtext.
type Links struct {
	Notes []NotesLink `json:"notes"`
	HTTP  []string    `json:"http"`
}

// NotesLink is an internal document reference, as carried by a `link` run
// that is not a bare external URL.
type NotesLink struct {
	Server  string `json:"server,omitempty"`
	Replica string `json:"replica,omitempty"`
	UNID    string `json:"unid,omitempty"`
	View    string `json:"view,omitempty"`
}

// Layout drives appendix generation: fields in PrimaryFieldsAllowlist or
// UsedInBody are rendered in the document body and excluded from the
// appendix table that every renderer emits for the rest.
type Layout struct {
	PrimaryFieldsAllowlist []string `json:"primary_fields_allowlist"`
	UsedInBody             []string `json:"used_in_body"`
}

// AttachmentType enumerates the three attachment kinds.
type AttachmentType string

const (
	AttachmentFile  AttachmentType = "file"
	AttachmentImage AttachmentType = "image"
	AttachmentOLE   AttachmentType = "ole"
)

// RefKind enumerates how an attachment entry was discovered in the DXL,
// by the `ref` discriminator.
type RefKind string

const (
	RefFile          RefKind = "file"
	RefPicture       RefKind = "picture"
	RefAttachmentRef RefKind = "attachmentref"
)

// AttachmentRef discriminates how an attachment was located: a `$FILE`
// entry (Kind=RefFile), the i-th inline picture (Kind=RefPicture, Index
// set), or an attachmentref stub keyed by name (Kind=RefAttachmentRef,
// Name set).
type AttachmentRef struct {
	Kind  RefKind `json:"kind"`
	Index *int    `json:"index,omitempty"`
	Name  string  `json:"name,omitempty"`
}

// Attachment is one entry in NDoc.Attachments.
type Attachment struct {
	Name     string         `json:"name"`
	Type     AttachmentType `json:"type"`
	Ref      AttachmentRef  `json:"ref"`
	Size     int64          `json:"size"`
	Created  string         `json:"created,omitempty"`
	Modified string         `json:"modified,omitempty"`

	// Populated by the extractor; null/zero in the parser's
	// initial IR.
	ContentPath string `json:"content_path,omitempty"`
	SavedName   string `json:"saved_name,omitempty"`
	IconPath    string `json:"icon_path,omitempty"`
	SHA256      string `json:"sha256,omitempty"`

	// ExtractionError records a non-fatal per-attachment failure: the
	// payload was missing, empty, or could not be resolved. The
	// attachment entry is kept, just without ContentPath.
	ExtractionError string `json:"extraction_error,omitempty"`
}
