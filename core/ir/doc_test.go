package ir

import (
	"encoding/json"
	"testing"
)

func TestNewStampsSchemaVersion(t *testing.T) {
	doc := New("UNID-1")
	if doc.SchemaVersion != SchemaVersion {
		t.Errorf("NDoc.SchemaVersion = %q, want %q", doc.SchemaVersion, SchemaVersion)
	}
	if doc.Meta.SchemaVersion != SchemaVersion {
		t.Errorf("Meta.SchemaVersion = %q, want %q", doc.Meta.SchemaVersion, SchemaVersion)
	}
	if doc.Meta.UNID != "UNID-1" {
		t.Errorf("Meta.UNID = %q, want UNID-1", doc.Meta.UNID)
	}
}

func TestNDocRoundTrip(t *testing.T) {
	doc := New("UNID-2")
	doc.Meta.DBTitle = "Discussion"
	doc.Meta.Form = "Main Topic"
	doc.Fields["Subject"] = Field{Type: FieldText, Value: "Hello world"}
	doc.Fields["Categories"] = Field{Type: FieldTextList, Value: []any{"a", "b"}}
	doc.Fields[BodyFieldName] = Field{
		Type: FieldRichText,
		Text: "Hello world",
		Runs: RunList{
			ParRun{Align: AlignLeft},
			TextRun{Text: "Hello world"},
		},
	}
	doc.Attachments = append(doc.Attachments, Attachment{
		Name: "report.pdf",
		Type: AttachmentFile,
		Ref:  AttachmentRef{Kind: RefFile},
		Size: 1024,
	})
	doc.Links.HTTP = append(doc.Links.HTTP, "https://example.com")

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded NDoc
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Meta.UNID != doc.Meta.UNID {
		t.Errorf("UNID mismatch: got %q, want %q", decoded.Meta.UNID, doc.Meta.UNID)
	}
	body, ok := decoded.Fields[BodyFieldName]
	if !ok {
		t.Fatal("Body field missing after round trip")
	}
	if len(body.Runs) != 2 {
		t.Fatalf("expected 2 runs in Body, got %d", len(body.Runs))
	}
	if len(decoded.Attachments) != 1 || decoded.Attachments[0].Name != "report.pdf" {
		t.Error("attachment did not round-trip")
	}
}

func TestFieldIsList(t *testing.T) {
	cases := []struct {
		typ  FieldType
		want bool
	}{
		{FieldText, false},
		{FieldNumber, false},
		{FieldDatetime, false},
		{FieldTextList, true},
		{FieldNumberList, true},
		{FieldDatetimeList, true},
		{FieldRichText, false},
	}
	for _, tc := range cases {
		f := Field{Type: tc.typ}
		if got := f.IsList(); got != tc.want {
			t.Errorf("Field{Type: %s}.IsList() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}
