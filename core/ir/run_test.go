package ir

import (
	"encoding/json"
	"testing"
)

func TestRunListRoundTrip(t *testing.T) {
	idx := 2
	original := RunList{
		ParRun{Align: AlignJustify, ParStyle: "Body Text", List: &ListAttrs{Type: ListBullet, Raw: "1"}},
		TextRun{Text: "hello", Style: Style{Marks: []StyleMark{MarkBold, MarkItalic}}},
		LinkRun{URL: "https://example.com"},
		LinkRun{Server: "srv", Replica: "repl", UNID: "abc123"},
		ImgRun{Alt: "inline_image_0", Src: "attachments/inline_image_0.gif"},
		AttachmentRefRun{Name: "FILE123", DisplayName: "report.pdf", ContentPath: "attachments/report.pdf"},
		TableRun{
			Columns: []Column{{Width: "30%"}},
			Rows: []Row{
				{
					Attributes: map[string]string{"tablabel": "Tab 1"},
					Cells: []Cell{
						{Colspan: 2, Style: CellStyle{BgColor: "#ffffff"}, Runs: RunList{TextRun{Text: "cell"}}},
					},
				},
			},
		},
		SectionRun{
			TitleRuns: RunList{TextRun{Text: "Section Title"}},
			BodyRuns:  RunList{TextRun{Text: "Section body"}},
		},
		HRRun{},
		BRRun{},
	}
	_ = idx

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded RunList
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(decoded) != len(original) {
		t.Fatalf("run count mismatch: got %d, want %d", len(decoded), len(original))
	}

	for i, r := range decoded {
		if r.RunTag() != original[i].RunTag() {
			t.Errorf("run %d: tag mismatch: got %s, want %s", i, r.RunTag(), original[i].RunTag())
		}
	}

	text, ok := decoded[1].(TextRun)
	if !ok {
		t.Fatalf("run 1 did not decode as TextRun: %T", decoded[1])
	}
	if text.Text != "hello" {
		t.Errorf("text content mismatch: got %q", text.Text)
	}
	if len(text.Style.Marks) != 2 {
		t.Errorf("expected 2 style marks, got %d", len(text.Style.Marks))
	}

	attachRef, ok := decoded[5].(AttachmentRefRun)
	if !ok {
		t.Fatalf("run 5 did not decode as AttachmentRefRun: %T", decoded[5])
	}
	if attachRef.ContentPath != "attachments/report.pdf" {
		t.Errorf("content path mismatch: got %q", attachRef.ContentPath)
	}

	table, ok := decoded[6].(TableRun)
	if !ok {
		t.Fatalf("run 6 did not decode as TableRun: %T", decoded[6])
	}
	if table.Rows[0].Cells[0].Colspan != 2 {
		t.Errorf("expected colspan 2, got %d", table.Rows[0].Cells[0].Colspan)
	}
}

func TestRunListUnmarshalUnknownTag(t *testing.T) {
	var rl RunList
	err := json.Unmarshal([]byte(`[{"t":"bogus"}]`), &rl)
	if err == nil {
		t.Error("expected error for unknown run tag")
	}
}

func TestTextRunStyleMarshaling(t *testing.T) {
	run := TextRun{Text: "styled", Style: Style{
		Marks: []StyleMark{MarkMono},
		Attrs: &StyleAttrs{Color: "#ff0000", FX: []FXMark{FXShadow}},
	}}
	data, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal into map failed: %v", err)
	}
	if _, ok := fields["s"]; !ok {
		t.Error("expected \"s\" field in marshaled output")
	}
	if _, ok := fields["a"]; !ok {
		t.Error("expected \"a\" field in marshaled output")
	}
}
