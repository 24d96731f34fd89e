package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tosuru/notesdb-export/core/ir"
)

// AppendixRow is one line of the "other fields" table every renderer
// appends after the document body.
type AppendixRow struct {
	Name    string
	Type    ir.FieldType
	Preview string
}

const (
	appendixPreviewListLimit = 5
	appendixPreviewMaxRunes  = 200
)

// BuildAppendixRows selects every field not already surfaced in the
// body (excluded via layout.primary_fields_allowlist or
// layout.used_in_body) and not a system field (name starting with
// ir.ReservedFieldPrefix), and formats a human preview of its value:
// richtext fields use their plain-text projection, list values preview
// their first 5 items with an ellipsis marker, and every preview is
// truncated at 200 runes. Rows are sorted by field name.
func BuildAppendixRows(doc *ir.NDoc) []AppendixRow {
	allow := toSet(doc.Layout.PrimaryFieldsAllowlist)
	used := toSet(doc.Layout.UsedInBody)

	var rows []AppendixRow
	for name, field := range doc.Fields {
		if allow[name] || used[name] || strings.HasPrefix(name, ir.ReservedFieldPrefix) {
			continue
		}
		rows = append(rows, AppendixRow{
			Name:    name,
			Type:    field.Type,
			Preview: truncatePreview(previewValue(field)),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
	return rows
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, v := range items {
		out[v] = true
	}
	return out
}

func previewValue(field ir.Field) string {
	switch {
	case field.Type == ir.FieldRichText:
		if field.Text != "" {
			return field.Text
		}
		return "[RichText]"
	case field.IsList():
		items, ok := field.Value.([]any)
		if !ok || len(items) == 0 {
			return ""
		}
		n := len(items)
		if n > appendixPreviewListLimit {
			n = appendixPreviewListLimit
		}
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			parts[i] = fmt.Sprint(items[i])
		}
		preview := strings.Join(parts, ", ")
		if len(items) > appendixPreviewListLimit {
			preview += " …"
		}
		return preview
	case field.Value == nil:
		return ""
	default:
		return fmt.Sprint(field.Value)
	}
}

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= appendixPreviewMaxRunes {
		return s
	}
	return string(runes[:appendixPreviewMaxRunes]) + " …"
}
