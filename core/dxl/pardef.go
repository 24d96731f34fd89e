package dxl

import (
	"encoding/json"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
	"github.com/tosuru/notesdb-export/internal/logging"
)

// canonicalListTypes maps a DXL list-type string to its canonicalized
// ir.ListType; unrecognized values keep the original DXL string as both
// Type and Raw.
var canonicalListTypes = map[string]ir.ListType{
	"bullet":     ir.ListBullet,
	"number":     ir.ListNumber,
	"uncheck":    ir.ListUncheck,
	"square":     ir.ListSquare,
	"alphaupper": ir.ListAlphaUpper,
	"alphalower": ir.ListAlphaLower,
	"romanupper": ir.ListRomanUpper,
	"romanlower": ir.ListRomanLower,
}

// parAttrs is the set of attributes a pardef (or an inline <par>)
// contributes; it doubles as the equality-comparable value used for
// duplicate-empty-paragraph suppression.
type parAttrs struct {
	Align      ir.Align
	LeftMargin string
	SpaceAfter string
	ParStyle   string
	List       *ir.ListAttrs
}

func (p parAttrs) toRun() ir.ParRun {
	return ir.ParRun{
		Align:      p.Align,
		LeftMargin: p.LeftMargin,
		SpaceAfter: p.SpaceAfter,
		ParStyle:   p.ParStyle,
		List:       p.List,
	}
}

// equalPar compares two parAttrs for the purposes of duplicate-paragraph
// suppression: every field is compared by value via its JSON encoding,
// so List is compared by its contents rather than by pointer.
func equalPar(a, b parAttrs) bool {
	az, _ := json.Marshal(a)
	bz, _ := json.Marshal(b)
	return string(az) == string(bz)
}

// collectPardefs builds the document-wide id -> attrs table from every
// <pardef> element, regardless of namespace (xmlquery already strips any
// namespace prefix into n.Data, so legacy unnamespaced documents and
// namespaced ones are handled identically).
func collectPardefs(root *xmlquery.Node) map[string]parAttrs {
	out := map[string]parAttrs{}
	for _, pd := range xmlquery.QuerySelectorAll(root, pardefQuery) {
		id := attr(pd, "id")
		if id == "" {
			continue
		}
		out[id] = pardefAttrs(pd)
	}
	return out
}

func pardefAttrs(pd *xmlquery.Node) parAttrs {
	var a parAttrs

	switch align := attr(pd, "align"); align {
	case "full":
		a.Align = ir.AlignJustify
	case "center":
		a.Align = ir.AlignCenter
	case "right":
		a.Align = ir.AlignRight
	case "left":
		a.Align = ir.AlignLeft
	}

	a.LeftMargin = attr(pd, "leftmargin")
	a.SpaceAfter = attr(pd, "spaceafter")

	if ps := xmlquery.FindOne(pd, "parstyle"); ps != nil {
		if name := attr(ps, "name"); name != "" {
			a.ParStyle = name
		}
	}
	if a.ParStyle == "" {
		a.ParStyle = attr(pd, "name")
	}

	if listType := attr(pd, "list"); listType != "" {
		canon, ok := canonicalListTypes[strings.ToLower(listType)]
		if !ok {
			logging.Warn("dxl: unrecognized list type, passing through raw", "list", listType, "pardef", attr(pd, "id"))
			canon = ir.ListType(listType)
		}
		a.List = &ir.ListAttrs{Type: canon, Raw: listType}
	}

	return a
}
