package dxl

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document-wide queries shared by the pardef and attachment-metadata
// passes, compiled once.
var (
	pardefQuery        = xpath.MustCompile("//pardef")
	fileItemQuery      = xpath.MustCompile(`//item[@name="$FILE"]`)
	attachmentRefQuery = xpath.MustCompile("//attachmentref")
	pictureQuery       = xpath.MustCompile("//picture")
)

func itoa(i int) string { return strconv.Itoa(i) }

func parseSize(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// datetimeChild finds <created>/<datetime> or <modified>/<datetime> under
// n and normalizes it.
func datetimeChild(n *xmlquery.Node, wrapper string) string {
	el := xmlquery.FindOne(n, wrapper+"/datetime")
	if el == nil {
		return ""
	}
	return NormalizeDatetime(el.InnerText())
}

// estimatePictureSize approximates the byte size of an inline <picture>
// from its encoded image payload, falling back to width*height when no
// payload is present.
func estimatePictureSize(pic *xmlquery.Node) int64 {
	for _, tag := range []string{"gif", "jpeg", "png", "bmp", "notesbitmap"} {
		if el := xmlquery.FindOne(pic, tag); el != nil {
			// Payloads are line-wrapped; strip all whitespace before
			// decoding.
			raw := strings.Map(func(r rune) rune {
				switch r {
				case ' ', '\t', '\n', '\r':
					return -1
				}
				return r
			}, el.InnerText())
			data, err := base64.StdEncoding.DecodeString(raw)
			if err == nil {
				return int64(len(data))
			}
		}
	}
	w := parseSize(strings.TrimSuffix(attr(pic, "width"), "px"))
	h := parseSize(strings.TrimSuffix(attr(pic, "height"), "px"))
	return w * h
}
