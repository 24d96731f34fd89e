package dxl

import (
	"sort"

	"github.com/antchfx/xmlquery"
	"github.com/tosuru/notesdb-export/core/ir"
)

// extractAttachmentsMetadata collects the three places a DXL record
// carries attachments: `$FILE` entries,
// inline (non-icon) pictures, and attachmentref stubs lacking either.
// Icon pictures (a <picture> that is a direct child of <attachmentref>)
// are intentionally not emitted as attachment entries in this schema
// version; the extractor resolves shared icons separately.
func extractAttachmentsMetadata(root *xmlquery.Node) []ir.Attachment {
	var attachments []ir.Attachment
	seenFileNames := map[string]bool{}

	for _, fileItem := range xmlquery.QuerySelectorAll(root, fileItemQuery) {
		for _, fileEl := range xmlquery.Find(fileItem, ".//file") {
			name := attr(fileEl, "name")
			if name == "" || seenFileNames[name] {
				continue
			}
			seenFileNames[name] = true

			size := parseSize(attr(fileEl, "size"))
			attachments = append(attachments, ir.Attachment{
				Name:     name,
				Type:     ir.AttachmentFile,
				Ref:      ir.AttachmentRef{Kind: ir.RefFile},
				Size:     size,
				Created:  datetimeChild(fileEl, "created"),
				Modified: datetimeChild(fileEl, "modified"),
			})
		}
	}

	iconPictures := map[*xmlquery.Node]bool{}
	attachmentRefs := xmlquery.QuerySelectorAll(root, attachmentRefQuery)
	for _, ref := range attachmentRefs {
		if pic := xmlquery.FindOne(ref, "picture"); pic != nil {
			iconPictures[pic] = true
		}
	}

	inlineIndex := 0
	for _, pic := range xmlquery.QuerySelectorAll(root, pictureQuery) {
		if iconPictures[pic] {
			continue
		}
		name := inlineImageName(inlineIndex)
		attachments = append(attachments, ir.Attachment{
			Name: name,
			Type: ir.AttachmentImage,
			Ref:  ir.AttachmentRef{Kind: ir.RefPicture, Index: intPtr(inlineIndex)},
			Size: estimatePictureSize(pic),
		})
		inlineIndex++
	}

	for _, ref := range attachmentRefs {
		name := attr(ref, "name")
		if name == "" {
			continue
		}
		if attachmentAlreadyCovers(attachments, name) {
			continue
		}
		displayName := attr(ref, "displayname")
		if displayName == "" {
			displayName = name
		}
		attachments = append(attachments, ir.Attachment{
			Name: displayName,
			Type: ir.AttachmentFile,
			Ref:  ir.AttachmentRef{Kind: ir.RefAttachmentRef, Name: name},
			Size: 0,
		})
	}

	sort.SliceStable(attachments, func(i, j int) bool {
		if attachments[i].Name != attachments[j].Name {
			return attachments[i].Name < attachments[j].Name
		}
		return attachments[i].Type < attachments[j].Type
	})
	return attachments
}

func attachmentAlreadyCovers(existing []ir.Attachment, refName string) bool {
	for _, a := range existing {
		if a.Ref.Name == refName || a.Name == refName {
			return true
		}
	}
	return false
}

func inlineImageName(index int) string {
	return "inline_image_" + itoa(index)
}

func intPtr(i int) *int { return &i }
