// Package appstream parses and edits appstream metadata files: the
// per-app metainfo/appdata files exported into the sandbox and the
// catalog entry that software centers read. Documents keep their
// original formatting so an edit-free render is byte-identical to the
// input.
package appstream

import (
	"fmt"

	"github.com/beevik/etree"
)

// Document is one parsed appstream XML file.
type Document struct {
	doc *etree.Document
}

// Load parses an appstream file.
func Load(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing appstream XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parsing appstream XML: no root element")
	}
	return &Document{doc: doc}, nil
}

// Render serializes the document back to XML.
func (d *Document) Render() (string, error) {
	out, err := d.doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("rendering appstream XML: %w", err)
	}
	return out, nil
}

// Root returns the document's root element.
func (d *Document) Root() *etree.Element {
	return d.doc.Root()
}

// Component returns the single component of a catalog document. The
// root must be a <components> element wrapping exactly one component.
func (d *Document) Component() (*etree.Element, error) {
	root := d.doc.Root()
	if root.Tag != "components" {
		return nil, fmt.Errorf("expected <components>, not <%s>", root.Tag)
	}
	switch components := root.SelectElements("component"); len(components) {
	case 1:
		return components[0], nil
	case 0:
		return nil, fmt.Errorf("expected exactly one <component>, found none")
	default:
		return nil, fmt.Errorf("expected exactly one <component>, found multiple")
	}
}

// CatalogPath returns the repo-relative path of an app's catalog entry.
func CatalogPath(appID string) string {
	return "files/share/app-info/xmls/" + appID + ".xml.gz"
}

// ChildText returns the text of the first direct child with the given
// tag, or nil when the child is absent.
func ChildText(el *etree.Element, tag string) *string {
	child := el.SelectElement(tag)
	if child == nil {
		return nil
	}
	text := child.Text()
	return &text
}

// HasRemoteIcon reports whether the component declares a remote icon.
func HasRemoteIcon(component *etree.Element) bool {
	for _, icon := range component.SelectElements("icon") {
		if icon.SelectAttrValue("type", "") == "remote" {
			return true
		}
	}
	return false
}

// Screenshot is one declared screenshot: its source image URL ("" when
// none is declared) and its thumbnail URLs.
type Screenshot struct {
	Source     string
	Thumbnails []string
}

// Screenshots lists the screenshots a component declares. The source
// image is the one tagged type="source" (or carrying no type); images
// tagged type="thumbnail" are the mirrored renditions.
func Screenshots(component *etree.Element) []Screenshot {
	var shots []Screenshot
	for _, container := range component.SelectElements("screenshots") {
		for _, el := range container.SelectElements("screenshot") {
			var shot Screenshot
			for _, image := range el.SelectElements("image") {
				switch image.SelectAttrValue("type", "") {
				case "source", "":
					if shot.Source == "" {
						shot.Source = image.Text()
					}
				case "thumbnail":
					shot.Thumbnails = append(shot.Thumbnails, image.Text())
				}
			}
			shots = append(shots, shot)
		}
	}
	return shots
}
