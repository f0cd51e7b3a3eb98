package core

import (
	"html"
	"strings"
)

// Snapshot is the captured state of the document after a render.
type Snapshot struct {
	HeadContent    string            `json:"headContent"`
	BodyContent    string            `json:"bodyContent"`
	HTMLAttributes map[string]string `json:"htmlAttributes"`
	HeadAttributes map[string]string `json:"headAttributes"`
	BodyAttributes map[string]string `json:"bodyAttributes"`
}

// HTML returns a standalone document built from the snapshot.
func (s Snapshot) HTML() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html")
	b.WriteString(AttributesString(s.HTMLAttributes))
	b.WriteString(">\n<head")
	b.WriteString(AttributesString(s.HeadAttributes))
	b.WriteString(">\n")
	b.WriteString(s.HeadContent)
	b.WriteString("\n</head>\n<body")
	b.WriteString(AttributesString(s.BodyAttributes))
	b.WriteString(">\n")
	b.WriteString(s.BodyContent)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

// AttributesString renders attrs as ` name="value"` pairs sorted by
// name, ready to be placed inside a start tag.
func AttributesString(attrs map[string]string) string {
	var b strings.Builder
	for _, name := range sortedKeys(attrs) {
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attrs[name]))
		b.WriteByte('"')
	}
	return b.String()
}
