// Package nzb parses NZB XML documents into the domain types the
// Admission Controller and Download Engine operate on.
package nzb

import "encoding/xml"

// Document is the raw XML shape of an NZB file.
type Document struct {
	XMLName xml.Name `xml:"nzb"`
	Head    Head     `xml:"head"`
	Files   []File   `xml:"file"`
}

// Head carries the optional <meta> tags some indexers embed: a title
// override and, occasionally, a password hint for the archive inside.
type Head struct {
	Meta []Meta `xml:"meta"`
}

type Meta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

func (h Head) lookup(t string) string {
	for _, m := range h.Meta {
		if m.Type == t {
			return m.Value
		}
	}
	return ""
}

type File struct {
	Subject  string    `xml:"subject,attr"`
	Poster   string    `xml:"poster,attr"`
	Date     int64     `xml:"date,attr"`
	Groups   []string  `xml:"groups>group"`
	Segments []Segment `xml:"segments>segment"`
}

type Segment struct {
	Number    int    `xml:"number,attr"`
	Bytes     int64  `xml:"bytes,attr"`
	MessageID string `xml:",chardata"`
}
