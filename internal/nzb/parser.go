package nzb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// Parser decodes NZB XML into a domain.Release.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

// Parse reads the full document into memory (NZBs top out in the low
// megabytes) so the content hash and the XML decode both see the same
// bytes.
func (p *Parser) Parse(r io.Reader) (*domain.Release, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading nzb: %w", err)
	}
	return p.ParseBytes(content)
}

func (p *Parser) ParseBytes(content []byte) (*domain.Release, error) {
	var doc Document
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = func(label string, in io.Reader) (io.Reader, error) {
		switch strings.ToLower(label) {
		case "iso-8859-1", "latin1":
			raw, err := io.ReadAll(in)
			if err != nil {
				return nil, err
			}
			runes := make([]rune, len(raw))
			for i, b := range raw {
				runes[i] = rune(b)
			}
			return strings.NewReader(string(runes)), nil
		}
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid nzb: %w", err)
	}
	if len(doc.Files) == 0 {
		return nil, fmt.Errorf("invalid nzb: no files")
	}

	sum := sha256.Sum256(content)

	rel := &domain.Release{
		MetaName:    doc.Head.lookup("title"),
		Password:    doc.Head.lookup("password"),
		RawCategory: doc.Head.lookup("category"),
		ContentHash: hex.EncodeToString(sum[:]),
	}

	for i, f := range doc.Files {
		if len(f.Segments) == 0 {
			return nil, fmt.Errorf("invalid nzb: file %d has no segments", i)
		}
		rf := domain.ReleaseFile{
			Index:   i,
			Subject: f.Subject,
			Groups:  f.Groups,
		}
		for _, s := range f.Segments {
			if s.MessageID == "" {
				return nil, fmt.Errorf("invalid nzb: file %d segment %d has empty message-id", i, s.Number)
			}
			rf.Segments = append(rf.Segments, domain.ReleaseSegment{
				Number:    s.Number,
				Bytes:     s.Bytes,
				MessageID: s.MessageID,
			})
			rel.TotalSize += s.Bytes
		}
		rel.Files = append(rel.Files, rf)
	}

	return rel, nil
}
