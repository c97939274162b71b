package lsp

import (
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/lsp/protocol"
	"github.com/walteh/erbls/pkg/position"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is the editor's current snapshot of an open template.
type Document struct {
	URI        string
	LanguageID protocol.LanguageKind
	Version    int32
	Content    string

	lines *position.Document
}

func NewDocument(uri string, languageID protocol.LanguageKind, version int32, content string) *Document {
	return &Document{
		URI:        uri,
		LanguageID: languageID,
		Version:    version,
		Content:    content,
		lines:      position.NewDocument(content),
	}
}

// Lines indexes the content for place and offset conversion.
func (d *Document) Lines() *position.Document {
	if d.lines == nil {
		return position.NewDocument(d.Content)
	}
	return d.lines
}

// DocumentManager holds open documents keyed by normalized uri. Stored
// documents are never mutated; updates store a new snapshot.
type DocumentManager struct {
	store *sync.Map // map[string]*Document
}

func NewDocumentManager() *DocumentManager {
	return &DocumentManager{
		store: &sync.Map{},
	}
}

// normalizeURI makes file uris that differ only in drive letter case or
// percent encoded colons compare equal.
func normalizeURI(uri string) string {
	const prefix = "file:///"
	if !strings.HasPrefix(uri, prefix) {
		return uri
	}
	rest := strings.Replace(uri[len(prefix):], "%3A", ":", 1)
	rest = strings.Replace(rest, "%3a", ":", 1)
	if len(rest) >= 2 && rest[1] == ':' {
		rest = strings.ToLower(rest[:1]) + rest[1:]
	}
	return prefix + rest
}

func (m *DocumentManager) Get(uri protocol.DocumentURI) (*Document, error) {
	content, ok := m.store.Load(normalizeURI(string(uri)))
	if !ok {
		return nil, errors.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return content.(*Document), nil
}

func (m *DocumentManager) Store(doc *Document) {
	m.store.Store(normalizeURI(doc.URI), doc)
}

func (m *DocumentManager) Delete(uri protocol.DocumentURI) {
	m.store.Delete(normalizeURI(string(uri)))
}

// Apply returns a new snapshot with changes applied in order. A change
// without a range replaces the whole content.
func (d *Document) Apply(version int32, changes []protocol.TextDocumentContentChangeEvent) *Document {
	content := d.Content
	for _, change := range changes {
		if change.Range == nil {
			content = change.Text
			continue
		}
		lines := position.NewDocument(content)
		start := lines.OffsetAt(toPlace(change.Range.Start))
		end := lines.OffsetAt(toPlace(change.Range.End))
		if end < start {
			start, end = end, start
		}
		content = content[:start] + change.Text + content[end:]
	}
	return NewDocument(d.URI, d.LanguageID, version, content)
}

func toPlace(p protocol.Position) position.Place {
	return position.Place{Line: int(p.Line), Character: int(p.Character)}
}

func fromPlace(p position.Place) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func fromRange(r position.Range) protocol.Range {
	return protocol.Range{Start: fromPlace(r.Start), End: fromPlace(r.End)}
}

func toRange(r protocol.Range) position.Range {
	return position.Range{Start: toPlace(r.Start), End: toPlace(r.End)}
}
