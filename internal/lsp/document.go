package lsp

import (
	"strings"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

// Document is an open text document. Positions are zero-based and count
// bytes, which matches UTF-16 offsets for the ASCII identifiers the server
// looks up.
type Document struct {
	URI     string
	Content string
	Version int
	lines   []string

	// Unit is the last successful rewrite of the document. It survives edits
	// that break the class syntax so hover and completion keep working.
	Unit *rewrite.Unit
}

func newDocument(uri, content string, version int) *Document {
	return &Document{URI: uri, Content: content, Version: version, lines: strings.Split(content, "\n")}
}

// DocumentStore holds the open documents by URI.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*Document
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{documents: make(map[string]*Document)}
}

// Open adds a document, replacing any previous version.
func (s *DocumentStore) Open(uri, content string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[uri] = newDocument(uri, content, version)
}

// Close forgets a document.
func (s *DocumentStore) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, uri)
}

// Get returns the document for uri, or nil.
func (s *DocumentStore) Get(uri string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documents[uri]
}

// Update replaces the text of an open document and keeps its last unit.
// Unknown documents are ignored.
func (s *DocumentStore) Update(uri, content string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.documents[uri]
	if !ok {
		return
	}
	doc := newDocument(uri, content, version)
	doc.Unit = old.Unit
	s.documents[uri] = doc
}

// SetUnit records the rewrite of the given document version. Stale versions
// are ignored.
func (s *DocumentStore) SetUnit(uri string, version int, unit *rewrite.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.documents[uri]; ok && doc.Version == version {
		doc.Unit = unit
	}
}

// LineCount returns the number of lines; a trailing newline starts an empty
// last line.
func (d *Document) LineCount() int { return len(d.lines) }

// Line returns a line without its newline, or "" when out of range.
func (d *Document) Line(n int) string {
	if n < 0 || n >= len(d.lines) {
		return ""
	}
	return strings.TrimSuffix(d.lines[n], "\r")
}

// WordAt returns the identifier under pos and its range. The range is empty
// when there is none.
func (d *Document) WordAt(pos protocol.Position) (string, protocol.Range) {
	line := d.Line(int(pos.Line))
	col := min(int(pos.Character), len(line))

	start, end := col, col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	return line[start:end], lineRange(int(pos.Line), start, end)
}

func lineRange(line, start, end int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line), Character: uint32(start)},
		End:   protocol.Position{Line: uint32(line), Character: uint32(end)},
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// URIToPath converts a file:// URI to a file system path.
func URIToPath(uri string) string {
	path, _ := strings.CutPrefix(uri, "file://")
	return path
}
