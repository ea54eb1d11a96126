package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

func accountDocument(t *testing.T) *Document {
	t.Helper()
	unit, err := rewrite.Rewrite("account.star", []byte(accountSource), rewrite.DefaultOptions())
	require.NoError(t, err)
	doc := newDocument(accountURI, accountSource, 1)
	doc.Unit = unit
	return doc
}

func TestEnclosingClass(t *testing.T) {
	doc := accountDocument(t)

	tests := []struct {
		line int
		want string
	}{
		{line: 0, want: ""},
		{line: 2, want: ""},
		{line: 4, want: "Account"},
		{line: 7, want: "Account"},
		{line: 16, want: "Account"},
		{line: 17, want: "Account"},
		{line: 20, want: ""},
		{line: 99, want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, doc.enclosingClass(tt.line), "line %d", tt.line)
	}
}

func TestReceiverBefore(t *testing.T) {
	tests := []struct {
		line     string
		col      int
		receiver string
		dotted   bool
	}{
		{line: "this.", col: 5, receiver: "this", dotted: true},
		{line: "    acct.dep", col: 9, receiver: "acct", dotted: true},
		{line: "a.b.", col: 4, receiver: "b", dotted: true},
		{line: ".", col: 1, receiver: "", dotted: true},
		{line: "acct", col: 4},
		{line: "", col: 0},
	}
	for _, tt := range tests {
		receiver, dotted := receiverBefore(tt.line, tt.col)
		assert.Equal(t, tt.receiver, receiver, tt.line)
		assert.Equal(t, tt.dotted, dotted, tt.line)
	}
	assert.Equal(t, "dep", identifierBefore("    acct.dep", 12))
}

func TestGetCompletions(t *testing.T) {
	tests := []struct {
		name string
		line uint32
		char uint32
		want []string
	}{
		{name: "this in a method", line: 16, char: 13, want: []string{"funds", "owner", "deposit"}},
		{name: "other receiver sees public members", line: 20, char: 6, want: []string{"owner", "deposit"}},
		{name: "prefix filters", line: 20, char: 8, want: []string{"deposit"}},
		{name: "class names", line: 19, char: 8, want: []string{"Account"}},
		{name: "class body offers markers", line: 7, char: 4, want: []string{"Account", "public()", "private()"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Config{})
			doc := accountDocument(t)
			s.documents.Open(doc.URI, doc.Content, 1)
			s.documents.SetUnit(doc.URI, 1, doc.Unit)

			items := s.getCompletions(protocol.TextDocumentPositionParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI},
				Position:     protocol.Position{Line: tt.line, Character: tt.char},
			})
			assert.Equal(t, tt.want, labels(items))
		})
	}
}

func TestGetCompletions_WithoutClasses(t *testing.T) {
	s := NewServer(Config{})
	s.documents.Open("file:///plain.star", "lo", 1)

	items := s.getCompletions(protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///plain.star"},
		Position:     protocol.Position{Character: 2},
	})
	require.Len(t, items, 1)
	require.NotNil(t, items[0].InsertText)
	assert.Equal(t, `load("cpp", "magic")`, *items[0].InsertText)
	assert.NotNil(t, items[0].Documentation)
}

func TestMemberItems(t *testing.T) {
	c, ok := accountDocument(t).Unit.Class("Account")
	require.True(t, ok)

	items := memberItems(c, false)
	require.Len(t, items, 3)
	assert.Equal(t, "Account: private int", *items[0].Detail)
	assert.Equal(t, protocol.CompletionItemKindField, *items[0].Kind)
	assert.Nil(t, items[0].Documentation, "members carry no documentation")
	assert.Equal(t, "Account: public str", *items[1].Detail)
	assert.Equal(t, "Account: public deposit(amount)", *items[2].Detail)
	assert.Equal(t, protocol.CompletionItemKindMethod, *items[2].Kind)
	assert.Equal(t, "deposit($1)", *items[2].InsertText)
	assert.Equal(t, protocol.InsertTextFormatSnippet, *items[2].InsertTextFormat)
}

func TestPrivateNames(t *testing.T) {
	src := `load("cpp", "magic")

class Safe:
    key: str = ""
    code: int = 0
    public()
    label: str = ""

class Box:
    key: str = ""
    public()
    code: int = 0
`
	unit, err := rewrite.Rewrite("safe.star", []byte(src), rewrite.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"key": {"Box", "Safe"}}, privateNames(unit))
}
