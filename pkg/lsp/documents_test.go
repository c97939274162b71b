package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/erbls/pkg/lsp/protocol"
)

func rng(sl, sc, el, ec uint32) *protocol.Range {
	return &protocol.Range{
		Start: protocol.Position{Line: sl, Character: sc},
		End:   protocol.Position{Line: el, Character: ec},
	}
}

func TestDocument_Apply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		changes []protocol.TextDocumentContentChangeEvent
		want    string
	}{
		{
			name:    "full replacement",
			content: "<p>old</p>",
			changes: []protocol.TextDocumentContentChangeEvent{{Text: "<p>new</p>"}},
			want:    "<p>new</p>",
		},
		{
			name:    "insert inside scripting",
			content: "<div><%= name %></div>",
			changes: []protocol.TextDocumentContentChangeEvent{{Range: rng(0, 13, 0, 13), Text: ".upcase"}},
			want:    "<div><%= name.upcase %></div>",
		},
		{
			name:    "delete across lines",
			content: "<% if x %>\n<p>hi</p>\n<% end %>",
			changes: []protocol.TextDocumentContentChangeEvent{{Range: rng(0, 10, 1, 9), Text: ""}},
			want:    "<% if x %>\n<% end %>",
		},
		{
			name:    "utf16 columns after non ascii",
			content: "é😀<b>",
			changes: []protocol.TextDocumentContentChangeEvent{{Range: rng(0, 3, 0, 6), Text: "<i>"}},
			want:    "é😀<i>",
		},
		{
			name:    "changes apply in order",
			content: "abc",
			changes: []protocol.TextDocumentContentChangeEvent{
				{Range: rng(0, 0, 0, 0), Text: "<%= "},
				{Range: rng(0, 7, 0, 7), Text: " %>"},
			},
			want: "<%= abc %>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewDocument("file:///a.html.erb", "erb", 1, tt.content)
			got := doc.Apply(2, tt.changes)

			assert.Equal(t, tt.want, got.Content)
			assert.Equal(t, int32(2), got.Version)
			assert.Equal(t, tt.want, got.Lines().Text())
			assert.Equal(t, tt.content, doc.Content, "snapshot must not change")
		})
	}
}

func TestNormalizeURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"plain", "file:///app/views/a.html.erb", "file:///app/views/a.html.erb"},
		{"drive letter", "file:///C:/app/a.html.erb", "file:///c:/app/a.html.erb"},
		{"encoded colon", "file:///C%3A/app/a.html.erb", "file:///c:/app/a.html.erb"},
		{"other scheme", "untitled:Untitled-1", "untitled:Untitled-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeURI(tt.uri))
		})
	}
}

func TestDocumentManager(t *testing.T) {
	m := NewDocumentManager()

	_, err := m.Get("file:///c:/a.html.erb")
	require.ErrorIs(t, err, ErrDocumentNotFound)

	m.Store(NewDocument("file:///C%3A/a.html.erb", "erb", 1, "<p></p>"))

	doc, err := m.Get("file:///c:/a.html.erb")
	require.NoError(t, err)
	assert.Equal(t, "<p></p>", doc.Content)

	m.Delete("file:///C:/a.html.erb")
	_, err = m.Get("file:///c:/a.html.erb")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
