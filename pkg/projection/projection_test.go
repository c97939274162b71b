package projection_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/region"
)

var corpus = []string{
	"",
	"plain text",
	"<div><%= name %></div>",
	"<% if x %>\n<p>hi</p>\n<% end %>",
	"<%  unterminated",
	"<ul>\r\n<% items.each do |i| %>\r\n  <li><%= i %></li>\r\n<% end %>\r\n</ul>",
	"é <%= \"ü\" %> ñ\n",
}

func TestBuildMaskedProjection(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		spans []region.Span
		want  string
	}{
		{
			name:  "two blocks keep newlines",
			text:  "<% if x %>\n<p>hi</p>\n<% end %>",
			spans: []region.Span{{Start: 2, End: 8}, {Start: 23, End: 28}},
			want:  "   if x   \n         \n   end   ",
		},
		{
			name:  "output tag",
			text:  "<div><%= name %></div>",
			spans: []region.Span{{Start: 8, End: 14, Output: true}},
			want:  "         name         ",
		},
		{
			name:  "carriage returns kept",
			text:  "a\r\nb",
			spans: nil,
			want:  " \r\n ",
		},
		{
			name:  "overlapping spans are last write wins",
			text:  "abcdef",
			spans: []region.Span{{Start: 1, End: 4}, {Start: 2, End: 3}},
			want:  " bcd  ",
		},
		{
			name:  "out of range spans are clamped",
			text:  "abc",
			spans: []region.Span{{Start: -2, End: 1}, {Start: 2, End: 10}, {Start: 5, End: 1}},
			want:  "a c",
		},
		{
			name: "empty text",
			text: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := projection.BuildMaskedProjection(tt.text, tt.spans)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, len(tt.text))
		})
	}
}

func TestBuildMaskedProjection_Properties(t *testing.T) {
	for _, text := range corpus {
		spans := region.FindScriptingSpans(text)
		masked := projection.BuildMaskedProjection(text, spans)
		require.Len(t, masked, len(text), "length of %q", text)

		inSpan := make([]bool, len(text))
		for _, s := range spans {
			for i := s.Start; i < s.End; i++ {
				inSpan[i] = true
			}
		}
		for i := 0; i < len(text); i++ {
			switch {
			case text[i] == '\n' || text[i] == '\r':
				assert.Equal(t, text[i], masked[i], "terminator at %d of %q", i, text)
			case inSpan[i]:
				assert.Equal(t, text[i], masked[i], "payload at %d of %q", i, text)
			default:
				assert.Equal(t, byte(' '), masked[i], "blank at %d of %q", i, text)
			}
		}
		assert.Equal(t, strings.Count(text, "\n"), strings.Count(masked, "\n"))
	}
}

func TestBuilder_Project(t *testing.T) {
	b := projection.NewBuilder(nil)
	text := "<div><%= name %></div>"

	inside := b.Project(text, 10)
	assert.Equal(t, projection.ViewScripting, inside.View)
	assert.Equal(t, "         name         ", inside.Text)
	assert.Len(t, inside.Spans, 1)

	outside := b.Project(text, 1)
	assert.Equal(t, projection.ViewMarkup, outside.View)
	assert.Equal(t, text, outside.Text)

	forced := b.ProjectView(text, projection.ViewScripting)
	assert.Equal(t, inside, forced)
}

func TestView(t *testing.T) {
	assert.Equal(t, "html", projection.ViewMarkup.Extension())
	assert.Equal(t, "rb", projection.ViewScripting.Extension())
	assert.Equal(t, "scripting", projection.ViewScripting.String())

	v, err := projection.ParseView("rb")
	require.NoError(t, err)
	assert.Equal(t, projection.ViewScripting, v)

	_, err = projection.ParseView("erb")
	assert.Error(t, err)

	var u projection.View
	require.NoError(t, u.UnmarshalText([]byte("html")))
	assert.Equal(t, projection.ViewMarkup, u)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, projection.IsBlank("  \r\n  "))
	assert.False(t, projection.IsBlank("  x "))
}
