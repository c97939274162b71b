package markup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/erbls/pkg/markup"
)

type tok struct {
	kind markup.TokenKind
	text string
}

func scanAll(t *testing.T, text string) []tok {
	t.Helper()
	var out []tok
	for _, tk := range markup.Tokens(text) {
		require.Equal(t, text[tk.Offset:tk.End], tk.Text, "token text must match its offsets")
		out = append(out, tok{tk.Kind, tk.Text})
	}
	return out
}

func TestScanner_Tokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []tok
	}{
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "plain content",
			text: "hello",
			want: []tok{{markup.Content, "hello"}},
		},
		{
			name: "element with attribute",
			text: `<div class="a">x</div>`,
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "div"},
				{markup.Whitespace, " "},
				{markup.AttributeName, "class"},
				{markup.DelimiterAssign, "="},
				{markup.AttributeValue, `"a"`},
				{markup.StartTagClose, ">"},
				{markup.Content, "x"},
				{markup.EndTagOpen, "</"},
				{markup.EndTag, "div"},
				{markup.EndTagClose, ">"},
			},
		},
		{
			name: "output tag is unknown",
			text: "<%= name %>",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.Unknown, "%= name %"},
				{markup.StartTagClose, ">"},
			},
		},
		{
			name: "code tag inside content",
			text: "<p><% x %></p>",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "p"},
				{markup.StartTagClose, ">"},
				{markup.StartTagOpen, "<"},
				{markup.Unknown, "% x %"},
				{markup.StartTagClose, ">"},
				{markup.EndTagOpen, "</"},
				{markup.EndTag, "p"},
				{markup.EndTagClose, ">"},
			},
		},
		{
			name: "comment",
			text: "<!-- hi -->",
			want: []tok{
				{markup.StartCommentTag, "<!--"},
				{markup.Comment, " hi "},
				{markup.EndCommentTag, "-->"},
			},
		},
		{
			name: "doctype",
			text: "<!DOCTYPE html>",
			want: []tok{
				{markup.StartDoctypeTag, "<!DOCTYPE"},
				{markup.Doctype, " html"},
				{markup.EndDoctypeTag, ">"},
			},
		},
		{
			name: "self closing",
			text: "<br/>",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "br"},
				{markup.StartTagSelfClose, "/>"},
			},
		},
		{
			name: "unquoted value before self close",
			text: "<a href=/x/>",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "a"},
				{markup.Whitespace, " "},
				{markup.AttributeName, "href"},
				{markup.DelimiterAssign, "="},
				{markup.AttributeValue, "/x"},
				{markup.StartTagSelfClose, "/>"},
			},
		},
		{
			name: "script body",
			text: "<script>a < b</script>",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "script"},
				{markup.StartTagClose, ">"},
				{markup.Script, "a < b"},
				{markup.EndTagOpen, "</"},
				{markup.EndTag, "script"},
				{markup.EndTagClose, ">"},
			},
		},
		{
			name: "html script type stays markup",
			text: `<script type="text/html"><b></script>`,
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "script"},
				{markup.Whitespace, " "},
				{markup.AttributeName, "type"},
				{markup.DelimiterAssign, "="},
				{markup.AttributeValue, `"text/html"`},
				{markup.StartTagClose, ">"},
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "b"},
				{markup.StartTagClose, ">"},
				{markup.EndTagOpen, "</"},
				{markup.EndTag, "script"},
				{markup.EndTagClose, ">"},
			},
		},
		{
			name: "style body",
			text: "<style>a{}</style>",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.StartTag, "style"},
				{markup.StartTagClose, ">"},
				{markup.Styles, "a{}"},
				{markup.EndTagOpen, "</"},
				{markup.EndTag, "style"},
				{markup.EndTagClose, ">"},
			},
		},
		{
			name: "unterminated tag",
			text: "<% open",
			want: []tok{
				{markup.StartTagOpen, "<"},
				{markup.Unknown, "% open"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scanAll(t, tt.text))
		})
	}
}

func TestScanner_Errors(t *testing.T) {
	sc := markup.NewScanner("<%= x %>")
	require.Equal(t, markup.StartTagOpen, sc.Scan())
	require.Equal(t, markup.Unknown, sc.Scan())
	assert.Equal(t, "Start tag name expected.", sc.TokenError())
	assert.Equal(t, 1, sc.TokenOffset())
	assert.Equal(t, 7, sc.TokenEnd())
	assert.Equal(t, 6, sc.TokenLength())
	assert.Equal(t, markup.WithinTag, sc.State())
}

func TestScanner_EOSIsSticky(t *testing.T) {
	sc := markup.NewScanner("a")
	require.Equal(t, markup.Content, sc.Scan())
	for i := 0; i < 3; i++ {
		assert.Equal(t, markup.EOS, sc.Scan())
	}
}

func TestScanner_AlwaysAdvances(t *testing.T) {
	inputs := []string{
		"<",
		"</",
		"< >",
		"<a =>",
		"<a b='c",
		"<!--",
		"<script><!-- <script></script> --></script>",
		"<% a %><%= b %><%# c %>",
		"\r\n<p>é</p>",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			sc := markup.NewScanner(in)
			prev := -1
			for kind := sc.Scan(); kind != markup.EOS; kind = sc.Scan() {
				require.Greater(t, sc.TokenEnd(), sc.TokenOffset())
				require.Greater(t, sc.TokenEnd(), prev)
				prev = sc.TokenEnd()
			}
			assert.Equal(t, len(in), prev)
		})
	}
}

func TestTokenKind_String(t *testing.T) {
	assert.Equal(t, "Unknown", markup.Unknown.String())
	assert.Equal(t, "EOS", markup.EOS.String())
	assert.Equal(t, "TokenKind(?)", markup.TokenKind(99).String())
	assert.Equal(t, "WithinTag", markup.WithinTag.String())
}
