package inspect

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/diff"
	"github.com/walteh/erbls/pkg/position"
	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/region"
)

func TestInspect(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		offset    int
		wantSpans []region.Span
		wantView  projection.View
		wantPlace position.Place
	}{
		{
			name:      "output tag",
			text:      "<div><%= name %></div>",
			offset:    10,
			wantSpans: []region.Span{{Start: 8, End: 14, Output: true}},
			wantView:  projection.ViewScripting,
			wantPlace: position.Place{Line: 0, Character: 10},
		},
		{
			name:      "markup on second line",
			text:      "<% if x %>\n<p>hi</p>",
			offset:    12,
			wantSpans: []region.Span{{Start: 2, End: 8}},
			wantView:  projection.ViewMarkup,
			wantPlace: position.Place{Line: 1, Character: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Inspect(config.Default(), "show.html.erb", tt.text, tt.offset)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSpans, report.Spans)
			assert.Len(t, report.Projected, len(tt.text))
			require.NotNil(t, report.Offset)
			assert.Equal(t, tt.wantView, report.Offset.View)
			assert.Equal(t, tt.wantView == projection.ViewScripting, report.Offset.Scripting)
			assert.Equal(t, tt.wantPlace, report.Offset.Place)
			assert.True(t, strings.HasPrefix(report.Offset.Virtual, "embedded-content://"))
			assert.True(t, strings.HasSuffix(report.Offset.Virtual, "."+tt.wantView.Extension()))
		})
	}
}

func TestInspect_Payloads(t *testing.T) {
	text := "<ul>\n<% items.each do |i| %>\n  <li><%= i %></li>\n</ul>"

	report, err := Inspect(config.Default(), "app/views/items/index.html.erb", text, -1)
	require.NoError(t, err)

	want := &Report{
		File:     "app/views/items/index.html.erb",
		Selected: true,
		Spans: []region.Span{
			{Start: 7, End: 26},
			{Start: 38, End: 41, Output: true},
		},
		Payloads: []position.RawPosition{
			position.NewBasicPosition(" items.each do |i| ", 7),
			position.NewBasicPosition(" i ", 38),
		},
		Ranges: []position.Range{
			{Start: position.Place{Line: 1, Character: 2}, End: position.Place{Line: 1, Character: 21}},
			{Start: position.Place{Line: 2, Character: 9}, End: position.Place{Line: 2, Character: 12}},
		},
		Projected: "    \n   items.each do |i|   \n          i        \n     ",
	}
	assert.Empty(t, diff.DiffExportedOnly(want, report))
}

func TestInspect_OffsetPastEnd(t *testing.T) {
	_, err := Inspect(config.Default(), "a.html.erb", "<p>", 4)
	require.Error(t, err)
}

func TestHandler_Run(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/views/a.html.erb", []byte("<p><%= a %></p>\n"), 0o644))

	var out bytes.Buffer
	me := &Handler{fs: fs, out: &out, offset: -1, showDiff: true}
	require.NoError(t, me.Run(context.Background(), "/views/a.html.erb"))

	assert.Contains(t, out.String(), "Spans")
	assert.Contains(t, out.String(), "<p><%= a %></p>")
}
