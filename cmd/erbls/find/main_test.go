package find

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Run(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/app/views/users/show.html.erb":      "<p><%= user.name %></p><% if x %><% end %>",
		"/app/views/layouts/app.html.erb":     "<html></html>",
		"/app/views/users/show.json.jbuilder": "json.name 1",
		"/app/node_modules/pkg/x.html.erb":    "<%= x %>",
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}

	tests := []struct {
		name  string
		spans bool
		want  string
	}{
		{
			name: "paths",
			want: "/app/views/layouts/app.html.erb\n/app/views/users/show.html.erb\n",
		},
		{
			name:  "span counts",
			spans: true,
			want:  "/app/views/layouts/app.html.erb\t0\n/app/views/users/show.html.erb\t3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			me := &Handler{fs: fs, out: &out, spans: tt.spans}
			require.NoError(t, me.Run(context.Background(), "/app"))
			assert.Equal(t, tt.want, out.String())
		})
	}
}
