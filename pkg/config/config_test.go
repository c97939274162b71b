package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/region"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "erb", cfg.Selector.Language)
	assert.Equal(t, "file", cfg.Selector.Scheme)
	assert.Equal(t, "**/*.html.erb", cfg.Selector.Pattern)
	assert.Equal(t, region.DefaultPattern, cfg.Pattern())
	assert.Equal(t, 512, cfg.Registry.Capacity)
	assert.Equal(t, 1, cfg.Server.Concurrency)

	b, ok := cfg.Backend("html")
	require.True(t, ok)
	assert.Equal(t, "vscode-html-language-server", b.Command)
	assert.Equal(t, []string{"--stdio"}, b.Args)

	_, ok = cfg.Backend("rb")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()

	yamlCfg := `
selector:
  pattern: "app/**/*.erb"
delimiter:
  marker: "?"
registry:
  capacity: 16
backends:
  - extension: html
    command: html-ls
    args: ["--stdio"]
  - extension: rb
    command: ruby-lsp
`
	hclCfg := `
selector {
  language = "eruby"
}
server {
  concurrency = 4
}
backend "html" {
  command = "html-ls"
  args    = ["--stdio"]
}
`
	require.NoError(t, afero.WriteFile(fs, "/w/.erbls.yaml", []byte(yamlCfg), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/w/.erbls.hcl", []byte(hclCfg), 0o644))

	t.Run("yaml", func(t *testing.T) {
		cfg, err := config.Load(fs, "/w/.erbls.yaml")
		require.NoError(t, err)
		assert.Equal(t, "app/**/*.erb", cfg.Selector.Pattern)
		assert.Equal(t, "erb", cfg.Selector.Language)
		assert.Equal(t, region.Pattern{Marker: '?', OutputMarker: '='}, cfg.Pattern())
		assert.Equal(t, 16, cfg.Registry.Capacity)
		require.Len(t, cfg.Backends, 2)
		assert.Equal(t, "rb", cfg.Backends[1].LanguageID)
	})

	t.Run("hcl", func(t *testing.T) {
		cfg, err := config.Load(fs, "/w/.erbls.hcl")
		require.NoError(t, err)
		assert.Equal(t, "eruby", cfg.Selector.Language)
		assert.Equal(t, "**/*.html.erb", cfg.Selector.Pattern)
		assert.Equal(t, 4, cfg.Server.Concurrency)
		require.Len(t, cfg.Backends, 1)
		assert.Equal(t, "html", cfg.Backends[0].Extension)
		assert.Equal(t, "html-ls", cfg.Backends[0].Command)
	})

	t.Run("discover prefers yaml", func(t *testing.T) {
		cfg, path, err := config.LoadOrDefault(fs, "", "/w")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/w", ".erbls.yaml"), path)
		assert.Equal(t, 16, cfg.Registry.Capacity)
	})

	t.Run("defaults when nothing is found", func(t *testing.T) {
		cfg, path, err := config.LoadOrDefault(fs, "", "/empty")
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(fs, "/w/nope.yaml")
		assert.Error(t, err)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		contains []string
	}{
		{
			name:     "unknown yaml field",
			filename: "c.yaml",
			data:     "selectr: {}\n",
			contains: []string{"parsing YAML"},
		},
		{
			name:     "bad hcl",
			filename: "c.hcl",
			data:     "selector {",
			contains: []string{"parsing HCL"},
		},
		{
			name:     "every validation problem is reported",
			filename: "c.yaml",
			data: `
delimiter:
  marker: "%%"
  output: "=="
registry:
  capacity: -1
backends:
  - extension: css
  - extension: css
    command: x
`,
			contains: []string{
				"marker must be a single byte",
				"output must be a single byte",
				"capacity must not be negative",
				`extension must be html or rb, got "css"`,
				"command is required",
				`duplicate extension "css"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.data), tt.filename)
			require.Error(t, err)
			for _, c := range tt.contains {
				assert.Contains(t, err.Error(), c)
			}
		})
	}
}

func TestParse_EmptyYAML(t *testing.T) {
	cfg, err := config.Parse(nil, "c.yml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestSelector_Matches(t *testing.T) {
	s := config.Default().Selector
	tests := []struct {
		uri        string
		languageID string
		want       bool
	}{
		{"file:///home/me/app/views/index.html.erb", "erb", true},
		{"file:///home/me/app/views/index.html.erb", "", true},
		{"file:///index.html.erb", "erb", true},
		{"file:///home/me/app/views/index.html.erb", "html", false},
		{"file:///home/me/app/views/index.erb", "erb", false},
		{"untitled:Untitled-1", "erb", false},
		{"file:///C:/proj/a%20b/x.html.erb", "erb", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri+"/"+tt.languageID, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Matches(tt.uri, tt.languageID))
		})
	}

	assert.True(t, s.MatchesPath("app/views/a.html.erb"))
	assert.False(t, s.MatchesPath("app/views/a.rb"))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".erbls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry:\n  capacity: 1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []*config.Config
	done := make(chan error, 1)
	go func() {
		done <- config.Watch(ctx, afero.NewOsFs(), path, func(c *config.Config) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, c)
		})
	}()

	require.Eventually(t, func() bool {
		// rewrite until the watcher is registered and reports a reload
		_ = os.WriteFile(path, []byte("registry:\n  capacity: 2\n"), 0o644)
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, got[len(got)-1].Registry.Capacity)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
