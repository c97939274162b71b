// Package config loads the erbls configuration from YAML or HCL.
package config

import (
	"bytes"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/erbls/pkg/region"
	"github.com/walteh/erbls/pkg/vdoc"
)

// FileNames are looked up, in order, when no config path is given.
var FileNames = []string{".erbls.yaml", ".erbls.yml", ".erbls.hcl"}

// 📝 Config file structure
type Config struct {
	Selector  *Selector  `yaml:"selector,omitempty" hcl:"selector,block"`
	Delimiter *Delimiter `yaml:"delimiter,omitempty" hcl:"delimiter,block"`
	Registry  *Registry  `yaml:"registry,omitempty" hcl:"registry,block"`
	Server    *Server    `yaml:"server,omitempty" hcl:"server,block"`
	Backends  []*Backend `yaml:"backends,omitempty" hcl:"backend,block"`
}

// 🎯 Which documents the server handles
type Selector struct {
	Language string `yaml:"language,omitempty" hcl:"language,optional"`
	Scheme   string `yaml:"scheme,omitempty" hcl:"scheme,optional"`
	Pattern  string `yaml:"pattern,omitempty" hcl:"pattern,optional"`
}

// 🔧 Scripting delimiter markers, one character each
type Delimiter struct {
	Marker string `yaml:"marker,omitempty" hcl:"marker,optional"`
	Output string `yaml:"output,omitempty" hcl:"output,optional"`
}

type Registry struct {
	Capacity int `yaml:"capacity,omitempty" hcl:"capacity,optional"`
}

type Server struct {
	Concurrency int `yaml:"concurrency,omitempty" hcl:"concurrency,optional"`
}

// 📦 A downstream language server for one virtual document extension
type Backend struct {
	Extension  string   `yaml:"extension" hcl:"extension,label"`
	Command    string   `yaml:"command" hcl:"command,attr"`
	Args       []string `yaml:"args,omitempty" hcl:"args,optional"`
	LanguageID string   `yaml:"language_id,omitempty" hcl:"language_id,optional"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Selector == nil {
		c.Selector = &Selector{}
	}
	if c.Selector.Language == "" {
		c.Selector.Language = "erb"
	}
	if c.Selector.Scheme == "" {
		c.Selector.Scheme = "file"
	}
	if c.Selector.Pattern == "" {
		c.Selector.Pattern = "**/*.html.erb"
	}
	if c.Delimiter == nil {
		c.Delimiter = &Delimiter{}
	}
	if c.Delimiter.Marker == "" {
		c.Delimiter.Marker = "%"
	}
	if c.Delimiter.Output == "" {
		c.Delimiter.Output = "="
	}
	if c.Registry == nil {
		c.Registry = &Registry{}
	}
	if c.Registry.Capacity == 0 {
		c.Registry.Capacity = vdoc.DefaultCapacity
	}
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Concurrency == 0 {
		c.Server.Concurrency = 1
	}
	if len(c.Backends) == 0 {
		c.Backends = []*Backend{{
			Extension:  "html",
			Command:    "vscode-html-language-server",
			Args:       []string{"--stdio"},
			LanguageID: "html",
		}}
	}
	for _, b := range c.Backends {
		if b != nil && b.LanguageID == "" {
			b.LanguageID = b.Extension
		}
	}
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Selector != nil && c.Selector.Pattern != "" && !doublestar.ValidatePattern(c.Selector.Pattern) {
		result = multierror.Append(result, errors.Errorf("selector: invalid pattern %q", c.Selector.Pattern))
	}
	if c.Delimiter != nil {
		if len(c.Delimiter.Marker) != 1 {
			result = multierror.Append(result, errors.Errorf("delimiter: marker must be a single byte, got %q", c.Delimiter.Marker))
		}
		if len(c.Delimiter.Output) != 1 {
			result = multierror.Append(result, errors.Errorf("delimiter: output must be a single byte, got %q", c.Delimiter.Output))
		}
	}
	if c.Registry != nil && c.Registry.Capacity < 0 {
		result = multierror.Append(result, errors.Errorf("registry: capacity must not be negative, got %d", c.Registry.Capacity))
	}
	if c.Server != nil && c.Server.Concurrency < 0 {
		result = multierror.Append(result, errors.Errorf("server: concurrency must not be negative, got %d", c.Server.Concurrency))
	}

	seen := map[string]bool{}
	for i, b := range c.Backends {
		if b == nil {
			result = multierror.Append(result, errors.Errorf("backends[%d]: empty", i))
			continue
		}
		if b.Extension != "html" && b.Extension != "rb" {
			result = multierror.Append(result, errors.Errorf("backends[%d]: extension must be html or rb, got %q", i, b.Extension))
		}
		if b.Command == "" {
			result = multierror.Append(result, errors.Errorf("backends[%d]: command is required", i))
		}
		if seen[b.Extension] {
			result = multierror.Append(result, errors.Errorf("backends[%d]: duplicate extension %q", i, b.Extension))
		}
		seen[b.Extension] = true
	}

	return result.ErrorOrNil()
}

// Pattern is the region pattern for the configured delimiter.
func (c *Config) Pattern() region.Pattern {
	p := region.DefaultPattern
	if c.Delimiter != nil {
		if len(c.Delimiter.Marker) == 1 {
			p.Marker = c.Delimiter.Marker[0]
		}
		if len(c.Delimiter.Output) == 1 {
			p.OutputMarker = c.Delimiter.Output[0]
		}
	}
	return p
}

// Matches reports whether a document belongs to the server. An empty
// languageID is accepted when scheme and pattern match.
func (s *Selector) Matches(uri, languageID string) bool {
	if languageID != "" && s.Language != "" && languageID != s.Language {
		return false
	}
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	if s.Scheme != "" && u.Scheme != s.Scheme {
		return false
	}
	if s.Pattern == "" {
		return true
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	ok, err := doublestar.Match(s.Pattern, strings.TrimPrefix(path, "/"))
	return err == nil && ok
}

// MatchesPath is Matches for a filesystem path.
func (s *Selector) MatchesPath(path string) bool {
	if s.Pattern == "" {
		return true
	}
	ok, err := doublestar.Match(s.Pattern, strings.TrimPrefix(filepath.ToSlash(path), "/"))
	return err == nil && ok
}

// Load reads the config at path, YAML for .yaml/.yml and HCL otherwise.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config data. The format is chosen from filename.
func Parse(data []byte, filename string) (*Config, error) {
	var cfg Config

	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	} else {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCL(data, filename)
		if diags.HasErrors() {
			return nil, errors.Errorf("parsing HCL: %s", diags.Error())
		}
		ctx := &hcl.EvalContext{Variables: map[string]cty.Value{}}
		if diags := gohcl.DecodeBody(file.Body, ctx, &cfg); diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL: %s", diags.Error())
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Discover returns the first config file found in dir.
func Discover(fs afero.Fs, dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if ok, err := afero.Exists(fs, p); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// LoadOrDefault loads path, or the config discovered in dir, or defaults.
func LoadOrDefault(fs afero.Fs, path, dir string) (*Config, string, error) {
	if path == "" {
		found, ok := Discover(fs, dir)
		if !ok {
			return Default(), "", nil
		}
		path = found
	}
	cfg, err := Load(fs, path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (c *Config) Backend(ext string) (*Backend, bool) {
	for _, b := range c.Backends {
		if b.Extension == ext {
			return b, true
		}
	}
	return nil, false
}
