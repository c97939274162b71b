package finder

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// TemplateFinder finds template documents under a directory.
type TemplateFinder interface {
	FindTemplates(ctx context.Context, dir string, patterns []string) ([]FileInfo, error)
}

// FileInfo represents information about a found template file
type FileInfo struct {
	Path     string
	Content  []byte
	FileType string
}

var DefaultPatterns = []string{"**/*.html.erb"}

// skipped directories are never descended into
var skipped = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"tmp":          true,
}

// DefaultFinder walks an afero filesystem.
type DefaultFinder struct {
	fs afero.Fs
}

func NewDefaultFinder(fs afero.Fs) *DefaultFinder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &DefaultFinder{fs: fs}
}

// FindTemplates returns every file under dir whose slash-separated path
// relative to dir matches one of patterns, sorted by path.
func (f *DefaultFinder) FindTemplates(ctx context.Context, dir string, patterns []string) ([]FileInfo, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Errorf("invalid pattern %q", p)
		}
	}

	if _, err := f.fs.Stat(dir); err != nil {
		return nil, errors.Errorf("reading directory %s: %w", dir, err)
	}

	var out []FileInfo
	err := afero.Walk(f.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if path != dir && skipped[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.Errorf("relative path of %s: %w", path, err)
		}
		if !matchesAny(patterns, filepath.ToSlash(rel)) {
			return nil
		}

		content, err := afero.ReadFile(f.fs, path)
		if err != nil {
			return errors.Errorf("reading %s: %w", path, err)
		}
		out = append(out, FileInfo{Path: path, Content: content, FileType: fileType(path)})
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", dir, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// fileType is the full multi-part extension, "html.erb" for "a.html.erb".
func fileType(path string) string {
	base := filepath.Base(path)
	for i := 0; i < len(base); i++ {
		if base[i] == '.' && i > 0 {
			return base[i+1:]
		}
	}
	return filepath.Ext(base)
}
