// Package projection builds same-length virtual documents from a template.
//
// The markup view is the template itself. The scripting view blanks every
// byte outside the scripting payloads, keeping line terminators, so byte
// offsets and line numbers line up with the source.
package projection

import (
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/region"
)

// View selects which language a virtual document is for.
type View int

const (
	ViewMarkup View = iota
	ViewScripting
)

func (v View) Extension() string {
	switch v {
	case ViewScripting:
		return "rb"
	default:
		return "html"
	}
}

func (v View) String() string {
	switch v {
	case ViewScripting:
		return "scripting"
	default:
		return "markup"
	}
}

func (v View) MarshalText() ([]byte, error) {
	return []byte(v.Extension()), nil
}

func (v *View) UnmarshalText(b []byte) error {
	parsed, err := ParseView(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseView maps an extension hint back to its view.
func ParseView(ext string) (View, error) {
	switch ext {
	case "html":
		return ViewMarkup, nil
	case "rb":
		return ViewScripting, nil
	}
	return ViewMarkup, errors.Errorf("unknown view extension %q", ext)
}

type Projection struct {
	View  View          `json:"view"`
	Text  string        `json:"text"`
	Spans []region.Span `json:"spans"`
}

const blank = ' '

// BuildMaskedProjection blanks text outside spans. Line terminators (`\n` and
// `\r`) are kept, and each span's bytes are copied back in order, so later
// spans win where malformed spans overlap. Spans are clamped to the text.
func BuildMaskedProjection(text string, spans []region.Span) string {
	buf := []byte(text)
	for i, c := range buf {
		if c != '\n' && c != '\r' {
			buf[i] = blank
		}
	}
	for _, s := range spans {
		start, end := clamp(s.Start, len(text)), clamp(s.End, len(text))
		if start >= end {
			continue
		}
		copy(buf[start:end], text[start:end])
	}
	return string(buf)
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

type Builder struct {
	classifier *region.Classifier
}

func NewBuilder(c *region.Classifier) *Builder {
	if c == nil {
		c = region.NewClassifier()
	}
	return &Builder{classifier: c}
}

func (b *Builder) Classifier() *region.Classifier {
	return b.classifier
}

// Project picks the view for offset: the masked scripting view when offset is
// inside a scripting region, otherwise the markup view.
func (b *Builder) Project(text string, offset int) Projection {
	if b.classifier.IsInsideScriptingRegion(text, offset) {
		return b.ProjectView(text, ViewScripting)
	}
	return b.ProjectView(text, ViewMarkup)
}

func (b *Builder) ProjectView(text string, view View) Projection {
	spans := b.classifier.FindScriptingSpans(text)
	if view == ViewMarkup {
		return Projection{View: view, Text: text, Spans: spans}
	}
	return Projection{View: view, Text: BuildMaskedProjection(text, spans), Spans: spans}
}

// IsBlank reports whether projected has only blanks and line terminators.
func IsBlank(projected string) bool {
	return strings.Trim(projected, " \r\n") == ""
}
