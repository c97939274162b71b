// Package region finds the embedded scripting regions of a markup document.
//
// A scripting region is an Unknown markup token whose text is bounded by the
// delimiter marker on both ends, which is how `<% ... %>` and `<%= ... %>`
// appear to an HTML scanner. Spans bound the payload, never the markers.
package region

import (
	"fmt"

	"github.com/walteh/erbls/pkg/markup"
)

// Pattern is the lexical shape of a scripting token.
type Pattern struct {
	// Marker opens and closes every scripting token.
	Marker byte
	// OutputMarker follows Marker in the output form (`%=`).
	OutputMarker byte
}

var DefaultPattern = Pattern{Marker: '%', OutputMarker: '='}

// Matches reports whether a raw token text is a scripting token. A lone
// marker does not match.
func (p Pattern) Matches(text string) bool {
	return len(text) >= 2 && text[0] == p.Marker && text[len(text)-1] == p.Marker
}

// PayloadOffset is how far into a matching token the payload begins.
func (p Pattern) PayloadOffset(text string) int {
	if len(text) >= 2 && text[0] == p.Marker && text[1] == p.OutputMarker {
		return 2
	}
	return 1
}

// Span is the payload of one scripting token, as byte offsets [Start, End).
type Span struct {
	Start  int  `json:"start"`
	End    int  `json:"end"`
	Output bool `json:"output"`
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Contains reports whether off is inside the payload (half open).
func (s Span) Contains(off int) bool {
	return s.Start <= off && off < s.End
}

func (s Span) leading() int {
	if s.Output {
		return 2
	}
	return 1
}

// TokenStart is the offset of the opening marker.
func (s Span) TokenStart() int {
	return s.Start - s.leading()
}

// TokenEnd is the offset just past the closing marker.
func (s Span) TokenEnd() int {
	return s.End + 1
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Classifier answers scripting-region questions for a pattern and tokenizer.
// It holds no per-document state and is safe for concurrent use.
type Classifier struct {
	pattern    Pattern
	newScanner markup.Factory
}

type Option func(*Classifier)

func WithPattern(p Pattern) Option {
	return func(c *Classifier) {
		c.pattern = p
	}
}

func WithScannerFactory(f markup.Factory) Option {
	return func(c *Classifier) {
		c.newScanner = f
	}
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		pattern:    DefaultPattern,
		newScanner: markup.NewScanner,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Pattern() Pattern {
	return c.pattern
}

// IsInsideScriptingRegion reports whether offset lies within a scripting
// token. Token bounds are inclusive on both ends, so the offsets of the
// opening marker and just past the closing marker both count as inside.
// The first Unknown token containing offset decides.
//
// offset must be within [0, len(text)].
func (c *Classifier) IsInsideScriptingRegion(text string, offset int) bool {
	sc := c.newScanner(text)
	for kind := sc.Scan(); kind != markup.EOS; kind = sc.Scan() {
		start, end := sc.TokenOffset(), sc.TokenEnd()
		if start > offset {
			return false
		}
		if kind == markup.Unknown {
			if offset <= end {
				return c.pattern.Matches(sc.TokenText())
			}
			continue
		}
		if offset < end {
			return false
		}
	}
	return false
}

// FindScriptingSpans scans text once and returns the payload span of every
// scripting token, ordered by offset.
func (c *Classifier) FindScriptingSpans(text string) []Span {
	var spans []Span
	sc := c.newScanner(text)
	for kind := sc.Scan(); kind != markup.EOS; kind = sc.Scan() {
		if kind != markup.Unknown {
			continue
		}
		tok := sc.TokenText()
		if !c.pattern.Matches(tok) {
			continue
		}
		k := c.pattern.PayloadOffset(tok)
		start, end := sc.TokenOffset()+k, sc.TokenEnd()-1
		if end < start {
			// `%=%` has no room for a payload
			end = start
		}
		spans = append(spans, Span{Start: start, End: end, Output: k == 2})
	}
	return spans
}

// SpanAt returns the span whose raw token contains offset, using the same
// inclusive bounds as IsInsideScriptingRegion.
func SpanAt(spans []Span, offset int) (Span, bool) {
	for _, s := range spans {
		if s.TokenStart() <= offset && offset <= s.TokenEnd() {
			return s, true
		}
	}
	return Span{}, false
}

var defaultClassifier = NewClassifier()

func IsInsideScriptingRegion(text string, offset int) bool {
	return defaultClassifier.IsInsideScriptingRegion(text, offset)
}

func FindScriptingSpans(text string) []Span {
	return defaultClassifier.FindScriptingSpans(text)
}
