package markup

import (
	"regexp"
	"strings"
)

// stream is a byte cursor over the scanned source.
type stream struct {
	source string
	pos    int
}

func newStream(source string, pos int) *stream {
	return &stream{source: source, pos: pos}
}

func (s *stream) eos() bool {
	return s.pos >= len(s.source)
}

func (s *stream) advance(n int) {
	s.pos += n
	if s.pos > len(s.source) {
		s.pos = len(s.source)
	}
}

func (s *stream) goBack(n int) {
	s.pos -= n
	if s.pos < 0 {
		s.pos = 0
	}
}

func (s *stream) goToEnd() {
	s.pos = len(s.source)
}

// peek returns the byte n positions away from the cursor, or 0 outside the source.
func (s *stream) peek(n int) byte {
	idx := s.pos + n
	if idx < 0 || idx >= len(s.source) {
		return 0
	}
	return s.source[idx]
}

func (s *stream) advanceIfChar(ch byte) bool {
	if s.peek(0) == ch && !s.eos() {
		s.pos++
		return true
	}
	return false
}

func (s *stream) advanceIfChars(chars string) bool {
	if strings.HasPrefix(s.source[s.pos:], chars) {
		s.pos += len(chars)
		return true
	}
	return false
}

// advanceIfRegexp moves past the first match of re in the rest of the source.
func (s *stream) advanceIfRegexp(re *regexp.Regexp) string {
	rest := s.source[s.pos:]
	loc := re.FindStringIndex(rest)
	if loc == nil {
		return ""
	}
	s.pos += loc[1]
	return rest[loc[0]:loc[1]]
}

// advanceUntilRegexp moves to the start of the first match of re, or to the end.
func (s *stream) advanceUntilRegexp(re *regexp.Regexp) string {
	rest := s.source[s.pos:]
	loc := re.FindStringIndex(rest)
	if loc == nil {
		s.goToEnd()
		return ""
	}
	s.pos += loc[0]
	return rest[loc[0]:loc[1]]
}

func (s *stream) advanceUntilChar(ch byte) bool {
	idx := strings.IndexByte(s.source[s.pos:], ch)
	if idx < 0 {
		s.goToEnd()
		return false
	}
	s.pos += idx
	return true
}

func (s *stream) advanceUntilChars(chars string) bool {
	idx := strings.Index(s.source[s.pos:], chars)
	if idx < 0 {
		s.goToEnd()
		return false
	}
	s.pos += idx
	return true
}

func (s *stream) skipWhitespace() bool {
	start := s.pos
	for !s.eos() && isWhitespace(s.source[s.pos]) {
		s.pos++
	}
	return s.pos > start
}

func isWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}
