package markup

import (
	"regexp"
	"strings"
)

// Scanner walks a markup document token by token.
type Scanner interface {
	// Scan advances to the next token and returns its kind. After the end of
	// the source it keeps returning EOS.
	Scan() TokenKind
	TokenKind() TokenKind
	TokenOffset() int
	TokenEnd() int
	TokenLength() int
	TokenText() string
	// TokenError describes why the current token is malformed, if it is.
	TokenError() string
	State() State
}

// Factory creates a scanner over text.
type Factory func(text string) Scanner

var (
	elementNameRe    = regexp.MustCompile(`^[_:\w][_:\w\-.\d]*`)
	attributeNameRe  = regexp.MustCompile(`^[^\s"'></=\x00-\x0F\x7F\x{80}-\x{9F}]*`)
	attributeValueRe = regexp.MustCompile("^[^\\s\"'`=<>]+")
	doctypeRe        = regexp.MustCompile(`^(?i:!doctype)`)
	scriptBoundaryRe = regexp.MustCompile(`(?i)<!--|-->|</?script\s*/?>?`)
	styleEndRe       = regexp.MustCompile(`(?i)</style`)
)

// scriptTypesAsMarkup are <script type="..."> values whose body is markup.
var scriptTypesAsMarkup = map[string]bool{
	"text/x-handlebars-template": true,
	"text/html":                  true,
}

const (
	errTagNameAfterBracket = "Tag name must directly follow the open bracket."
	errStartTagName        = "Start tag name expected."
	errEndTagName          = "End tag name expected."
	errClosingBracket      = "Closing bracket expected."
	errUnexpectedInTag     = "Unexpected character in tag."
)

type scanner struct {
	stream *stream
	state  State

	tokenKind   TokenKind
	tokenOffset int
	tokenError  string

	hasSpaceAfterTag  bool
	lastTag           string
	lastAttributeName string
	lastTypeValue     string
}

var _ Scanner = (*scanner)(nil)

// NewScanner returns a scanner positioned at the start of text.
func NewScanner(text string) Scanner {
	return NewScannerAt(text, 0, WithinContent)
}

// NewScannerAt returns a scanner starting at offset in the given state.
func NewScannerAt(text string, offset int, state State) Scanner {
	return &scanner{
		stream:    newStream(text, offset),
		state:     state,
		tokenKind: Unknown,
	}
}

func (me *scanner) Scan() TokenKind {
	offset := me.stream.pos
	kind := me.internalScan()
	if kind != EOS && offset == me.stream.pos {
		// every token must consume at least one byte
		me.stream.advance(1)
		return me.finish(offset, Unknown, "")
	}
	return kind
}

func (me *scanner) TokenKind() TokenKind { return me.tokenKind }
func (me *scanner) TokenOffset() int     { return me.tokenOffset }
func (me *scanner) TokenEnd() int        { return me.stream.pos }
func (me *scanner) TokenLength() int     { return me.stream.pos - me.tokenOffset }
func (me *scanner) TokenError() string   { return me.tokenError }
func (me *scanner) State() State         { return me.state }

func (me *scanner) TokenText() string {
	return me.stream.source[me.tokenOffset:me.stream.pos]
}

func (me *scanner) finish(offset int, kind TokenKind, errMsg string) TokenKind {
	me.tokenKind = kind
	me.tokenOffset = offset
	me.tokenError = errMsg
	return kind
}

func (me *scanner) nextElementName() string {
	return strings.ToLower(me.stream.advanceIfRegexp(elementNameRe))
}

func (me *scanner) nextAttributeName() string {
	return strings.ToLower(me.stream.advanceIfRegexp(attributeNameRe))
}

func (me *scanner) internalScan() TokenKind {
	s := me.stream
	offset := s.pos
	if s.eos() {
		return me.finish(offset, EOS, "")
	}

	var errMsg string

	switch me.state {
	case WithinComment:
		if s.advanceIfChars("-->") {
			me.state = WithinContent
			return me.finish(offset, EndCommentTag, "")
		}
		s.advanceUntilChars("-->")
		return me.finish(offset, Comment, "")

	case WithinDoctype:
		if s.advanceIfChar('>') {
			me.state = WithinContent
			return me.finish(offset, EndDoctypeTag, "")
		}
		s.advanceUntilChar('>')
		return me.finish(offset, Doctype, "")

	case WithinContent:
		if s.advanceIfChar('<') {
			if !s.eos() && s.peek(0) == '!' {
				if s.advanceIfChars("!--") {
					me.state = WithinComment
					return me.finish(offset, StartCommentTag, "")
				}
				if s.advanceIfRegexp(doctypeRe) != "" {
					me.state = WithinDoctype
					return me.finish(offset, StartDoctypeTag, "")
				}
			}
			if s.advanceIfChar('/') {
				me.state = AfterOpeningEndTag
				return me.finish(offset, EndTagOpen, "")
			}
			me.state = AfterOpeningStartTag
			return me.finish(offset, StartTagOpen, "")
		}
		s.advanceUntilChar('<')
		return me.finish(offset, Content, "")

	case AfterOpeningEndTag:
		if tag := me.nextElementName(); tag != "" {
			me.state = WithinEndTag
			return me.finish(offset, EndTag, "")
		}
		if s.skipWhitespace() {
			return me.finish(offset, Whitespace, errTagNameAfterBracket)
		}
		me.state = WithinEndTag
		s.advanceUntilChar('>')
		if offset < s.pos {
			return me.finish(offset, Unknown, errEndTagName)
		}
		return me.internalScan()

	case WithinEndTag:
		if s.skipWhitespace() {
			return me.finish(offset, Whitespace, "")
		}
		if s.advanceIfChar('>') {
			me.state = WithinContent
			return me.finish(offset, EndTagClose, "")
		}
		errMsg = errClosingBracket

	case AfterOpeningStartTag:
		me.lastTag = me.nextElementName()
		me.lastTypeValue = ""
		me.lastAttributeName = ""
		if me.lastTag != "" {
			me.hasSpaceAfterTag = false
			me.state = WithinTag
			return me.finish(offset, StartTag, "")
		}
		if s.skipWhitespace() {
			return me.finish(offset, Whitespace, errTagNameAfterBracket)
		}
		me.state = WithinTag
		s.advanceUntilChar('>')
		if offset < s.pos {
			return me.finish(offset, Unknown, errStartTagName)
		}
		return me.internalScan()

	case WithinTag:
		if s.skipWhitespace() {
			me.hasSpaceAfterTag = true
			return me.finish(offset, Whitespace, "")
		}
		if me.hasSpaceAfterTag {
			me.lastAttributeName = me.nextAttributeName()
			if me.lastAttributeName != "" {
				me.state = AfterAttributeName
				me.hasSpaceAfterTag = false
				return me.finish(offset, AttributeName, "")
			}
		}
		if s.advanceIfChars("/>") {
			me.state = WithinContent
			return me.finish(offset, StartTagSelfClose, "")
		}
		if s.advanceIfChar('>') {
			switch {
			case me.lastTag == "script" && !scriptTypesAsMarkup[me.lastTypeValue]:
				me.state = WithinScriptContent
			case me.lastTag == "style":
				me.state = WithinStyleContent
			default:
				me.state = WithinContent
			}
			return me.finish(offset, StartTagClose, "")
		}
		s.advance(1)
		return me.finish(offset, Unknown, errUnexpectedInTag)

	case AfterAttributeName:
		if s.skipWhitespace() {
			me.hasSpaceAfterTag = true
			return me.finish(offset, Whitespace, "")
		}
		if s.advanceIfChar('=') {
			me.state = BeforeAttributeValue
			return me.finish(offset, DelimiterAssign, "")
		}
		me.state = WithinTag
		return me.internalScan()

	case BeforeAttributeValue:
		if s.skipWhitespace() {
			return me.finish(offset, Whitespace, "")
		}
		if value := s.advanceIfRegexp(attributeValueRe); value != "" {
			if s.peek(0) == '>' && s.peek(-1) == '/' {
				// <a href=/foo/> closes the tag, the slash is not part of the value
				s.goBack(1)
				value = value[:len(value)-1]
			}
			if me.lastAttributeName == "type" {
				me.lastTypeValue = value
			}
			if value != "" {
				me.state = WithinTag
				me.hasSpaceAfterTag = false
				return me.finish(offset, AttributeValue, "")
			}
		}
		if ch := s.peek(0); ch == '\'' || ch == '"' {
			s.advance(1)
			if s.advanceUntilChar(ch) {
				s.advance(1)
			}
			if me.lastAttributeName == "type" {
				end := s.pos - 1
				if end < offset+1 {
					end = offset + 1
				}
				me.lastTypeValue = s.source[offset+1 : end]
			}
			me.state = WithinTag
			me.hasSpaceAfterTag = false
			return me.finish(offset, AttributeValue, "")
		}
		me.state = WithinTag
		me.hasSpaceAfterTag = false
		return me.internalScan()

	case WithinScriptContent:
		// a script body ends at the first </script> that is not inside an
		// html comment containing a nested <script>
		scriptState := 1
	body:
		for !s.eos() {
			match := s.advanceIfRegexp(scriptBoundaryRe)
			if match == "" {
				s.goToEnd()
				return me.finish(offset, Script, "")
			}
			switch {
			case match == "<!--":
				if scriptState == 1 {
					scriptState = 2
				}
			case match == "-->":
				scriptState = 1
			case match[1] != '/':
				if scriptState == 2 {
					scriptState = 3
				}
			default:
				if scriptState == 3 {
					scriptState = 2
				} else {
					s.goBack(len(match))
					break body
				}
			}
		}
		me.state = WithinContent
		if offset < s.pos {
			return me.finish(offset, Script, "")
		}
		return me.internalScan()

	case WithinStyleContent:
		s.advanceUntilRegexp(styleEndRe)
		me.state = WithinContent
		if offset < s.pos {
			return me.finish(offset, Styles, "")
		}
		return me.internalScan()
	}

	s.advance(1)
	me.state = WithinContent
	return me.finish(offset, Unknown, errMsg)
}

// Tokens scans text to the end and returns every token before EOS.
func Tokens(text string) []Token {
	sc := NewScanner(text)
	var out []Token
	for kind := sc.Scan(); kind != EOS; kind = sc.Scan() {
		out = append(out, Token{
			Kind:   kind,
			Offset: sc.TokenOffset(),
			End:    sc.TokenEnd(),
			Text:   sc.TokenText(),
		})
	}
	return out
}
