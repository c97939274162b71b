// Package markup scans HTML-like markup into a flat stream of tokens.
//
// The token classification follows the HTML language service scanner used by
// editors: anything the markup grammar cannot place (for example the body of
// `<% ... %>`) is reported as an Unknown token instead of being folded into
// content, which is what lets callers find embedded-language regions.
package markup

// TokenKind classifies a scanned token.
type TokenKind int

const (
	StartCommentTag TokenKind = iota
	Comment
	EndCommentTag
	StartTagOpen
	StartTagClose
	StartTagSelfClose
	StartTag
	EndTagOpen
	EndTagClose
	EndTag
	DelimiterAssign
	AttributeName
	AttributeValue
	StartDoctypeTag
	Doctype
	EndDoctypeTag
	Content
	Whitespace
	// Unknown is text the markup grammar does not recognize as structure.
	Unknown
	Script
	Styles
	// EOS is returned once the source is exhausted, and on every scan after.
	EOS
)

var tokenKindNames = [...]string{
	StartCommentTag:   "StartCommentTag",
	Comment:           "Comment",
	EndCommentTag:     "EndCommentTag",
	StartTagOpen:      "StartTagOpen",
	StartTagClose:     "StartTagClose",
	StartTagSelfClose: "StartTagSelfClose",
	StartTag:          "StartTag",
	EndTagOpen:        "EndTagOpen",
	EndTagClose:       "EndTagClose",
	EndTag:            "EndTag",
	DelimiterAssign:   "DelimiterAssign",
	AttributeName:     "AttributeName",
	AttributeValue:    "AttributeValue",
	StartDoctypeTag:   "StartDoctypeTag",
	Doctype:           "Doctype",
	EndDoctypeTag:     "EndDoctypeTag",
	Content:           "Content",
	Whitespace:        "Whitespace",
	Unknown:           "Unknown",
	Script:            "Script",
	Styles:            "Styles",
	EOS:               "EOS",
}

func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(tokenKindNames) {
		return "TokenKind(?)"
	}
	return tokenKindNames[k]
}

// State is the scanner's position in the markup grammar.
type State int

const (
	WithinContent State = iota
	AfterOpeningStartTag
	AfterOpeningEndTag
	WithinDoctype
	WithinTag
	WithinEndTag
	WithinComment
	WithinScriptContent
	WithinStyleContent
	AfterAttributeName
	BeforeAttributeValue
)

var stateNames = [...]string{
	WithinContent:        "WithinContent",
	AfterOpeningStartTag: "AfterOpeningStartTag",
	AfterOpeningEndTag:   "AfterOpeningEndTag",
	WithinDoctype:        "WithinDoctype",
	WithinTag:            "WithinTag",
	WithinEndTag:         "WithinEndTag",
	WithinComment:        "WithinComment",
	WithinScriptContent:  "WithinScriptContent",
	WithinStyleContent:   "WithinStyleContent",
	AfterAttributeName:   "AfterAttributeName",
	BeforeAttributeValue: "BeforeAttributeValue",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}

// Token is a scanned token detached from its scanner.
type Token struct {
	Kind   TokenKind
	Offset int
	End    int
	Text   string
}
