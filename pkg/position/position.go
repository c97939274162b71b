package position

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Place is a zero-based LSP position. Character counts UTF-16 code units.
type Place struct {
	Line      int
	Character int
}

type Range struct {
	Start Place
	End   Place
}

// RawPosition is a run of text at a byte offset in a document.
type RawPosition struct {
	// Offset is the byte offset in the source text
	Offset int
	// Text is the actual text at this position
	Text string
}

func NewBasicPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

// ID returns a unique identifier for this position based on offset and text
func (p RawPosition) ID() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

func (p RawPosition) Length() int {
	return len(p.Text)
}

func (p RawPosition) GetEndPosition() RawPosition {
	return RawPosition{Offset: p.Offset + p.Length()}
}

// GetRange converts the position to an LSP range within doc.
func (p RawPosition) GetRange(doc *Document) Range {
	return doc.RangeOf(p.Offset, p.Offset+p.Length())
}

func (p RawPosition) String() string {
	return p.ID()
}

// Document indexes line starts so LSP places and byte offsets convert both
// ways. Lines end at "\n", "\r\n" or a lone "\r".
type Document struct {
	text       string
	lineStarts []int
}

func NewDocument(text string) *Document {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				continue
			}
			starts = append(starts, i+1)
		}
	}
	return &Document{text: text, lineStarts: starts}
}

func (d *Document) Text() string {
	return d.text
}

func (d *Document) LineCount() int {
	return len(d.lineStarts)
}

// lineEnd is the offset of the terminator that ends line, or len(text).
func (d *Document) lineEnd(line int) int {
	if line+1 >= len(d.lineStarts) {
		return len(d.text)
	}
	end := d.lineStarts[line+1] - 1
	if end > d.lineStarts[line] && d.text[end] == '\n' && d.text[end-1] == '\r' {
		end--
	}
	return end
}

// OffsetAt converts a place to a byte offset. Places past the end of a line
// clamp to the line end, lines past the end clamp to the end of text.
func (d *Document) OffsetAt(p Place) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(d.lineStarts) {
		return len(d.text)
	}
	start, end := d.lineStarts[p.Line], d.lineEnd(p.Line)
	units := 0
	for off := start; off < end; {
		if units >= p.Character {
			return off
		}
		r, size := utf8.DecodeRuneInString(d.text[off:end])
		units += runeUnits(r)
		off += size
	}
	return end
}

// PlaceAt converts a byte offset to a place. An offset inside a multi-byte
// rune maps to the start of that rune.
func (d *Document) PlaceAt(offset int) Place {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.text) {
		offset = len(d.text)
	}
	line := sort.Search(len(d.lineStarts), func(i int) bool {
		return d.lineStarts[i] > offset
	}) - 1
	start := d.lineStarts[line]
	units := 0
	for off := start; off < offset; {
		r, size := utf8.DecodeRuneInString(d.text[off:])
		if off+size > offset {
			break
		}
		units += runeUnits(r)
		off += size
	}
	return Place{Line: line, Character: units}
}

func (d *Document) RangeOf(start, end int) Range {
	return Range{Start: d.PlaceAt(start), End: d.PlaceAt(end)}
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// Translate maps a place in from to the place at the same byte offset in to.
// Both documents must have the same byte length, as projections do.
func Translate(from, to *Document, p Place) Place {
	return to.PlaceAt(from.OffsetAt(p))
}

func TranslateRange(from, to *Document, r Range) Range {
	return Range{Start: Translate(from, to, r.Start), End: Translate(from, to, r.End)}
}
