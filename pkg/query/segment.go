/*
Package query works out what a user is typing inside a `field:value` search box.

The search text is a list of whitespace separated segments. Each segment is
either a bare field name being typed, or a field name followed by a colon and
a value:

	host:web-01 env:prod level

Every keystroke or cursor move is reduced to a Context: which segment sits under
the cursor, whether a field name or a value is being edited, and the byte span
a chosen completion would overwrite.

	ctx := query.Parse("host:web-01 env", 15)
	// ctx.Kind == query.KindField, ctx.Prefix == "env", span [12, 15)

Apply splices a chosen candidate back into the text using that span. All
offsets are byte offsets into the UTF-8 text and every function here is total:
out of range cursors are clamped, never rejected.
*/
package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is the whitespace delimited slice of the text that holds the cursor.
type Segment struct {
	Text   string
	Start  int
	End    int
	Cursor int
	// Colon is the index of the first ':' inside Text, or -1.
	Colon int
}

// PosInSegment returns the cursor offset relative to Start.
func (s Segment) PosInSegment() int {
	return s.Cursor - s.Start
}

// Empty reports whether the cursor sits on no characters at all, e.g. right
// after a trailing space.
func (s Segment) Empty() bool {
	return s.Start == s.End
}

// ClampCursor pulls cursor into [0, len(text)] and back onto a rune boundary.
func ClampCursor(text string, cursor int) int {
	if cursor < 0 {
		return 0
	}
	if cursor > len(text) {
		return len(text)
	}
	for cursor > 0 && cursor < len(text) && !utf8.RuneStart(text[cursor]) {
		cursor--
	}
	return cursor
}

// Tokenize isolates the segment under cursor.
func Tokenize(text string, cursor int) Segment {
	cursor = ClampCursor(text, cursor)

	start := 0
	for i := cursor; i > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if unicode.IsSpace(r) {
			start = i
			break
		}
		i -= size
	}

	end := len(text)
	for i := cursor; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			end = i
			break
		}
		i += size
	}

	seg := text[start:end]
	return Segment{
		Text:   seg,
		Start:  start,
		End:    end,
		Cursor: cursor,
		Colon:  strings.IndexByte(seg, ':'),
	}
}
