package query

import "strings"

// Apply splices candidate into text over the span described by ctx and returns
// the new text and cursor.
//
// Field candidates get a trailing ':' unless one already follows the span.
// Value candidates are inserted as is.
func Apply(text string, ctx Context, candidate string) (string, int) {
	start := clampOffset(ctx.ReplaceStart, len(text))
	end := clampOffset(ctx.ReplaceEnd, len(text))
	if end < start {
		end = start
	}

	before, after := text[:start], text[end:]

	if ctx.Kind == KindField {
		suffix := ""
		if !strings.HasPrefix(after, ":") {
			suffix = ":"
		}
		return before + candidate + suffix + after, start + len(candidate) + len(suffix)
	}

	return before + candidate + after, start + len(candidate)
}

// EscapeValue escapes forward slashes so a value survives query engines that
// treat '/' as a regex delimiter.
func EscapeValue(value string) string {
	return strings.ReplaceAll(value, "/", `\/`)
}

func clampOffset(off, n int) int {
	if off < 0 {
		return 0
	}
	if off > n {
		return n
	}
	return off
}
