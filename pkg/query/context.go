package query

// Kind says whether a field name or a field value is being completed.
type Kind int

const (
	KindField Kind = iota
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// Context is the editing state at one cursor position.
type Context struct {
	Kind Kind
	// Prefix is the text already typed left of the cursor in the region
	// being completed.
	Prefix string
	// Field is the field name owning the value; empty for KindField.
	Field string
	// ReplaceStart and ReplaceEnd bound the span a selection overwrites.
	ReplaceStart int
	ReplaceEnd   int
	// HasExistingValue is true when characters already follow the colon.
	HasExistingValue bool
}

// Classify turns a tokenized segment into a Context.
func Classify(seg Segment) Context {
	pos := seg.PosInSegment()

	if seg.Colon == -1 {
		return Context{
			Kind:         KindField,
			Prefix:       seg.Text[:pos],
			ReplaceStart: seg.Start,
			ReplaceEnd:   seg.End,
		}
	}

	// The colon itself belongs to the field name and is never replaced.
	if pos <= seg.Colon {
		return Context{
			Kind:         KindField,
			Prefix:       seg.Text[:pos],
			ReplaceStart: seg.Start,
			ReplaceEnd:   seg.Start + seg.Colon,
		}
	}

	region := seg.Text[seg.Colon+1:]
	return Context{
		Kind:             KindValue,
		Prefix:           region[:pos-seg.Colon-1],
		Field:            seg.Text[:seg.Colon],
		ReplaceStart:     seg.Start + seg.Colon + 1,
		ReplaceEnd:       seg.End,
		HasExistingValue: len(region) > 0,
	}
}

// Parse tokenizes text at cursor and classifies the result.
func Parse(text string, cursor int) Context {
	return Classify(Tokenize(text, cursor))
}

// Idle reports whether nothing is being typed at the cursor.
func (c Context) Idle() bool {
	return c.Kind == KindField && c.Prefix == "" && c.ReplaceStart == c.ReplaceEnd
}

// Actionable reports whether the context can produce value suggestions,
// which requires the field to be a known one.
func (c Context) Actionable(fields FieldSet) bool {
	return c.Kind == KindValue && fields.Has(c.Field)
}
