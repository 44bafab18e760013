package engine

import (
	"github.com/bastiangx/fieldserve/pkg/query"
)

// Phase is the editing state of the segment under the cursor.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTypingField
	PhaseTypingValue
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTypingField:
		return "field"
	case PhaseTypingValue:
		return "value"
	}
	return "unknown"
}

// Suggestion is one candidate shown to the host.
type Suggestion struct {
	Label string
	Kind  query.Kind
	Hits  int
}

// State is everything a host needs to render the suggestion list.
type State struct {
	Text    string
	Cursor  int
	Context query.Context
	Phase   Phase

	Suggestions []Suggestion
	// Open is true while the list should be shown, including while a
	// vocabulary is loading and when nothing matched.
	Open bool
	// Loading is true while the vocabulary of the field being typed is fetched.
	Loading bool
	// NoMatch is true when the field has values but none match the prefix.
	NoMatch bool
	// Version grows with every state change. A state with a lower version
	// than one already rendered is outdated.
	Version uint64
}

// Labels returns the suggestion labels in display order.
func (s State) Labels() []string {
	out := make([]string, len(s.Suggestions))
	for i, sg := range s.Suggestions {
		out[i] = sg.Label
	}
	return out
}

func (s *State) close() {
	s.Suggestions = nil
	s.Open = false
	s.Loading = false
	s.NoMatch = false
	s.Phase = PhaseIdle
}

func phaseOf(ctx query.Context) Phase {
	switch {
	case ctx.Idle():
		return PhaseIdle
	case ctx.Kind == query.KindValue:
		return PhaseTypingValue
	default:
		return PhaseTypingField
	}
}
