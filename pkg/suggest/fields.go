// Package suggest filters and orders completion candidates for the text typed
// so far: field names from the static field list and values from a field's
// vocabulary.
package suggest

import (
	"github.com/bastiangx/fieldserve/internal/utils"
)

// Status tells an empty result apart from a missing vocabulary.
type Status int

const (
	// StatusOK means at least one candidate matched.
	StatusOK Status = iota
	// StatusNoMatch means the vocabulary has values but none match the prefix.
	StatusNoMatch
	// StatusEmpty means there is no vocabulary to rank.
	StatusEmpty
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoMatch:
		return "no-match"
	case StatusEmpty:
		return "empty"
	}
	return "unknown"
}

// Fields returns the field names containing prefix, ignoring case, in the
// order they were supplied. Nothing is suggested until prefix has at least
// minPrefix bytes.
func Fields(fields []string, prefix string, minPrefix int) []string {
	if len(prefix) < minPrefix {
		return nil
	}
	var out []string
	for _, f := range fields {
		if prefix == "" || utils.ContainsFold(f, prefix) {
			out = append(out, f)
		}
	}
	return out
}
