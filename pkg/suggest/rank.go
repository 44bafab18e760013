package suggest

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bastiangx/fieldserve/pkg/vocab"
)

type candidate struct {
	entry      vocab.Entry
	startsWith bool
	length     int
}

// Values filters v by prefix and ranks the matches. An entry matches when
// prefix is empty or its value contains prefix, ignoring case. A value with a
// word starting with prefix also contains it, so no separate check is needed.
//
// Matches are ordered by:
//  1. values starting with prefix first
//  2. higher hits first
//  3. shorter values first
//
// Remaining ties keep vocabulary order. limit <= 0 returns every match.
func Values(v *vocab.Vocabulary, prefix string, limit int) ([]vocab.Entry, Status) {
	if v.Empty() {
		return nil, StatusEmpty
	}

	entries := v.Entries()
	lower := strings.ToLower(prefix)

	starts := make(map[int]bool)
	if lower == "" {
		for pos := range entries {
			starts[pos] = true
		}
	} else {
		v.VisitPrefix(lower, func(pos int) {
			starts[pos] = true
		})
	}

	candidates := make([]candidate, 0, len(starts))
	for pos, e := range entries {
		ok := starts[pos]
		if !ok && !strings.Contains(strings.ToLower(e.Value), lower) {
			continue
		}
		candidates = append(candidates, candidate{
			entry:      e,
			startsWith: ok,
			length:     utf8.RuneCountInString(e.Value),
		})
	}
	if len(candidates) == 0 {
		return nil, StatusNoMatch
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.startsWith != b.startsWith {
			return a.startsWith
		}
		if a.entry.Hits != b.entry.Hits {
			return a.entry.Hits > b.entry.Hits
		}
		return a.length < b.length
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]vocab.Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, StatusOK
}
