// Package vocab holds per-field value vocabularies and the epoch scoped cache
// that keeps them between keystrokes.
package vocab

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Entry is one known value of a field with its popularity count.
type Entry struct {
	Value string `msgpack:"v" toml:"value"`
	Hits  int    `msgpack:"h" toml:"hits"`
}

// Vocabulary is an immutable, deduplicated list of entries for one field.
// Entries keep the order they arrived in; a lowercase patricia trie indexes
// them for prefix lookups.
type Vocabulary struct {
	entries []Entry
	index   *patricia.Trie
}

// New builds a Vocabulary. The first occurrence of a value wins, empty values
// are skipped and negative hit counts are clamped to zero.
func New(entries []Entry) *Vocabulary {
	v := &Vocabulary{
		entries: make([]Entry, 0, len(entries)),
		index:   patricia.NewTrie(),
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Value == "" {
			continue
		}
		if _, dup := seen[e.Value]; dup {
			continue
		}
		seen[e.Value] = struct{}{}
		if e.Hits < 0 {
			e.Hits = 0
		}

		pos := len(v.entries)
		v.entries = append(v.entries, e)

		// Values differing only in case share one key.
		key := patricia.Prefix(strings.ToLower(e.Value))
		if item := v.index.Get(key); item != nil {
			v.index.Set(key, append(item.([]int), pos))
		} else {
			v.index.Insert(key, []int{pos})
		}
	}
	return v
}

// Entries returns the deduplicated entries. Callers must not modify them.
func (v *Vocabulary) Entries() []Entry {
	if v == nil {
		return nil
	}
	return v.entries
}

// Len returns the number of distinct values.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// Empty reports whether the field has no known values.
func (v *Vocabulary) Empty() bool {
	return v.Len() == 0
}

// VisitPrefix calls fn with the position of every entry whose lowercase
// value starts with lowerPrefix.
func (v *Vocabulary) VisitPrefix(lowerPrefix string, fn func(pos int)) {
	if v == nil {
		return
	}
	err := v.index.VisitSubtree(patricia.Prefix(lowerPrefix), func(_ patricia.Prefix, item patricia.Item) error {
		for _, pos := range item.([]int) {
			fn(pos)
		}
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting vocabulary index: %v", err)
	}
}
