package lookup

import (
	"context"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/bastiangx/fieldserve/pkg/vocab"
)

// StaticSource serves fixed vocabularies, most popular values first.
//
// A values file looks like:
//
//	[[values.env]]
//	value = "prod"
//	hits = 120
//
//	[[values.env]]
//	value = "dev"
//	hits = 12
type StaticSource struct {
	values map[string][]vocab.Entry
}

type staticFile struct {
	Values map[string][]vocab.Entry `toml:"values"`
}

// NewStaticSource copies values into a new source.
func NewStaticSource(values map[string][]vocab.Entry) *StaticSource {
	s := &StaticSource{values: make(map[string][]vocab.Entry, len(values))}
	for field, entries := range values {
		sorted := append([]vocab.Entry(nil), entries...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Hits > sorted[j].Hits
		})
		s.values[field] = sorted
	}
	return s
}

// LoadStaticFile reads a TOML values file.
func LoadStaticFile(path string) (*StaticSource, error) {
	var f staticFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("load values file %s: %w", path, err)
	}
	return NewStaticSource(f.Values), nil
}

// Fields lists the fields with a vocabulary, sorted by name.
func (s *StaticSource) Fields() []string {
	fields := make([]string, 0, len(s.values))
	for field := range s.values {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// FieldValues implements Source. The time range is ignored.
func (s *StaticSource) FieldValues(ctx context.Context, q Query) ([]vocab.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := s.values[q.Field]
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return append([]vocab.Entry(nil), entries...), nil
}
