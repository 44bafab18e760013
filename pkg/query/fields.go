package query

// FieldSet is the static list of field names accepted in a search context.
// Lookups are exact and case-sensitive.
type FieldSet struct {
	names []string
	index map[string]struct{}
}

// NewFieldSet builds a FieldSet from one or more name lists. Earlier lists
// win on ordering, empty names and duplicates are dropped.
func NewFieldSet(groups ...[]string) FieldSet {
	names := MergeFields(groups...)
	index := make(map[string]struct{}, len(names))
	for _, name := range names {
		index[name] = struct{}{}
	}
	return FieldSet{names: names, index: index}
}

// MergeFields concatenates name lists keeping the first occurrence of each name.
func MergeFields(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, group := range groups {
		for _, name := range group {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			merged = append(merged, name)
		}
	}
	return merged
}

// Has reports whether name is a known field.
func (s FieldSet) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns the fields in caller order.
func (s FieldSet) Names() []string {
	return s.names
}

// Len returns the number of fields.
func (s FieldSet) Len() int {
	return len(s.names)
}
