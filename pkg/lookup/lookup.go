/*
Package lookup defines the remote "distinct values of a field" collaborator.

A Source answers one Query at a time:

	entries, err := src.FieldValues(ctx, lookup.Query{Field: "env", Limit: 50})

HTTPSource talks to a log search backend over HTTP, StaticSource serves
vocabularies loaded from a TOML file and is used by the debug CLI and tests.
*/
package lookup

import (
	"context"
	"time"

	"github.com/bastiangx/fieldserve/pkg/vocab"
)

// DefaultLimit is the number of values requested per field.
const DefaultLimit = 50

// isoLayout matches the millisecond UTC timestamps the search backend expects.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Query asks for the distinct values of Field. Empty StartTime or EndTime
// means the bound is open.
type Query struct {
	Field     string
	StartTime string
	EndTime   string
	Limit     int
}

// Source fetches the value vocabulary of a field.
type Source interface {
	FieldValues(ctx context.Context, q Query) ([]vocab.Entry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) ([]vocab.Entry, error)

// FieldValues calls f.
func (f SourceFunc) FieldValues(ctx context.Context, q Query) ([]vocab.Entry, error) {
	return f(ctx, q)
}

// TimeRange bounds a lookup. Zero times are open bounds.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// TimeRangeFunc returns the time window currently selected by the host.
type TimeRangeFunc func() TimeRange

// RangeFromMillis builds a TimeRange from unix millisecond bounds.
// Zero or missing bounds stay open.
func RangeFromMillis(bounds ...int64) TimeRange {
	var r TimeRange
	if len(bounds) > 0 && bounds[0] != 0 {
		r.Start = time.UnixMilli(bounds[0])
	}
	if len(bounds) > 1 && bounds[1] != 0 {
		r.End = time.UnixMilli(bounds[1])
	}
	return r
}

// IsZero reports whether both bounds are open.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Equal reports whether r and o describe the same window.
func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoLayout)
}

// NewQuery builds the Query for field over r. A limit below one falls back to
// DefaultLimit.
func NewQuery(field string, r TimeRange, limit int) Query {
	if limit < 1 {
		limit = DefaultLimit
	}
	return Query{
		Field:     field,
		StartTime: formatBound(r.Start),
		EndTime:   formatBound(r.End),
		Limit:     limit,
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx with an ID forwarded to the backend.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID set by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
