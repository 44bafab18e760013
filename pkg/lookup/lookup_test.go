package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/fieldserve/pkg/vocab"
)

func TestNewQuery(t *testing.T) {
	r := TimeRange{
		Start: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC),
	}
	q := NewQuery("env", r, 0)

	require.Equal(t, "env", q.Field)
	require.Equal(t, "2025-03-01T08:30:00.000Z", q.StartTime)
	require.Equal(t, "", q.EndTime)
	require.Equal(t, DefaultLimit, q.Limit)
}

func TestRangeFromMillis(t *testing.T) {
	require.True(t, RangeFromMillis().IsZero())
	require.True(t, RangeFromMillis(0, 0).IsZero())

	r := RangeFromMillis(1700000000000, 1700000600000)
	require.False(t, r.IsZero())
	require.Equal(t, int64(1700000000000), r.Start.UnixMilli())
	require.True(t, r.Equal(RangeFromMillis(1700000000000, 1700000600000)))
	require.False(t, r.Equal(RangeFromMillis(1700000000000)))
}

func TestParseValues(t *testing.T) {
	testCases := []struct {
		body string
		want []vocab.Entry
		desc string
	}{
		{`{"values":[{"value":"prod","hits":5},{"value":"dev","hits":1}]}`,
			[]vocab.Entry{{Value: "prod", Hits: 5}, {Value: "dev", Hits: 1}}, "top level"},
		{`{"result":true,"data":{"values":[{"value":"a","hits":2}]}}`,
			[]vocab.Entry{{Value: "a", Hits: 2}}, "wrapped in data"},
		{`{"values":["x","y"]}`,
			[]vocab.Entry{{Value: "x"}, {Value: "y"}}, "bare strings"},
		{`{"values":[{"value":200,"hits":7},{"value":true}]}`,
			[]vocab.Entry{{Value: "200", Hits: 7}, {Value: "true"}}, "scalar values"},
		{`{"values":[{"hits":3},{"value":null},{"value":"ok"}]}`,
			[]vocab.Entry{{Value: "ok"}}, "entries without value skipped"},
		{`{"values":null}`, nil, "null values"},
		{`{}`, nil, "absent values"},
		{`{"values":[]}`, nil, "empty values"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParseValues("f", []byte(tc.body))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseValues_NotAnArray(t *testing.T) {
	_, err := ParseValues("env", []byte(`{"values":"nope"}`))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "env", perr.Field)
}

func TestHTTPSource_FieldValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "env", r.URL.Query().Get("field"))
		assert.Equal(t, "2025-03-01T08:30:00.000Z", r.URL.Query().Get("start_time"))
		assert.Equal(t, "", r.URL.Query().Get("end_time"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "tenant-a", r.URL.Query().Get("tenant"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"values":[{"value":"prod","hits":12}]}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL+"/api/v1/field_values?tenant=tenant-a", time.Second)
	require.NoError(t, err)
	src.SetHeader("Authorization", "Bearer t")

	q := NewQuery("env", TimeRange{Start: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)}, 50)
	entries, err := src.FieldValues(WithRequestID(context.Background(), "req-1"), q)
	require.NoError(t, err)
	require.Equal(t, []vocab.Entry{{Value: "prod", Hits: 12}}, entries)
}

func TestHTTPSource_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = src.FieldValues(context.Background(), NewQuery("env", TimeRange{}, 10))
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, http.StatusBadGateway, herr.StatusCode)
}

func TestHTTPSource_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	src, err := NewHTTPSource(url, time.Second)
	require.NoError(t, err)

	_, err = src.FieldValues(context.Background(), NewQuery("env", TimeRange{}, 10))
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
}

func TestHTTPSource_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.FieldValues(ctx, NewQuery("env", TimeRange{}, 10))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewHTTPSource_RejectsBadEndpoint(t *testing.T) {
	_, err := NewHTTPSource("ftp://example.com", time.Second)
	require.Error(t, err)
	_, err = NewHTTPSource("://bad", time.Second)
	require.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.toml")
	data := `
[[values.env]]
value = "dev"
hits = 2

[[values.env]]
value = "prod"
hits = 9

[[values.host]]
value = "web-01"
hits = 1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	src, err := LoadStaticFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"env", "host"}, src.Fields())

	entries, err := src.FieldValues(context.Background(), Query{Field: "env", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []vocab.Entry{{Value: "prod", Hits: 9}}, entries)

	entries, err = src.FieldValues(context.Background(), Query{Field: "missing", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, entries)
}
