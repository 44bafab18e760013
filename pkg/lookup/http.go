package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/buger/jsonparser"

	"github.com/bastiangx/fieldserve/pkg/vocab"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 4 << 20

// HTTPSource fetches field values with a GET request:
//
//	GET <endpoint>?field=env&start_time=...&end_time=...&limit=50
//
// The body is expected to carry a "values" array, either at the top level or
// under "data". Each element is {"value": ..., "hits": n} or a bare string.
type HTTPSource struct {
	endpoint *url.URL
	http     *http.Client
	header   http.Header
}

// NewHTTPSource validates endpoint and creates a source with the given
// request timeout.
func NewHTTPSource(endpoint string, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	return &HTTPSource{
		endpoint: u,
		http:     &http.Client{Timeout: timeout},
		header:   make(http.Header),
	}, nil
}

// SetHeader adds a header sent with every request, e.g. an auth token.
func (s *HTTPSource) SetHeader(key, value string) {
	s.header.Set(key, value)
}

// FieldValues implements Source.
func (s *HTTPSource) FieldValues(ctx context.Context, q Query) ([]vocab.Entry, error) {
	u := *s.endpoint
	params := u.Query()
	params.Set("field", q.Field)
	params.Set("start_time", q.StartTime)
	params.Set("end_time", q.EndTime)
	params.Set("limit", strconv.Itoa(q.Limit))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if id := RequestID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Field: q.Field, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Field: q.Field, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{Field: q.Field, Err: err}
	}

	return ParseValues(q.Field, data)
}

// ParseValues extracts entries from a response body. A missing or null
// "values" array is an empty vocabulary, not an error.
func ParseValues(field string, data []byte) ([]vocab.Entry, error) {
	raw, dataType, _, err := jsonparser.Get(data, "values")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		raw, dataType, _, err = jsonparser.Get(data, "data", "values")
	}
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, &ParseError{Field: field, Err: err}
	}

	switch dataType {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Array:
	default:
		return nil, &ParseError{Field: field, Err: fmt.Errorf("values is %s, not an array", dataType)}
	}

	var entries []vocab.Entry
	_, err = jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		switch dataType {
		case jsonparser.String:
			if s, err := jsonparser.ParseString(value); err == nil {
				entries = append(entries, vocab.Entry{Value: s})
			}
		case jsonparser.Number, jsonparser.Boolean:
			entries = append(entries, vocab.Entry{Value: string(value)})
		case jsonparser.Object:
			if e, ok := parseEntry(value); ok {
				entries = append(entries, e)
			}
		}
	})
	if err != nil {
		return nil, &ParseError{Field: field, Err: err}
	}
	return entries, nil
}

// parseEntry reads {"value": ..., "hits": n}. Non-string scalar values are
// kept in their JSON spelling so numeric fields still complete.
func parseEntry(obj []byte) (vocab.Entry, bool) {
	raw, dataType, _, err := jsonparser.Get(obj, "value")
	if err != nil {
		return vocab.Entry{}, false
	}

	var e vocab.Entry
	switch dataType {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return vocab.Entry{}, false
		}
		e.Value = s
	case jsonparser.Number, jsonparser.Boolean:
		e.Value = string(raw)
	default:
		return vocab.Entry{}, false
	}

	if hits, err := jsonparser.GetInt(obj, "hits"); err == nil {
		e.Hits = int(hits)
	}
	return e, true
}
