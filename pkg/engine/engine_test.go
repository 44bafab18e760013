package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bastiangx/fieldserve/pkg/config"
	"github.com/bastiangx/fieldserve/pkg/lookup"
	"github.com/bastiangx/fieldserve/pkg/query"
	"github.com/bastiangx/fieldserve/pkg/vocab"
)

const testDebounce = 5 * time.Millisecond

type countingSource struct {
	lookup.Source
	calls atomic.Int32
}

func (c *countingSource) FieldValues(ctx context.Context, q lookup.Query) ([]vocab.Entry, error) {
	c.calls.Add(1)
	return c.Source.FieldValues(ctx, q)
}

func newSource() *countingSource {
	return &countingSource{Source: lookup.NewStaticSource(map[string][]vocab.Entry{
		"env": {
			{Value: "prod-1", Hits: 5},
			{Value: "prod-10", Hits: 9},
			{Value: "dev-1", Hits: 1},
		},
		"region": {
			{Value: "us-east", Hits: 3},
			{Value: "/var/log", Hits: 1},
		},
	})}
}

func newTestEngine(t *testing.T, src lookup.Source, mod func(*Options)) (*Engine, chan State) {
	t.Helper()
	updates := make(chan State, 16)
	opts := Options{
		Fields:        []string{"env", "host", "hostname", "region", "trace"},
		BuiltinFields: []string{"_time", "_msg"},
		Source:        src,
		Debounce:      testDebounce,
		Timeout:       time.Second,
		MinPrefix:     1,
		OnUpdate: func(st State) {
			select {
			case updates <- st:
			default:
			}
		},
	}
	if mod != nil {
		mod(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, updates
}

func waitUpdate(t *testing.T, updates chan State) State {
	t.Helper()
	select {
	case st := <-updates:
		return st
	case <-time.After(time.Second):
		t.Fatal("no update from engine")
		return State{}
	}
}

func warm(t *testing.T, e *Engine, field string) {
	t.Helper()
	_, err := e.Vocabulary(context.Background(), field)
	require.NoError(t, err)
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestEngine_FieldSuggestions(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)

	st := e.Update("ho", 2)
	require.Equal(t, PhaseTypingField, st.Phase)
	require.True(t, st.Open)
	require.Equal(t, []string{"host", "hostname"}, st.Labels())
	require.Equal(t, query.KindField, st.Suggestions[0].Kind)

	st = e.Update("_", 1)
	require.Equal(t, []string{"_time", "_msg"}, st.Labels())

	st = e.Update("host ", 5)
	require.Equal(t, PhaseIdle, st.Phase)
	require.False(t, st.Open)
	require.Empty(t, st.Suggestions)

	st = e.Update("", 0)
	require.Equal(t, PhaseIdle, st.Phase)
	require.False(t, st.Open)
}

func TestEngine_FieldNeedsPrefix(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)

	st := e.Update("env", 0)
	require.Equal(t, PhaseTypingField, st.Phase)
	require.Equal(t, "", st.Context.Prefix)
	require.False(t, st.Open)
}

func TestEngine_MaxSuggestions(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), func(o *Options) {
		o.MaxSuggestions = 1
	})

	st := e.Update("ho", 2)
	require.Equal(t, []string{"host"}, st.Labels())
}

func TestEngine_ValueLoadsThenUpdates(t *testing.T) {
	src := newSource()
	e, updates := newTestEngine(t, src, nil)

	st := e.Update("env:prod", 8)
	require.Equal(t, PhaseTypingValue, st.Phase)
	require.True(t, st.Loading)
	require.True(t, st.Open)
	require.Empty(t, st.Suggestions)

	st = waitUpdate(t, updates)
	require.False(t, st.Loading)
	require.Equal(t, []string{"prod-10", "prod-1"}, st.Labels())
	require.Equal(t, 9, st.Suggestions[0].Hits)

	st = e.Update("env:", 4)
	require.False(t, st.Loading)
	require.Equal(t, []string{"prod-10", "prod-1", "dev-1"}, st.Labels())
	require.Equal(t, int32(1), src.calls.Load())
}

func TestEngine_KeystrokeBurstFetchesOnce(t *testing.T) {
	src := newSource()
	e, updates := newTestEngine(t, src, func(o *Options) {
		o.Debounce = 30 * time.Millisecond
	})

	text := "env:"
	for _, r := range "prod" {
		text += string(r)
		e.OnTextChange(text)
	}

	st := waitUpdate(t, updates)
	require.Equal(t, "env:prod", st.Text)
	require.Equal(t, []string{"prod-10", "prod-1"}, st.Labels())

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, updates)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestEngine_UnknownFieldNoLookup(t *testing.T) {
	src := newSource()
	e, _ := newTestEngine(t, src, nil)

	st := e.Update("nope:x", 6)
	require.Equal(t, PhaseTypingValue, st.Phase)
	require.False(t, st.Open)
	require.False(t, st.Loading)

	// Field names match case-sensitively.
	st = e.Update("ENV:x", 5)
	require.False(t, st.Loading)

	time.Sleep(4 * testDebounce)
	require.Equal(t, int32(0), src.calls.Load())

	_, err := e.Vocabulary(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestEngine_NoMatch(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)
	warm(t, e, "env")

	st := e.Update("env:zzz", 7)
	require.True(t, st.NoMatch)
	require.True(t, st.Open)
	require.Empty(t, st.Suggestions)
}

func TestEngine_EmptyVocabularyIsNotRetried(t *testing.T) {
	src := newSource()
	e, _ := newTestEngine(t, src, nil)
	warm(t, e, "trace")

	for i := 0; i < 3; i++ {
		st := e.Update("trace:", 6)
		require.False(t, st.Loading)
		require.False(t, st.Open)
		require.False(t, st.NoMatch)
	}
	time.Sleep(4 * testDebounce)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestEngine_FailedLookupShowsNothing(t *testing.T) {
	src := &countingSource{Source: lookup.SourceFunc(func(context.Context, lookup.Query) ([]vocab.Entry, error) {
		return nil, &lookup.HTTPError{Field: "env", StatusCode: 500}
	})}
	e, updates := newTestEngine(t, src, nil)

	st := e.Update("env:", 4)
	require.True(t, st.Loading)

	st = waitUpdate(t, updates)
	require.False(t, st.Loading)
	require.False(t, st.Open)

	e.Update("env:p", 5)
	time.Sleep(4 * testDebounce)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestEngine_SelectFieldWarmsValues(t *testing.T) {
	src := newSource()
	e, updates := newTestEngine(t, src, nil)

	e.Update("en", 2)
	text, cursor := e.OnSelect("env")
	require.Equal(t, "env:", text)
	require.Equal(t, 4, cursor)

	st := e.State()
	require.Equal(t, PhaseTypingValue, st.Phase)
	require.Equal(t, "env", st.Context.Field)
	require.False(t, st.Context.HasExistingValue)
	require.True(t, st.Loading)

	st = waitUpdate(t, updates)
	require.Equal(t, []string{"prod-10", "prod-1", "dev-1"}, st.Labels())
	require.Equal(t, int32(1), src.calls.Load())
}

func TestEngine_SelectValue(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)
	warm(t, e, "region")

	st := e.Update("env:", 4)
	require.Equal(t, 4, st.Context.ReplaceStart)
	require.Equal(t, 4, st.Context.ReplaceEnd)

	text, cursor := e.OnSelect("us-east")
	require.Equal(t, "env:us-east", text)
	require.Equal(t, 11, cursor)

	st = e.State()
	require.Equal(t, PhaseIdle, st.Phase)
	require.False(t, st.Open)
	require.Empty(t, st.Suggestions)
}

func TestEngine_SelectValueReplacesExisting(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)
	warm(t, e, "env")

	e.Update("env:pro level:error", 6)
	text, cursor := e.OnSelect("prod-10")
	require.Equal(t, "env:prod-10 level:error", text)
	require.Equal(t, 11, cursor)
}

func TestEngine_EscapeValues(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), func(o *Options) {
		o.EscapeValues = true
	})
	warm(t, e, "region")

	e.Update("region:", 7)
	text, cursor := e.OnSelect("/var/log")
	require.Equal(t, `region:\/var\/log`, text)
	require.Equal(t, len(text), cursor)
}

func TestEngine_OnSubmitIgnoresSuggestions(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)

	st := e.Update("ho", 2)
	require.True(t, st.Open)

	require.Equal(t, "ho", e.OnSubmit())
	require.False(t, e.State().Open)
	require.Equal(t, "ho", e.State().Text)
}

func TestEngine_TextAndCursorChanges(t *testing.T) {
	e, _ := newTestEngine(t, newSource(), nil)

	st := e.OnTextChange("host:web-01 env")
	require.Equal(t, 15, st.Cursor)
	require.Equal(t, query.KindField, st.Context.Kind)
	require.Equal(t, "env", st.Context.Prefix)
	require.Equal(t, 12, st.Context.ReplaceStart)
	require.Equal(t, 15, st.Context.ReplaceEnd)

	st = e.OnCursorChange(3)
	require.Equal(t, "hos", st.Context.Prefix)
	require.Equal(t, []string{"host", "hostname"}, st.Labels())

	// Cursor not at the end keeps its offset.
	st = e.OnTextChange("xhost:web-01 env")
	require.Equal(t, 3, st.Cursor)

	st = e.OnCursorChange(100)
	require.Equal(t, 16, st.Cursor)
}

func TestEngine_SetFieldsStartsNewContext(t *testing.T) {
	src := newSource()
	e, _ := newTestEngine(t, src, nil)
	warm(t, e, "env")
	require.Equal(t, 1, e.Stats()["cachedFields"])

	st := e.SetFields([]string{"service", "env"})
	require.Equal(t, []string{"_time", "_msg", "service", "env"}, e.Fields())
	require.Equal(t, 0, e.Stats()["cachedFields"])
	require.False(t, st.Open)

	st = e.Update("host:", 5)
	require.False(t, st.Loading)

	warm(t, e, "env")
	require.Equal(t, int32(2), src.calls.Load())
}

func TestEngine_InvalidateVocabularyRefetches(t *testing.T) {
	src := newSource()
	e, updates := newTestEngine(t, src, nil)
	warm(t, e, "env")

	e.Update("env:", 4)
	st := e.InvalidateVocabulary()
	require.True(t, st.Loading)

	st = waitUpdate(t, updates)
	require.False(t, st.Loading)
	require.Len(t, st.Suggestions, 3)
	require.Equal(t, int32(2), src.calls.Load())
}

// gatedSource holds its first lookup until release is closed.
func gatedSource() (lookup.Source, *atomic.Int32, chan struct{}, chan struct{}) {
	static := newSource()
	started := make(chan struct{})
	release := make(chan struct{})
	calls := &atomic.Int32{}
	src := lookup.SourceFunc(func(ctx context.Context, q lookup.Query) ([]vocab.Entry, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return static.FieldValues(ctx, q)
	})
	return src, calls, started, release
}

func TestEngine_IdleRangeChangeDoesNotRefetch(t *testing.T) {
	src, calls, started, release := gatedSource()
	e, updates := newTestEngine(t, src, nil)

	require.True(t, e.Update("env:p", 5).Loading)
	<-started

	st := e.Update("env:p ", 6)
	require.Equal(t, PhaseIdle, st.Phase)
	e.InvalidateVocabulary()
	close(release)

	require.Eventually(t, func() bool {
		return e.Stats()["staleLookups"] == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(6 * testDebounce)
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, updates)
}

func TestEngine_StaleResultRefetchedWhileLoading(t *testing.T) {
	src, calls, started, release := gatedSource()
	e, updates := newTestEngine(t, src, nil)

	require.True(t, e.Update("env:p", 5).Loading)
	<-started

	// The epoch moves without the engine re-evaluating, so the lookup in
	// flight is not superseded and its result arrives stale.
	e.cache.Advance()
	close(release)

	st := waitUpdate(t, updates)
	require.False(t, st.Loading)
	require.Equal(t, []string{"prod-10", "prod-1"}, st.Labels())
	require.Equal(t, int32(2), calls.Load())
}

func TestEngine_VocabularySurvivesTypingElsewhere(t *testing.T) {
	src := newSource()
	e, _ := newTestEngine(t, src, func(o *Options) {
		o.Debounce = 30 * time.Millisecond
	})

	type result struct {
		v   *vocab.Vocabulary
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := e.Vocabulary(context.Background(), "region")
		done <- result{v, err}
	}()
	require.Eventually(t, func() bool {
		return e.Stats()["pendingLookups"] == 1
	}, time.Second, time.Millisecond)

	e.Update("env:p", 5)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, 2, r.v.Len())
	case <-time.After(time.Second):
		t.Fatal("Vocabulary did not return")
	}
}

func TestEngine_VersionGrows(t *testing.T) {
	src := newSource()
	e, updates := newTestEngine(t, src, nil)

	loading := e.Update("env:", 4)
	require.True(t, loading.Loading)

	loaded := waitUpdate(t, updates)
	require.Greater(t, loaded.Version, loading.Version)
	require.Equal(t, loaded.Version, e.State().Version)

	e.OnSubmit()
	require.Greater(t, e.State().Version, loaded.Version)
}

func TestEngine_CloseStopsUpdates(t *testing.T) {
	src := newSource()
	e, updates := newTestEngine(t, src, nil)

	st := e.Update("env:", 4)
	require.True(t, st.Loading)
	e.Close()

	time.Sleep(6 * testDebounce)
	require.Empty(t, updates)
	require.Equal(t, int32(0), src.calls.Load())

	_, err := e.Vocabulary(context.Background(), "env")
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.DebounceMs = 120
	cfg.Lookup.FailureTTLMs = 1500

	opts := OptionsFromConfig(cfg, newSource(), []string{"env"})
	require.Equal(t, 120*time.Millisecond, opts.Debounce)
	require.Equal(t, 1500*time.Millisecond, opts.FailureTTL)
	require.Equal(t, 5*time.Second, opts.Timeout)
	require.Equal(t, []string{"_time", "_msg"}, opts.BuiltinFields)
	require.Equal(t, 50, opts.MaxSuggestions)
	require.Equal(t, 1, opts.MinPrefix)
}
