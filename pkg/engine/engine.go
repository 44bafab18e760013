/*
Package engine drives inline completion for a `field:value` search box.

A host reports every text change and cursor move; the engine answers with a
State holding the suggestions to render. Field names are completed from a
static list. Values are completed from per-field vocabularies fetched in the
background; when one arrives the engine recomputes the state and hands it to
the OnUpdate hook.

	eng, err := engine.New(engine.Options{
		Fields:   []string{"env", "host"},
		Source:   src,
		OnUpdate: func(st engine.State) { render(st) },
	})
	st := eng.Update("env:pr", 6)
	text, cursor := eng.OnSelect("prod")
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/fieldserve/internal/logger"
	"github.com/bastiangx/fieldserve/pkg/fetch"
	"github.com/bastiangx/fieldserve/pkg/lookup"
	"github.com/bastiangx/fieldserve/pkg/query"
	"github.com/bastiangx/fieldserve/pkg/suggest"
	"github.com/bastiangx/fieldserve/pkg/vocab"
)

// DefaultMaxSuggestions caps the suggestion list when Options leave it unset.
const DefaultMaxSuggestions = 50

// ErrUnknownField is returned when a vocabulary is asked for a field outside
// the field list.
var ErrUnknownField = errors.New("unknown field")

// Options configures an Engine.
type Options struct {
	// Fields are the valid field names of the current search context.
	Fields []string
	// BuiltinFields are always valid and listed before Fields.
	BuiltinFields []string

	Source    lookup.Source
	TimeRange lookup.TimeRangeFunc

	Debounce      time.Duration
	Limit         int
	Timeout       time.Duration
	FailureTTL    time.Duration
	VocabularyTTL time.Duration

	MaxSuggestions int
	// MinPrefix is the number of bytes of a field name typed before field
	// suggestions open.
	MinPrefix    int
	EscapeValues bool

	// OnUpdate receives the new state when a background fetch changed it.
	OnUpdate func(State)
}

type action struct {
	// cancel drops debounced fetches for every field but keep.
	cancel bool
	keep   string
	// request warms the vocabulary of a field.
	request string
}

// Engine is the completion state of one search input. It is safe for
// concurrent use.
type Engine struct {
	cache   *vocab.Cache
	fetcher *fetch.Fetcher
	logger  *log.Logger

	builtin        []string
	maxSuggestions int
	minPrefix      int
	escape         bool

	mu       sync.Mutex
	fields   query.FieldSet
	onUpdate func(State)
	text     string
	cursor   int
	state    State
	version  uint64
	awaiting map[string]bool
	closed   bool
}

// New creates an Engine. Source is required.
func New(opts Options) (*Engine, error) {
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = DefaultMaxSuggestions
	}
	if opts.MinPrefix < 0 {
		opts.MinPrefix = 0
	}

	cache := vocab.NewCache(opts.VocabularyTTL)
	fetcher, err := fetch.New(fetch.Options{
		Source:        opts.Source,
		Cache:         cache,
		TimeRange:     opts.TimeRange,
		Debounce:      opts.Debounce,
		Limit:         opts.Limit,
		Timeout:       opts.Timeout,
		FailureTTL:    opts.FailureTTL,
		VocabularyTTL: opts.VocabularyTTL,
		Logger:        logger.New("fetch"),
	})
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	e := &Engine{
		cache:          cache,
		fetcher:        fetcher,
		logger:         logger.New("engine"),
		builtin:        append([]string(nil), opts.BuiltinFields...),
		maxSuggestions: opts.MaxSuggestions,
		minPrefix:      opts.MinPrefix,
		escape:         opts.EscapeValues,
		fields:         query.NewFieldSet(opts.BuiltinFields, opts.Fields),
		onUpdate:       opts.OnUpdate,
		awaiting:       make(map[string]bool),
	}
	st, _ := e.evaluate("", 0)
	e.commit(st)
	return e, nil
}

// SetOnUpdate replaces the background update hook.
func (e *Engine) SetOnUpdate(fn func(State)) {
	e.mu.Lock()
	e.onUpdate = fn
	e.mu.Unlock()
}

// evaluate computes the state for text and cursor. Caller holds e.mu.
func (e *Engine) evaluate(text string, cursor int) (State, action) {
	cursor = query.ClampCursor(text, cursor)
	ctx := query.Parse(text, cursor)
	st := State{
		Text:    text,
		Cursor:  cursor,
		Context: ctx,
		Phase:   phaseOf(ctx),
	}

	switch st.Phase {
	case PhaseIdle:
		return st, action{cancel: true}
	case PhaseTypingField:
		for _, name := range suggest.Fields(e.fields.Names(), ctx.Prefix, e.minPrefix) {
			if len(st.Suggestions) == e.maxSuggestions {
				break
			}
			st.Suggestions = append(st.Suggestions, Suggestion{Label: name, Kind: query.KindField})
		}
		st.Open = len(st.Suggestions) > 0
		return st, action{cancel: true}
	}

	// Unknown fields never trigger a lookup.
	if !ctx.Actionable(e.fields) {
		return st, action{cancel: true}
	}

	act := action{cancel: true, keep: ctx.Field}
	v, ok := e.cache.Lookup(ctx.Field)
	if !ok {
		st.Loading = true
		st.Open = true
		act.request = ctx.Field
		return st, act
	}

	entries, status := suggest.Values(v, ctx.Prefix, e.maxSuggestions)
	for _, entry := range entries {
		st.Suggestions = append(st.Suggestions, Suggestion{
			Label: entry.Value,
			Kind:  query.KindValue,
			Hits:  entry.Hits,
		})
	}
	st.NoMatch = status == suggest.StatusNoMatch
	st.Open = len(st.Suggestions) > 0 || st.NoMatch
	return st, act
}

// commit stamps st with the next version and stores it as the current
// state. Caller holds e.mu.
func (e *Engine) commit(st State) State {
	e.version++
	st.Version = e.version
	e.text = st.Text
	e.cursor = st.Cursor
	e.state = st
	return st
}

// loadingFor reports whether the current state waits on field's vocabulary.
// Caller holds e.mu.
func (e *Engine) loadingFor(field string) bool {
	ctx := e.state.Context
	return !e.closed && e.state.Loading && ctx.Kind == query.KindValue && ctx.Field == field
}

// run carries out the fetch side of an evaluation. Must be called without
// e.mu held: a cached vocabulary calls back synchronously.
func (e *Engine) run(act action) {
	if act.cancel {
		e.fetcher.CancelPending(act.keep)
	}
	if act.request == "" {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	// One callback per field is enough; later keystrokes only restart the
	// debounce.
	var done fetch.Callback
	if !e.awaiting[act.request] {
		e.awaiting[act.request] = true
		done = e.fetched
	}
	e.mu.Unlock()

	if err := e.fetcher.Request(act.request, done); err != nil {
		e.logger.Debugf("Request for %s not scheduled: %v", act.request, err)
		e.mu.Lock()
		delete(e.awaiting, act.request)
		e.mu.Unlock()
	}
}

// fetched refreshes the state once the vocabulary it was waiting for arrives.
// A nil vocabulary means the request was dropped; it is asked for again only
// while the state still waits on that field.
func (e *Engine) fetched(field string, v *vocab.Vocabulary) {
	e.mu.Lock()
	delete(e.awaiting, field)
	if !e.loadingFor(field) {
		e.mu.Unlock()
		return
	}
	if v == nil {
		e.mu.Unlock()
		e.run(action{request: field})
		return
	}
	st, act := e.evaluate(e.text, e.cursor)
	st = e.commit(st)
	notify := e.onUpdate
	e.mu.Unlock()

	e.run(act)
	if notify != nil {
		notify(st)
	}
}

func (e *Engine) update(fn func() (string, int)) State {
	e.mu.Lock()
	text, cursor := fn()
	st, act := e.evaluate(text, cursor)
	st = e.commit(st)
	e.mu.Unlock()

	e.run(act)
	return st
}

// Update sets both text and cursor.
func (e *Engine) Update(text string, cursor int) State {
	return e.update(func() (string, int) {
		return text, cursor
	})
}

// OnTextChange sets new text. A cursor at the end of the old text follows the
// end of the new one; otherwise it keeps its offset.
func (e *Engine) OnTextChange(text string) State {
	return e.update(func() (string, int) {
		cursor := e.cursor
		if cursor >= len(e.text) {
			cursor = len(text)
		}
		return text, cursor
	})
}

// OnCursorChange moves the cursor.
func (e *Engine) OnCursorChange(offset int) State {
	return e.update(func() (string, int) {
		return e.text, offset
	})
}

// OnSelect splices candidate into the text at the current context and returns
// the new text and cursor. Selecting a field appends ':' and starts loading
// its values right away; selecting a value closes the list.
func (e *Engine) OnSelect(candidate string) (string, int) {
	e.mu.Lock()
	if candidate == "" {
		text, cursor := e.text, e.cursor
		e.mu.Unlock()
		return text, cursor
	}

	ctx := e.state.Context
	if ctx.Kind == query.KindValue && e.escape {
		candidate = query.EscapeValue(candidate)
	}
	text, cursor := query.Apply(e.text, ctx, candidate)

	st, act := e.evaluate(text, cursor)
	if ctx.Kind == query.KindValue {
		st.close()
		act = action{cancel: true}
	}
	e.commit(st)
	e.mu.Unlock()

	e.run(act)
	return text, cursor
}

// OnSubmit closes the suggestions and returns the text as typed. A highlighted
// suggestion is never applied.
func (e *Engine) OnSubmit() string {
	e.mu.Lock()
	text := e.text
	st := e.state
	st.close()
	e.commit(st)
	e.mu.Unlock()

	e.fetcher.CancelPending("")
	return text
}

// SetFields starts a new search context: the field list is replaced, every
// cached vocabulary and pending fetch is dropped.
func (e *Engine) SetFields(fields []string) State {
	e.mu.Lock()
	e.fields = query.NewFieldSet(e.builtin, fields)
	e.cache.Flush()
	e.awaiting = make(map[string]bool)
	st, act := e.evaluate(e.text, e.cursor)
	st = e.commit(st)
	e.mu.Unlock()

	// Dropped callbacks already see the new state.
	e.fetcher.Reset()
	e.run(act)
	return st
}

// InvalidateVocabulary forgets every vocabulary, e.g. after the time range
// changed. Results of fetches still in flight are discarded.
func (e *Engine) InvalidateVocabulary() State {
	epoch := e.cache.Advance()
	e.logger.Debugf("Vocabulary invalidated, epoch %d", epoch)
	return e.update(func() (string, int) {
		return e.text, e.cursor
	})
}

// Vocabulary blocks until the vocabulary of a known field is available.
func (e *Engine) Vocabulary(ctx context.Context, field string) (*vocab.Vocabulary, error) {
	e.mu.Lock()
	known := e.fields.Has(field)
	e.mu.Unlock()

	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return e.fetcher.Ensure(ctx, field)
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Fields returns the valid field names, built-in ones first.
func (e *Engine) Fields() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fields.Names()...)
}

// Stats reports cache and fetch counters.
func (e *Engine) Stats() map[string]int {
	e.mu.Lock()
	stats := map[string]int{"knownFields": e.fields.Len()}
	e.mu.Unlock()

	for k, v := range e.cache.Stats() {
		stats[k] = v
	}
	for k, v := range e.fetcher.Stats() {
		stats[k] = v
	}
	return stats
}

// Close abandons every pending fetch. OnUpdate is not called afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.fetcher.Close()
}
