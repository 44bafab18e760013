/*
Package fetch loads field vocabularies from a lookup.Source in the background.

Requests for the same field are debounced so a burst of keystrokes produces a
single lookup. Every lookup remembers the cache epoch it was issued in; a
result that arrives after the epoch moved on is never stored.
*/
package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/bastiangx/fieldserve/internal/logger"
	"github.com/bastiangx/fieldserve/pkg/lookup"
	"github.com/bastiangx/fieldserve/pkg/vocab"
)

// DefaultDebounce is the quiet period before a lookup is issued.
const DefaultDebounce = 300 * time.Millisecond

var (
	ErrClosed   = errors.New("fetcher closed")
	ErrCanceled = errors.New("request canceled")
	ErrNoSource = errors.New("no lookup source configured")
)

// Callback receives the vocabulary of field. v is nil when the request was
// dropped before a lookup ran.
type Callback func(field string, v *vocab.Vocabulary)

// Options configures a Fetcher.
type Options struct {
	Source    lookup.Source
	Cache     *vocab.Cache
	TimeRange lookup.TimeRangeFunc

	Debounce time.Duration
	Limit    int
	// Timeout bounds a single lookup; zero means no timeout.
	Timeout time.Duration
	// FailureTTL expires vocabularies cached for failed lookups; zero keeps
	// them for the whole epoch, whatever VocabularyTTL says.
	FailureTTL    time.Duration
	VocabularyTTL time.Duration

	Logger *log.Logger
}

type pending struct {
	seq      uint64
	epoch    uint64
	inFlight bool
	cancel   context.CancelFunc
	// waiters are dropped by CancelPending and by stale results; held
	// waiters block in Ensure and stay until the lookup lands or Reset.
	waiters []Callback
	held    []Callback
}

// Fetcher coordinates debounced lookups and stores their results in a
// vocab.Cache.
type Fetcher struct {
	source    lookup.Source
	cache     *vocab.Cache
	timeRange lookup.TimeRangeFunc
	debouncer *Debouncer
	logger    *log.Logger

	limit         int
	timeout       time.Duration
	failureTTL    time.Duration
	vocabularyTTL time.Duration

	ctx  context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	seq        uint64
	pending    map[string]*pending
	closed     bool
	issued     int
	failed     int
	stale      int
	superseded int
}

// New creates a Fetcher. A nil Cache gets a fresh one.
func New(opts Options) (*Fetcher, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Cache == nil {
		opts.Cache = vocab.NewCache(opts.VocabularyTTL)
	}
	if opts.TimeRange == nil {
		opts.TimeRange = func() lookup.TimeRange { return lookup.TimeRange{} }
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Limit < 1 {
		opts.Limit = lookup.DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("fetch")
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Fetcher{
		source:        opts.Source,
		cache:         opts.Cache,
		timeRange:     opts.TimeRange,
		debouncer:     NewDebouncer(opts.Debounce),
		logger:        opts.Logger,
		limit:         opts.Limit,
		timeout:       opts.Timeout,
		failureTTL:    opts.FailureTTL,
		vocabularyTTL: opts.VocabularyTTL,
		ctx:           ctx,
		stop:          stop,
		pending:       make(map[string]*pending),
	}, nil
}

// Cache returns the cache results are stored in.
func (f *Fetcher) Cache() *vocab.Cache {
	return f.cache
}

// Request asks for the vocabulary of field. A cached vocabulary is passed to
// done before Request returns. Otherwise the lookup is (re)scheduled after the
// debounce delay and done runs on the lookup goroutine once it completes.
//
// A lookup already in flight for the current epoch is joined rather than
// repeated. One issued in an older epoch is canceled and superseded.
func (f *Fetcher) Request(field string, done Callback) error {
	return f.request(field, done, false)
}

func (f *Fetcher) request(field string, done Callback, held bool) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if v, ok := f.cache.Lookup(field); ok {
		f.mu.Unlock()
		if done != nil {
			done(field, v)
		}
		return nil
	}

	epoch := f.cache.Epoch()
	p := f.pending[field]
	switch {
	case p == nil:
		p = &pending{}
		f.pending[field] = p
	case p.inFlight && p.epoch == epoch:
		p.add(done, held)
		f.mu.Unlock()
		return nil
	case p.inFlight:
		f.logger.Debugf("Superseding lookup for %s from epoch %d", field, p.epoch)
		p.cancel()
		p.inFlight = false
		p.cancel = nil
		f.superseded++
	}
	p.add(done, held)
	f.schedule(field, p)
	f.mu.Unlock()
	return nil
}

func (p *pending) add(done Callback, held bool) {
	switch {
	case done == nil:
	case held:
		p.held = append(p.held, done)
	default:
		p.waiters = append(p.waiters, done)
	}
}

// schedule restarts the debounce timer for field. Caller holds f.mu.
func (f *Fetcher) schedule(field string, p *pending) {
	f.seq++
	seq := f.seq
	p.seq = seq
	f.debouncer.Trigger(field, func() {
		f.issue(field, seq)
	})
}

func (f *Fetcher) issue(field string, seq uint64) {
	f.mu.Lock()
	p := f.pending[field]
	if f.closed || p == nil || p.seq != seq || p.inFlight {
		f.mu.Unlock()
		return
	}

	epoch := f.cache.Epoch()
	var ctx context.Context
	var cancel context.CancelFunc
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(f.ctx, f.timeout)
	} else {
		ctx, cancel = context.WithCancel(f.ctx)
	}
	p.inFlight = true
	p.epoch = epoch
	p.cancel = cancel
	f.issued++
	f.mu.Unlock()

	id := uuid.NewString()
	q := lookup.NewQuery(field, f.timeRange(), f.limit)
	f.logger.Debugf("Looking up values of %s (request %s, epoch %d)", field, id, epoch)

	start := time.Now()
	entries, err := f.source.FieldValues(lookup.WithRequestID(ctx, id), q)
	cancel()

	f.commit(field, seq, epoch, entries, err, time.Since(start))
}

func (f *Fetcher) commit(field string, seq, epoch uint64, entries []vocab.Entry, err error, took time.Duration) {
	f.mu.Lock()
	p := f.pending[field]
	if f.closed || p == nil || p.seq != seq {
		f.mu.Unlock()
		return
	}

	v := vocab.New(entries)
	ttl := f.vocabularyTTL
	if err != nil {
		f.failed++
		f.logger.Warnf("Lookup of %s failed after %v, caching as empty: %v", field, took, err)
		v = vocab.New(nil)
		ttl = f.failureTTL
		if ttl <= 0 {
			ttl = vocab.KeepForEpoch
		}
	} else {
		f.logger.Debugf("Got %d values for %s in %v", v.Len(), field, took)
	}

	if !f.cache.Store(epoch, field, v, ttl) {
		// The epoch moved while the lookup ran. Only held waiters still get a
		// lookup under the new epoch; the others are told it was dropped and
		// ask again if they still care.
		f.stale++
		p.inFlight = false
		p.cancel = nil
		dropped := p.waiters
		p.waiters = nil
		if len(p.held) > 0 {
			f.schedule(field, p)
		} else {
			delete(f.pending, field)
		}
		f.mu.Unlock()

		f.logger.Debugf("Discarded stale values of %s from epoch %d", field, epoch)
		for _, done := range dropped {
			done(field, nil)
		}
		return
	}

	delete(f.pending, field)
	waiters := append(p.waiters, p.held...)
	f.mu.Unlock()

	for _, done := range waiters {
		done(field, v)
	}
}

// Ensure blocks until the vocabulary of field is available. CancelPending
// does not drop it; only Reset, Close or ctx end the wait early.
func (f *Fetcher) Ensure(ctx context.Context, field string) (*vocab.Vocabulary, error) {
	ch := make(chan *vocab.Vocabulary, 1)
	err := f.request(field, func(_ string, v *vocab.Vocabulary) {
		ch <- v
	}, true)
	if err != nil {
		return nil, err
	}

	select {
	case v := <-ch:
		if v == nil {
			return nil, ErrCanceled
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.ctx.Done():
		return nil, ErrClosed
	}
}

// CancelPending drops every debounced request except the one for keep.
// Lookups already in flight are left to finish, and a request an Ensure call
// blocks on keeps its timer. Waiters of dropped requests receive a nil
// vocabulary. It returns how many waiters were dropped.
func (f *Fetcher) CancelPending(keep string) int {
	f.mu.Lock()
	dropped := make(map[string][]Callback)
	for field, p := range f.pending {
		if field == keep || p.inFlight {
			continue
		}
		dropped[field] = p.waiters
		p.waiters = nil
		if len(p.held) == 0 {
			f.debouncer.Cancel(field)
			delete(f.pending, field)
		}
	}
	f.mu.Unlock()

	n := 0
	for field, waiters := range dropped {
		for _, done := range waiters {
			done(field, nil)
			n++
		}
	}
	return n
}

// Reset drops every request, in flight or not, for a fresh start. Waiters
// receive a nil vocabulary.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	dropped := make(map[string][]Callback, len(f.pending))
	for field, p := range f.pending {
		f.debouncer.Cancel(field)
		if p.cancel != nil {
			p.cancel()
		}
		dropped[field] = append(p.waiters, p.held...)
	}
	f.pending = make(map[string]*pending)
	f.mu.Unlock()

	for field, waiters := range dropped {
		for _, done := range waiters {
			done(field, nil)
		}
	}
}

// Pending reports whether a request for field is waiting or in flight.
func (f *Fetcher) Pending(field string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[field]
	return ok
}

// Close abandons every timer and lookup. No callback runs afterwards.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.debouncer.Close()
	f.stop()
	f.pending = make(map[string]*pending)
}

// Stats reports lookup counters.
func (f *Fetcher) Stats() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return map[string]int{
		"pendingLookups":    len(f.pending),
		"issuedLookups":     f.issued,
		"failedLookups":     f.failed,
		"staleLookups":      f.stale,
		"supersededLookups": f.superseded,
	}
}
