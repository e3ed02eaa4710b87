// Package searchbar is the state machine behind the city search input.
//
// A Bar tracks the query being typed, fetches suggestions for it and hands
// the current suggestion list to a submit callback when the user searches.
// Suggestion fetches run on their own goroutines; each one carries a
// generation number and only the completion matching the latest generation
// is applied, so a slow response for an older query never overwrites the
// suggestions for a newer one.
package searchbar

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrNoSuggestion is returned by Activate for an index outside the current
// suggestion list.
var ErrNoSuggestion = errors.New("no suggestion at index")

// State is the input's lifecycle state.
type State int

const (
	Idle State = iota
	Typing
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Typing:
		return "typing"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// SubmitFunc receives the query and a copy of the suggestions shown when the
// user submitted.
type SubmitFunc func(ctx context.Context, query string, suggestions []domain.City)

// Snapshot is a point-in-time copy of a Bar's observable state.
type Snapshot struct {
	State       State
	Query       string
	Suggestions []domain.City
	Loading     bool
	Location    *domain.Coordinate
}

// Option configures a Bar.
type Option func(*Bar)

// WithDebounce delays each fetch until d has passed without another query
// change. Zero fetches on every change.
func WithDebounce(d time.Duration) Option {
	return func(b *Bar) { b.debounce = d }
}

// WithClock sets the time source for debounce timers.
func WithClock(c clockwork.Clock) Option {
	return func(b *Bar) { b.clock = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bar) { b.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bar) { b.logger = l }
}

// Bar is safe for concurrent use.
type Bar struct {
	source   domain.SuggestionSource
	onSubmit SubmitFunc
	debounce time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mount  sync.Once

	mu          sync.Mutex
	state       State
	query       string
	suggestions []domain.City
	loading     bool
	location    *domain.Coordinate
	closed      bool

	gen         uint64
	timer       clockwork.Timer
	fetchCancel context.CancelFunc

	// pending counts debounce timers, fetches and location lookups still
	// outstanding. settled is closed whenever pending is zero.
	pending int
	settled chan struct{}
}

// New creates an idle Bar fetching from source. onSubmit may be nil.
func New(source domain.SuggestionSource, onSubmit SubmitFunc, opts ...Option) *Bar {
	ctx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	close(settled)

	b := &Bar{
		source:   source,
		onSubmit: onSubmit,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		settled:  settled,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetQuery replaces the query. An empty query clears the suggestions;
// anything else schedules a fetch.
func (b *Bar) SetQuery(q string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || q == b.query {
		return
	}
	b.query = q
	if q == "" {
		b.gen++
		b.stopLocked()
		b.suggestions = nil
		b.state = Idle
		return
	}
	b.state = Typing
	b.scheduleLocked(q)
}

// KeyDown submits on "Enter" and ignores every other key.
func (b *Bar) KeyDown(key string) {
	if key == "Enter" {
		b.Submit()
	}
}

// Submit hands the current suggestions to the submit callback, then clears
// the query and suggestions. Any fetch still in flight is discarded.
func (b *Bar) Submit() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state = Submitting
	b.loading = true
	b.gen++
	b.stopLocked()
	gen := b.gen
	query := b.query
	suggestions := clone(b.suggestions)
	b.mu.Unlock()

	if b.onSubmit != nil {
		b.onSubmit(b.ctx, query, suggestions)
	}
	if b.metrics != nil {
		b.metrics.SearchesSubmitted.Inc()
	}
	b.logger.Info("search submitted", "q", query, "results", len(suggestions))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loading = false
	// A query typed while the callback ran is kept.
	if b.gen != gen {
		return
	}
	b.query = ""
	b.suggestions = nil
	b.state = Idle
}

// Activate replaces the query with the ascii name of suggestion i and
// fetches for it. The suggestion list is kept until that fetch lands.
func (b *Bar) Activate(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.suggestions) {
		return ErrNoSuggestion
	}
	if b.closed {
		return nil
	}
	b.query = b.suggestions[i].ASCII
	if b.query == "" {
		b.state = Idle
		return nil
	}
	b.state = Typing
	b.scheduleLocked(b.query)
	return nil
}

// Mount looks up the user's position once. Later calls do nothing. When the
// position arrives while a query is set, that query is fetched again with it.
func (b *Bar) Mount(ctx context.Context, src domain.LocationSource) {
	b.mount.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		b.beginLocked()
		go b.locate(ctx, src)
	})
}

// Snapshot returns a copy of the current state.
func (b *Bar) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:       b.state,
		Query:       b.query,
		Suggestions: clone(b.suggestions),
		Loading:     b.loading,
	}
	if b.location != nil {
		loc := *b.location
		s.Location = &loc
	}
	return s
}

// Wait blocks until no debounce timer, fetch or location lookup is pending,
// or ctx is done.
func (b *Bar) Wait(ctx context.Context) error {
	b.mu.Lock()
	settled := b.settled
	b.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels all outstanding work. The Bar ignores input afterwards.
func (b *Bar) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.gen++
	b.stopLocked()
	b.mu.Unlock()

	b.cancel()
}

func (b *Bar) scheduleLocked(q string) {
	b.gen++
	b.stopLocked()
	gen := b.gen

	if b.debounce <= 0 {
		b.fetchLocked(gen, q)
		return
	}
	b.beginLocked()
	b.timer = b.clock.AfterFunc(b.debounce, func() { b.fire(gen, q) })
}

// stopLocked cancels the debounce timer and the in-flight fetch.
func (b *Bar) stopLocked() {
	if b.timer != nil {
		if b.timer.Stop() {
			b.doneLocked()
		}
		b.timer = nil
	}
	if b.fetchCancel != nil {
		b.fetchCancel()
		b.fetchCancel = nil
	}
}

func (b *Bar) fire(gen uint64, q string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.doneLocked()

	if gen != b.gen || b.closed {
		return
	}
	b.timer = nil
	b.fetchLocked(gen, q)
}

func (b *Bar) fetchLocked(gen uint64, q string) {
	ctx, cancel := context.WithCancel(b.ctx)
	b.fetchCancel = cancel
	b.beginLocked()
	go b.fetch(ctx, cancel, gen, q, b.location)
}

func (b *Bar) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, q string, coord *domain.Coordinate) {
	defer cancel()
	cities, err := b.source.Suggest(ctx, q, coord)

	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.doneLocked()

	if gen != b.gen {
		if b.metrics != nil {
			b.metrics.StaleResponses.Inc()
		}
		b.logger.Debug("discarding stale suggestions", "q", q)
		return
	}
	b.fetchCancel = nil
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.logger.Warn("fetch suggestions", "q", q, "error", err)
		}
		return
	}
	if cities == nil {
		cities = []domain.City{}
	}
	b.suggestions = cities
}

func (b *Bar) locate(ctx context.Context, src domain.LocationSource) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.ctx, cancel)
	defer stop()

	coord, err := src.Locate(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.doneLocked()

	if err != nil {
		b.logger.Info("location unavailable", "error", err)
		return
	}
	b.location = &coord
	if b.query != "" && !b.closed && b.state == Typing {
		b.scheduleLocked(b.query)
	}
}

func (b *Bar) beginLocked() {
	if b.pending == 0 {
		b.settled = make(chan struct{})
	}
	b.pending++
}

func (b *Bar) doneLocked() {
	b.pending--
	if b.pending == 0 {
		close(b.settled)
	}
}

func clone(cities []domain.City) []domain.City {
	if cities == nil {
		return nil
	}
	return append([]domain.City(nil), cities...)
}
