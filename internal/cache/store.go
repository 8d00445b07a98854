// Package cache provides the process-wide store of job snapshots and query
// results shared by the list, detail and last-created views.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default pool settings used when Config leaves them zero.
const (
	DefaultRefetchWorkers = 4
	DefaultQueueSize      = 64
	DefaultRefetchTimeout = 30 * time.Second
)

// Entry is the last known result for a key.
type Entry struct {
	Value     any
	Absent    bool // the value is known not to exist (e.g. deleted)
	Stale     bool
	UpdatedAt time.Time
}

// FetchFunc loads the current value for key.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// EventKind describes a change to an entry.
type EventKind int

const (
	EventWritten EventKind = iota
	EventAbsent
	EventInvalidated
)

func (k EventKind) String() string {
	switch k {
	case EventWritten:
		return "written"
	case EventAbsent:
		return "absent"
	case EventInvalidated:
		return "invalidated"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to listeners after an entry changes.
type Event struct {
	Kind EventKind
	Key  Key
}

// Listener receives change events. It runs on the goroutine that made the
// change and must not block.
type Listener func(Event)

// Stats counts store activity since creation.
type Stats struct {
	Writes             int64
	Invalidations      int64
	RefetchesScheduled int64
	RefetchesCompleted int64
	RefetchFailures    int64
}

// Config holds store configuration
type Config struct {
	Logger         *slog.Logger
	RefetchWorkers int
	QueueSize      int
	RefetchTimeout time.Duration
}

// Store holds cache entries keyed by query. Every write replaces the whole
// entry, so concurrent writers to one key resolve last-write-wins.
type Store struct {
	logger         *slog.Logger
	refetchTimeout time.Duration
	concurrency    int

	mu        sync.RWMutex
	entries   map[Key]Entry
	gens      map[Key]uint64 // bumped by every write and invalidation
	fetchers  map[string]FetchFunc
	listeners map[int]Listener
	nextID    int
	closed    bool

	group singleflight.Group

	refetchChan chan Key
	stopChan    chan struct{}
	wg          sync.WaitGroup

	idleMu  sync.Mutex
	pending int
	idle    chan struct{} // closed while pending is zero

	writes             atomic.Int64
	invalidations      atomic.Int64
	refetchesScheduled atomic.Int64
	refetchesCompleted atomic.Int64
	refetchFailures    atomic.Int64
}

// NewStore creates a store and starts its refetch workers.
func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RefetchWorkers <= 0 {
		cfg.RefetchWorkers = DefaultRefetchWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.RefetchTimeout <= 0 {
		cfg.RefetchTimeout = DefaultRefetchTimeout
	}

	s := &Store{
		logger:         cfg.Logger,
		refetchTimeout: cfg.RefetchTimeout,
		concurrency:    cfg.RefetchWorkers,
		entries:        make(map[Key]Entry),
		gens:           make(map[Key]uint64),
		fetchers:       make(map[string]FetchFunc),
		listeners:      make(map[int]Listener),
		refetchChan:    make(chan Key, cfg.QueueSize),
		stopChan:       make(chan struct{}),
		idle:           make(chan struct{}),
	}
	close(s.idle)
	s.spawnWorkerPool()
	return s
}

// RegisterFetcher sets the fetch function for every key with operation op.
func (s *Store) RegisterFetcher(op string, fn FetchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[op] = fn
}

// Read returns the entry for key. Stale entries are still returned.
func (s *Store) Read(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Write replaces the entry for key and clears its staleness.
func (s *Store) Write(key Key, value any) {
	s.put(key, Entry{Value: value, UpdatedAt: time.Now()})
	s.notify(Event{Kind: EventWritten, Key: key})
}

// WriteAbsent records that key is known to have no value. The marker is
// distinct from a key that was never fetched.
func (s *Store) WriteAbsent(key Key) {
	s.put(key, Entry{Absent: true, UpdatedAt: time.Now()})
	s.notify(Event{Kind: EventAbsent, Key: key})
}

func (s *Store) put(key Key, e Entry) {
	s.mu.Lock()
	s.entries[key] = e
	s.gens[key]++
	s.mu.Unlock()
	s.writes.Add(1)
}

// Invalidate marks every entry matching pattern as stale without removing
// it, and returns how many entries were marked.
func (s *Store) Invalidate(pattern Key) int {
	s.invalidations.Add(1)

	s.mu.Lock()
	var marked []Key
	for k, e := range s.entries {
		if !k.Matches(pattern) {
			continue
		}
		e.Stale = true
		s.entries[k] = e
		s.gens[k]++
		marked = append(marked, k)
	}
	s.mu.Unlock()

	for _, k := range marked {
		s.notify(Event{Kind: EventInvalidated, Key: k})
	}
	return len(marked)
}

// Refetch schedules an asynchronous reload of every entry matching
// pattern that has a registered fetcher. It never blocks on the reloads
// and returns how many were scheduled.
func (s *Store) Refetch(pattern Key) int {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.logger.Warn("Refetch ignored - cache store closed",
			slog.String("pattern", pattern.String()),
		)
		return 0
	}
	var keys []Key
	for k := range s.entries {
		if !k.Matches(pattern) {
			continue
		}
		if _, ok := s.fetchers[k.Op]; !ok {
			continue
		}
		keys = append(keys, k)
	}
	// Enqueue under the lock so Close cannot finish draining first.
	s.begin(len(keys))
	for _, k := range keys {
		s.refetchesScheduled.Add(1)
		s.enqueue(k)
	}
	s.mu.RUnlock()

	return len(keys)
}

// Fetch returns the entry for key, loading it through the registered
// fetcher when it is missing or stale. Concurrent loads of one key share a
// single fetch. A load that raced with a newer write or invalidation is
// discarded and the key is loaded again. On failure the previous entry, if
// any, is returned with the error.
func (s *Store) Fetch(ctx context.Context, key Key) (Entry, error) {
	for {
		if e, ok := s.Read(key); ok && !e.Stale {
			return e, nil
		}

		res, err := s.load(ctx, key)
		if err != nil {
			prev, _ := s.Read(key)
			return prev, err
		}
		if res.committed {
			return res.entry, nil
		}
	}
}

type loadResult struct {
	entry     Entry
	committed bool
}

// load runs the fetcher for key at its current generation. Callers at the
// same generation share one fetch, which runs detached from any single
// caller's context. The result is written only if no write or
// invalidation happened while it was in flight.
func (s *Store) load(ctx context.Context, key Key) (loadResult, error) {
	s.mu.RLock()
	fn, ok := s.fetchers[key.Op]
	gen := s.gens[key]
	s.mu.RUnlock()
	if !ok {
		return loadResult{}, fmt.Errorf("%w for %q", ErrNoFetcher, key.Op)
	}

	flight := key.String() + "#" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(flight, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refetchTimeout)
		defer cancel()

		value, err := fn(fctx, key)
		if err != nil {
			return nil, err
		}
		return s.commit(key, gen, value), nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return loadResult{}, r.Err
		}
		return r.Val.(loadResult), nil
	case <-ctx.Done():
		return loadResult{}, ctx.Err()
	}
}

// commit writes value if key is still at generation gen.
func (s *Store) commit(key Key, gen uint64, value any) loadResult {
	e := Entry{Value: value, UpdatedAt: time.Now()}

	s.mu.Lock()
	if s.gens[key] != gen {
		s.mu.Unlock()
		s.logger.Debug("Discarded load - entry changed while in flight",
			slog.String("key", key.String()),
		)
		return loadResult{}
	}
	s.entries[key] = e
	s.gens[key]++
	s.mu.Unlock()

	s.writes.Add(1)
	s.notify(Event{Kind: EventWritten, Key: key})
	return loadResult{entry: e, committed: true}
}

// Keys returns the keys matching pattern in string order.
func (s *Store) Keys(pattern Key) []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		if k.Matches(pattern) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Subscribe registers l for change events and returns a function that
// removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// Stats returns a snapshot of the activity counters.
func (s *Store) Stats() Stats {
	return Stats{
		Writes:             s.writes.Load(),
		Invalidations:      s.invalidations.Load(),
		RefetchesScheduled: s.refetchesScheduled.Load(),
		RefetchesCompleted: s.refetchesCompleted.Load(),
		RefetchFailures:    s.refetchFailures.Load(),
	}
}

// WaitIdle blocks until every scheduled refetch has finished or ctx ends.
func (s *Store) WaitIdle(ctx context.Context) error {
	s.idleMu.Lock()
	idle := s.idle
	s.idleMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin records n scheduled refetches.
func (s *Store) begin(n int) {
	if n <= 0 {
		return
	}
	s.idleMu.Lock()
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending += n
	s.idleMu.Unlock()
}

// finish records one refetch as done.
func (s *Store) finish() {
	s.idleMu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
	s.idleMu.Unlock()
}

// Close stops the refetch workers. Entries stay readable.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	// Anything still queued will never run.
	for {
		select {
		case <-s.refetchChan:
			s.finish()
		default:
			return
		}
	}
}
