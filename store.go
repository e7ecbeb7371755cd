package trainscope

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrSchemaMismatch is returned when a mutation would break row alignment.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrColumnClaimed is returned when a column owned by a Writer is set without it.
	ErrColumnClaimed = errors.New("column claimed by another writer")
	// ErrUnknownOverlay is returned for overlay handles the store never issued or already removed.
	ErrUnknownOverlay = errors.New("unknown overlay")
)

// maxCascade bounds how many mutations issued from observers are applied
// after a single top-level mutation.
const maxCascade = 32

// Change describes one applied mutation.
type Change struct {
	Columns         []string
	Overlays        []OverlayID
	RemovedOverlays []OverlayID
}

// Empty reports whether the change touched nothing.
func (c Change) Empty() bool {
	return len(c.Columns) == 0 && len(c.Overlays) == 0 && len(c.RemovedOverlays) == 0
}

// Observer is notified synchronously after every mutation.
type Observer func(Change)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for dropped cascades.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is a named, row-aligned columnar container. All columns have the
// same length N. Mutations replace whole columns and notify observers once
// they are applied.
//
// Mutations are expected from a single event loop. Reads are safe from any
// goroutine.
type Store struct {
	mu        sync.RWMutex
	n         int
	cols      map[string]Column
	claims    map[string]*Writer
	overlays  map[OverlayID]*Overlay
	nextOvl   OverlayID
	observers []observerEntry
	nextObs   int

	notifying bool
	pending   []func() Change

	logger *slog.Logger
}

type observerEntry struct {
	id int
	fn Observer
}

// NewStore creates a store of n rows seeded with cols.
func NewStore(n int, cols map[string]Column, opts ...StoreOption) (*Store, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative row count %d", ErrSchemaMismatch, n)
	}
	s := &Store{
		n:        n,
		cols:     make(map[string]Column, len(cols)),
		claims:   make(map[string]*Writer),
		overlays: make(map[OverlayID]*Overlay),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.validate(cols, nil); err != nil {
		return nil, err
	}
	for name, c := range cols {
		s.cols[name] = c
	}
	return s, nil
}

// Len returns the row count N.
func (s *Store) Len() int {
	return s.n
}

// Columns returns the sorted column names.
func (s *Store) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.cols))
	for name := range s.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the column stored under name. The returned value is shared
// with the store and must be treated as read-only.
func (s *Store) Get(name string) (Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cols[name]
	return c, ok
}

// Floats returns a float column, or nil if absent or of another kind.
func (s *Store) Floats(name string) Floats {
	c, _ := s.Get(name)
	v, _ := c.(Floats)
	return v
}

// Ints returns an int column, or nil if absent or of another kind.
func (s *Store) Ints(name string) Ints {
	c, _ := s.Get(name)
	v, _ := c.(Ints)
	return v
}

// Strings returns a string column, or nil if absent or of another kind.
func (s *Store) Strings(name string) Strings {
	c, _ := s.Get(name)
	v, _ := c.(Strings)
	return v
}

// States returns a state column, or nil if absent or of another kind.
func (s *Store) States(name string) States {
	c, _ := s.Get(name)
	v, _ := c.(States)
	return v
}

// Set replaces whole columns. Every column must have length N and must not
// be claimed by a Writer. On error nothing is applied. The store takes
// ownership of the given slices.
func (s *Store) Set(cols map[string]Column) error {
	return s.set(cols, nil)
}

func (s *Store) set(cols map[string]Column, w *Writer) error {
	if len(cols) == 0 {
		return nil
	}
	s.mu.RLock()
	err := s.validate(cols, w)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	s.commit(func() Change {
		for name, c := range cols {
			s.cols[name] = c
		}
		return Change{Columns: names}
	})
	return nil
}

// validate must be called with s.mu held (read or write) or before the
// store is shared.
func (s *Store) validate(cols map[string]Column, w *Writer) error {
	for name, c := range cols {
		if c == nil {
			return fmt.Errorf("%w: column %q is nil", ErrSchemaMismatch, name)
		}
		if c.Len() != s.n {
			return fmt.Errorf("%w: column %q has %d rows, store has %d", ErrSchemaMismatch, name, c.Len(), s.n)
		}
		if owner, ok := s.claims[name]; ok && owner != w {
			return fmt.Errorf("%w: %q", ErrColumnClaimed, name)
		}
	}
	return nil
}

// Subscribe registers an observer. The returned function removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// commit applies a mutation and notifies observers. Mutations issued while
// observers are running are queued and applied, in order, once the current
// notification round has finished.
func (s *Store) commit(apply func() Change) {
	s.mu.Lock()
	if s.notifying {
		s.pending = append(s.pending, apply)
		s.mu.Unlock()
		return
	}
	s.notifying = true
	change := apply()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.notifying = false
		s.pending = nil
		s.mu.Unlock()
	}()

	for rounds := 0; ; rounds++ {
		s.notify(change)

		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		if rounds >= maxCascade {
			dropped := len(s.pending)
			s.mu.Unlock()
			s.logger.Error("store: dropping cascading mutations", "dropped", dropped, "rounds", rounds)
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		change = next()
		s.mu.Unlock()
	}
}

func (s *Store) notify(change Change) {
	if change.Empty() {
		return
	}
	s.mu.RLock()
	observers := make([]observerEntry, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.fn(change)
	}
}

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	Len      int               `json:"len"`
	Columns  map[string]Column `json:"columns"`
	Overlays []Overlay         `json:"overlays"`
}

// Snapshot copies every column and overlay.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Len:      s.n,
		Columns:  make(map[string]Column, len(s.cols)),
		Overlays: s.overlaysLocked(),
	}
	for name, c := range s.cols {
		snap.Columns[name] = c.Clone()
	}
	return snap
}

// Writer holds exclusive write access to a set of columns.
type Writer struct {
	store   *Store
	columns []string
}

// Claim reserves columns for the returned Writer. Store.Set rejects writes
// to claimed columns with ErrColumnClaimed.
func (s *Store) Claim(columns ...string) (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range columns {
		if _, ok := s.claims[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnClaimed, name)
		}
	}
	w := &Writer{store: s, columns: append([]string(nil), columns...)}
	for _, name := range columns {
		s.claims[name] = w
	}
	return w, nil
}

// Claimed reports whether a Writer owns column name.
func (s *Store) Claimed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.claims[name]
	return ok
}

// Set replaces columns, including the ones claimed by w.
func (w *Writer) Set(cols map[string]Column) error {
	return w.store.set(cols, w)
}

// Release gives the claimed columns back.
func (w *Writer) Release() {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range w.columns {
		if s.claims[name] == w {
			delete(s.claims, name)
		}
	}
}
