// Package selection turns UI selection events into per-point membership
// changes.
//
// A multi-point selection (box or lasso) marks every point that is not
// already pending removal: Active points become PendingRemove, Excluded
// points become PendingAdd. A single-point selection on a point that is
// pending removal undoes the mark instead. Every touched index is logged
// until Resolve or ResetAll.
package selection

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope"
)

// Direction is the pending change recorded for a point.
type Direction string

const (
	Removing Direction = "removing"
	Adding   Direction = "adding"
	Restored Direction = "restored"
)

// Mark describes how one selected point changed.
type Mark struct {
	Index     int       `json:"index"`
	Direction Direction `json:"status"`
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithNotifier sets where user-visible notices go.
func WithNotifier(n trainscope.Notifier) Option {
	return func(m *Machine) {
		m.notify = n
	}
}

// Machine owns the state column of a store.
type Machine struct {
	store   *trainscope.Store
	writer  *trainscope.Writer
	palette trainscope.Palette
	notify  trainscope.Notifier
	logger  *slog.Logger

	prevState []trainscope.State
	pending   orderedSet
	selected  []int
}

// New claims the state column of store.
func New(store *trainscope.Store, palette trainscope.Palette, opts ...Option) (*Machine, error) {
	for _, col := range []string{trainscope.ColState, trainscope.ColColor, trainscope.ColPrev, trainscope.ColClass} {
		if _, ok := store.Get(col); !ok {
			return nil, fmt.Errorf("%w: store has no %q column", trainscope.ErrSchemaMismatch, col)
		}
	}
	w, err := store.Claim(trainscope.ColState)
	if err != nil {
		return nil, err
	}
	m := &Machine{
		store:     store,
		writer:    w,
		palette:   palette,
		logger:    slog.Default(),
		prevState: make([]trainscope.State, store.Len()),
		pending:   newOrderedSet(),
	}
	for _, opt := range opts {
		opt(m)
	}
	copy(m.prevState, store.States(trainscope.ColState))
	return m, nil
}

// Close releases the state column.
func (m *Machine) Close() {
	m.writer.Release()
}

// Select records the UI selection without toggling any point.
func (m *Machine) Select(indices []int) []int {
	m.selected = m.filter(indices)
	return append([]int(nil), m.selected...)
}

// ApplySelection records the selection and toggles the selected points.
// Out-of-range and repeated indices are ignored.
func (m *Machine) ApplySelection(indices []int) ([]Mark, error) {
	sel := m.filter(indices)
	m.selected = sel
	if len(sel) == 0 {
		return nil, nil
	}

	states := m.store.States(trainscope.ColState).Clone().(trainscope.States)
	colors := m.store.Strings(trainscope.ColColor).Clone().(trainscope.Strings)
	prev := m.store.Strings(trainscope.ColPrev).Clone().(trainscope.Strings)

	var marks []Mark
	if len(sel) > 1 {
		for _, idx := range sel {
			if states[idx] != trainscope.PendingRemove {
				marks = append(marks, m.toggle(idx, states, colors, prev))
			}
			m.pending.add(idx)
		}
	} else {
		idx := sel[0]
		if states[idx] == trainscope.PendingRemove {
			colors[idx] = prev[idx]
			states[idx] = m.prevState[idx]
			marks = append(marks, Mark{Index: idx, Direction: Restored})
		} else {
			marks = append(marks, m.toggle(idx, states, colors, prev))
		}
		m.pending.add(idx)
	}

	if err := m.writer.Set(map[string]trainscope.Column{
		trainscope.ColState: states,
		trainscope.ColColor: colors,
		trainscope.ColPrev:  prev,
	}); err != nil {
		return nil, fmt.Errorf("apply selection: %w", err)
	}
	m.logger.Debug("selection applied", "selected", len(sel), "marked", len(marks), "pending", m.pending.len())
	return marks, nil
}

// toggle marks one point pending, remembering its color and state.
func (m *Machine) toggle(idx int, states trainscope.States, colors, prev trainscope.Strings) Mark {
	prev[idx] = colors[idx]
	m.prevState[idx] = states[idx]
	if states[idx] == trainscope.Excluded {
		states[idx] = trainscope.PendingAdd
		colors[idx] = m.palette.PendingAdd
		return Mark{Index: idx, Direction: Adding}
	}
	states[idx] = trainscope.PendingRemove
	colors[idx] = m.palette.PendingRemove
	return Mark{Index: idx, Direction: Removing}
}

// Resolve finalizes the pending log: points pending removal become
// Excluded, every other logged point becomes Active with its class color.
// The log and the selection are cleared. An empty log changes nothing.
func (m *Machine) Resolve() error {
	defer m.clear()
	if m.pending.len() == 0 {
		return nil
	}

	states := m.store.States(trainscope.ColState).Clone().(trainscope.States)
	colors := m.store.Strings(trainscope.ColColor).Clone().(trainscope.Strings)
	prev := m.store.Strings(trainscope.ColPrev).Clone().(trainscope.Strings)
	labels := m.store.Ints(trainscope.ColClass)

	for _, idx := range m.pending.items {
		if states[idx] == trainscope.PendingRemove {
			states[idx] = trainscope.Excluded
			colors[idx] = m.palette.Excluded
		} else {
			prev[idx] = colors[idx]
			states[idx] = trainscope.Active
			colors[idx] = m.palette.ClassColor(labels[idx])
		}
		m.prevState[idx] = states[idx]
	}

	if err := m.writer.Set(map[string]trainscope.Column{
		trainscope.ColState: states,
		trainscope.ColColor: colors,
		trainscope.ColPrev:  prev,
	}); err != nil {
		return fmt.Errorf("resolve selection: %w", err)
	}
	return nil
}

// ResetAll makes every point Active with its class color and clears the
// log and the selection.
func (m *Machine) ResetAll() error {
	defer m.clear()
	n := m.store.Len()
	labels := m.store.Ints(trainscope.ColClass)
	states := make(trainscope.States, n)
	colors := make(trainscope.Strings, n)
	for i := range states {
		states[i] = trainscope.Active
		colors[i] = m.palette.ClassColor(labels[i])
		m.prevState[i] = trainscope.Active
	}
	if err := m.writer.Set(map[string]trainscope.Column{
		trainscope.ColState: states,
		trainscope.ColColor: colors,
		trainscope.ColPrev:  colors.Clone(),
	}); err != nil {
		return fmt.Errorf("reset selection: %w", err)
	}
	return nil
}

func (m *Machine) clear() {
	m.pending.reset()
	m.selected = nil
}

// Pending returns the pending-change log in insertion order.
func (m *Machine) Pending() []int {
	return append([]int(nil), m.pending.items...)
}

// Selected returns the current selection set.
func (m *Machine) Selected() []int {
	return append([]int(nil), m.selected...)
}

// ActivePoints returns the coordinates and labels of every Active point.
func (m *Machine) ActivePoints() ([]orb.Point, []int) {
	return m.points(func(s trainscope.State) bool { return s == trainscope.Active })
}

// AllPoints returns every point regardless of state.
func (m *Machine) AllPoints() ([]orb.Point, []int) {
	return m.points(func(trainscope.State) bool { return true })
}

func (m *Machine) points(keep func(trainscope.State) bool) ([]orb.Point, []int) {
	xs := m.store.Floats(trainscope.ColX)
	ys := m.store.Floats(trainscope.ColY)
	labels := m.store.Ints(trainscope.ColClass)
	states := m.store.States(trainscope.ColState)

	var pts []orb.Point
	var out []int
	for i, s := range states {
		if !keep(s) {
			continue
		}
		pts = append(pts, orb.Point{xs[i], ys[i]})
		out = append(out, labels[i])
	}
	return pts, out
}

// filter drops out-of-range and repeated indices, preserving order.
func (m *Machine) filter(indices []int) []int {
	n := m.store.Len()
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			m.logger.Debug("selection index out of range ignored", "index", idx, "rows", n)
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

// orderedSet is an insertion-ordered set of row indices; its size is
// bounded by the row count.
type orderedSet struct {
	items []int
	index map[int]struct{}
}

func newOrderedSet() orderedSet {
	return orderedSet{index: make(map[int]struct{})}
}

func (s *orderedSet) add(i int) {
	if _, ok := s.index[i]; ok {
		return
	}
	s.index[i] = struct{}{}
	s.items = append(s.items, i)
}

func (s *orderedSet) len() int {
	return len(s.items)
}

func (s *orderedSet) reset() {
	s.items = nil
	s.index = make(map[int]struct{})
}
