package selection

import (
	"errors"
	"reflect"
	"testing"

	"github.com/comalice/trainscope"
)

func newMachine(t *testing.T, labels ...int) (*Machine, *trainscope.Store) {
	t.Helper()
	b := trainscope.NewPointsBuilder(trainscope.DefaultPalette())
	for i, l := range labels {
		b.Point(float64(i), float64(i%2), l)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	m, err := New(s, trainscope.DefaultPalette())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m, s
}

func stateAt(s *trainscope.Store, i int) trainscope.State {
	return s.States(trainscope.ColState)[i]
}

func colorAt(s *trainscope.Store, i int) string {
	return s.Strings(trainscope.ColColor)[i]
}

func TestMultiSelectMarksPendingRemove(t *testing.T) {
	m, s := newMachine(t, 0, 0, 1, 1)

	marks, err := m.ApplySelection([]int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []Mark{{Index: 0, Direction: Removing}, {Index: 1, Direction: Removing}}
	if !reflect.DeepEqual(marks, want) {
		t.Errorf("unexpected marks %v", marks)
	}
	for _, i := range []int{0, 1} {
		if stateAt(s, i) != trainscope.PendingRemove || colorAt(s, i) != "red" {
			t.Errorf("row %d: expected pending remove/red, got %v/%s", i, stateAt(s, i), colorAt(s, i))
		}
	}
	if !reflect.DeepEqual(m.Pending(), []int{0, 1}) {
		t.Errorf("expected pending [0 1], got %v", m.Pending())
	}
	if stateAt(s, 2) != trainscope.Active {
		t.Error("unselected row changed")
	}
}

func TestMultiSelectSkipsLockedPoints(t *testing.T) {
	m, s := newMachine(t, 0, 0, 1, 1)
	_, _ = m.ApplySelection([]int{0, 1})

	// Re-selecting a pending-remove point in a box does not undo it.
	marks, _ := m.ApplySelection([]int{1, 2})
	if len(marks) != 1 || marks[0].Index != 2 {
		t.Errorf("expected only row 2 marked, got %v", marks)
	}
	if stateAt(s, 1) != trainscope.PendingRemove {
		t.Errorf("locked row changed to %v", stateAt(s, 1))
	}
	if !reflect.DeepEqual(m.Pending(), []int{0, 1, 2}) {
		t.Errorf("expected de-duplicated log [0 1 2], got %v", m.Pending())
	}
}

func TestSingleClickUndoRestoresColor(t *testing.T) {
	m, s := newMachine(t, 0, 1)
	before := colorAt(s, 1)

	if _, err := m.ApplySelection([]int{1}); err != nil {
		t.Fatal(err)
	}
	if stateAt(s, 1) != trainscope.PendingRemove {
		t.Fatalf("expected pending remove after first click, got %v", stateAt(s, 1))
	}

	marks, err := m.ApplySelection([]int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 1 || marks[0].Direction != Restored {
		t.Errorf("expected restored mark, got %v", marks)
	}
	if colorAt(s, 1) != before {
		t.Errorf("expected color %s restored, got %s", before, colorAt(s, 1))
	}
	if stateAt(s, 1) != trainscope.Active {
		t.Errorf("expected active restored, got %v", stateAt(s, 1))
	}
}

func TestSingleClickUndoRestoresTrackerColor(t *testing.T) {
	m, s := newMachine(t, 0, 1, 1)
	m.Select([]int{0})
	if err := m.ApplyGroupColor(2); err != nil {
		t.Fatal(err)
	}
	tracked := colorAt(s, 0)

	_, _ = m.ApplySelection([]int{0})
	_, _ = m.ApplySelection([]int{0})
	if colorAt(s, 0) != tracked {
		t.Errorf("expected tracker color %s restored, got %s", tracked, colorAt(s, 0))
	}
}

func TestExcludedPointsAreMarkedForAdding(t *testing.T) {
	m, s := newMachine(t, 0, 0, 1, 1)
	_, _ = m.ApplySelection([]int{0, 1})
	if err := m.Resolve(); err != nil {
		t.Fatal(err)
	}

	marks, _ := m.ApplySelection([]int{0})
	if len(marks) != 1 || marks[0].Direction != Adding {
		t.Fatalf("expected adding mark, got %v", marks)
	}
	if stateAt(s, 0) != trainscope.PendingAdd || colorAt(s, 0) != "lime" {
		t.Errorf("expected pending add/lime, got %v/%s", stateAt(s, 0), colorAt(s, 0))
	}

	if err := m.Resolve(); err != nil {
		t.Fatal(err)
	}
	if stateAt(s, 0) != trainscope.Active || colorAt(s, 0) != "blue" {
		t.Errorf("expected re-added row active/blue, got %v/%s", stateAt(s, 0), colorAt(s, 0))
	}
	if stateAt(s, 1) != trainscope.Excluded {
		t.Errorf("row 1 should still be excluded, got %v", stateAt(s, 1))
	}
}

func TestOutOfRangeIndicesIgnored(t *testing.T) {
	m, s := newMachine(t, 0, 1)
	marks, err := m.ApplySelection([]int{-1, 7, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	// Only one valid index remains, so this is a single click.
	if len(marks) != 1 || marks[0].Index != 1 {
		t.Errorf("unexpected marks %v", marks)
	}
	if !reflect.DeepEqual(m.Selected(), []int{1}) {
		t.Errorf("expected selection [1], got %v", m.Selected())
	}
	if stateAt(s, 0) != trainscope.Active {
		t.Error("row 0 should be untouched")
	}

	marks, err = m.ApplySelection([]int{99})
	if err != nil || marks != nil {
		t.Errorf("expected no-op, got %v err %v", marks, err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	m, s := newMachine(t, 0, 0, 1, 1)
	_, _ = m.ApplySelection([]int{0, 2})
	if err := m.Resolve(); err != nil {
		t.Fatal(err)
	}
	after := s.Snapshot()

	changes := 0
	s.Subscribe(func(trainscope.Change) { changes++ })
	if err := m.Resolve(); err != nil {
		t.Fatal(err)
	}
	if changes != 0 {
		t.Errorf("second resolve notified %d times", changes)
	}
	if !reflect.DeepEqual(after.Columns[trainscope.ColState], s.Snapshot().Columns[trainscope.ColState]) {
		t.Error("second resolve changed states")
	}
	if len(m.Pending()) != 0 || len(m.Selected()) != 0 {
		t.Error("log or selection not cleared")
	}
}

func TestResetAllRestoresClassDefaults(t *testing.T) {
	p := trainscope.DefaultPalette()
	m, s := newMachine(t, 0, 1, 0, 1, 1)
	_, _ = m.ApplySelection([]int{0, 1, 2})
	_ = m.Resolve()
	_, _ = m.ApplySelection([]int{3})

	if err := m.ResetAll(); err != nil {
		t.Fatal(err)
	}
	labels := s.Ints(trainscope.ColClass)
	for i := 0; i < s.Len(); i++ {
		if stateAt(s, i) != trainscope.Active {
			t.Errorf("row %d: expected active, got %v", i, stateAt(s, i))
		}
		if colorAt(s, i) != p.ClassColor(labels[i]) {
			t.Errorf("row %d: expected %s, got %s", i, p.ClassColor(labels[i]), colorAt(s, i))
		}
	}
	if len(m.Pending()) != 0 {
		t.Error("pending log not cleared")
	}
}

func TestActivePoints(t *testing.T) {
	m, _ := newMachine(t, 0, 0, 1, 1)
	_, _ = m.ApplySelection([]int{0, 1})
	_ = m.Resolve()

	pts, labels := m.ActivePoints()
	if len(pts) != 2 || !reflect.DeepEqual(labels, []int{1, 1}) {
		t.Errorf("unexpected active subset %v %v", pts, labels)
	}
	all, _ := m.AllPoints()
	if len(all) != 4 {
		t.Errorf("expected 4 points, got %d", len(all))
	}
}

func TestStateColumnIsClaimed(t *testing.T) {
	m, s := newMachine(t, 0, 1)
	err := s.Set(map[string]trainscope.Column{trainscope.ColState: trainscope.States{trainscope.Excluded, trainscope.Excluded}})
	if !errors.Is(err, trainscope.ErrColumnClaimed) {
		t.Errorf("expected ErrColumnClaimed, got %v", err)
	}
	if _, err := New(s, trainscope.DefaultPalette()); !errors.Is(err, trainscope.ErrColumnClaimed) {
		t.Errorf("expected second machine to fail, got %v", err)
	}
	m.Close()
	if _, err := New(s, trainscope.DefaultPalette()); err != nil {
		t.Errorf("expected claim after Close, got %v", err)
	}
}
