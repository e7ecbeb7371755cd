package selection

import (
	"testing"

	"github.com/comalice/trainscope"
)

func TestApplyGroupColor(t *testing.T) {
	p := trainscope.DefaultPalette()
	var notices []trainscope.Notice
	b := trainscope.NewPointsBuilder(p)
	for i := 0; i < 4; i++ {
		b.Point(float64(i), 0, i%2)
	}
	s, _ := b.Build()
	m, err := New(s, p, WithNotifier(func(n trainscope.Notice) { notices = append(notices, n) }))
	if err != nil {
		t.Fatal(err)
	}

	m.Select([]int{1, 2})
	if err := m.ApplyGroupColor(0); err != nil {
		t.Fatal(err)
	}

	colors := s.Strings(trainscope.ColColor)
	alphas := s.Floats(trainscope.ColAlpha)
	sizes := s.Floats(trainscope.ColSize)
	for _, i := range []int{1, 2} {
		if colors[i] != p.Trackers[0] || alphas[i] != 1 || sizes[i] != p.TrackedSize {
			t.Errorf("row %d: expected tracked point, got %s/%v/%v", i, colors[i], alphas[i], sizes[i])
		}
	}
	for _, i := range []int{0, 3} {
		if colors[i] != p.Excluded || alphas[i] != p.FadedAlpha {
			t.Errorf("row %d: expected faded, got %s/%v", i, colors[i], alphas[i])
		}
	}
	for i, st := range s.States(trainscope.ColState) {
		if st != trainscope.Active {
			t.Errorf("row %d: group color changed state to %v", i, st)
		}
	}

	// A second group keeps the first one.
	m.Select([]int{0})
	_ = m.ApplyGroupColor(1)
	colors = s.Strings(trainscope.ColColor)
	if colors[0] != p.Trackers[1] || colors[1] != p.Trackers[0] {
		t.Errorf("expected both groups kept, got %v", colors)
	}

	if len(notices) != 0 {
		t.Errorf("unexpected notices %v", notices)
	}
}

func TestApplyGroupColorNeedsSelection(t *testing.T) {
	var notices []trainscope.Notice
	s, _ := trainscope.NewPointsBuilder(trainscope.DefaultPalette()).Point(0, 0, 0).Build()
	m, _ := New(s, trainscope.DefaultPalette(), WithNotifier(func(n trainscope.Notice) { notices = append(notices, n) }))

	changes := 0
	s.Subscribe(func(trainscope.Change) { changes++ })

	_ = m.ApplyGroupColor(0)
	m.Select([]int{0})
	_ = m.ApplyGroupColor(42)

	if changes != 0 {
		t.Errorf("expected no store change, got %d", changes)
	}
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %v", notices)
	}
	if notices[0].Text != "No points selected to apply color." {
		t.Errorf("unexpected notice %q", notices[0].Text)
	}
}

func TestClearGroups(t *testing.T) {
	p := trainscope.DefaultPalette()
	s, _ := trainscope.NewPointsBuilder(p).Point(0, 0, 0).Point(1, 0, 1).Point(2, 0, 1).Build()
	m, _ := New(s, p)

	_, _ = m.ApplySelection([]int{2})
	_ = m.Resolve() // row 2 excluded
	m.Select([]int{0})
	_ = m.ApplyGroupColor(3)

	if err := m.ClearGroups(); err != nil {
		t.Fatal(err)
	}
	colors := s.Strings(trainscope.ColColor)
	want := []string{"blue", "green", "grey"}
	for i := range want {
		if colors[i] != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], colors[i])
		}
		if s.Floats(trainscope.ColAlpha)[i] != 1 || s.Floats(trainscope.ColSize)[i] != p.Size {
			t.Errorf("row %d: alpha/size not restored", i)
		}
	}
	if len(m.Selected()) != 0 {
		t.Error("selection not cleared")
	}
}

func TestApplyGroupColorKeepsPendingMarks(t *testing.T) {
	p := trainscope.DefaultPalette()
	m, s := newMachine(t, 0, 1, 0, 1)

	if _, err := m.ApplySelection([]int{0}); err != nil {
		t.Fatal(err)
	}
	m.Select([]int{1})
	if err := m.ApplyGroupColor(0); err != nil {
		t.Fatal(err)
	}
	if got, alpha := colorAt(s, 0), s.Floats(trainscope.ColAlpha)[0]; got != p.PendingRemove || alpha != 1 {
		t.Errorf("pending point faded to %s/%v", got, alpha)
	}
	if got := colorAt(s, 2); got != p.Excluded {
		t.Errorf("active point not faded, got %s", got)
	}

	// Undo restores the class color the point had before it was marked.
	if _, err := m.ApplySelection([]int{0}); err != nil {
		t.Fatal(err)
	}
	if stateAt(s, 0) != trainscope.Active || colorAt(s, 0) != p.ClassColor(0) {
		t.Errorf("undo gave %v/%s, want active/%s", stateAt(s, 0), colorAt(s, 0), p.ClassColor(0))
	}
}
