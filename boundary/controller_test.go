package boundary_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/selection"
	"github.com/comalice/trainscope/testutil"
)

type fixture struct {
	store   *trainscope.Store
	sel     *selection.Machine
	svc     *testutil.FakeService
	notices *testutil.Notices
	ctrl    *boundary.Controller
}

func newFixture(t *testing.T, labels []int, opts ...boundary.Option) *fixture {
	t.Helper()
	b := trainscope.NewPointsBuilder(trainscope.DefaultPalette())
	for i, l := range labels {
		b.Point(float64(i), float64(l), l)
	}
	store, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	sel, err := selection.New(store, trainscope.DefaultPalette())
	if err != nil {
		t.Fatalf("selection.New failed: %v", err)
	}
	f := &fixture{
		store:   store,
		sel:     sel,
		svc:     &testutil.FakeService{Field: testutil.StepField(testutil.UnitGrid(), 2)},
		notices: &testutil.Notices{},
	}
	opts = append([]boundary.Option{boundary.WithNotifier(f.notices.Notify)}, opts...)
	f.ctrl = boundary.NewController(store, sel, f.svc, opts...)
	return f
}

func (f *fixture) boundaryLines(t *testing.T) trainscope.Overlay {
	t.Helper()
	id, ok := f.ctrl.Overlay()
	if !ok {
		t.Fatal("no boundary overlay")
	}
	o, ok := f.store.Overlay(id)
	if !ok {
		t.Fatal("boundary overlay missing from store")
	}
	return o
}

func TestConfirmRefitsOnRemainingPoints(t *testing.T) {
	f := newFixture(t, []int{0, 1, 0, 1})
	ctx := context.Background()

	if _, err := f.sel.ApplySelection([]int{0, 1}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.sel.Pending(), []int{0, 1}) {
		t.Fatalf("expected pending [0 1], got %v", f.sel.Pending())
	}
	if err := f.ctrl.Confirm(ctx); err != nil {
		t.Fatal(err)
	}

	states := f.store.States(trainscope.ColState)
	if states[0] != trainscope.Excluded || states[1] != trainscope.Excluded {
		t.Errorf("expected rows 0 and 1 excluded, got %v", states)
	}
	reqs := f.svc.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one fit, got %d", len(reqs))
	}
	if !reflect.DeepEqual(reqs[0].Labels, []int{0, 1}) || len(reqs[0].Points) != 2 {
		t.Errorf("unexpected request %+v", reqs[0])
	}
	if reqs[0].Points[0][0] != 2 || reqs[0].Points[1][0] != 3 {
		t.Errorf("expected rows 2 and 3 fitted, got %v", reqs[0].Points)
	}
	o := f.boundaryLines(t)
	if o.Kind != trainscope.OverlayBoundary || len(o.Lines) != 1 {
		t.Errorf("unexpected overlay %+v", o)
	}
	if len(f.notices.Texts()) != 0 {
		t.Errorf("unexpected notices %v", f.notices.Texts())
	}
}

func TestConfirmSingleClassSkipsFit(t *testing.T) {
	f := newFixture(t, []int{1, 1, 1, 1})

	_, _ = f.sel.ApplySelection([]int{2})
	if err := f.ctrl.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(f.svc.Requests()); n != 0 {
		t.Errorf("expected no fit, got %d", n)
	}
	if _, ok := f.ctrl.Overlay(); ok {
		t.Error("expected no overlay")
	}
	if got := f.notices.Texts(); len(got) != 1 || got[0] != boundary.PreconditionText {
		t.Errorf("expected precondition notice, got %v", got)
	}
}

func TestPreconditionKeepsExistingContour(t *testing.T) {
	f := newFixture(t, []int{0, 0, 1, 1})
	ctx := context.Background()
	_ = f.ctrl.Confirm(ctx)
	before := f.boundaryLines(t)

	_, _ = f.sel.ApplySelection([]int{2, 3})
	if err := f.ctrl.Confirm(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(f.svc.Requests()); n != 1 {
		t.Errorf("expected the second fit to be skipped, got %d fits", n)
	}
	if after := f.boundaryLines(t); !reflect.DeepEqual(before, after) {
		t.Errorf("contour changed: %v -> %v", before, after)
	}
	if got := f.notices.Texts(); len(got) != 1 || got[0] != boundary.PreconditionText {
		t.Errorf("expected precondition notice, got %v", got)
	}
}

func TestEmptyConfirmRecomputesQuietly(t *testing.T) {
	f := newFixture(t, []int{0, 1})
	before := f.store.Snapshot()

	if err := f.ctrl.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before.Columns, f.store.Snapshot().Columns) {
		t.Error("empty confirm changed columns")
	}
	if len(f.svc.Requests()) != 1 {
		t.Error("expected a recompute")
	}
	if len(f.notices.Texts()) != 0 {
		t.Errorf("unexpected notices %v", f.notices.Texts())
	}
}

func TestResetRefitsFullSet(t *testing.T) {
	f := newFixture(t, []int{0, 1, 0, 1})
	ctx := context.Background()
	_, _ = f.sel.ApplySelection([]int{0, 1})
	_ = f.ctrl.Confirm(ctx)

	if err := f.ctrl.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	reqs := f.svc.Requests()
	if len(reqs) != 2 || len(reqs[1].Points) != 4 {
		t.Fatalf("expected a refit on 4 points, got %+v", reqs)
	}
	for i, s := range f.store.States(trainscope.ColState) {
		if s != trainscope.Active {
			t.Errorf("row %d: expected active, got %v", i, s)
		}
	}
	// The overlay handle is reused.
	if f.store.Overlays()[0].ID != f.boundaryLines(t).ID || len(f.store.Overlays()) != 1 {
		t.Errorf("expected a single boundary overlay, got %v", f.store.Overlays())
	}
}

func TestStaleResultsDiscarded(t *testing.T) {
	runner := &testutil.HeldRunner{}
	f := newFixture(t, []int{0, 1, 0, 1}, boundary.WithRunner(runner))
	ctx := context.Background()

	_ = f.ctrl.Confirm(ctx) // generation 1 starts
	_ = f.ctrl.Confirm(ctx) // generation 2 queued
	_ = f.ctrl.Confirm(ctx) // generation 3 replaces 2

	if got := runner.Generations(); !reflect.DeepEqual(got, []uint64{1}) {
		t.Fatalf("expected only generation 1 in flight, got %v", got)
	}
	runner.Release(0)
	if _, ok := f.ctrl.Overlay(); ok {
		t.Error("stale result was applied")
	}
	if got := runner.Generations(); !reflect.DeepEqual(got, []uint64{3}) {
		t.Fatalf("expected generation 3 started, got %v", got)
	}
	runner.Release(0)
	if _, ok := f.ctrl.Overlay(); !ok {
		t.Error("latest result was not applied")
	}
	if f.ctrl.Busy() {
		t.Error("controller still busy")
	}

	var gens []uint64
	for _, r := range f.svc.Requests() {
		gens = append(gens, r.Generation)
	}
	if !reflect.DeepEqual(gens, []uint64{1, 3}) {
		t.Errorf("expected fits for generations [1 3], got %v", gens)
	}
}

func TestPreconditionDiscardsInFlightFit(t *testing.T) {
	runner := &testutil.HeldRunner{}
	f := newFixture(t, []int{0, 0, 1, 1}, boundary.WithRunner(runner))
	ctx := context.Background()

	_ = f.ctrl.Confirm(ctx)
	_, _ = f.sel.ApplySelection([]int{0, 1})
	_ = f.ctrl.Confirm(ctx)

	runner.Release(0)
	if _, ok := f.ctrl.Overlay(); ok {
		t.Error("fit older than the skipped request was applied")
	}
	if runner.Len() != 0 {
		t.Error("unexpected fit started")
	}
}

func TestFailureKeepsContour(t *testing.T) {
	f := newFixture(t, []int{0, 1})
	ctx := context.Background()
	_ = f.ctrl.Confirm(ctx)
	before := f.boundaryLines(t)

	f.svc.Err = errors.New("solver diverged")
	if err := f.ctrl.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if after := f.boundaryLines(t); !reflect.DeepEqual(before, after) {
		t.Error("failed fit changed the contour")
	}
	if got := f.notices.Texts(); len(got) != 1 || got[0] != boundary.FailureText {
		t.Errorf("expected failure notice, got %v", got)
	}
}

func TestAsyncRunnerPostsResult(t *testing.T) {
	posted := make(chan func(), 1)
	runner := boundary.AsyncRunner{Post: func(fn func()) bool {
		posted <- fn
		return true
	}}
	f := newFixture(t, []int{0, 1}, boundary.WithRunner(runner))

	_ = f.ctrl.Confirm(context.Background())
	if !f.ctrl.Busy() {
		t.Fatal("expected a fit in flight")
	}
	(<-posted)()
	if f.ctrl.Busy() {
		t.Error("expected fit finished")
	}
	if _, ok := f.ctrl.Overlay(); !ok {
		t.Error("expected overlay")
	}
}
