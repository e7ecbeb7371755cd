package boundary

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope/contour"
)

func TestLogisticSeparatesBlobs(t *testing.T) {
	req := Request{
		Points: []orb.Point{{0, 0}, {0, 2}, {0.5, 1}, {3.5, 0}, {3.5, 2}, {3, 1}},
		Labels: []int{0, 0, 0, 1, 1, 1},
	}
	field, err := NewLogistic().Fit(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if field.Grid.Width != 100 || field.Grid.Height != 100 {
		t.Errorf("unexpected grid %+v", field.Grid)
	}
	if field.Grid.XMin != -1 || field.Grid.XMax != 4.5 {
		t.Errorf("expected padded x range [-1, 4.5], got [%v, %v]", field.Grid.XMin, field.Grid.XMax)
	}
	if field.Values[50][0] > 0.5 || field.Values[50][99] < 0.5 {
		t.Error("expected the higher label on the right")
	}

	lines, err := contour.Extract(field, contour.DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) == 0 {
		t.Fatal("expected a boundary")
	}
	for _, l := range lines {
		for _, p := range l {
			if math.Abs(p[0]-1.75) > 0.1 {
				t.Fatalf("boundary vertex %v not between the blobs", p)
			}
		}
	}
}

func TestLogisticNeedsTwoClasses(t *testing.T) {
	req := Request{
		Points: []orb.Point{{0, 0}, {1, 1}, {2, 2}},
		Labels: []int{0, 1, 2},
	}
	if _, err := NewLogistic().Fit(context.Background(), req); !errors.Is(err, ErrFitFailed) {
		t.Errorf("expected ErrFitFailed, got %v", err)
	}
}

func TestLogisticHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := Request{Points: []orb.Point{{0, 0}, {1, 1}}, Labels: []int{0, 1}}
	res := Fit(ctx, NewLogistic(), req)
	if !errors.Is(res.Err, ErrFitFailed) || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected wrapped cancellation, got %v", res.Err)
	}
}
