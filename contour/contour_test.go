package contour

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

func rampField() Field {
	// Values increase with the column index; the 1.5 iso-line is vertical.
	return Field{
		Grid: Grid{XMin: 0, XMax: 4, YMin: 0, YMax: 3, Width: 4, Height: 3},
		Values: [][]float64{
			{0, 1, 2, 3},
			{0, 1, 2, 3},
			{0, 1, 2, 3},
		},
	}
}

func TestExtractVerticalLine(t *testing.T) {
	lines, err := Extract(rampField(), 1.5)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 polyline, got %d", len(lines))
	}
	want := orb.LineString{{1.5, 0}, {1.5, 1}, {1.5, 2}}
	if !reflect.DeepEqual(lines[0], want) {
		t.Errorf("unexpected polyline:\n got %v\nwant %v", lines[0], want)
	}
}

func TestExtractMapsIndicesToDataSpace(t *testing.T) {
	f := rampField()
	f.Grid = Grid{XMin: -2, XMax: 6, YMin: 10, YMax: 16, Width: 4, Height: 3}
	lines, err := Extract(f, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	// x = -2 + 1.5*8/4, y = 10 + row*6/3
	want := orb.LineString{{1, 10}, {1, 12}, {1, 14}}
	if !reflect.DeepEqual(lines[0], want) {
		t.Errorf("unexpected mapping:\n got %v\nwant %v", lines[0], want)
	}
}

func TestExtractClosedRing(t *testing.T) {
	f := Field{
		Grid: Grid{XMin: 0, XMax: 3, YMin: 0, YMax: 3, Width: 3, Height: 3},
		Values: [][]float64{
			{0, 0, 0},
			{0, 1, 0},
			{0, 0, 0},
		},
	}
	lines, err := Extract(f, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(lines))
	}
	ring := lines[0]
	if len(ring) != 5 {
		t.Fatalf("expected 4 vertices plus closing vertex, got %d", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("ring not closed: %v", ring)
	}
	for _, p := range ring {
		dx, dy := math.Abs(p[0]-1), math.Abs(p[1]-1)
		if dx+dy != 0.5 {
			t.Errorf("vertex %v not half a cell away from the peak", p)
		}
	}
}

func TestExtractSaddle(t *testing.T) {
	f := Field{
		Grid:   Grid{XMin: 0, XMax: 2, YMin: 0, YMax: 2, Width: 2, Height: 2},
		Values: [][]float64{{1, 0}, {0, 1}},
	}
	lines, err := Extract(f, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected saddle to split into 2 polylines, got %d", len(lines))
	}
	for _, l := range lines {
		if len(l) != 2 {
			t.Errorf("expected 2-vertex segment, got %v", l)
		}
	}
}

func TestExtractNoCrossing(t *testing.T) {
	for name, value := range map[string]float64{"above": 0.9, "below": 0.1} {
		t.Run(name, func(t *testing.T) {
			values := make([][]float64, 5)
			for i := range values {
				values[i] = []float64{value, value, value, value}
			}
			f := Field{Grid: Grid{XMax: 1, YMax: 1, Width: 4, Height: 5}, Values: values}
			lines, err := Extract(f, DefaultThreshold)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if lines == nil || len(lines) != 0 {
				t.Errorf("expected empty non-nil slice, got %v", lines)
			}
		})
	}
}

func TestExtractDegenerateGrid(t *testing.T) {
	f := Field{Grid: Grid{XMax: 1, YMax: 1, Width: 3, Height: 1}, Values: [][]float64{{0, 1, 0}}}
	lines, err := Extract(f, DefaultThreshold)
	if err != nil || len(lines) != 0 {
		t.Errorf("expected empty result for single row, got %v err %v", lines, err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	f := Field{
		Grid: Grid{XMin: -1, XMax: 1, YMin: -1, YMax: 1, Width: 20, Height: 20},
	}
	f.Values = make([][]float64, 20)
	for r := range f.Values {
		f.Values[r] = make([]float64, 20)
		for c := range f.Values[r] {
			x, y := f.Grid.X(float64(c)), f.Grid.Y(float64(r))
			f.Values[r][c] = math.Sin(3*x) * math.Cos(2*y)
		}
	}
	first, err := Extract(f, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Extract(f, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) == 0 {
		t.Fatal("expected some polylines")
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Extract is not deterministic")
	}
}

func TestExtractShapeMismatch(t *testing.T) {
	f := rampField()
	f.Values = f.Values[:2]
	if _, err := Extract(f, 1); !errors.Is(err, ErrFieldShape) {
		t.Errorf("expected ErrFieldShape for missing row, got %v", err)
	}

	f = rampField()
	f.Values[1] = f.Values[1][:3]
	if _, err := Extract(f, 1); !errors.Is(err, ErrFieldShape) {
		t.Errorf("expected ErrFieldShape for short row, got %v", err)
	}
}

func TestSimplify(t *testing.T) {
	lines := []orb.LineString{{{0, 0}, {1, 0.001}, {2, 0}, {3, 0}}}
	got := Simplify(lines, 0.01)
	if len(got[0]) != 2 {
		t.Errorf("expected collinear vertices removed, got %v", got[0])
	}
	if len(lines[0]) != 4 {
		t.Error("Simplify mutated its input")
	}
	if same := Simplify(lines, 0); len(same[0]) != 4 {
		t.Error("zero tolerance must not simplify")
	}
}

func BenchmarkExtract(b *testing.B) {
	const n = 100
	f := Field{Grid: Grid{XMin: -3, XMax: 3, YMin: -3, YMax: 3, Width: n, Height: n}}
	f.Values = make([][]float64, n)
	for r := range f.Values {
		f.Values[r] = make([]float64, n)
		for c := range f.Values[r] {
			x, y := f.Grid.X(float64(c)), f.Grid.Y(float64(r))
			f.Values[r][c] = 1 / (1 + math.Exp(-(x*x - y)))
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Extract(f, DefaultThreshold); err != nil {
			b.Fatal(err)
		}
	}
}
