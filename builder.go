package trainscope

import (
	"fmt"
)

// PointsBuilder provides a fluent API for assembling the initial point
// records of a dashboard store.
type PointsBuilder struct {
	palette Palette
	xs, ys  []float64
	labels  []int
	extra   map[string]Column
	order   []string
	err     error
}

// NewPointsBuilder creates a builder rendering points with palette.
func NewPointsBuilder(palette Palette) *PointsBuilder {
	return &PointsBuilder{
		palette: palette,
		extra:   make(map[string]Column),
	}
}

// Point appends one point.
func (b *PointsBuilder) Point(x, y float64, label int) *PointsBuilder {
	b.xs = append(b.xs, x)
	b.ys = append(b.ys, y)
	b.labels = append(b.labels, label)
	return b
}

// Points appends parallel coordinate and label slices.
func (b *PointsBuilder) Points(xs, ys []float64, labels []int) *PointsBuilder {
	if len(xs) != len(ys) || len(xs) != len(labels) {
		b.fail(fmt.Errorf("%w: points have %d x, %d y, %d labels", ErrSchemaMismatch, len(xs), len(ys), len(labels)))
		return b
	}
	b.xs = append(b.xs, xs...)
	b.ys = append(b.ys, ys...)
	b.labels = append(b.labels, labels...)
	return b
}

// Column adds an extra column, e.g. a metric replayed by playback. It is
// length-checked at Build.
func (b *PointsBuilder) Column(name string, c Column) *PointsBuilder {
	if _, dup := b.extra[name]; dup {
		b.fail(fmt.Errorf("duplicate column %q", name))
		return b
	}
	b.extra[name] = c
	b.order = append(b.order, name)
	return b
}

func (b *PointsBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns a store where every point starts Active with its class color.
func (b *PointsBuilder) Build(opts ...StoreOption) (*Store, error) {
	if b.err != nil {
		return nil, b.err
	}
	n := len(b.xs)
	ids := make(Ints, n)
	states := make(States, n)
	colors := make(Strings, n)
	markers := make(Strings, n)
	for i, label := range b.labels {
		ids[i] = i
		states[i] = Active
		colors[i] = b.palette.ClassColor(label)
		markers[i] = b.palette.ClassMarker(label)
	}

	cols := map[string]Column{
		ColID:     ids,
		ColX:      Floats(append([]float64(nil), b.xs...)),
		ColY:      Floats(append([]float64(nil), b.ys...)),
		ColClass:  Ints(append([]int(nil), b.labels...)),
		ColState:  states,
		ColColor:  colors,
		ColPrev:   colors.Clone(),
		ColSize:   Fill(n, b.palette.Size),
		ColAlpha:  Fill(n, 1),
		ColMarker: markers,
	}
	for _, name := range b.order {
		if _, reserved := cols[name]; reserved {
			return nil, fmt.Errorf("column %q is reserved", name)
		}
		cols[name] = b.extra[name]
	}
	return NewStore(n, cols, opts...)
}
