// Package contour extracts iso-lines from a scalar field sampled on a
// rectangular grid.
//
// The extractor is a pure function: identical inputs always produce the
// same polylines, in the same order, with the same vertices.
package contour

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// DefaultThreshold is the class-probability level of a binary decision boundary.
const DefaultThreshold = 0.5

// ErrFieldShape is returned when the values do not match the grid dimensions.
var ErrFieldShape = errors.New("field shape does not match grid")

// Grid maps grid indices to data coordinates.
type Grid struct {
	XMin   float64 `json:"x_min" yaml:"x_min"`
	XMax   float64 `json:"x_max" yaml:"x_max"`
	YMin   float64 `json:"y_min" yaml:"y_min"`
	YMax   float64 `json:"y_max" yaml:"y_max"`
	Width  int     `json:"width" yaml:"width"`
	Height int     `json:"height" yaml:"height"`
}

// X maps a (possibly fractional) column index to data space.
func (g Grid) X(col float64) float64 {
	return g.XMin + col*(g.XMax-g.XMin)/float64(g.Width)
}

// Y maps a (possibly fractional) row index to data space.
func (g Grid) Y(row float64) float64 {
	return g.YMin + row*(g.YMax-g.YMin)/float64(g.Height)
}

// Field is a scalar field: Values[row][col] with Height rows of Width values.
type Field struct {
	Grid   Grid        `json:"grid" yaml:"grid"`
	Values [][]float64 `json:"values" yaml:"values"`
}

// Validate checks that Values has Height rows of Width values.
func (f Field) Validate() error {
	if f.Grid.Width < 0 || f.Grid.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrFieldShape, f.Grid.Width, f.Grid.Height)
	}
	if len(f.Values) != f.Grid.Height {
		return fmt.Errorf("%w: %d rows, grid height %d", ErrFieldShape, len(f.Values), f.Grid.Height)
	}
	for i, row := range f.Values {
		if len(row) != f.Grid.Width {
			return fmt.Errorf("%w: row %d has %d values, grid width %d", ErrFieldShape, i, len(row), f.Grid.Width)
		}
	}
	return nil
}

// edge identifies a grid edge shared by at most two cells. Horizontal edges
// join (row, col) and (row, col+1); vertical ones join (row, col) and (row+1, col).
type edge struct {
	row, col int
	vertical bool
}

type segment struct {
	a, b edge
}

// Extract traces the threshold iso-line of field with marching squares and
// returns it as polylines in data coordinates. Closed rings repeat their
// first vertex. A field with no crossing yields an empty slice.
func Extract(field Field, threshold float64) ([]orb.LineString, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	h, w := field.Grid.Height, field.Grid.Width
	if h < 2 || w < 2 {
		return []orb.LineString{}, nil
	}

	v := field.Values
	above := func(r, c int) bool { return v[r][c] >= threshold }

	var segs []segment
	for r := 0; r < h-1; r++ {
		for c := 0; c < w-1; c++ {
			tl, tr := above(r, c), above(r, c+1)
			br, bl := above(r+1, c+1), above(r+1, c)

			top := edge{row: r, col: c}
			bottom := edge{row: r + 1, col: c}
			left := edge{row: r, col: c, vertical: true}
			right := edge{row: r, col: c + 1, vertical: true}

			var cross []edge
			if tl != tr {
				cross = append(cross, top)
			}
			if tr != br {
				cross = append(cross, right)
			}
			if bl != br {
				cross = append(cross, bottom)
			}
			if tl != bl {
				cross = append(cross, left)
			}

			switch len(cross) {
			case 2:
				segs = append(segs, segment{cross[0], cross[1]})
			case 4:
				// Saddle: the cell centre decides which diagonal is connected.
				centre := (v[r][c]+v[r][c+1]+v[r+1][c+1]+v[r+1][c])/4 >= threshold
				if centre == tl {
					segs = append(segs, segment{top, right}, segment{bottom, left})
				} else {
					segs = append(segs, segment{left, top}, segment{right, bottom})
				}
			}
		}
	}
	if len(segs) == 0 {
		return []orb.LineString{}, nil
	}

	point := func(e edge) orb.Point {
		r0, c0 := e.row, e.col
		r1, c1 := r0, c0+1
		if e.vertical {
			r1, c1 = r0+1, c0
		}
		a, b := v[r0][c0], v[r1][c1]
		t := 0.5
		if a != b {
			t = (threshold - a) / (b - a)
		}
		row := float64(r0) + t*float64(r1-r0)
		col := float64(c0) + t*float64(c1-c0)
		return orb.Point{field.Grid.X(col), field.Grid.Y(row)}
	}

	return chain(segs, point), nil
}

// chain joins segments sharing an edge into polylines, walking forward
// from each unused segment and then backward from its start.
func chain(segs []segment, point func(edge) orb.Point) []orb.LineString {
	byEdge := make(map[edge][]int, len(segs)*2)
	for i, s := range segs {
		byEdge[s.a] = append(byEdge[s.a], i)
		byEdge[s.b] = append(byEdge[s.b], i)
	}
	used := make([]bool, len(segs))

	next := func(at edge) (edge, bool) {
		for _, i := range byEdge[at] {
			if used[i] {
				continue
			}
			used[i] = true
			if segs[i].a == at {
				return segs[i].b, true
			}
			return segs[i].a, true
		}
		return edge{}, false
	}

	lines := []orb.LineString{}
	for i, s := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		path := []edge{s.a, s.b}

		for {
			e, ok := next(path[len(path)-1])
			if !ok {
				break
			}
			path = append(path, e)
		}
		closed := len(path) > 2 && path[0] == path[len(path)-1]
		if !closed {
			var back []edge
			for {
				at := path[0]
				if len(back) > 0 {
					at = back[len(back)-1]
				}
				e, ok := next(at)
				if !ok {
					break
				}
				back = append(back, e)
			}
			if len(back) > 0 {
				rev := make([]edge, 0, len(back)+len(path))
				for j := len(back) - 1; j >= 0; j-- {
					rev = append(rev, back[j])
				}
				path = append(rev, path...)
			}
		}

		line := make(orb.LineString, len(path))
		for j, e := range path {
			line[j] = point(e)
		}
		lines = append(lines, line)
	}
	return lines
}

// Simplify reduces vertex counts with Douglas-Peucker. A tolerance of zero
// or less returns lines unchanged.
func Simplify(lines []orb.LineString, tolerance float64) []orb.LineString {
	if tolerance <= 0 {
		return lines
	}
	out := make([]orb.LineString, len(lines))
	s := simplify.DouglasPeucker(tolerance)
	for i, l := range lines {
		out[i] = s.LineString(l.Clone())
	}
	return out
}
