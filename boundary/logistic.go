package boundary

import (
	"context"
	"fmt"
	"math"

	"github.com/comalice/trainscope/contour"
)

// Logistic is a reference Service: a binary logistic regression trained by
// batch gradient descent on standardized coordinates. The returned field is
// the probability of the higher label, sampled on a Size x Size grid that
// covers the points padded by Padding on every side.
type Logistic struct {
	Iterations   int
	LearningRate float64
	Padding      float64
	Size         int
}

// NewLogistic returns a Logistic with the dashboard defaults.
func NewLogistic() *Logistic {
	return &Logistic{
		Iterations:   500,
		LearningRate: 0.5,
		Padding:      1,
		Size:         100,
	}
}

func (l *Logistic) Fit(ctx context.Context, req Request) (contour.Field, error) {
	if len(req.Points) != len(req.Labels) {
		return contour.Field{}, fmt.Errorf("%w: %d points, %d labels", ErrFitFailed, len(req.Points), len(req.Labels))
	}
	hi, classes := labelRange(req.Labels)
	if classes != 2 {
		return contour.Field{}, fmt.Errorf("%w: logistic model needs 2 classes, got %d", ErrFitFailed, classes)
	}

	n := float64(len(req.Points))
	var mx, my float64
	for _, p := range req.Points {
		mx += p[0]
		my += p[1]
	}
	mx, my = mx/n, my/n
	var sx, sy float64
	for _, p := range req.Points {
		sx += (p[0] - mx) * (p[0] - mx)
		sy += (p[1] - my) * (p[1] - my)
	}
	sx, sy = nonZero(math.Sqrt(sx/n)), nonZero(math.Sqrt(sy/n))

	var w0, w1, b float64
	for it := 0; it < l.Iterations; it++ {
		if it%50 == 0 {
			if err := ctx.Err(); err != nil {
				return contour.Field{}, err
			}
		}
		var g0, g1, gb float64
		for i, p := range req.Points {
			x0, x1 := (p[0]-mx)/sx, (p[1]-my)/sy
			y := 0.0
			if req.Labels[i] == hi {
				y = 1
			}
			d := sigmoid(w0*x0+w1*x1+b) - y
			g0 += d * x0
			g1 += d * x1
			gb += d
		}
		w0 -= l.LearningRate * g0 / n
		w1 -= l.LearningRate * g1 / n
		b -= l.LearningRate * gb / n
	}

	grid := boundsGrid(req, l.Padding, l.Size)
	values := make([][]float64, grid.Height)
	for row := range values {
		values[row] = make([]float64, grid.Width)
		y := (grid.Y(float64(row)) - my) / sy
		for col := range values[row] {
			x := (grid.X(float64(col)) - mx) / sx
			values[row][col] = sigmoid(w0*x + w1*y + b)
		}
	}
	return contour.Field{Grid: grid, Values: values}, nil
}

func boundsGrid(req Request, pad float64, size int) contour.Grid {
	g := contour.Grid{
		XMin: math.Inf(1), XMax: math.Inf(-1),
		YMin: math.Inf(1), YMax: math.Inf(-1),
		Width: size, Height: size,
	}
	for _, p := range req.Points {
		g.XMin = math.Min(g.XMin, p[0])
		g.XMax = math.Max(g.XMax, p[0])
		g.YMin = math.Min(g.YMin, p[1])
		g.YMax = math.Max(g.YMax, p[1])
	}
	g.XMin -= pad
	g.XMax += pad
	g.YMin -= pad
	g.YMax += pad
	return g
}

// labelRange returns the highest label and the number of distinct labels.
func labelRange(labels []int) (hi, classes int) {
	seen := make(map[int]struct{})
	for i, l := range labels {
		if i == 0 || l > hi {
			hi = l
		}
		seen[l] = struct{}{}
	}
	return hi, len(seen)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
