// Package benchmarks provides shared helpers for the dashboard benchmarks.
package benchmarks

import (
	"math"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/comalice/trainscope/contour"
	"github.com/comalice/trainscope/trajectory"
)

// GenField creates a size x size field over [-2,2]^2 whose 0.5 iso-line is
// the unit circle.
func GenField(size int) contour.Field {
	g := contour.Grid{XMin: -2, XMax: 2, YMin: -2, YMax: 2, Width: size, Height: size}
	values := make([][]float64, size)
	for row := range values {
		values[row] = make([]float64, size)
		for col := range values[row] {
			r := math.Hypot(g.X(float64(col)), g.Y(float64(row)))
			values[row][col] = 1 / (1 + math.Exp(4*(r-1)))
		}
	}
	return contour.Field{Grid: g, Values: values}
}

// GenCache creates a validated cache of n demo points and steps steps, each
// with a loss column and a straight boundary drifting right.
func GenCache(n, steps int) *trajectory.Cache {
	c := &trajectory.Cache{BatchesPerEpoch: 10, Points: trajectory.TwoBlobs(n, 1)}
	for s := 0; s < steps; s++ {
		loss := make([]float64, n)
		for i := range loss {
			loss[i] = 1 / float64(s+i+1)
		}
		x := -1 + 2*float64(s)/float64(steps)
		c.Steps = append(c.Steps, trajectory.Step{
			Floats:  map[string][]float64{"loss": loss},
			Contour: []orb.LineString{{{x, -2}, {x, 2}}},
		})
	}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// GenCacheYAML returns GenCache(n, steps) as a YAML document.
func GenCacheYAML(n, steps int) []byte {
	data, err := yaml.Marshal(GenCache(n, steps))
	if err != nil {
		panic(err)
	}
	return data
}
