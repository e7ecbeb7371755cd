// Package trajectory holds the precomputed training history replayed by
// the dashboards: one step per recorded batch, each with its per-point
// metric columns and its decision boundary.
//
// A Cache is loaded once through a Persister, validated, and then treated
// as immutable and shared by every session.
package trajectory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope/contour"
)

// ErrInvalidCache is returned by Validate.
var ErrInvalidCache = errors.New("invalid trajectory cache")

// Points are the base point records shared by every step.
type Points struct {
	X     []float64 `json:"x" yaml:"x"`
	Y     []float64 `json:"y" yaml:"y"`
	Class []int     `json:"class" yaml:"class"`
}

// Len returns the number of points.
func (p Points) Len() int {
	return len(p.X)
}

// Step is the derived view recorded for one training batch. Contour takes
// precedence over Field when both are set.
type Step struct {
	Floats  map[string][]float64 `json:"floats,omitempty" yaml:"floats,omitempty"`
	Strings map[string][]string  `json:"strings,omitempty" yaml:"strings,omitempty"`
	Contour []orb.LineString     `json:"contour,omitempty" yaml:"contour,omitempty"`
	Field   *contour.Field       `json:"field,omitempty" yaml:"field,omitempty"`
}

// Cache is the step-indexed training history. Metrics holds run-level
// series such as test accuracy, one value per epoch.
type Cache struct {
	BatchesPerEpoch int                  `json:"batches_per_epoch" yaml:"batches_per_epoch"`
	Points          Points               `json:"points" yaml:"points"`
	Steps           []Step               `json:"steps" yaml:"steps"`
	Metrics         map[string][]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Kind is the kind of a step column.
type Kind string

const (
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Validate checks that points are aligned, that every step has the same
// columns as the first one, that every column has one value per point and
// that every metric series has one value per epoch. A non-positive
// BatchesPerEpoch is normalized to 1.
func (c *Cache) Validate() error {
	n := c.Points.Len()
	if len(c.Points.Y) != n || len(c.Points.Class) != n {
		return fmt.Errorf("%w: points have %d x, %d y, %d class values",
			ErrInvalidCache, n, len(c.Points.Y), len(c.Points.Class))
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidCache)
	}
	if c.BatchesPerEpoch <= 0 {
		c.BatchesPerEpoch = 1
	}

	schema := c.Steps[0].Schema()
	for i, st := range c.Steps {
		if err := st.validate(n, schema); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrInvalidCache, i, err)
		}
	}
	epochs := c.Epochs()
	for name, v := range c.Metrics {
		if len(v) != epochs {
			return fmt.Errorf("%w: metric %q has %d values, want %d", ErrInvalidCache, name, len(v), epochs)
		}
	}
	return nil
}

func (s Step) validate(n int, schema map[string]Kind) error {
	if len(s.Floats)+len(s.Strings) != len(schema) {
		return fmt.Errorf("has %d columns, want %d", len(s.Floats)+len(s.Strings), len(schema))
	}
	for name, v := range s.Floats {
		if schema[name] != KindFloat {
			return fmt.Errorf("unexpected float column %q", name)
		}
		if len(v) != n {
			return fmt.Errorf("column %q has %d values, want %d", name, len(v), n)
		}
	}
	for name, v := range s.Strings {
		if schema[name] != KindString {
			return fmt.Errorf("unexpected string column %q", name)
		}
		if len(v) != n {
			return fmt.Errorf("column %q has %d values, want %d", name, len(v), n)
		}
	}
	if s.Field != nil {
		if err := s.Field.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Schema returns the column names of the step and their kinds.
func (s Step) Schema() map[string]Kind {
	out := make(map[string]Kind, len(s.Floats)+len(s.Strings))
	for name := range s.Floats {
		out[name] = KindFloat
	}
	for name := range s.Strings {
		out[name] = KindString
	}
	return out
}

// Len returns the number of steps.
func (c *Cache) Len() int {
	return len(c.Steps)
}

// Epoch returns the epoch that step belongs to.
func (c *Cache) Epoch(step int) int {
	bpe := c.BatchesPerEpoch
	if bpe <= 0 {
		bpe = 1
	}
	return step / bpe
}

// Epochs returns the number of epochs covered by the steps.
func (c *Cache) Epochs() int {
	if len(c.Steps) == 0 {
		return 0
	}
	return c.Epoch(len(c.Steps)-1) + 1
}

// EpochMetrics returns the value of every metric series at epoch, or nil
// when the cache has no series or epoch is out of range.
func (c *Cache) EpochMetrics(epoch int) map[string]float64 {
	if len(c.Metrics) == 0 || epoch < 0 {
		return nil
	}
	out := make(map[string]float64, len(c.Metrics))
	for name, v := range c.Metrics {
		if epoch >= len(v) {
			return nil
		}
		out[name] = v[epoch]
	}
	return out
}

// Summary describes a cache without its data.
type Summary struct {
	Points          int      `json:"points"`
	Steps           int      `json:"steps"`
	BatchesPerEpoch int      `json:"batches_per_epoch"`
	Epochs          int      `json:"epochs"`
	FloatColumns    []string `json:"float_columns"`
	StringColumns   []string `json:"string_columns"`
	Metrics         []string `json:"metrics"`
	Contours        int      `json:"contours"`
	Fields          int      `json:"fields"`
}

// Summary counts the steps carrying contours or fields and lists the step
// columns and metric series in sorted order.
func (c *Cache) Summary() Summary {
	s := Summary{
		Points:          c.Points.Len(),
		Steps:           len(c.Steps),
		BatchesPerEpoch: c.BatchesPerEpoch,
		Epochs:          c.Epochs(),
		FloatColumns:    []string{},
		StringColumns:   []string{},
		Metrics:         []string{},
	}
	for name := range c.Metrics {
		s.Metrics = append(s.Metrics, name)
	}
	sort.Strings(s.Metrics)
	if len(c.Steps) > 0 {
		for name, kind := range c.Steps[0].Schema() {
			if kind == KindFloat {
				s.FloatColumns = append(s.FloatColumns, name)
			} else {
				s.StringColumns = append(s.StringColumns, name)
			}
		}
		sort.Strings(s.FloatColumns)
		sort.Strings(s.StringColumns)
	}
	for _, st := range c.Steps {
		if len(st.Contour) > 0 {
			s.Contours++
		}
		if st.Field != nil {
			s.Fields++
		}
	}
	return s
}
