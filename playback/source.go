package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/contour"
	"github.com/comalice/trainscope/internal/metrics"
	"github.com/comalice/trainscope/trajectory"
)

// Frame is what one step puts into the store. A live frame skipped with
// boundary.ErrTooFewClasses still carries the step's columns.
type Frame struct {
	Columns map[string]trainscope.Column
	Lines   []orb.LineString
}

// Source produces the frames of a playback.
type Source interface {
	Mode() string
	Len() int
	BatchesPerEpoch() int
	// Schema lists the columns every frame sets.
	Schema() map[string]trajectory.Kind
	Frame(ctx context.Context, step int) (Frame, error)
}

// Replay reads frames from a validated trajectory cache.
type Replay struct {
	cache     *trajectory.Cache
	threshold float64
}

// NewReplay replays cache. Steps carrying a field instead of a contour are
// contoured at threshold.
func NewReplay(cache *trajectory.Cache, threshold float64) *Replay {
	return &Replay{cache: cache, threshold: threshold}
}

func (r *Replay) Mode() string         { return "replay" }
func (r *Replay) Len() int             { return r.cache.Len() }
func (r *Replay) BatchesPerEpoch() int { return r.cache.BatchesPerEpoch }

func (r *Replay) EpochMetrics(epoch int) map[string]float64 {
	return r.cache.EpochMetrics(epoch)
}

func (r *Replay) Schema() map[string]trajectory.Kind {
	return r.cache.Steps[0].Schema()
}

func (r *Replay) Frame(_ context.Context, step int) (Frame, error) {
	st := r.cache.Steps[step]
	cols := make(map[string]trainscope.Column, len(st.Floats)+len(st.Strings))
	for name, v := range st.Floats {
		cols[name] = trainscope.Floats(v)
	}
	for name, v := range st.Strings {
		cols[name] = trainscope.Strings(v)
	}

	lines := st.Contour
	if len(lines) == 0 && st.Field != nil {
		start := time.Now()
		extracted, err := contour.Extract(*st.Field, r.threshold)
		metrics.ContourExtractDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return Frame{}, fmt.Errorf("step %d: %w", step, err)
		}
		lines = extracted
	}
	return Frame{Columns: cols, Lines: lines}, nil
}

// LiveSource describes a playback whose boundaries are fitted on demand.
type LiveSource interface {
	Len() int
	BatchesPerEpoch() int
	Schema() map[string]trajectory.Kind
	// Request returns the fit request of step and the columns it sets.
	Request(step int) (boundary.Request, map[string]trainscope.Column, error)
}

// Live fits every step with a boundary service.
type Live struct {
	src       LiveSource
	svc       boundary.Service
	threshold float64
}

// NewLive fits the steps of src with svc and contours the result at
// threshold.
func NewLive(src LiveSource, svc boundary.Service, threshold float64) *Live {
	return &Live{src: src, svc: svc, threshold: threshold}
}

func (l *Live) Mode() string                       { return "live" }
func (l *Live) Len() int                           { return l.src.Len() }
func (l *Live) BatchesPerEpoch() int               { return l.src.BatchesPerEpoch() }
func (l *Live) Schema() map[string]trajectory.Kind { return l.src.Schema() }

func (l *Live) Frame(ctx context.Context, step int) (Frame, error) {
	req, cols, err := l.src.Request(step)
	if err != nil {
		return Frame{}, err
	}
	if req.Classes() < 2 {
		metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomePrecondition).Inc()
		return Frame{Columns: cols}, fmt.Errorf("step %d: %w", step, boundary.ErrTooFewClasses)
	}
	res := boundary.Fit(ctx, l.svc, req)
	if res.Err != nil {
		return Frame{}, res.Err
	}
	lines, err := contour.Extract(res.Field, l.threshold)
	if err != nil {
		return Frame{}, fmt.Errorf("step %d: %w", step, err)
	}
	return Frame{Columns: cols, Lines: lines}, nil
}

// ColSeen marks the points a live step was fitted on.
const ColSeen = "seen"

// Growing is a LiveSource that trains on one more batch of points at every
// step, in point order. All steps form a single epoch.
type Growing struct {
	points    []orb.Point
	labels    []int
	batchSize int
	steps     int
}

// NewGrowing splits points into batches of batchSize. Step n fits the
// first n+1 batches.
func NewGrowing(points []orb.Point, labels []int, batchSize int) (*Growing, error) {
	if len(points) != len(labels) {
		return nil, fmt.Errorf("%w: %d points, %d labels", trainscope.ErrSchemaMismatch, len(points), len(labels))
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Growing{
		points:    points,
		labels:    labels,
		batchSize: batchSize,
		steps:     (len(points) + batchSize - 1) / batchSize,
	}, nil
}

func (g *Growing) Len() int             { return g.steps }
func (g *Growing) BatchesPerEpoch() int { return g.steps }

func (g *Growing) Schema() map[string]trajectory.Kind {
	return map[string]trajectory.Kind{ColSeen: trajectory.KindFloat}
}

func (g *Growing) Request(step int) (boundary.Request, map[string]trainscope.Column, error) {
	n := (step + 1) * g.batchSize
	if n > len(g.points) {
		n = len(g.points)
	}
	seen := make(trainscope.Floats, len(g.points))
	for i := 0; i < n; i++ {
		seen[i] = 1
	}
	req := boundary.Request{
		Points:     g.points[:n:n],
		Labels:     g.labels[:n:n],
		Generation: uint64(step),
	}
	return req, map[string]trainscope.Column{ColSeen: seen}, nil
}
