package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/contour"
	"github.com/comalice/trainscope/internal/metrics"
	"github.com/comalice/trainscope/selection"
)

// Notice texts.
const (
	PreconditionText = "Error: At least two classes are required to fit the model."
	FailureText      = "Error: Failed to fit the decision boundary."
)

// Option configures a Controller.
type Option func(*Controller)

// WithRunner sets how fits are executed. The default is SyncRunner.
func WithRunner(r Runner) Option {
	return func(c *Controller) {
		if r != nil {
			c.runner = r
		}
	}
}

// WithThreshold sets the iso-level extracted from fitted fields.
func WithThreshold(t float64) Option {
	return func(c *Controller) {
		c.threshold = t
	}
}

// WithSimplify enables Douglas-Peucker simplification of extracted contours.
func WithSimplify(tolerance float64) Option {
	return func(c *Controller) {
		c.tolerance = tolerance
	}
}

// WithNotifier sets where user-visible notices go.
func WithNotifier(n trainscope.Notifier) Option {
	return func(c *Controller) {
		c.notify = n
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

type queued struct {
	ctx context.Context
	req Request
}

// Controller runs confirm and reset and keeps the boundary overlay in sync
// with the latest fit. It is not safe for concurrent use.
type Controller struct {
	store     *trainscope.Store
	sel       *selection.Machine
	svc       Service
	runner    Runner
	threshold float64
	tolerance float64
	notify    trainscope.Notifier
	logger    *slog.Logger

	overlay    trainscope.OverlayID
	hasOverlay bool

	generation uint64
	inFlight   bool
	next       *queued
}

// NewController creates a controller fitting with svc.
func NewController(store *trainscope.Store, sel *selection.Machine, svc Service, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		sel:       sel,
		svc:       svc,
		runner:    SyncRunner{},
		threshold: contour.DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm finalizes the pending selection and refits on the active points.
// With an empty pending log only the refit happens.
func (c *Controller) Confirm(ctx context.Context) error {
	if err := c.sel.Resolve(); err != nil {
		return err
	}
	pts, labels := c.sel.ActivePoints()
	c.submit(ctx, pts, labels)
	return nil
}

// Reset makes every point active again and refits on the full point set.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.sel.ResetAll(); err != nil {
		return err
	}
	pts, labels := c.sel.AllPoints()
	c.submit(ctx, pts, labels)
	return nil
}

// Refresh refits on the active points without touching the selection.
func (c *Controller) Refresh(ctx context.Context) {
	pts, labels := c.sel.ActivePoints()
	c.submit(ctx, pts, labels)
}

// Overlay returns the boundary overlay handle once a fit has been applied.
func (c *Controller) Overlay() (trainscope.OverlayID, bool) {
	return c.overlay, c.hasOverlay
}

// Generation returns the generation of the latest request.
func (c *Controller) Generation() uint64 {
	return c.generation
}

// Busy reports whether a fit is in flight.
func (c *Controller) Busy() bool {
	return c.inFlight
}

func (c *Controller) submit(ctx context.Context, pts []orb.Point, labels []int) {
	c.generation++
	req := Request{Points: pts, Labels: labels, Generation: c.generation}

	if c.next != nil {
		metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		c.next = nil
	}
	if req.Classes() < 2 {
		metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomePrecondition).Inc()
		c.logger.Info("boundary fit skipped", "generation", req.Generation, "points", len(pts))
		c.notify.Notify(trainscope.NoticeError, PreconditionText)
		return
	}
	if c.inFlight {
		c.next = &queued{ctx: ctx, req: req}
		return
	}
	c.start(ctx, req)
}

func (c *Controller) start(ctx context.Context, req Request) {
	c.inFlight = true
	c.logger.Debug("boundary fit started", "generation", req.Generation, "points", len(req.Points))
	c.runner.Run(ctx, c.svc, req, c.Apply)
}

// Apply handles a fit result. Results from any generation but the latest
// are discarded. A queued request is started afterwards.
func (c *Controller) Apply(res Result) {
	c.inFlight = false
	defer func() {
		if c.next != nil && !c.inFlight {
			q := c.next
			c.next = nil
			c.start(q.ctx, q.req)
		}
	}()

	if res.Generation != c.generation {
		metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomeStale).Inc()
		c.logger.Debug("stale boundary discarded", "generation", res.Generation, "latest", c.generation)
		return
	}
	if res.Err != nil {
		c.fail(res.Generation, res.Err)
		return
	}

	start := time.Now()
	lines, err := contour.Extract(res.Field, c.threshold)
	metrics.ContourExtractDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.fail(res.Generation, fmt.Errorf("%w: %w", ErrFitFailed, err))
		return
	}
	lines = contour.Simplify(lines, c.tolerance)

	if err := c.show(lines); err != nil {
		c.fail(res.Generation, err)
		return
	}
	metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomeApplied).Inc()
	c.logger.Debug("boundary applied", "generation", res.Generation, "polylines", len(lines))
}

func (c *Controller) show(lines []orb.LineString) error {
	if c.hasOverlay {
		return c.store.ReplaceOverlay(c.overlay, lines)
	}
	c.overlay = c.store.AddOverlay(trainscope.OverlayBoundary, lines)
	c.hasOverlay = true
	return nil
}

func (c *Controller) fail(gen uint64, err error) {
	metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	c.logger.Warn("boundary fit failed", "generation", gen, "error", err)
	c.notify.Notify(trainscope.NoticeError, FailureText)
}
