// Package boundary recomputes the classifier decision boundary when the
// set of active points changes.
//
// The classifier is a black box behind Service. Controller owns the
// confirm/reset flow: it resolves the pending selection, builds a Request
// from the active points and keeps at most one fit in flight. Results are
// tagged with a generation so only the latest request ever reaches the
// store.
package boundary

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comalice/trainscope/contour"
	"github.com/comalice/trainscope/internal/metrics"
)

var (
	// ErrFitFailed wraps every error reported by a Service.
	ErrFitFailed = errors.New("boundary fit failed")
	// ErrTooFewClasses is returned by callers that skip a fit because the
	// request holds fewer than two distinct labels.
	ErrTooFewClasses = errors.New("at least two classes are required")
)

// Request is one fit request built from the points in the fitting set.
type Request struct {
	Points     []orb.Point
	Labels     []int
	Generation uint64
}

// Classes returns the number of distinct labels in the request.
func (r Request) Classes() int {
	seen := make(map[int]struct{}, 2)
	for _, l := range r.Labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// Service fits a classifier and samples its class probability on a grid.
type Service interface {
	Fit(ctx context.Context, req Request) (contour.Field, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (contour.Field, error)

func (f ServiceFunc) Fit(ctx context.Context, req Request) (contour.Field, error) {
	return f(ctx, req)
}

// Result is the outcome of one fit.
type Result struct {
	Generation uint64
	Field      contour.Field
	Err        error
}

// Runner executes fits. Run must call done exactly once, on the goroutine
// that owns the controller.
type Runner interface {
	Run(ctx context.Context, svc Service, req Request, done func(Result))
}

// SyncRunner fits inline on the caller's goroutine.
type SyncRunner struct{}

func (SyncRunner) Run(ctx context.Context, svc Service, req Request, done func(Result)) {
	done(Fit(ctx, svc, req))
}

// AsyncRunner fits on its own goroutine and hands the result to Post,
// which must run it on the controller's goroutine (e.g. a session loop).
type AsyncRunner struct {
	Post func(func()) bool
}

func (r AsyncRunner) Run(ctx context.Context, svc Service, req Request, done func(Result)) {
	go func() {
		res := Fit(ctx, svc, req)
		if !r.Post(func() { done(res) }) {
			metrics.BoundaryFitsTotal.WithLabelValues(metrics.OutcomeStale).Inc()
		}
	}()
}

// Fit calls svc with tracing and timing. Service errors are wrapped with
// ErrFitFailed.
func Fit(ctx context.Context, svc Service, req Request) Result {
	ctx, span := otel.Tracer("trainscope").Start(ctx, "boundary.Fit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("generation", int64(req.Generation)),
			attribute.Int("points", len(req.Points)),
			attribute.Int("classes", req.Classes()),
		),
	)
	defer span.End()

	timer := prometheus.NewTimer(metrics.BoundaryFitDuration)
	field, err := svc.Fit(ctx, req)
	timer.ObserveDuration()

	if err != nil {
		if !errors.Is(err, ErrFitFailed) {
			err = fmt.Errorf("%w: %w", ErrFitFailed, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{Generation: req.Generation, Err: err}
	}
	span.SetAttributes(
		attribute.Int("grid_width", field.Grid.Width),
		attribute.Int("grid_height", field.Grid.Height),
	)
	return Result{Generation: req.Generation, Field: field}
}
