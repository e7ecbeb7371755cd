// Package playback steps a dashboard through recorded training history.
//
// A Controller is Paused or Playing. While playing, a tick fires every
// interval and advances one step; reaching the last step pauses. Every
// step change swaps the step's columns and boundary into the store and
// reports a Status.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/internal/metrics"
	"github.com/comalice/trainscope/trajectory"
)

// Controller modes.
const (
	Paused trainscope.ModeID = iota
	Playing
)

const (
	triggerPlay trainscope.TriggerID = iota
	triggerPause
)

// DefaultInterval is the time between two ticks while playing.
const DefaultInterval = 100 * time.Millisecond

// Notice texts.
const (
	LastStepText  = "Already at the last step."
	FirstStepText = "Already at the first step."
	FailureText   = "Error: Failed to load the training step."
)

// Status is the playback position reported after every change. Metrics
// holds the run-level metrics of the current epoch when the source has
// them.
type Status struct {
	Mode    string             `json:"mode"`
	Step    int                `json:"step"`
	Steps   int                `json:"steps"`
	Epoch   int                `json:"epoch"`
	Epochs  int                `json:"epochs"`
	Playing bool               `json:"playing"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// EpochMetrics is implemented by sources that carry run-level metrics.
type EpochMetrics interface {
	EpochMetrics(epoch int) map[string]float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithScheduler sets how ticks are scheduled. The default uses
// time.AfterFunc and runs ticks on the timer goroutine.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.schedule = s
		}
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

// OnStatus registers a listener called after every step or mode change.
func OnStatus(fn func(Status)) Option {
	return func(c *Controller) {
		c.listeners = append(c.listeners, fn)
	}
}

// Controller drives playback of a Source into a store. It is not safe for
// concurrent use: commands and ticks must arrive on one goroutine.
type Controller struct {
	ctx       context.Context
	store     *trainscope.Store
	src       Source
	machine   *trainscope.Machine
	schedule  Scheduler
	interval  time.Duration
	notify    trainscope.Notifier
	logger    *slog.Logger
	listeners []func(Status)

	step   int
	token  uint64
	cancel func()

	shown     []orb.LineString
	current   trainscope.OverlayID
	previous  trainscope.OverlayID
	installed bool
}

// New checks src against store, starts paused and shows step 0.
func New(ctx context.Context, store *trainscope.Store, src Source, opts ...Option) (*Controller, error) {
	if src.Len() == 0 {
		return nil, fmt.Errorf("playback source %q has no steps", src.Mode())
	}
	if err := checkSchema(store, src.Schema()); err != nil {
		return nil, err
	}

	c := &Controller{
		ctx:      ctx,
		store:    store,
		src:      src,
		schedule: AfterFunc,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	paused := &trainscope.Mode{ID: Paused, Name: "paused", Initial: true}
	playing := &trainscope.Mode{ID: Playing, Name: "playing"}
	paused.On(triggerPlay, playing, c.canAdvance, nil)
	playing.On(triggerPause, paused, nil, nil)
	playing.OnEntry(func(context.Context, *trainscope.Trigger, trainscope.ModeID, trainscope.ModeID) error {
		c.arm()
		return nil
	})
	playing.OnExit(func(context.Context, *trainscope.Trigger, trainscope.ModeID, trainscope.ModeID) error {
		c.disarm()
		return nil
	})

	m, err := trainscope.NewMachine(paused, playing)
	if err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	c.machine = m

	if err := c.SetStep(0); err != nil {
		return nil, err
	}
	return c, nil
}

// checkSchema rejects sources whose columns clash with the store: a
// column of another kind or a column owned by a writer. Row counts are
// checked when step 0 is applied.
func checkSchema(store *trainscope.Store, schema map[string]trajectory.Kind) error {
	for name, kind := range schema {
		if store.Claimed(name) {
			return fmt.Errorf("%w: playback sets %q: %w", trainscope.ErrSchemaMismatch, name, trainscope.ErrColumnClaimed)
		}
		existing, ok := store.Get(name)
		if !ok {
			continue
		}
		var match bool
		switch kind {
		case trajectory.KindFloat:
			_, match = existing.(trainscope.Floats)
		case trajectory.KindString:
			_, match = existing.(trainscope.Strings)
		}
		if !match {
			return fmt.Errorf("%w: column %q is %T, playback sets %s", trainscope.ErrSchemaMismatch, name, existing, kind)
		}
	}
	return nil
}

// Status returns the current position.
func (c *Controller) Status() Status {
	st := Status{
		Mode:    c.src.Mode(),
		Step:    c.step,
		Steps:   c.src.Len(),
		Epoch:   c.epoch(c.step),
		Epochs:  c.epoch(c.last()) + 1,
		Playing: c.machine.In(Playing),
	}
	if m, ok := c.src.(EpochMetrics); ok {
		st.Metrics = m.EpochMetrics(st.Epoch)
	}
	return st
}

// Step returns the current step.
func (c *Controller) Step() int {
	return c.step
}

// Playing reports whether ticks are running.
func (c *Controller) Playing() bool {
	return c.machine.In(Playing)
}

// SetStep clamps n into [0, S-1] and shows that step. Setting the current
// step again reapplies it.
func (c *Controller) SetStep(n int) error {
	n = clamp(n, 0, c.last())
	frame, err := c.src.Frame(c.ctx, n)
	if errors.Is(err, boundary.ErrTooFewClasses) {
		return c.showColumns(n, frame)
	}
	if err != nil {
		c.logger.Warn("playback step failed", "step", n, "mode", c.src.Mode(), "error", err)
		c.notify.Notify(trainscope.NoticeError, FailureText)
		if c.machine.In(Playing) {
			return c.Pause()
		}
		return nil
	}

	if err := c.store.Set(frame.Columns); err != nil {
		return fmt.Errorf("set step %d: %w", n, err)
	}
	if err := c.showLines(frame.Lines); err != nil {
		return fmt.Errorf("set step %d: %w", n, err)
	}
	c.step = n
	metrics.PlaybackStepsTotal.WithLabelValues(c.src.Mode()).Inc()
	c.publish()
	return nil
}

// showColumns moves to step n without a new boundary: the boundary shown
// stays and the user is told why.
func (c *Controller) showColumns(n int, frame Frame) error {
	c.logger.Info("playback step not fitted", "step", n, "mode", c.src.Mode())
	c.notify.Notify(trainscope.NoticeError, boundary.PreconditionText)
	if err := c.store.Set(frame.Columns); err != nil {
		return fmt.Errorf("set step %d: %w", n, err)
	}
	if !c.installed {
		if err := c.showLines(nil); err != nil {
			return fmt.Errorf("set step %d: %w", n, err)
		}
	}
	c.step = n
	metrics.PlaybackStepsTotal.WithLabelValues(c.src.Mode()).Inc()
	c.publish()
	return nil
}

// showLines replaces the boundary overlay and moves the boundary shown
// before it to the previous-boundary overlay.
func (c *Controller) showLines(lines []orb.LineString) error {
	if !c.installed {
		c.current = c.store.AddOverlay(trainscope.OverlayBoundary, lines)
		c.previous = c.store.AddOverlay(trainscope.OverlayPreviousBoundary, nil)
		c.installed = true
		c.shown = lines
		return nil
	}
	if err := c.store.ReplaceOverlay(c.previous, c.shown); err != nil {
		return err
	}
	if err := c.store.ReplaceOverlay(c.current, lines); err != nil {
		return err
	}
	c.shown = lines
	return nil
}

// Play starts ticking from the current step. At the last step it reports
// a notice and stays paused.
func (c *Controller) Play() error {
	if c.machine.In(Playing) {
		return nil
	}
	moved, err := c.machine.Send(c.ctx, trainscope.Trigger{ID: triggerPlay})
	if err != nil {
		return err
	}
	if !moved {
		c.notify.Notify(trainscope.NoticeInfo, LastStepText)
		return nil
	}
	c.publish()
	return nil
}

// Pause stops ticking. A tick already scheduled becomes a no-op.
func (c *Controller) Pause() error {
	moved, err := c.machine.Send(c.ctx, trainscope.Trigger{ID: triggerPause})
	if err != nil {
		return err
	}
	if moved {
		c.publish()
	}
	return nil
}

// StepForward shows the next step. While playing, ticks carry on from
// there.
func (c *Controller) StepForward() error {
	if c.step >= c.last() {
		c.notify.Notify(trainscope.NoticeInfo, LastStepText)
		return nil
	}
	return c.SetStep(c.step + 1)
}

// StepBack shows the previous step.
func (c *Controller) StepBack() error {
	if c.step <= 0 {
		c.notify.Notify(trainscope.NoticeInfo, FirstStepText)
		return nil
	}
	return c.SetStep(c.step - 1)
}

// JumpEpoch moves one epoch worth of steps forward (direction > 0) or
// back (direction < 0). SetStep clamps the target.
func (c *Controller) JumpEpoch(direction int) error {
	switch {
	case direction > 0:
		direction = 1
	case direction < 0:
		direction = -1
	default:
		return nil
	}
	return c.SetStep(c.step + direction*c.batchesPerEpoch())
}

// Rewind pauses and returns to step 0.
func (c *Controller) Rewind() error {
	if err := c.Pause(); err != nil {
		return err
	}
	return c.SetStep(0)
}

// Close cancels any scheduled tick.
func (c *Controller) Close() {
	c.disarm()
}

func (c *Controller) canAdvance(context.Context, *trainscope.Trigger, trainscope.ModeID, trainscope.ModeID) (bool, error) {
	return c.step < c.last(), nil
}

func (c *Controller) arm() {
	c.token++
	tok := c.token
	c.cancel = c.schedule(c.interval, func() { c.tick(tok) })
}

func (c *Controller) disarm() {
	c.token++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// tick advances one step. Ticks carrying an old token were cancelled
// after they had been scheduled and do nothing.
func (c *Controller) tick(tok uint64) {
	if tok != c.token || !c.machine.In(Playing) {
		return
	}
	c.cancel = nil

	if c.step < c.last() {
		if err := c.SetStep(c.step + 1); err != nil {
			c.logger.Error("playback tick failed", "step", c.step+1, "error", err)
			_ = c.Pause()
			return
		}
	}
	if !c.machine.In(Playing) {
		return
	}
	if c.step >= c.last() {
		if err := c.Pause(); err != nil {
			c.logger.Error("playback auto-pause failed", "error", err)
		}
		return
	}
	c.arm()
}

func (c *Controller) publish() {
	st := c.Status()
	for _, fn := range c.listeners {
		fn(st)
	}
}

func (c *Controller) last() int {
	return c.src.Len() - 1
}

func (c *Controller) batchesPerEpoch() int {
	if bpe := c.src.BatchesPerEpoch(); bpe > 0 {
		return bpe
	}
	return 1
}

func (c *Controller) epoch(step int) int {
	return step / c.batchesPerEpoch()
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
