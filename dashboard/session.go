// Package dashboard wires a store and its controllers into one session
// per connected dashboard.
//
// A Session owns a single goroutine that runs every command, playback
// tick and boundary result in arrival order, so controllers never run
// concurrently. What the session produces (store changes, notices,
// playback status) goes to a Sink, called from that goroutine.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/contour"
	"github.com/comalice/trainscope/internal/metrics"
	"github.com/comalice/trainscope/playback"
	"github.com/comalice/trainscope/selection"
	"github.com/comalice/trainscope/trajectory"
)

// Sink receives the output of a session. Changed runs inside the store
// observer, so the changed columns and overlays can be read from store.
type Sink interface {
	Changed(change trainscope.Change, store *trainscope.Store)
	Snapshot(snap trainscope.Snapshot)
	Notice(n trainscope.Notice)
	Status(st playback.Status)
}

// SelectMode decides what a select command does.
type SelectMode int

const (
	// SelectToggle toggles the membership of the selected points.
	SelectToggle SelectMode = iota
	// SelectRecord only records the selection, e.g. for tracker groups.
	SelectRecord
)

// Option configures a Session.
type Option func(*Session)

// WithService enables confirm and reset, fitting boundaries with svc.
func WithService(svc boundary.Service) Option {
	return func(s *Session) {
		s.svc = svc
	}
}

// WithReplay enables playback of a validated trajectory cache.
func WithReplay(cache *trajectory.Cache) Option {
	return func(s *Session) {
		s.cache = cache
	}
}

// WithLive enables playback fitting every step of src with svc.
func WithLive(src playback.LiveSource, svc boundary.Service) Option {
	return func(s *Session) {
		s.live = src
		s.liveSvc = svc
	}
}

// WithSelectMode sets what select commands do.
func WithSelectMode(m SelectMode) Option {
	return func(s *Session) {
		s.selectMode = m
	}
}

// WithThreshold sets the boundary iso-level.
func WithThreshold(t float64) Option {
	return func(s *Session) {
		s.threshold = t
	}
}

// WithSimplify sets the Douglas-Peucker tolerance for fitted boundaries.
func WithSimplify(tolerance float64) Option {
	return func(s *Session) {
		s.tolerance = tolerance
	}
}

// WithTickInterval sets the playback interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		s.interval = d
	}
}

// WithScheduler replaces the playback timer. Scheduled functions are
// posted into the session loop.
func WithScheduler(sched playback.Scheduler) Option {
	return func(s *Session) {
		s.scheduler = sched
	}
}

// WithSyncFits fits boundaries inline on the session goroutine instead of
// on a worker goroutine.
func WithSyncFits() Option {
	return func(s *Session) {
		s.syncFits = true
	}
}

// WithPalette sets the point palette.
func WithPalette(p trainscope.Palette) Option {
	return func(s *Session) {
		s.palette = p
	}
}

// WithSink sets where the session output goes.
func WithSink(sink Sink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithQueueSize sets the job queue buffer size.
func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is one dashboard: a store, its controllers and the loop that
// drives them.
type Session struct {
	id     string
	store  *trainscope.Store
	sel    *selection.Machine
	bnd    *boundary.Controller
	player *playback.Controller

	svc        boundary.Service
	cache      *trajectory.Cache
	live       playback.LiveSource
	liveSvc    boundary.Service
	selectMode SelectMode
	threshold  float64
	tolerance  float64
	interval   time.Duration
	scheduler  playback.Scheduler
	syncFits   bool
	palette    trainscope.Palette
	sink       Sink
	queueSize  int
	logger     *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	jobs        chan func()
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

// New builds a session over points and starts its loop. When a boundary
// service is configured the first boundary is fitted right away.
func New(ctx context.Context, points trajectory.Points, opts ...Option) (*Session, error) {
	s := &Session{
		id:        uuid.NewString(),
		threshold: contour.DefaultThreshold,
		interval:  playback.DefaultInterval,
		palette:   trainscope.DefaultPalette(),
		sink:      nopSink{},
		queueSize: 256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	if s.cache != nil && s.live != nil {
		return nil, fmt.Errorf("session: replay and live playback are exclusive")
	}

	store, err := trainscope.NewPointsBuilder(s.palette).
		Points(points.X, points.Y, points.Class).
		Build(trainscope.WithStoreLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.store = store

	notify := trainscope.Notifier(s.notice)
	s.sel, err = selection.New(store, s.palette, selection.WithLogger(s.logger), selection.WithNotifier(notify))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.jobs = make(chan func(), s.queueSize)
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	if s.svc != nil {
		var runner boundary.Runner = boundary.AsyncRunner{Post: s.Post}
		if s.syncFits {
			runner = boundary.SyncRunner{}
		}
		s.bnd = boundary.NewController(store, s.sel, s.svc,
			boundary.WithRunner(runner),
			boundary.WithThreshold(s.threshold),
			boundary.WithSimplify(s.tolerance),
			boundary.WithNotifier(notify),
			boundary.WithLogger(s.logger),
		)
	}

	if src := s.playbackSource(); src != nil {
		sched := playback.Posted(s.Post)
		if s.scheduler != nil {
			sched = s.posted(s.scheduler)
		}
		s.player, err = playback.New(s.ctx, store, src,
			playback.WithInterval(s.interval),
			playback.WithScheduler(sched),
			playback.WithNotifier(notify),
			playback.WithLogger(s.logger),
			playback.OnStatus(func(st playback.Status) { s.sink.Status(st) }),
		)
		if err != nil {
			s.cancel()
			s.sel.Close()
			return nil, fmt.Errorf("session: %w", err)
		}
	}

	s.unsubscribe = store.Subscribe(func(c trainscope.Change) {
		s.sink.Changed(c, store)
	})

	go s.interpret()
	metrics.SessionsActive.Inc()
	s.logger.Info("session started", "points", store.Len(), "boundary", s.bnd != nil, "playback", s.player != nil)

	if s.bnd != nil {
		s.Post(func() { s.bnd.Refresh(s.ctx) })
	}
	return s, nil
}

func (s *Session) playbackSource() playback.Source {
	switch {
	case s.cache != nil:
		return playback.NewReplay(s.cache, s.threshold)
	case s.live != nil:
		return playback.NewLive(s.live, s.liveSvc, s.threshold)
	}
	return nil
}

// posted wraps sched so that scheduled functions run on the loop.
func (s *Session) posted(sched playback.Scheduler) playback.Scheduler {
	return func(d time.Duration, fn func()) func() {
		return sched(d, func() { s.Post(fn) })
	}
}

// ID returns the session UUID.
func (s *Session) ID() string {
	return s.id
}

// Store returns the session store. Reads are safe from any goroutine.
func (s *Session) Store() *trainscope.Store {
	return s.store
}

// interpret is the session loop.
func (s *Session) interpret() {
	defer close(s.stopped)
	for {
		select {
		case job := <-s.jobs:
			s.run(job)
		case <-s.done:
			return
		}
	}
}

func (s *Session) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session job panicked", "panic", r)
		}
	}()
	job()
}

// Post queues fn on the loop. It blocks while the queue is full and
// reports false once the session is closed.
func (s *Session) Post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.jobs <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Dispatch queues cmd without waiting for it. Errors are reported as
// error notices.
func (s *Session) Dispatch(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if !s.Post(func() {
		if err := s.handle(cmd); err != nil {
			s.notice(trainscope.Notice{Level: trainscope.NoticeError, Text: err.Error()})
		}
	}) {
		return ErrClosed
	}
	return nil
}

// Do runs cmd on the loop and waits for its result.
func (s *Session) Do(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	result := make(chan error, 1)
	if !s.Post(func() { result <- s.handle(cmd) }) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Sync waits until every job queued before it has run.
func (s *Session) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !s.Post(func() { close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// handle runs on the loop.
func (s *Session) handle(cmd Command) error {
	metrics.CommandsTotal.WithLabelValues(string(cmd.Type)).Inc()
	err := s.apply(cmd)
	if err != nil {
		metrics.CommandErrorsTotal.WithLabelValues(string(cmd.Type)).Inc()
		s.logger.Warn("command failed", "type", cmd.Type, "error", err)
	}
	return err
}

func (s *Session) apply(cmd Command) error {
	switch cmd.Type {
	case CmdSelect:
		if s.selectMode == SelectRecord {
			s.sel.Select(cmd.Indices)
			return nil
		}
		_, err := s.sel.ApplySelection(cmd.Indices)
		return err
	case CmdConfirm:
		if s.bnd == nil {
			return unsupported(cmd)
		}
		return s.bnd.Confirm(s.ctx)
	case CmdReset:
		if s.bnd == nil {
			return unsupported(cmd)
		}
		return s.bnd.Reset(s.ctx)
	case CmdGroupApply:
		return s.sel.ApplyGroupColor(cmd.ColorID)
	case CmdGroupClear:
		return s.sel.ClearGroups()
	case CmdSnapshot:
		s.sink.Snapshot(s.store.Snapshot())
		if s.player != nil {
			s.sink.Status(s.player.Status())
		}
		return nil
	}

	if s.player == nil {
		return unsupported(cmd)
	}
	switch cmd.Type {
	case CmdSetStep:
		return s.player.SetStep(cmd.Step)
	case CmdPlay:
		return s.player.Play()
	case CmdPause:
		return s.player.Pause()
	case CmdStepForward:
		return s.player.StepForward()
	case CmdStepBack:
		return s.player.StepBack()
	case CmdJumpEpoch:
		return s.player.JumpEpoch(cmd.Direction)
	case CmdRewind:
		return s.player.Rewind()
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

func unsupported(cmd Command) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, cmd.Type)
}

func (s *Session) notice(n trainscope.Notice) {
	s.sink.Notice(n)
}

// Close stops the loop, cancels timers and in-flight fits and releases
// the store. It must not be called from the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		<-s.stopped
		if s.player != nil {
			s.player.Close()
		}
		s.unsubscribe()
		s.sel.Close()
		metrics.SessionsActive.Dec()
		s.logger.Info("session closed")
	})
}

type nopSink struct{}

func (nopSink) Changed(trainscope.Change, *trainscope.Store) {}
func (nopSink) Snapshot(trainscope.Snapshot)                 {}
func (nopSink) Notice(trainscope.Notice)                     {}
func (nopSink) Status(playback.Status)                       {}
