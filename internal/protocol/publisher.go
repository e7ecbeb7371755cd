package protocol

import (
	"log/slog"
	"sync"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/internal/metrics"
	"github.com/comalice/trainscope/playback"
)

// Drop reasons reported to metrics.
const (
	dropBackpressure = "backpressure"
	dropEncode       = "encode"
)

// Publisher is a dashboard.Sink that turns session output into frames on
// a buffered channel. Session output never blocks: when the channel is
// full the frame is dropped, and after a dropped store update the next
// change is sent as a full snapshot so the client can resync.
type Publisher struct {
	ch     chan Frame
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	mu     sync.Mutex
	resync bool
}

// NewPublisher creates a Publisher buffering up to size frames.
func NewPublisher(size int, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		ch:     make(chan Frame, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Frames returns the outbound frame channel. It is never closed; stop
// reading once Done is closed.
func (p *Publisher) Frames() <-chan Frame {
	return p.ch
}

// Done is closed by Close.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

func (p *Publisher) Changed(change trainscope.Change, store *trainscope.Store) {
	if p.takeResync() {
		p.Snapshot(store.Snapshot())
		return
	}
	f, err := updateFrame(change, store)
	if err != nil {
		p.logger.Error("encode store update", "error", err)
		metrics.FramesDroppedTotal.WithLabelValues(dropEncode).Inc()
		p.markResync()
		return
	}
	if !p.offer(f) {
		p.markResync()
	}
}

func (p *Publisher) Snapshot(snap trainscope.Snapshot) {
	f, err := newFrame(TypeSnapshot, "", snap)
	if err != nil {
		p.logger.Error("encode store snapshot", "error", err)
		metrics.FramesDroppedTotal.WithLabelValues(dropEncode).Inc()
		p.markResync()
		return
	}
	if p.offer(f) {
		p.mu.Lock()
		p.resync = false
		p.mu.Unlock()
	} else {
		p.markResync()
	}
}

func (p *Publisher) Notice(n trainscope.Notice) {
	p.offer(noticeFrame(n))
}

func (p *Publisher) Status(st playback.Status) {
	p.offer(statusFrame(st))
}

// Reply queues a frame answering the client. It waits for room in the
// buffer and reports false once the publisher is closed.
func (p *Publisher) Reply(f Frame) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.ch <- f:
		return true
	case <-p.done:
		return false
	}
}

// Close releases the writer reading Frames.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.done) })
}

// offer queues f without blocking.
func (p *Publisher) offer(f Frame) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.ch <- f:
		return true
	default:
		metrics.FramesDroppedTotal.WithLabelValues(dropBackpressure).Inc()
		p.logger.Debug("outbound frame dropped", "type", f.Type)
		return false
	}
}

func (p *Publisher) markResync() {
	p.mu.Lock()
	p.resync = true
	p.mu.Unlock()
}

func (p *Publisher) takeResync() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.resync
	p.resync = false
	return r
}
