// Package testutil provides fixtures shared by the package tests: scripted
// boundary services and runners, a manual clock for playback timers and a
// notice recorder.
package testutil

import (
	"context"
	"sync"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/contour"
)

// StepField returns a field on grid that is 0 left of column split and 1
// from it onwards, so its 0.5 iso-line is vertical.
func StepField(grid contour.Grid, split int) contour.Field {
	values := make([][]float64, grid.Height)
	for row := range values {
		values[row] = make([]float64, grid.Width)
		for col := split; col < grid.Width; col++ {
			values[row][col] = 1
		}
	}
	return contour.Field{Grid: grid, Values: values}
}

// UnitGrid is a 4x4 grid over [0,4]x[0,4].
func UnitGrid() contour.Grid {
	return contour.Grid{XMax: 4, YMax: 4, Width: 4, Height: 4}
}

// FakeService records requests and answers with Field, or Err when set.
type FakeService struct {
	mu       sync.Mutex
	Field    contour.Field
	Err      error
	requests []boundary.Request
}

func (s *FakeService) Fit(_ context.Context, req boundary.Request) (contour.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return contour.Field{}, s.Err
	}
	return s.Field, nil
}

// Requests returns the requests received so far.
func (s *FakeService) Requests() []boundary.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]boundary.Request(nil), s.requests...)
}

// HeldRunner keeps every fit until Release is called, so tests choose when
// and in which order results arrive.
type HeldRunner struct {
	held []heldFit
}

type heldFit struct {
	ctx  context.Context
	svc  boundary.Service
	req  boundary.Request
	done func(boundary.Result)
}

func (r *HeldRunner) Run(ctx context.Context, svc boundary.Service, req boundary.Request, done func(boundary.Result)) {
	r.held = append(r.held, heldFit{ctx: ctx, svc: svc, req: req, done: done})
}

// Len returns the number of fits not yet released.
func (r *HeldRunner) Len() int {
	return len(r.held)
}

// Generations returns the generations of the held fits in start order.
func (r *HeldRunner) Generations() []uint64 {
	out := make([]uint64, len(r.held))
	for i, h := range r.held {
		out[i] = h.req.Generation
	}
	return out
}

// Release runs the i-th held fit and delivers its result.
func (r *HeldRunner) Release(i int) {
	h := r.held[i]
	r.held = append(r.held[:i:i], r.held[i+1:]...)
	h.done(boundary.Fit(h.ctx, h.svc, h.req))
}

// Notices records notices in arrival order.
type Notices struct {
	mu   sync.Mutex
	list []trainscope.Notice
}

// Notify is a trainscope.Notifier.
func (n *Notices) Notify(notice trainscope.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notice)
}

// Texts returns the recorded notice texts.
func (n *Notices) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.list))
	for i, notice := range n.list {
		out[i] = notice.Text
	}
	return out
}
