package trainscope

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
)

// OverlayID is the handle returned by AddOverlay.
type OverlayID uint64

// Overlay is a derived polyline set drawn over the points, such as a
// decision boundary.
type Overlay struct {
	ID    OverlayID        `json:"id"`
	Kind  string           `json:"kind"`
	Lines []orb.LineString `json:"lines"`
}

// Overlay kinds published by the controllers.
const (
	OverlayBoundary         = "boundary"
	OverlayPreviousBoundary = "boundary.previous"
)

// AddOverlay registers lines under a new handle.
func (s *Store) AddOverlay(kind string, lines []orb.LineString) OverlayID {
	s.mu.Lock()
	s.nextOvl++
	id := s.nextOvl
	s.mu.Unlock()

	s.commit(func() Change {
		s.overlays[id] = &Overlay{ID: id, Kind: kind, Lines: lines}
		return Change{Overlays: []OverlayID{id}}
	})
	return id
}

// ReplaceOverlay swaps the lines behind a handle wholesale.
func (s *Store) ReplaceOverlay(id OverlayID, lines []orb.LineString) error {
	s.mu.RLock()
	_, ok := s.overlays[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOverlay, id)
	}
	s.commit(func() Change {
		o, ok := s.overlays[id]
		if !ok {
			return Change{}
		}
		o.Lines = lines
		return Change{Overlays: []OverlayID{id}}
	})
	return nil
}

// RemoveOverlay drops the overlay behind a handle.
func (s *Store) RemoveOverlay(id OverlayID) error {
	s.mu.RLock()
	_, ok := s.overlays[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOverlay, id)
	}
	s.commit(func() Change {
		if _, ok := s.overlays[id]; !ok {
			return Change{}
		}
		delete(s.overlays, id)
		return Change{RemovedOverlays: []OverlayID{id}}
	})
	return nil
}

// Overlay returns a copy of one overlay.
func (s *Store) Overlay(id OverlayID) (Overlay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overlays[id]
	if !ok {
		return Overlay{}, false
	}
	return cloneOverlay(o), true
}

// Overlays returns copies of every overlay ordered by handle.
func (s *Store) Overlays() []Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlaysLocked()
}

func (s *Store) overlaysLocked() []Overlay {
	out := make([]Overlay, 0, len(s.overlays))
	for _, o := range s.overlays {
		out = append(out, cloneOverlay(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneOverlay(o *Overlay) Overlay {
	lines := make([]orb.LineString, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = l.Clone()
	}
	return Overlay{ID: o.ID, Kind: o.Kind, Lines: lines}
}
