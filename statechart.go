package trainscope

import (
	"context"
	"errors"
	"fmt"
)

// ModeID identifies a controller mode, e.g. Paused or Playing.
type ModeID int

// TriggerID identifies an input that may move a controller between modes.
type TriggerID int

type Trigger struct {
	ID      TriggerID
	Payload any
}

type Action func(ctx context.Context, trg *Trigger, from ModeID, to ModeID) error
type Guard func(ctx context.Context, trg *Trigger, from ModeID, to ModeID) (bool, error)

// ---

type Mode struct {
	ID          ModeID
	Name        string
	Transitions []*Transition
	EntryAction Action
	ExitAction  Action
	Initial     bool
}

type Transition struct {
	Trigger TriggerID
	Source  *Mode
	Target  *Mode // nil --> internal transition, no exit/entry
	Guard   Guard
	Action  Action
}

// Machine is a flat mode machine used by the controllers. It is not safe
// for concurrent use; controllers drive it from the session loop.
type Machine struct {
	modes   map[ModeID]*Mode
	order   []*Mode
	current *Mode
	started bool
}

var (
	errNoModes     = errors.New("no modes provided")
	errNotStarted  = errors.New("machine not started")
	errUnknownMode = errors.New("unknown mode")
)

//
// Public API
//

func (m *Mode) OnEntry(action Action) {
	m.EntryAction = action
}

func (m *Mode) OnExit(action Action) {
	m.ExitAction = action
}

// On adds a transition for trigger. target nil makes it internal.
func (m *Mode) On(trigger TriggerID, target *Mode, guard Guard, action Action) {
	m.Transitions = append(m.Transitions, &Transition{
		Trigger: trigger,
		Source:  m,
		Target:  target,
		Guard:   guard,
		Action:  action,
	})
}

func NewMachine(modes ...*Mode) (*Machine, error) {
	if len(modes) == 0 {
		return nil, errNoModes
	}
	m := &Machine{modes: map[ModeID]*Mode{}}

	var initial *Mode
	for _, md := range modes {
		if md == nil {
			return nil, errors.New("nil mode")
		}
		if _, exists := m.modes[md.ID]; exists {
			return nil, fmt.Errorf("duplicate mode ID %d", md.ID)
		}
		m.modes[md.ID] = md
		m.order = append(m.order, md)
		if md.Initial {
			if initial != nil {
				return nil, errors.New("more than one initial mode")
			}
			initial = md
		}
	}
	if initial == nil {
		initial = modes[0] // First mode is assigned as initial.
	}
	m.current = initial

	for _, md := range modes {
		for _, t := range md.Transitions {
			if t == nil {
				continue
			}
			if t.Source == nil {
				t.Source = md
			}
			if t.Target != nil {
				if _, ok := m.modes[t.Target.ID]; !ok {
					return nil, fmt.Errorf("%w: transition target %d", errUnknownMode, t.Target.ID)
				}
			}
		}
	}
	return m, nil
}

// Start enters the initial mode.
func (m *Machine) Start(ctx context.Context) error {
	if m.started {
		return nil
	}
	m.started = true
	return m.current.enter(ctx, nil, m.current.ID, m.current.ID)
}

// Current returns the active mode.
func (m *Machine) Current() ModeID {
	return m.current.ID
}

// In reports whether id is the active mode.
func (m *Machine) In(id ModeID) bool {
	return m.current.ID == id
}

// Send fires trigger. Triggers with no matching transition are ignored and
// report false.
func (m *Machine) Send(ctx context.Context, trg Trigger) (bool, error) {
	if !m.started {
		return false, errNotStarted
	}
	t := m.pick(&trg)
	if t == nil {
		return false, nil
	}
	next, moved, err := t.fire(ctx, &trg)
	m.current = next
	return moved, err
}

//
// Helper Functions (internal API)
//

func (md *Mode) enter(ctx context.Context, trg *Trigger, from, to ModeID) error {
	if md.EntryAction != nil {
		return md.EntryAction(ctx, trg, from, to)
	}
	return nil
}

func (md *Mode) exit(ctx context.Context, trg *Trigger, from, to ModeID) error {
	if md.ExitAction != nil {
		return md.ExitAction(ctx, trg, from, to)
	}
	return nil
}

// pick grabs the first transition of the current mode matching the trigger.
func (m *Machine) pick(trg *Trigger) *Transition {
	for _, t := range m.current.Transitions {
		if t != nil && t.Trigger == trg.ID {
			return t
		}
	}
	return nil
}

// fire runs guard, exit, action and entry in that order and returns the
// resulting mode.
func (t *Transition) fire(ctx context.Context, trg *Trigger) (*Mode, bool, error) {
	target := t.Target
	internal := target == nil
	if internal {
		target = t.Source
	}

	if t.Guard != nil {
		pass, err := t.Guard(ctx, trg, t.Source.ID, target.ID)
		if err != nil || !pass {
			return t.Source, false, err
		}
	}

	if internal {
		if t.Action != nil {
			if err := t.Action(ctx, trg, t.Source.ID, target.ID); err != nil {
				return t.Source, false, err
			}
		}
		return t.Source, true, nil
	}

	if err := t.Source.exit(ctx, trg, t.Source.ID, target.ID); err != nil {
		return t.Source, false, err
	}

	if t.Action != nil {
		if err := t.Action(ctx, trg, t.Source.ID, target.ID); err != nil {
			// Rewind into the source mode.
			if rerr := t.Source.enter(ctx, nil, t.Source.ID, t.Source.ID); rerr != nil {
				return t.Source, false, rerr
			}
			return t.Source, false, err
		}
	}

	if err := target.enter(ctx, trg, t.Source.ID, target.ID); err != nil {
		return t.Source, false, err
	}
	return target, true, nil
}
