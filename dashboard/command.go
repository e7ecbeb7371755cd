package dashboard

import (
	"errors"
	"fmt"
)

// CommandType names a dashboard command.
type CommandType string

const (
	CmdSelect      CommandType = "select"
	CmdConfirm     CommandType = "confirm"
	CmdReset       CommandType = "reset"
	CmdSetStep     CommandType = "playback.set_step"
	CmdPlay        CommandType = "playback.play"
	CmdPause       CommandType = "playback.pause"
	CmdStepForward CommandType = "playback.step_forward"
	CmdStepBack    CommandType = "playback.step_back"
	CmdJumpEpoch   CommandType = "playback.jump_epoch"
	CmdRewind      CommandType = "playback.rewind"
	CmdGroupApply  CommandType = "group.apply"
	CmdGroupClear  CommandType = "group.clear"
	CmdSnapshot    CommandType = "snapshot"
)

var (
	// ErrUnknownCommand is returned for command types the session does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUnsupported is returned for commands of a component the session was built without.
	ErrUnsupported = errors.New("command not supported by this dashboard")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")
)

// Command is one user action. Only the fields of its type are read.
type Command struct {
	Type      CommandType `json:"type"`
	Indices   []int       `json:"indices,omitempty"`
	Step      int         `json:"step,omitempty"`
	Direction int         `json:"direction,omitempty"`
	ColorID   int         `json:"color_id,omitempty"`
}

// Validate checks the command type and its arguments.
func (c Command) Validate() error {
	switch c.Type {
	case CmdSelect, CmdConfirm, CmdReset,
		CmdSetStep, CmdPlay, CmdPause, CmdStepForward, CmdStepBack, CmdRewind,
		CmdGroupApply, CmdGroupClear, CmdSnapshot:
		return nil
	case CmdJumpEpoch:
		if c.Direction == 0 {
			return fmt.Errorf("%s: direction must be -1 or 1", c.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}
}
