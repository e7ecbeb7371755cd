// Package protocol carries dashboard commands and store updates over a
// WebSocket as JSON frames.
//
// Every frame is {type, request_id, payload}. Inbound frame types are
// dashboard command types and their payload holds the command arguments.
// Outbound frames acknowledge commands, report errors and stream store
// updates, notices and playback status.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/dashboard"
	"github.com/comalice/trainscope/playback"
)

// Outbound frame types.
const (
	TypeReady    = "session.ready"
	TypeAck      = "ack"
	TypeError    = "error"
	TypeSnapshot = "store.snapshot"
	TypeUpdate   = "store.update"
	TypeNotice   = "notice"
	TypeStatus   = "playback.status"
)

// Error codes.
const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeUnimplemented     = "UNIMPLEMENTED"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
)

// Frame is one WebSocket message.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ReadyPayload opens every connection.
type ReadyPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload describes a rejected frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UpdatePayload carries the columns and overlays touched by one store
// mutation.
type UpdatePayload struct {
	Columns         map[string]trainscope.Column `json:"columns,omitempty"`
	Overlays        []trainscope.Overlay         `json:"overlays,omitempty"`
	RemovedOverlays []trainscope.OverlayID       `json:"removed_overlays,omitempty"`
}

// commandArgs is the payload of an inbound command frame.
type commandArgs struct {
	Indices   []int `json:"indices"`
	Step      int   `json:"step"`
	Direction int   `json:"direction"`
	ColorID   int   `json:"color_id"`
}

// Command decodes an inbound frame into a dashboard command.
func (f Frame) Command() (dashboard.Command, error) {
	var args commandArgs
	if len(f.Payload) > 0 && string(f.Payload) != "null" {
		if err := json.Unmarshal(f.Payload, &args); err != nil {
			return dashboard.Command{}, err
		}
	}
	cmd := dashboard.Command{
		Type:      dashboard.CommandType(f.Type),
		Indices:   args.Indices,
		Step:      args.Step,
		Direction: args.Direction,
		ColorID:   args.ColorID,
	}
	return cmd, cmd.Validate()
}

func newFrame(typ, requestID string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, RequestID: requestID, Payload: raw}, nil
}

func mustFrame(typ, requestID string, payload any) Frame {
	f, err := newFrame(typ, requestID, payload)
	if err != nil {
		return errorFrame(requestID, CodeInternal, "failed to encode "+typ)
	}
	return f
}

func ackFrame(requestID string) Frame {
	return Frame{Type: TypeAck, RequestID: requestID}
}

func errorFrame(requestID, code, message string) Frame {
	raw, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Frame{Type: TypeError, RequestID: requestID, Payload: raw}
}

// commandError maps a session error onto a wire error code.
func commandError(requestID string, err error) Frame {
	switch {
	case errors.Is(err, dashboard.ErrUnknownCommand):
		return errorFrame(requestID, CodeInvalidArgument, "unsupported frame type")
	case errors.Is(err, dashboard.ErrUnsupported):
		return errorFrame(requestID, CodeUnimplemented, err.Error())
	case errors.Is(err, dashboard.ErrClosed):
		return errorFrame(requestID, CodeUnavailable, "session closed")
	default:
		return errorFrame(requestID, CodeInternal, err.Error())
	}
}

func updateFrame(change trainscope.Change, store *trainscope.Store) (Frame, error) {
	p := UpdatePayload{RemovedOverlays: change.RemovedOverlays}
	if len(change.Columns) > 0 {
		p.Columns = make(map[string]trainscope.Column, len(change.Columns))
		for _, name := range change.Columns {
			if c, ok := store.Get(name); ok {
				p.Columns[name] = c
			}
		}
	}
	for _, id := range change.Overlays {
		if o, ok := store.Overlay(id); ok {
			p.Overlays = append(p.Overlays, o)
		}
	}
	return newFrame(TypeUpdate, "", p)
}

func noticeFrame(n trainscope.Notice) Frame {
	return mustFrame(TypeNotice, "", n)
}

func statusFrame(st playback.Status) Frame {
	return mustFrame(TypeStatus, "", st)
}
