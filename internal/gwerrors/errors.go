// Package gwerrors defines the error taxonomy shared across the gateway's
// transport and HTTP layers, so callers can map a failure to a close code
// or HTTP status without string-matching messages.
package gwerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	BadParam Kind = iota
	NotFound
	InvalidState
	Timeout
	Upstream
	IO
	PeerClosed
	ProtocolViolation
	CapacityExhausted
)

func (k Kind) String() string {
	switch k {
	case BadParam:
		return "bad_param"
	case NotFound:
		return "not_found"
	case InvalidState:
		return "invalid_state"
	case Timeout:
		return "timeout"
	case Upstream:
		return "upstream"
	case IO:
		return "io"
	case PeerClosed:
		return "peer_closed"
	case ProtocolViolation:
		return "protocol_violation"
	case CapacityExhausted:
		return "capacity_exhausted"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so handlers can decide how
// to present it, while still letting errors.Cause unwrap to the original.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, msg: msg}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, err: errors.Wrapf(err, "%s", msg)}
}

// CloseCode maps a Kind to the WebSocket close code the external
// interfaces section assigns it.
func CloseCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return 1000
	}
	switch e.Kind {
	case BadParam, ProtocolViolation:
		return 4003
	case Timeout, PeerClosed:
		return 4010
	case Upstream, IO:
		return 4011
	case CapacityExhausted:
		return 4005
	default:
		return 1000
	}
}

// HTTPStatus maps a Kind to the status code the HTTP action surface uses.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return 500
	}
	switch e.Kind {
	case BadParam, InvalidState, ProtocolViolation:
		return 400
	case NotFound:
		return 404
	default:
		return 500
	}
}
