package modem

import (
	"errors"
	"fmt"
	"time"

	"github.com/LeoCommon/fieldnode/internal/modem/atparser"
)

var (
	// ErrRequestPending is returned when a command is issued while another one
	// still waits for its response. Commands are rejected, never queued.
	ErrRequestPending = errors.New("a request is already pending")
	ErrPayloadSize    = errors.New("payload size out of range")
)

// TimedOutError is returned by the bounded waits when the device did not answer in time
type TimedOutError struct {
	Op    string
	After time.Duration
}

func (t *TimedOutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", t.Op, t.After)
}

func (t *TimedOutError) Is(e error) bool {
	_, ok := e.(*TimedOutError)
	return ok
}

func NewTimedOutError(op string, after time.Duration) error {
	return &TimedOutError{Op: op, After: after}
}

// RejectError carries the error class a device answered a command with
type RejectError struct {
	Command string
	Status  atparser.Status
}

func (r *RejectError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", r.Command, r.Status)
}

func (r *RejectError) Is(e error) bool {
	_, ok := e.(*RejectError)
	return ok
}

func NewRejectError(command string, status atparser.Status) error {
	return &RejectError{Command: command, Status: status}
}
