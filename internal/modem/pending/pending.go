// Package pending tracks the single outstanding request of a device session.
package pending

import (
	"time"

	"github.com/LeoCommon/fieldnode/internal/modem"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind tells the response handlers what the outstanding request was
type Kind string

const (
	KindNone  Kind = ""
	KindPing  Kind = "ping"
	KindFrame Kind = "frame"
	KindJoin  Kind = "join"
	KindTx    Kind = "tx"
)

type State int

const (
	Idle State = iota
	Pending
	Fulfilled
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case TimedOut:
		return "timed out"
	}

	return "unknown"
}

// Tracker holds at most one request. It is not safe for concurrent use, the
// owning session serializes access.
type Tracker struct {
	clk clock.Clock

	active   bool
	kind     Kind
	id       uuid.UUID
	issuedAt uint32
	timeout  uint32

	outcome State
}

func New(clk clock.Clock) *Tracker {
	return &Tracker{clk: clk}
}

// Start registers a new outstanding request
func (t *Tracker) Start(kind Kind, timeout time.Duration) error {
	if t.active {
		return modem.ErrRequestPending
	}

	t.active = true
	t.kind = kind
	t.id = uuid.New()
	t.issuedAt = t.clk.NowMs()
	t.timeout = clock.ToMs(timeout)

	log.Debug("request started", zap.String("kind", string(kind)), zap.String("id", t.id.String()))
	return nil
}

// Poll checks the outstanding request for expiry. A request that timed out
// is dropped and TimedOut is returned once, later calls return Idle.
func (t *Tracker) Poll() State {
	if !t.active {
		return Idle
	}

	if clock.Since(t.clk.NowMs(), t.issuedAt) < t.timeout {
		return Pending
	}

	log.Warn("request timed out",
		zap.String("kind", string(t.kind)),
		zap.String("id", t.id.String()),
		zap.Uint32("timeout_ms", t.timeout))

	t.finish(TimedOut)
	return TimedOut
}

// Fulfill completes the outstanding request, false if there is none
func (t *Tracker) Fulfill() bool {
	if !t.active {
		return false
	}

	log.Debug("request fulfilled", zap.String("kind", string(t.kind)), zap.String("id", t.id.String()))
	t.finish(Fulfilled)
	return true
}

func (t *Tracker) finish(outcome State) {
	t.active = false
	t.kind = KindNone
	t.outcome = outcome
}

func (t *Tracker) Pending() bool {
	return t.active
}

// Kind returns the kind of the outstanding request, KindNone when idle
func (t *Tracker) Kind() Kind {
	return t.kind
}

// ID returns the correlation id of the current or last request
func (t *Tracker) ID() uuid.UUID {
	return t.id
}

// LastOutcome returns how the last finished request ended, Idle if none did yet
func (t *Tracker) LastOutcome() State {
	return t.outcome
}
