// Package sigfox drives an AX-SFEU Sigfox modem over its AT command interface.
package sigfox

import (
	"fmt"
	"sync"
	"time"

	"github.com/LeoCommon/fieldnode/internal/modem"
	"github.com/LeoCommon/fieldnode/internal/modem/atparser"
	"github.com/LeoCommon/fieldnode/internal/modem/framer"
	"github.com/LeoCommon/fieldnode/internal/modem/pending"
	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"go.uber.org/zap"
)

const (
	MaxMessageSize = 64
	MaxPayloadSize = 12

	DefaultNetworkTimeout = 60 * time.Second
	DefaultPingTimeout    = time.Second

	AtSendFrame = "AT$SF="
	AtPing      = "AT\r\n"
	AtAckSuffix = ",1"
)

type Options struct {
	MaxFrameSize   int
	NetworkTimeout time.Duration
	PingTimeout    time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = MaxMessageSize
	}

	if o.NetworkTimeout <= 0 {
		o.NetworkTimeout = DefaultNetworkTimeout
	}

	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
}

type Session struct {
	mu sync.Mutex

	t       transport.Transport
	clk     clock.Clock
	opts    Options
	framer  *framer.Framer
	tracker *pending.Tracker

	rx          *bytebuf.Buffer
	hasDownlink bool
	malformed   int
}

var _ modem.Session = (*Session)(nil)

func New(t transport.Transport, clk clock.Clock, opts Options) *Session {
	opts.applyDefaults()

	return &Session{
		t:    t,
		clk:  clk,
		opts: opts,
		framer: framer.New(framer.Options{
			Terminator:        '\n',
			IncludeTerminator: true,
			MaxFrameSize:      opts.MaxFrameSize,
		}),
		tracker: pending.New(clk),
		rx:      &bytebuf.Buffer{},
	}
}

// Update processes everything the modem sent since the last call and
// reports whether a new downlink arrived
func (s *Session) Update() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracker.Poll()
	return s.drain()
}

func (s *Session) drain() bool {
	received := false

	err := s.framer.Drain(s.t, func(frame *bytebuf.Buffer) {
		if s.handleFrame(frame) {
			received = true
		}
	})
	if err != nil {
		log.Error("reading from sigfox modem failed", zap.Error(err))
	}

	return received
}

// handleFrame dispatches one "\r\n" terminated reply, true for a downlink
func (s *Session) handleFrame(frame *bytebuf.Buffer) bool {
	n := frame.Len()
	if cr, _ := frame.At(n - 2); n < 3 || cr != '\r' {
		s.malformed++
		log.Debug("dropping malformed frame", zap.String("session", "sigfox"), zap.ByteString("frame", frame.Bytes()))
		return false
	}

	frame.Resize(n-2, 0)
	line := frame.Bytes()

	switch {
	case atparser.IsSigfoxOK(line):
		s.tracker.Fulfill()
	case atparser.IsSigfoxRX(line):
		s.rx = bytebuf.FromHex(frame.SplitAt(len(atparser.SigfoxRX)))
		s.hasDownlink = true
		log.Info("sigfox downlink received", zap.Int("size", s.rx.Len()))
		return true
	default:
		log.Debug("unhandled sigfox reply", zap.String("session", "sigfox"), zap.ByteString("line", line))
	}

	return false
}

// SendFrame transmits 1 to 12 bytes. With ack set the modem opens a downlink
// window after the uplink.
func (s *Session) SendFrame(payload []byte, ack bool) error {
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return modem.ErrPayloadSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker.Poll() == pending.Pending {
		return modem.ErrRequestPending
	}

	cmd := bytebuf.FromString(AtSendFrame)
	cmd.AppendBuffer(bytebuf.FromBytes(payload).AsHex(0))
	if ack {
		cmd.AppendBytes([]byte(AtAckSuffix))
	}
	cmd.Append('\n')

	if _, err := s.t.Write(cmd.Bytes()); err != nil {
		return fmt.Errorf("writing sigfox frame: %w", err)
	}

	log.Debug("sigfox frame sent", zap.Int("size", len(payload)), zap.Bool("ack", ack))
	return s.tracker.Start(pending.KindFrame, s.opts.NetworkTimeout)
}

// IsDeviceConnected pings the modem and waits for its OK. A modem that does
// not answer within the ping timeout is reported as absent.
func (s *Session) IsDeviceConnected() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker.Poll() == pending.Pending {
		return false, modem.ErrRequestPending
	}

	if _, err := s.t.Write([]byte(AtPing)); err != nil {
		return false, fmt.Errorf("pinging sigfox modem: %w", err)
	}

	if err := s.tracker.Start(pending.KindPing, s.opts.PingTimeout); err != nil {
		return false, err
	}

	for {
		s.drain()

		if !s.tracker.Pending() {
			return s.tracker.LastOutcome() == pending.Fulfilled, nil
		}

		if s.tracker.Poll() == pending.TimedOut {
			return false, nil
		}
	}
}

func (s *Session) HasDownlink() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasDownlink
}

// LatestRxData returns a copy of the last downlink without consuming it
func (s *Session) LatestRxData() *bytebuf.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Clone()
}

// PullDownlink hands out the last downlink and clears the downlink flag
func (s *Session) PullDownlink() (*bytebuf.Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasDownlink {
		return nil, false
	}

	s.hasDownlink = false
	return s.rx.Move(), true
}

func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Poll() == pending.Pending
}

// MalformedFrames counts replies that were not "\r\n" terminated
func (s *Session) MalformedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

func (s *Session) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framer.Overflows()
}
