// Package lora drives a Microchip RN2483 LoRaWAN modem over its ASCII command
// interface.
package lora

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
	MaxLineSize = 128
	// Largest application payload of the EU868 plan
	MaxPayloadSize = 222

	AppEUISize = 8
	AppKeySize = 16

	DefaultBand            = 868
	DefaultPort            = 1
	DefaultResponseTimeout = 2 * time.Second
	DefaultJoinTimeout     = 30 * time.Second
	DefaultTxTimeout       = 60 * time.Second

	CmdVersion      = "sys get ver"
	CmdHardwareEUI  = "sys get hweui"
	CmdReset        = "mac reset %d"
	CmdSetDevEUI    = "mac set deveui "
	CmdSetAppEUI    = "mac set appeui "
	CmdSetAppKey    = "mac set appkey "
	CmdAdrOn        = "mac set adr on"
	CmdDutyCycleOff = "mac set ch dcycle %d 0"
	CmdSave         = "mac save"
	CmdJoinOTAA     = "mac join otaa"
	CmdTx           = "mac tx %s %d "

	// Duty cycle limits are lifted on the three default channels
	defaultChannels = 3
)

type TxStatus int

const (
	TxNone TxStatus = iota
	TxPending
	TxOK
	TxError
	TxTimedOut
)

func (s TxStatus) String() string {
	switch s {
	case TxNone:
		return "none"
	case TxPending:
		return "pending"
	case TxOK:
		return "ok"
	case TxError:
		return "error"
	case TxTimedOut:
		return "timed out"
	}

	return "unknown"
}

// Downlink is application data received in the receive window after an uplink
type Downlink struct {
	Port    uint8
	Payload *bytebuf.Buffer
}

type Options struct {
	MaxFrameSize int
	// Band is the frequency plan passed to mac reset, 868 or 433
	Band int
	// Port is the application port uplinks are sent on
	Port            uint8
	ResponseTimeout time.Duration
	JoinTimeout     time.Duration
	TxTimeout       time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = MaxLineSize
	}

	if o.Band == 0 {
		o.Band = DefaultBand
	}

	if o.Port == 0 {
		o.Port = DefaultPort
	}

	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}

	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}

	if o.TxTimeout <= 0 {
		o.TxTimeout = DefaultTxTimeout
	}
}

type Session struct {
	mu sync.Mutex

	t       transport.Transport
	clk     clock.Clock
	opts    Options
	framer  *framer.Framer
	tracker *pending.Tracker

	connected   bool
	lastTx      TxStatus
	downlink    Downlink
	hasDownlink bool
}

var _ modem.Session = (*Session)(nil)

func New(t transport.Transport, clk clock.Clock, opts Options) *Session {
	opts.applyDefaults()

	return &Session{
		t:    t,
		clk:  clk,
		opts: opts,
		framer: framer.New(framer.Options{
			Terminator:   '\n',
			MaxFrameSize: opts.MaxFrameSize,
		}),
		tracker: pending.New(clk),
	}
}

func (s *Session) write(cmd string) error {
	log.Debug("lora command", zap.String("cmd", cmd))

	if _, err := s.t.Write([]byte(cmd + "\r\n")); err != nil {
		return fmt.Errorf("writing %q: %w", cmd, err)
	}

	return nil
}

// query sends cmd and returns the line the modem answers with. Asynchronous
// events arriving in between are handled as in Update and do not count as reply.
func (s *Session) query(cmd string) (string, error) {
	if err := s.write(cmd); err != nil {
		return "", err
	}

	start := s.clk.NowMs()
	limit := clock.ToMs(s.opts.ResponseTimeout)

	for {
		elapsed := clock.Since(s.clk.NowMs(), start)
		if elapsed >= limit {
			return "", fmt.Errorf("waiting for reply to %q: %w", cmd,
				modem.NewTimedOutError("waiting for frame", s.opts.ResponseTimeout))
		}

		frame, err := s.framer.WaitFrame(s.t, s.clk, time.Duration(limit-elapsed)*time.Millisecond)
		if err != nil {
			return "", fmt.Errorf("waiting for reply to %q: %w", cmd, err)
		}

		line := modem.Line(frame.Bytes())
		if atparser.ParseEvent([]byte(line)) != atparser.EventNone {
			s.handleEvent(frame)
			continue
		}

		return line, nil
	}
}

// expectOK sends cmd and turns any reply but ok into a RejectError
func (s *Session) expectOK(cmd string) error {
	reply, err := s.query(cmd)
	if err != nil {
		return err
	}

	if status := atparser.ParseStatus([]byte(reply)); status != atparser.StatusOK {
		log.Error("lora command rejected", zap.String("cmd", cmd), zap.String("reply", reply))
		return modem.NewRejectError(cmd, status)
	}

	return nil
}

// poll expires the outstanding request, a transmission that timed out is
// reflected in the tx status
func (s *Session) poll() pending.State {
	kind := s.tracker.Kind()

	state := s.tracker.Poll()
	if state == pending.TimedOut && kind == pending.KindTx {
		s.lastTx = TxTimedOut
	}

	return state
}

func (s *Session) checkIdle() error {
	if s.poll() == pending.Pending {
		return modem.ErrRequestPending
	}

	return nil
}

// Version returns the firmware banner, e.g. "RN2483 1.0.1 Dec 15 2015 09:38:09"
func (s *Session) Version() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdle(); err != nil {
		return "", err
	}

	return s.query(CmdVersion)
}

// HardwareEUI returns the EUI-64 burnt into the modem
func (s *Session) HardwareEUI() (*bytebuf.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdle(); err != nil {
		return nil, err
	}

	return s.hardwareEUI()
}

func (s *Session) hardwareEUI() (*bytebuf.Buffer, error) {
	reply, err := s.query(CmdHardwareEUI)
	if err != nil {
		return nil, err
	}

	eui := bytebuf.FromHexString(reply)
	if eui.Len() != AppEUISize {
		return nil, fmt.Errorf("unexpected hardware eui %q", reply)
	}

	return eui, nil
}

// Join provisions the modem for OTAA with the hardware EUI as device EUI and
// starts the join. The outcome arrives later and is picked up by Update.
func (s *Session) Join(appEUI, appKey []byte) error {
	if len(appEUI) != AppEUISize || len(appKey) != AppKeySize {
		return modem.ErrPayloadSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdle(); err != nil {
		return err
	}

	s.connected = false
	s.framer.Reset()
	if err := s.t.Clear(); err != nil {
		return fmt.Errorf("clearing lora input: %w", err)
	}

	if err := s.expectOK(fmt.Sprintf(CmdReset, s.opts.Band)); err != nil {
		return err
	}

	devEUI, err := s.hardwareEUI()
	if err != nil {
		return err
	}

	cmds := []string{
		CmdSetDevEUI + devEUI.AsHex(0).String(),
		CmdSetAppEUI + bytebuf.FromBytes(appEUI).AsHex(0).String(),
		CmdSetAppKey + bytebuf.FromBytes(appKey).AsHex(0).String(),
		CmdAdrOn,
	}
	for ch := 0; ch < defaultChannels; ch++ {
		cmds = append(cmds, fmt.Sprintf(CmdDutyCycleOff, ch))
	}
	cmds = append(cmds, CmdSave, CmdJoinOTAA)

	for _, cmd := range cmds {
		if err := s.expectOK(cmd); err != nil {
			return err
		}
	}

	log.Info("lora join started", zap.String("deveui", devEUI.AsHex(0).String()))
	return s.tracker.Start(pending.KindJoin, s.opts.JoinTimeout)
}

// Send queues an uplink. The modem acknowledges the command immediately, the
// transmission result is reported through Update and LastTxStatus.
func (s *Session) Send(payload []byte, confirmed bool) error {
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return modem.ErrPayloadSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdle(); err != nil {
		return err
	}

	mode := "uncnf"
	if confirmed {
		mode = "cnf"
	}

	cmd := fmt.Sprintf(CmdTx, mode, s.opts.Port) + bytebuf.FromBytes(payload).AsHex(0).String()
	if err := s.expectOK(cmd); err != nil {
		return err
	}

	s.lastTx = TxPending
	return s.tracker.Start(pending.KindTx, s.opts.TxTimeout)
}

// Update processes the asynchronous events and reports whether a downlink arrived
func (s *Session) Update() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.poll()
	received := false

	err := s.framer.Drain(s.t, func(frame *bytebuf.Buffer) {
		if s.handleEvent(frame) {
			received = true
		}
	})
	if err != nil {
		log.Error("reading from lora modem failed", zap.Error(err))
	}

	return received
}

func (s *Session) handleEvent(frame *bytebuf.Buffer) bool {
	line := []byte(modem.Line(frame.Bytes()))

	switch atparser.ParseEvent(line) {
	case atparser.EventAccepted:
		log.Info("lora network joined")
		s.connected = true
		s.fulfill(pending.KindJoin)
	case atparser.EventDenied:
		log.Warn("lora join denied")
		s.connected = false
		s.fulfill(pending.KindJoin)
	case atparser.EventTxOK:
		s.lastTx = TxOK
		s.fulfill(pending.KindTx)
	case atparser.EventMacError:
		log.Warn("lora transmission failed")
		s.lastTx = TxError
		s.fulfill(pending.KindTx)
	case atparser.EventRx:
		s.connected = true
		s.lastTx = TxOK
		s.fulfill(pending.KindTx)
		return s.handleDownlink(line)
	default:
		log.Debug("unhandled lora reply", zap.ByteString("line", line))
	}

	return false
}

func (s *Session) fulfill(kind pending.Kind) {
	if s.tracker.Kind() == kind {
		s.tracker.Fulfill()
	}
}

func (s *Session) handleDownlink(line []byte) bool {
	port, data, err := atparser.Downlink(line)
	if err != nil {
		log.Warn("malformed lora downlink", zap.Error(err))
		return false
	}

	if len(data) == 0 {
		return false
	}

	s.downlink = Downlink{Port: port, Payload: bytebuf.FromHex(bytebuf.FromBytes(data))}
	s.hasDownlink = true
	log.Info("lora downlink received", zap.Uint8("port", port), zap.Int("size", s.downlink.Payload.Len()))
	return true
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) LastTxStatus() TxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTx
}

func (s *Session) HasPendingDownlink() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasDownlink
}

// PullPendingDownlink hands out the last downlink and forgets it
func (s *Session) PullPendingDownlink() (Downlink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasDownlink {
		return Downlink{}, false
	}

	d := s.downlink
	s.downlink = Downlink{}
	s.hasDownlink = false
	return d, true
}

func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll() == pending.Pending
}
