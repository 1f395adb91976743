package transport

import (
	"fmt"
	"time"

	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	// DefaultPollTimeout bounds how long Available waits on the port
	DefaultPollTimeout = 5 * time.Millisecond

	readChunk = 256
)

type SerialConfig struct {
	Port        string
	BaudRate    int
	PollTimeout time.Duration
}

// Serial is a Transport on top of a go.bug.st/serial port. The port is read
// with a short timeout into a pending buffer, which turns the blocking port
// API into the poll style the sessions expect.
type Serial struct {
	name    string
	port    serial.Port
	pending *bytebuf.Buffer
	scratch [readChunk]byte
}

func OpenSerial(conf SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: conf.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(conf.Port, mode)
	if err != nil {
		log.Error("error while opening serial device", zap.String("port", conf.Port), zap.Error(err))
		return nil, err
	}

	timeout := conf.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", conf.Port, err)
	}

	log.Info("serial port opened", zap.String("port", conf.Port), zap.Int("baud", conf.BaudRate))
	return newSerial(conf.Port, p), nil
}

func newSerial(name string, p serial.Port) *Serial {
	return &Serial{
		name:    name,
		port:    p,
		pending: bytebuf.New(0, 0),
	}
}

func (s *Serial) Available() int {
	n, err := s.port.Read(s.scratch[:])
	if err != nil {
		log.Debug("serial poll failed", zap.String("port", s.name), zap.Error(err))
	}

	if n > 0 {
		s.pending.AppendBytes(s.scratch[:n])
	}

	return s.pending.Len()
}

func (s *Serial) Read(p []byte) (int, error) {
	if s.pending.Len() == 0 && s.Available() == 0 {
		return 0, nil
	}

	n := copy(p, s.pending.Bytes())

	// Drop what was handed out, keep the rest for the next call
	s.pending.ReverseSplitAt(n)
	return n, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		log.Error("serial write failed", zap.String("port", s.name), zap.Error(err))
		return n, err
	}

	return n, nil
}

func (s *Serial) Clear() error {
	s.pending.Clear()
	return s.port.ResetInputBuffer()
}

func (s *Serial) Close() error {
	return s.port.Close()
}

func (s *Serial) String() string {
	return s.name
}
