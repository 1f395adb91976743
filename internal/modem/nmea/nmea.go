// Package nmea reads position fixes from a NMEA-0183 GPS receiver.
package nmea

import (
	"fmt"
	"sync"

	"github.com/LeoCommon/fieldnode/internal/modem"
	"github.com/LeoCommon/fieldnode/internal/modem/framer"
	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"go.uber.org/zap"
)

const (
	MaxSentenceSize = 128

	SentenceGGA = "GGA"
	SentenceRMC = "RMC"
	SentenceVTG = "VTG"
)

// Talkers whose sentences are processed, GN is the multi constellation one
var talkers = []string{"GP", "GN"}

type Options struct {
	MaxFrameSize int
	// VerifyChecksum drops sentences whose *HH checksum does not match.
	// Sentences without a checksum are always accepted.
	VerifyChecksum bool
}

func DefaultOptions() Options {
	return Options{
		MaxFrameSize:   MaxSentenceSize,
		VerifyChecksum: true,
	}
}

type Session struct {
	mu sync.Mutex

	t      transport.Transport
	opts   Options
	framer *framer.Framer

	fix       Fix
	newFix    bool
	sentences int
	badSums   int
}

var _ modem.Session = (*Session)(nil)

func New(t transport.Transport, opts Options) *Session {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = MaxSentenceSize
	}

	return &Session{
		t:    t,
		opts: opts,
		framer: framer.New(framer.Options{
			Terminator:   '\n',
			MaxFrameSize: opts.MaxFrameSize,
		}),
		fix: emptyFix(),
	}
}

// Update parses all complete sentences and reports whether the fix time changed
func (s *Session) Update() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch := s.fix.Epoch

	err := s.framer.Drain(s.t, s.handleSentence)
	if err != nil {
		log.Error("reading from gps failed", zap.Error(err))
	}

	if s.fix.Epoch != epoch {
		s.newFix = true
		return true
	}

	return false
}

func (s *Session) handleSentence(line *bytebuf.Buffer) {
	if n := line.Len(); n > 0 {
		if c, _ := line.At(n - 1); c == '\r' {
			line.Resize(n-1, 0)
		}
	}

	if !line.StartsWithString("$") {
		return
	}

	body, ok := s.checkedBody(line)
	if !ok {
		return
	}

	kind, ok := sentenceType(body)
	if !ok {
		return
	}

	s.sentences++
	tok := framer.NewTokenizer(body, ',')

	switch kind {
	case SentenceGGA:
		s.fix.applyGGA(tok)
	case SentenceRMC:
		s.fix.applyRMC(tok)
	case SentenceVTG:
		s.fix.applyVTG(tok)
	}
}

// checkedBody strips "$" and "*HH" from a sentence and verifies the checksum
func (s *Session) checkedBody(line *bytebuf.Buffer) (*bytebuf.Buffer, bool) {
	star := line.Find('*', 0)
	suffix := line.SplitAt(star)
	body := line.SplitAt(1)

	if suffix.Len() == 0 || !s.opts.VerifyChecksum {
		return body, true
	}

	want := bytebuf.FromHex(suffix.SplitAt(1))
	got := Checksum(body.Bytes())

	if c, err := want.At(0); err != nil || want.Len() != 1 || c != got {
		s.badSums++
		log.Debug("dropping sentence with bad checksum",
			zap.String("session", "gps"),
			zap.ByteString("sentence", body.Bytes()),
			zap.Uint8("computed", got))
		return nil, false
	}

	return body, true
}

func sentenceType(body *bytebuf.Buffer) (string, bool) {
	if body.Len() < 6 {
		return "", false
	}

	b := body.Bytes()
	talker, kind := string(b[:2]), string(b[2:5])

	for _, t := range talkers {
		if t == talker && b[5] == ',' {
			switch kind {
			case SentenceGGA, SentenceRMC, SentenceVTG:
				return kind, true
			}
		}
	}

	return "", false
}

// Checksum is the XOR of all bytes between "$" and "*"
func Checksum(body []byte) byte {
	var sum byte
	for _, c := range body {
		sum ^= c
	}

	return sum
}

// Send frames body as "$body*HH\r\n" and writes it to the receiver
func (s *Session) Send(body string) error {
	d := &bytebuf.Buffer{}
	d.Reserve(len(body) + 6)

	d.Append('$')
	d.AppendBytes([]byte(body))
	d.Append('*')
	d.AppendBuffer(bytebuf.FromBytes([]byte{Checksum([]byte(body))}).AsHex(0))
	d.AppendBytes([]byte("\r\n"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.t.Write(d.Bytes()); err != nil {
		return fmt.Errorf("writing nmea sentence: %w", err)
	}

	return nil
}

// HasFix reports whether a valid position with a timestamp was assembled
func (s *Session) HasFix() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix.Valid() && s.fix.Epoch != 0
}

func (s *Session) Fix() Fix {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix
}

// HasNewFix reports whether the fix time changed since the last PullFix
func (s *Session) HasNewFix() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newFix
}

func (s *Session) PullFix() Fix {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.newFix = false
	return s.fix
}

// ClearFix forgets everything assembled so far
func (s *Session) ClearFix() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fix = emptyFix()
	s.newFix = false
}

// Pending is always false, the receiver is never asked for anything
func (s *Session) Pending() bool {
	return false
}

// Sentences counts the sentences that were dispatched
func (s *Session) Sentences() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentences
}

func (s *Session) ChecksumErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badSums
}

func (s *Session) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framer.Overflows()
}
