// Package framer reassembles protocol frames from a fragmented byte stream
// using a bounded buffer.
package framer

import (
	"errors"
	"time"

	"github.com/LeoCommon/fieldnode/internal/modem"
	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/transport"
)

// ErrFrameOverflow is returned when the buffer filled up without a terminator.
// The partial data is dropped and framing resumes after the next terminator.
var ErrFrameOverflow = errors.New("frame exceeds maximum size")

const DefaultMaxFrameSize = 128

type Options struct {
	Terminator byte
	// IncludeTerminator keeps the terminator at the end of extracted frames
	IncludeTerminator bool
	MaxFrameSize      int
}

type Framer struct {
	opts      Options
	buf       *bytebuf.Buffer
	scratch   []byte
	overflows int
	// skipping is set after an overflow until the next terminator shows up
	skipping bool
}

func New(opts Options) *Framer {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}

	buf := &bytebuf.Buffer{}
	buf.Reserve(opts.MaxFrameSize)

	return &Framer{
		opts:    opts,
		buf:     buf,
		scratch: make([]byte, opts.MaxFrameSize),
	}
}

// Feed appends the bytes currently available on t, never more than fit into
// the frame buffer. It returns the number of bytes consumed.
func (f *Framer) Feed(t transport.Transport) (int, error) {
	avail := t.Available()
	if avail <= 0 {
		return 0, nil
	}

	room := f.opts.MaxFrameSize - f.buf.Len()
	if room <= 0 {
		return 0, nil
	}

	if avail > room {
		avail = room
	}

	n, err := t.Read(f.scratch[:avail])
	if n > 0 {
		f.append(f.scratch[:n])
	}

	if err != nil {
		return n, err
	}

	if f.buf.Len() >= f.opts.MaxFrameSize && f.buf.Find(f.opts.Terminator, 0) == f.buf.Len() {
		f.buf.Clear()
		f.overflows++
		f.skipping = true
		return n, ErrFrameOverflow
	}

	return n, nil
}

func (f *Framer) append(p []byte) {
	if !f.skipping {
		f.buf.AppendBytes(p)
		return
	}

	for i, c := range p {
		if c == f.opts.Terminator {
			f.skipping = false
			f.buf.AppendBytes(p[i+1:])
			return
		}
	}
}

// Next extracts the oldest terminated frame
func (f *Framer) Next() (*bytebuf.Buffer, bool) {
	idx := f.buf.Find(f.opts.Terminator, 0)
	if idx == f.buf.Len() {
		return nil, false
	}

	frame := f.buf.ReverseSplitAt(idx + 1)
	if !f.opts.IncludeTerminator {
		frame.Resize(frame.Len()-1, 0)
	}

	return frame, true
}

// NextFixed extracts exactly n bytes, regardless of terminators
func (f *Framer) NextFixed(n int) (*bytebuf.Buffer, bool) {
	if n <= 0 || f.buf.Len() < n {
		return nil, false
	}

	return f.buf.ReverseSplitAt(n), true
}

// Drain feeds from t until nothing is available anymore and hands every
// complete frame to fn in arrival order. Overflows are counted and skipped.
func (f *Framer) Drain(t transport.Transport, fn func(*bytebuf.Buffer)) error {
	for {
		n, err := f.Feed(t)
		if err != nil && !errors.Is(err, ErrFrameOverflow) {
			return err
		}

		extracted := 0
		for frame, ok := f.Next(); ok; frame, ok = f.Next() {
			fn(frame)
			extracted++
		}

		if n == 0 && extracted == 0 {
			return nil
		}
	}
}

// WaitFrame busy-waits until a complete frame arrived or timeout elapsed
func (f *Framer) WaitFrame(t transport.Transport, clk clock.Clock, timeout time.Duration) (*bytebuf.Buffer, error) {
	start := clk.NowMs()
	limit := clock.ToMs(timeout)

	for {
		if frame, ok := f.Next(); ok {
			return frame, nil
		}

		if _, err := f.Feed(t); err != nil && !errors.Is(err, ErrFrameOverflow) {
			return nil, err
		}

		if frame, ok := f.Next(); ok {
			return frame, nil
		}

		if clock.Since(clk.NowMs(), start) >= limit {
			return nil, modem.NewTimedOutError("waiting for frame", timeout)
		}
	}
}

// Overflows returns how often a frame exceeded the maximum size
func (f *Framer) Overflows() int {
	return f.overflows
}

// Len returns the number of buffered bytes not yet extracted
func (f *Framer) Len() int {
	return f.buf.Len()
}

func (f *Framer) Reset() {
	f.buf.Clear()
	f.skipping = false
}
