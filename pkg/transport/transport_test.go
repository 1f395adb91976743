package transport

import (
	"errors"
	"testing"

	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// Only the methods the transport uses are implemented, the rest panic via the nil embed
type fakePort struct {
	serial.Port

	chunks  [][]byte
	written []byte
	resets  int
	readErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}

	if len(p.chunks) == 0 {
		return 0, nil
	}

	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	p.chunks = nil
	return nil
}

func (p *fakePort) Close() error {
	return nil
}

func TestSerialPollsIntoPending(t *testing.T) {
	log.Init(true)

	port := &fakePort{chunks: [][]byte{[]byte("OK\r"), []byte("\nRX=")}}
	s := newSerial("ttyFake", port)

	assert.Equal(t, 3, s.Available())
	assert.Equal(t, 7, s.Available())
	assert.Equal(t, 7, s.Available(), "idle port keeps the pending bytes")

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "OK\r\n", string(buf[:n]))

	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "RX=", string(buf[:n]))

	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSerialWriteAndClear(t *testing.T) {
	log.Init(true)

	port := &fakePort{chunks: [][]byte{[]byte("junk")}}
	s := newSerial("ttyFake", port)

	_, err := s.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "AT\r\n", string(port.written))

	assert.Equal(t, 4, s.Available())
	require.NoError(t, s.Clear())
	assert.Equal(t, 1, port.resets)
	assert.Equal(t, 0, s.Available())
	assert.Equal(t, "ttyFake", s.String())
	assert.NoError(t, s.Close())
}

func TestSerialPollErrorKeepsPending(t *testing.T) {
	log.Init(true)

	port := &fakePort{chunks: [][]byte{[]byte("ab")}}
	s := newSerial("ttyFake", port)
	assert.Equal(t, 2, s.Available())

	port.readErr = errors.New("device vanished")
	assert.Equal(t, 2, s.Available())
}

func TestFake(t *testing.T) {
	f := NewFake()
	f.ChunkSize = 2
	f.InjectString("hello")

	assert.Equal(t, 5, f.Available())

	buf := make([]byte, 10)
	n, _ := f.Read(buf)
	assert.Equal(t, "he", string(buf[:n]))
	assert.Equal(t, 3, f.Available())

	require.NoError(t, f.Clear())
	assert.Equal(t, 0, f.Available())

	f.Responder = func(w []byte) []byte {
		if string(w) == "AT\r\n" {
			return []byte("OK\r\n")
		}
		return nil
	}

	_, err := f.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, f.Available())
	assert.Equal(t, "AT\r\n", f.TakeWritten())
	assert.Equal(t, "", f.Written())

	f.WriteErr = errors.New("tx failed")
	_, err = f.Write([]byte("x"))
	assert.Error(t, err)
	assert.Equal(t, "", f.Written())
}
