package transport

import (
	"sync"

	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
)

// Fake is a scripted in-memory Transport. Bytes injected with Inject become
// readable, everything written is recorded. A Responder can answer writes the
// way a device would.
type Fake struct {
	mu sync.Mutex

	rx *bytebuf.Buffer
	tx *bytebuf.Buffer

	// ChunkSize limits the bytes handed out per Read, 0 means unlimited
	ChunkSize int
	// WriteErr makes every Write fail
	WriteErr error
	// Responder is called with every successful write, its result is injected
	Responder func(written []byte) []byte
}

func NewFake() *Fake {
	return &Fake{
		rx: bytebuf.New(0, 0),
		tx: bytebuf.New(0, 0),
	}
}

func (f *Fake) Inject(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx.AppendBytes(p)
}

func (f *Fake) InjectString(s string) {
	f.Inject([]byte(s))
}

func (f *Fake) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rx.Len()
}

func (f *Fake) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	limit := len(p)
	if f.ChunkSize > 0 && f.ChunkSize < limit {
		limit = f.ChunkSize
	}

	n := copy(p[:limit], f.rx.Bytes())
	f.rx.ReverseSplitAt(n)
	return n, nil
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteErr != nil {
		return 0, f.WriteErr
	}

	f.tx.AppendBytes(p)

	if f.Responder != nil {
		f.rx.AppendBytes(f.Responder(p))
	}

	return len(p), nil
}

func (f *Fake) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx.Clear()
	return nil
}

// Written returns everything written so far
func (f *Fake) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tx.String()
}

// TakeWritten returns everything written so far and forgets it
func (f *Fake) TakeWritten() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tx.Move().String()
}
