// Package bytebuf provides an owning, growable byte container used as the
// accumulation and frame buffer of the serial protocol sessions.
//
// A Buffer tracks its length and capacity explicitly: appends grow the storage
// by at least doubling it, shrinking the length never releases memory and
// slicing operations hand ownership of a sub-range to a new Buffer instead of
// sharing the backing array.
package bytebuf

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Storage never drops below this many bytes when (re)allocated
const minCapacity = 8

var ErrOutOfRange = errors.New("bytebuf: index out of range")

// Buffer is the zero value ready to use, it starts empty without storage.
// The invariant len(mem) == Len() and cap(mem) == Cap() always holds.
type Buffer struct {
	mem []byte
}

// New creates a buffer of size bytes, every byte set to filler
func New(size int, filler byte) *Buffer {
	if size < 0 {
		size = 0
	}

	capacity := size * 2
	if capacity < minCapacity {
		capacity = minCapacity
	}

	b := &Buffer{mem: make([]byte, size, capacity)}
	if filler != 0 {
		for i := range b.mem {
			b.mem[i] = filler
		}
	}

	return b
}

// FromBytes copies p into a new buffer
func FromBytes(p []byte) *Buffer {
	b := &Buffer{mem: make([]byte, len(p))}
	copy(b.mem, p)
	return b
}

func FromString(s string) *Buffer {
	b := &Buffer{mem: make([]byte, len(s))}
	copy(b.mem, s)
	return b
}

// Len returns the number of bytes in use
func (b *Buffer) Len() int {
	return len(b.mem)
}

// Cap returns the number of bytes allocated
func (b *Buffer) Cap() int {
	return cap(b.mem)
}

// Bytes returns the bytes in use. The slice aliases the buffer and is only
// valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.mem
}

func (b *Buffer) String() string {
	return string(b.mem)
}

// At returns the byte at idx
func (b *Buffer) At(idx int) (byte, error) {
	if idx < 0 || idx >= len(b.mem) {
		return 0, ErrOutOfRange
	}

	return b.mem[idx], nil
}

// Set overwrites the byte at idx
func (b *Buffer) Set(idx int, v byte) error {
	if idx < 0 || idx >= len(b.mem) {
		return ErrOutOfRange
	}

	b.mem[idx] = v
	return nil
}

// Clone returns a full copy
func (b *Buffer) Clone() *Buffer {
	return FromBytes(b.mem)
}

// Move transfers the storage to a new buffer and leaves b empty
func (b *Buffer) Move() *Buffer {
	m := &Buffer{mem: b.mem}
	b.mem = nil
	return m
}

func (b *Buffer) Swap(other *Buffer) {
	b.mem, other.mem = other.mem, b.mem
}

func (b *Buffer) Equal(other *Buffer) bool {
	return bytes.Equal(b.mem, other.mem)
}

// Append adds a single byte and returns the index it was written to
func (b *Buffer) Append(c byte) int {
	if len(b.mem) == cap(b.mem) {
		b.grow(len(b.mem) + 1)
	}

	b.mem = append(b.mem, c)
	return len(b.mem) - 1
}

func (b *Buffer) AppendBytes(p []byte) {
	if need := len(b.mem) + len(p); need > cap(b.mem) {
		b.grow(need)
	}

	b.mem = append(b.mem, p...)
}

// AppendBuffer concatenates other to the end of b
func (b *Buffer) AppendBuffer(other *Buffer) {
	b.AppendBytes(other.mem)
}

// Write implements io.Writer, it never fails
func (b *Buffer) Write(p []byte) (int, error) {
	b.AppendBytes(p)
	return len(p), nil
}

// Concat returns a new buffer holding b followed by other
func (b *Buffer) Concat(other *Buffer) *Buffer {
	c := &Buffer{}
	c.Reserve(len(b.mem) + len(other.mem))
	c.AppendBytes(b.mem)
	c.AppendBytes(other.mem)
	return c
}

// Clear sets the length to zero, the storage is kept
func (b *Buffer) Clear() {
	b.mem = b.mem[:0]
}

// Resize changes the length. Shrinking keeps the storage, growing fills the
// new bytes with filler and may reallocate.
func (b *Buffer) Resize(size int, filler byte) {
	if size < 0 || size == len(b.mem) {
		return
	}

	if size < len(b.mem) {
		b.mem = b.mem[:size]
		return
	}

	b.Reserve(size)

	old := len(b.mem)
	b.mem = b.mem[:size]
	for i := old; i < size; i++ {
		b.mem[i] = filler
	}
}

// Reserve grows the capacity to exactly minCap if it is larger than the
// current one. It never shrinks.
func (b *Buffer) Reserve(minCap int) {
	if minCap > cap(b.mem) {
		b.realloc(minCap)
	}
}

// Shrink reallocates the storage to fit the length and returns the new capacity
func (b *Buffer) Shrink() int {
	capacity := len(b.mem)
	if capacity < minCapacity {
		capacity = minCapacity
	}

	if capacity != cap(b.mem) {
		b.realloc(capacity)
	}

	return cap(b.mem)
}

// Find returns the index of the first c at or after from, or Len() if there is none
func (b *Buffer) Find(c byte, from int) int {
	if from < 0 {
		from = 0
	}

	if from >= len(b.mem) {
		return len(b.mem)
	}

	idx := bytes.IndexByte(b.mem[from:], c)
	if idx < 0 {
		return len(b.mem)
	}

	return from + idx
}

// SplitAt returns a new buffer with the bytes [idx, Len()) and truncates b to
// [0, idx). An idx past the end returns an empty buffer and leaves b untouched.
func (b *Buffer) SplitAt(idx int) *Buffer {
	if idx < 0 || idx >= len(b.mem) {
		return &Buffer{}
	}

	tail := FromBytes(b.mem[idx:])
	b.mem = b.mem[:idx]

	return tail
}

// ReverseSplitAt is SplitAt with the halves swapped: the prefix [0, idx) is
// returned and b keeps the remainder. The prefix keeps the original storage,
// only the remainder is copied.
func (b *Buffer) ReverseSplitAt(idx int) *Buffer {
	t := b.SplitAt(idx)
	b.Swap(t)
	return t
}

func (b *Buffer) StartsWith(other *Buffer) bool {
	return bytes.HasPrefix(b.mem, other.mem)
}

func (b *Buffer) StartsWithString(prefix string) bool {
	return len(b.mem) >= len(prefix) && string(b.mem[:len(prefix)]) == prefix
}

// grow doubles the capacity until at least need bytes fit
func (b *Buffer) grow(need int) {
	capacity := cap(b.mem) * 2
	if capacity < minCapacity {
		capacity = minCapacity
	}

	if capacity < need {
		capacity = need
	}

	b.realloc(capacity)
}

func (b *Buffer) realloc(capacity int) {
	mem := make([]byte, len(b.mem), capacity)
	copy(mem, b.mem)
	b.mem = mem
}

// Integer lists the fixed-size integer types the big-endian codec supports
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// ReadBigEndian decodes a T stored big-endian at idx. It returns the zero value
// if fewer than sizeof(T) bytes are left.
func ReadBigEndian[T Integer](b *Buffer, idx int) T {
	var v T
	size := binary.Size(v)

	if idx < 0 || b.Len()-idx < size {
		return v
	}

	var r uint64
	for _, c := range b.mem[idx : idx+size] {
		r = r<<8 | uint64(c)
	}

	return T(r)
}

// Serialize encodes v big-endian into a new buffer
func Serialize[T Integer](v T) *Buffer {
	size := binary.Size(v)
	b := New(size, 0)

	u := uint64(v)
	for i := 0; i < size; i++ {
		b.mem[size-1-i] = byte(u >> (8 * i))
	}

	return b
}
