package bytebuf

import (
	"errors"
	"strconv"
)

const hexDigits = "0123456789ABCDEF"

// AsHex encodes the buffer as uppercase hex, two nibbles per byte. A non-zero
// separator is placed between byte pairs.
func (b *Buffer) AsHex(separator byte) *Buffer {
	if len(b.mem) == 0 {
		return &Buffer{}
	}

	h := &Buffer{}
	h.Reserve(len(b.mem) * 3)

	for i, c := range b.mem {
		h.mem = append(h.mem, hexDigits[c>>4], hexDigits[c&0x0F])

		if separator != 0 && i != len(b.mem)-1 {
			h.mem = append(h.mem, separator)
		}
	}

	return h
}

// FromHex decodes hex text. Anything that is not a hex digit is skipped,
// consecutive valid nibbles are paired and an odd trailing nibble is dropped.
func FromHex(s *Buffer) *Buffer {
	b := &Buffer{}
	high := -1

	for _, c := range s.mem {
		v := nibble(c)
		if v < 0 {
			continue
		}

		if high < 0 {
			high = v
			continue
		}

		b.Append(byte(high<<4 | v))
		high = -1
	}

	return b
}

func FromHexString(s string) *Buffer {
	return FromHex(FromString(s))
}

func nibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}

	return -1
}

var errNoDigits = errors.New("bytebuf: no decimal digits")

// AsInt interprets the leading ASCII decimal number, leading blanks and a sign
// are accepted and parsing stops at the first non-digit.
func (b *Buffer) AsInt() (int64, error) {
	i := 0
	for i < len(b.mem) && (b.mem[i] == ' ' || b.mem[i] == '\t') {
		i++
	}

	start := i
	if i < len(b.mem) && (b.mem[i] == '-' || b.mem[i] == '+') {
		i++
	}

	digits := i
	for i < len(b.mem) && b.mem[i] >= '0' && b.mem[i] <= '9' {
		i++
	}

	if i == digits {
		return 0, errNoDigits
	}

	return strconv.ParseInt(string(b.mem[start:i]), 10, 64)
}
