package framer

import "github.com/LeoCommon/fieldnode/pkg/bytebuf"

// Tokenizer splits a frame into delimiter separated fields. The frame is
// consumed while iterating.
type Tokenizer struct {
	rest  *bytebuf.Buffer
	delim byte
	done  bool
	index int
}

func NewTokenizer(frame *bytebuf.Buffer, delim byte) *Tokenizer {
	return &Tokenizer{rest: frame, delim: delim}
}

// Next returns the next field without its delimiter. Empty fields are
// returned as empty buffers, the field after the last delimiter is included.
func (t *Tokenizer) Next() (*bytebuf.Buffer, bool) {
	if t.done {
		return nil, false
	}

	idx := t.rest.Find(t.delim, 0)
	if idx == t.rest.Len() {
		t.done = true
		t.index++
		return t.rest.Move(), true
	}

	field := t.rest.ReverseSplitAt(idx + 1)
	field.Resize(field.Len()-1, 0)
	t.index++

	return field, true
}

// Index returns the zero based position of the field last returned
func (t *Tokenizer) Index() int {
	return t.index - 1
}
