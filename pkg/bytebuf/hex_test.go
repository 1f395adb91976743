package bytebuf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsHex(t *testing.T) {
	b := FromBytes([]byte{0x00, 0xAB, 0x7f})
	assert.Equal(t, "00AB7F", b.AsHex(0).String())
	assert.Equal(t, "00:AB:7F", b.AsHex(':').String())
	assert.Equal(t, 0, (&Buffer{}).AsHex(':').Len())
}

func TestFromHexIgnoresNoise(t *testing.T) {
	assert.Equal(t, []byte{0x41, 0x42, 0x43, 0x44}, FromHexString("41424344\r\n").Bytes())
	assert.Equal(t, []byte{0xAB, 0xCD}, FromHexString("ab:cd").Bytes())
	assert.Equal(t, []byte{0x12}, FromHexString("123").Bytes(), "odd trailing nibble is dropped")
	assert.Equal(t, []byte{0x1F}, FromHexString("1 x F").Bytes(), "nibbles pair across noise")
	assert.Equal(t, 0, FromHexString("zz").Len())
}

func TestHexRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		p := make([]byte, r.Intn(64))
		r.Read(p)

		got := FromHex(FromBytes(p).AsHex(0))
		assert.Equal(t, len(p), got.Len())
		assert.True(t, FromBytes(p).Equal(got))
	}
}

func TestAsInt(t *testing.T) {
	v, err := FromString("  -42abc").AsInt()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)

	v, err = FromString("123519.00").AsInt()
	require.NoError(t, err)
	assert.Equal(t, int64(123519), v)

	_, err = FromString("N").AsInt()
	assert.Error(t, err)

	_, err = FromString("-").AsInt()
	assert.Error(t, err)
}
