package lora

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/LeoCommon/fieldnode/internal/modem"
	"github.com/LeoCommon/fieldnode/internal/modem/atparser"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	appEUI = []byte{0x70, 0xB3, 0xD5, 0x7E, 0xD0, 0x00, 0x00, 0x01}
	appKey = []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
	}
)

// rn2483 answers like the real modem, replies maps a command to a non ok answer
func rn2483(replies map[string]string) func([]byte) []byte {
	return func(written []byte) []byte {
		cmd := strings.TrimSuffix(string(written), "\r\n")

		if reply, ok := replies[cmd]; ok {
			return []byte(reply + "\r\n")
		}

		switch cmd {
		case CmdVersion:
			return []byte("RN2483 1.0.1 Dec 15 2015 09:38:09\r\n")
		case CmdHardwareEUI:
			return []byte("0004A30B001A2B3C\r\n")
		}

		return []byte("ok\r\n")
	}
}

func newSession(t *testing.T, replies map[string]string) (*Session, *transport.Fake, *clock.Manual) {
	log.Init(true)

	tr := transport.NewFake()
	tr.Responder = rn2483(replies)

	clk := clock.NewManual(0)
	clk.SetStep(time.Millisecond)

	return New(tr, clk, Options{}), tr, clk
}

func TestJoinSequence(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	require.NoError(t, s.Join(appEUI, appKey))

	want := []string{
		"mac reset 868",
		"sys get hweui",
		"mac set deveui 0004A30B001A2B3C",
		"mac set appeui 70B3D57ED0000001",
		"mac set appkey 00112233445566778899AABBCCDDEEFF",
		"mac set adr on",
		"mac set ch dcycle 0 0",
		"mac set ch dcycle 1 0",
		"mac set ch dcycle 2 0",
		"mac save",
		"mac join otaa",
	}
	assert.Equal(t, strings.Join(want, "\r\n")+"\r\n", tr.TakeWritten())

	assert.True(t, s.Pending())
	assert.False(t, s.IsConnected())

	tr.InjectString("accepted\r\n")
	s.Update()
	assert.True(t, s.IsConnected())
	assert.False(t, s.Pending())
}

func TestJoinDenied(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	require.NoError(t, s.Join(appEUI, appKey))
	tr.InjectString("denied\r\n")
	s.Update()

	assert.False(t, s.IsConnected())
	assert.False(t, s.Pending())
}

func TestJoinTimeout(t *testing.T) {
	s, _, clk := newSession(t, nil)

	require.NoError(t, s.Join(appEUI, appKey))
	clk.Advance(DefaultJoinTimeout)
	s.Update()

	assert.False(t, s.Pending())
	assert.False(t, s.IsConnected())
}

func TestJoinRejected(t *testing.T) {
	s, tr, _ := newSession(t, map[string]string{CmdJoinOTAA: "keys_not_init"})

	err := s.Join(appEUI, appKey)
	require.Error(t, err)

	var reject *modem.RejectError
	require.True(t, errors.As(err, &reject))
	assert.Equal(t, CmdJoinOTAA, reject.Command)
	assert.Equal(t, atparser.StatusKeysNotInit, reject.Status)
	assert.False(t, s.Pending())

	tr.TakeWritten()
	tr.Responder = rn2483(map[string]string{"mac set adr on": "invalid_param"})
	err = s.Join(appEUI, appKey)
	assert.ErrorIs(t, err, &modem.RejectError{})
	assert.NotContains(t, tr.TakeWritten(), "mac save", "the sequence stops at the first rejection")
}

func TestJoinKeySizes(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	assert.ErrorIs(t, s.Join(appEUI[:4], appKey), modem.ErrPayloadSize)
	assert.ErrorIs(t, s.Join(appEUI, appKey[:8]), modem.ErrPayloadSize)
	assert.Empty(t, tr.Written())
}

func TestJoinWhilePending(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	require.NoError(t, s.Join(appEUI, appKey))
	tr.TakeWritten()

	assert.ErrorIs(t, s.Join(appEUI, appKey), modem.ErrRequestPending)
	assert.Empty(t, tr.Written(), "a rejected join must not touch the modem")

	tr.InjectString("accepted\r\n")
	s.Update()
	tr.TakeWritten()

	require.NoError(t, s.Send([]byte{0x01}, true))
	tr.TakeWritten()

	assert.ErrorIs(t, s.Join(appEUI, appKey), modem.ErrRequestPending)
	assert.Empty(t, tr.Written())
	assert.True(t, s.IsConnected(), "a rejected join keeps the connection")
}

func joined(t *testing.T, s *Session, tr *transport.Fake) {
	require.NoError(t, s.Join(appEUI, appKey))
	tr.InjectString("accepted\r\n")
	s.Update()
	require.True(t, s.IsConnected())
	tr.TakeWritten()
}

func TestSend(t *testing.T) {
	s, tr, _ := newSession(t, nil)
	joined(t, s, tr)

	require.NoError(t, s.Send([]byte{0xCA, 0xFE}, true))
	assert.Equal(t, "mac tx cnf 1 CAFE\r\n", tr.TakeWritten())
	assert.Equal(t, TxPending, s.LastTxStatus())
	assert.True(t, s.Pending())

	assert.ErrorIs(t, s.Send([]byte{1}, false), modem.ErrRequestPending)
	assert.Empty(t, tr.Written())

	tr.InjectString("mac_tx_ok\r\n")
	assert.False(t, s.Update())
	assert.Equal(t, TxOK, s.LastTxStatus())
	assert.False(t, s.Pending())

	require.NoError(t, s.Send([]byte{0x01}, false))
	assert.Equal(t, "mac tx uncnf 1 01\r\n", tr.TakeWritten())
}

func TestSendRejected(t *testing.T) {
	s, _, _ := newSession(t, map[string]string{"mac tx uncnf 1 01": "no_free_ch"})

	err := s.Send([]byte{0x01}, false)
	assert.ErrorIs(t, err, &modem.RejectError{})
	assert.Equal(t, TxNone, s.LastTxStatus())
	assert.False(t, s.Pending())

	assert.ErrorIs(t, s.Send(nil, false), modem.ErrPayloadSize)
	assert.ErrorIs(t, s.Send(make([]byte, MaxPayloadSize+1), false), modem.ErrPayloadSize)
}

func TestMacErrorKeepsConnection(t *testing.T) {
	s, tr, _ := newSession(t, nil)
	joined(t, s, tr)

	require.NoError(t, s.Send([]byte{0x01}, true))
	tr.InjectString("mac_err\r\n")
	s.Update()

	assert.Equal(t, TxError, s.LastTxStatus())
	assert.True(t, s.IsConnected())
	assert.False(t, s.Pending())
}

func TestTxTimeout(t *testing.T) {
	s, tr, clk := newSession(t, nil)
	joined(t, s, tr)

	require.NoError(t, s.Send([]byte{0x01}, true))
	clk.Advance(DefaultTxTimeout)

	assert.False(t, s.Pending())
	assert.Equal(t, TxTimedOut, s.LastTxStatus())
}

func TestDownlink(t *testing.T) {
	s, tr, _ := newSession(t, nil)
	joined(t, s, tr)

	require.NoError(t, s.Send([]byte{0x01}, true))
	tr.InjectString("mac_rx 1 41424344\r\n")
	assert.True(t, s.Update())

	assert.Equal(t, TxOK, s.LastTxStatus())
	assert.False(t, s.Pending())
	require.True(t, s.HasPendingDownlink())

	d, ok := s.PullPendingDownlink()
	require.True(t, ok)
	assert.Equal(t, uint8(1), d.Port)
	assert.Equal(t, []byte{0x41, 0x42, 0x43, 0x44}, d.Payload.Bytes())
	assert.False(t, s.HasPendingDownlink())

	_, ok = s.PullPendingDownlink()
	assert.False(t, ok)
}

func TestDownlinkOnOtherPortAndFragments(t *testing.T) {
	s, tr, _ := newSession(t, nil)
	tr.ChunkSize = 4

	for _, part := range []string{"mac_r", "x 42 0", "0FF\r", "\n"} {
		tr.InjectString(part)
		s.Update()
	}

	d, ok := s.PullPendingDownlink()
	require.True(t, ok)
	assert.Equal(t, uint8(42), d.Port)
	assert.Equal(t, []byte{0x00, 0xFF}, d.Payload.Bytes())
	assert.True(t, s.IsConnected())
}

func TestQueries(t *testing.T) {
	s, _, _ := newSession(t, nil)

	v, err := s.Version()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v, "RN2483"))

	eui, err := s.HardwareEUI()
	require.NoError(t, err)
	assert.Equal(t, "0004A30B001A2B3C", eui.AsHex(0).String())
}

func TestNoReplyTimesOut(t *testing.T) {
	s, tr, _ := newSession(t, nil)
	tr.Responder = nil

	_, err := s.Version()
	assert.ErrorIs(t, err, &modem.TimedOutError{})
}

func TestTxStatusString(t *testing.T) {
	assert.Equal(t, "ok", TxOK.String())
	assert.Equal(t, "timed out", TxTimedOut.String())
}

func TestLateEventBeforeReply(t *testing.T) {
	s, tr, clk := newSession(t, nil)
	joined(t, s, tr)

	require.NoError(t, s.Send([]byte{0x01}, true))
	clk.Advance(DefaultTxTimeout)
	require.False(t, s.Pending())

	// The modem reports the old transmission just before it answers the new one
	tr.InjectString("mac_tx_ok\r\n")
	require.NoError(t, s.Send([]byte{0x02}, false))
	assert.Equal(t, TxPending, s.LastTxStatus())
	assert.True(t, s.Pending())

	tr.InjectString("mac_tx_ok\r\n")
	s.Update()
	assert.Equal(t, TxOK, s.LastTxStatus())
	assert.False(t, s.Pending())
}

func TestDownlinkDuringQuery(t *testing.T) {
	s, tr, _ := newSession(t, nil)

	tr.InjectString("mac_rx 3 BEEF\r\n")
	v, err := s.Version()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v, "RN2483"))

	d, ok := s.PullPendingDownlink()
	require.True(t, ok)
	assert.Equal(t, uint8(3), d.Port)
	assert.Equal(t, []byte{0xBE, 0xEF}, d.Payload.Bytes())
}
