package atparser

import (
	"bytes"
	"fmt"
	"strconv"
)

// Status is the closed set of single word replies an RN2483 gives to a command
type Status int

const (
	StatusOK Status = iota
	StatusInvalidParam
	StatusKeysNotInit
	StatusNotJoined
	StatusNoFreeChannel
	StatusSilent
	StatusFrameCounterError
	StatusBusy
	StatusMacPaused
	StatusInvalidDataLength
	StatusMacError
	StatusUnknown
)

// Order matters, the first matching prefix wins
var statusReplies = []struct {
	prefix string
	status Status
}{
	{"ok", StatusOK},
	{"invalid_param", StatusInvalidParam},
	{"keys_not_init", StatusKeysNotInit},
	{"not_joined", StatusNotJoined},
	{"no_free_ch", StatusNoFreeChannel},
	{"silent", StatusSilent},
	{"frame_counter_err_rejoin_needed", StatusFrameCounterError},
	{"busy", StatusBusy},
	{"mac_paused", StatusMacPaused},
	{"invalid_data_len", StatusInvalidDataLength},
	{"mac_err", StatusMacError},
}

func (s Status) String() string {
	if s == StatusUnknown {
		return "unknown"
	}

	for _, r := range statusReplies {
		if r.status == s {
			return r.prefix
		}
	}

	return fmt.Sprintf("%d", int(s))
}

// ParseStatus classifies a command reply line
func ParseStatus(line []byte) Status {
	for _, r := range statusReplies {
		if bytes.HasPrefix(line, []byte(r.prefix)) {
			return r.status
		}
	}

	return StatusUnknown
}

// Event is an asynchronous notification the modem emits after a command was accepted
type Event int

const (
	EventNone Event = iota
	EventAccepted
	EventDenied
	EventTxOK
	EventMacError
	EventRx
)

const (
	ReplyAccepted = "accepted"
	ReplyDenied   = "denied"
	ReplyTxOK     = "mac_tx_ok"
	ReplyMacError = "mac_err"
	ReplyRx       = "mac_rx "
)

func ParseEvent(line []byte) Event {
	switch {
	case bytes.HasPrefix(line, []byte(ReplyAccepted)):
		return EventAccepted
	case bytes.HasPrefix(line, []byte(ReplyDenied)):
		return EventDenied
	case bytes.HasPrefix(line, []byte(ReplyTxOK)):
		return EventTxOK
	case bytes.HasPrefix(line, []byte(ReplyMacError)):
		return EventMacError
	case bytes.HasPrefix(line, []byte(ReplyRx)):
		return EventRx
	}

	return EventNone
}

// Downlink parses "mac_rx <port> <hexdata>" into the port and the still hex
// encoded payload. The payload is empty if the modem sent none.
func Downlink(line []byte) (port uint8, payload []byte, err error) {
	if !bytes.HasPrefix(line, []byte(ReplyRx)) {
		err = fmt.Errorf("not a downlink %q", line)
		return
	}

	rest := bytes.TrimRight(line[len(ReplyRx):], "\r\n")
	portStr, data, _ := bytes.Cut(rest, []byte{' '})

	p, perr := strconv.ParseUint(string(portStr), 10, 8)
	if perr != nil {
		err = fmt.Errorf("invalid downlink port %q", portStr)
		return
	}

	port = uint8(p)
	payload = data
	return
}

const (
	SigfoxOK = "OK"
	SigfoxRX = "RX="
)

// IsSigfoxOK reports whether a Sigfox modem line acknowledges the last command
func IsSigfoxOK(line []byte) bool {
	return bytes.HasPrefix(line, []byte(SigfoxOK))
}

// IsSigfoxRX reports whether a Sigfox modem line carries a downlink
func IsSigfoxRX(line []byte) bool {
	return bytes.HasPrefix(line, []byte(SigfoxRX))
}
