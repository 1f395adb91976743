package node

import (
	"github.com/LeoCommon/fieldnode/internal/modem/lora"
	"github.com/LeoCommon/fieldnode/internal/modem/sigfox"
)

// Uplink is a radio position reports can be sent over
type Uplink interface {
	Name() string
	// Ready reports whether the radio can take a report right now
	Ready() bool
	Send(payload []byte) error
}

type sigfoxUplink struct {
	s   *sigfox.Session
	ack bool
}

func (u *sigfoxUplink) Name() string { return "sigfox" }

func (u *sigfoxUplink) Ready() bool { return !u.s.Pending() }

func (u *sigfoxUplink) Send(payload []byte) error {
	return u.s.SendFrame(payload, u.ack)
}

type loraUplink struct {
	s         *lora.Session
	confirmed bool
}

func (u *loraUplink) Name() string { return "lora" }

func (u *loraUplink) Ready() bool { return u.s.IsConnected() && !u.s.Pending() }

func (u *loraUplink) Send(payload []byte) error {
	return u.s.Send(payload, u.confirmed)
}
