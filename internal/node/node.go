// Package node runs the field node: it polls the serial devices and reports
// the position over the configured radio.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/LeoCommon/fieldnode/internal/config"
	"github.com/LeoCommon/fieldnode/internal/modem"
	"github.com/LeoCommon/fieldnode/internal/modem/lora"
	"github.com/LeoCommon/fieldnode/internal/modem/nmea"
	"github.com/LeoCommon/fieldnode/internal/modem/sigfox"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/systemd"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"go.uber.org/zap"
)

const DefaultWatchdogInterval = 10 * time.Second

// watchdogInterval pings systemd twice per watchdog timeout
func watchdogInterval() time.Duration {
	if d, ok := systemd.WatchdogInterval(); ok {
		return d / 2
	}

	return DefaultWatchdogInterval
}

// Devices holds the transports of the attached devices, nil means absent
type Devices struct {
	GPS    transport.Transport
	Sigfox transport.Transport
	LoRa   transport.Transport
}

// App global app struct that contains all sessions
type App struct {
	Conf *config.Manager

	GPS    *nmea.Session
	Sigfox *sigfox.Session
	LoRa   *lora.Session

	WatchdogInterval time.Duration

	clk      clock.Clock
	devices  Devices
	sessions []modem.Session
	uplink   Uplink

	lastJoinAt  uint32
	joinStarted bool

	lastReportAt  uint32
	lastReportFix nmea.Fix
	reported      bool
	reports       int
}

func New(conf *config.Manager, clk clock.Clock, devices Devices) *App {
	a := &App{
		Conf:             conf,
		WatchdogInterval: watchdogInterval(),
		clk:              clk,
		devices:          devices,
	}

	if devices.GPS != nil {
		c := conf.GPS().C()
		a.GPS = nmea.New(devices.GPS, nmea.Options{
			MaxFrameSize:   c.MaxFrameSize,
			VerifyChecksum: c.VerifyChecksum,
		})
		a.sessions = append(a.sessions, a.GPS)
	}

	if devices.Sigfox != nil {
		c := conf.Sigfox().C()
		a.Sigfox = sigfox.New(devices.Sigfox, clk, sigfox.Options{
			MaxFrameSize:   c.MaxFrameSize,
			NetworkTimeout: c.NetworkTimeout.Value(),
			PingTimeout:    c.PingTimeout.Value(),
		})
		a.sessions = append(a.sessions, a.Sigfox)
	}

	if devices.LoRa != nil {
		c := conf.LoRa().C()
		a.LoRa = lora.New(devices.LoRa, clk, lora.Options{
			MaxFrameSize:    c.MaxFrameSize,
			Band:            c.Band,
			Port:            c.AppPort,
			ResponseTimeout: c.ResponseTimeout.Value(),
			JoinTimeout:     c.JoinTimeout.Value(),
			TxTimeout:       c.TxTimeout.Value(),
		})
		a.sessions = append(a.sessions, a.LoRa)
	}

	switch conf.Node().C().ReportVia {
	case config.RadioSigfox:
		if a.Sigfox != nil {
			a.uplink = &sigfoxUplink{s: a.Sigfox, ack: conf.Sigfox().C().Ack}
		}
	case config.RadioLoRa:
		if a.LoRa != nil {
			a.uplink = &loraUplink{s: a.LoRa, confirmed: conf.LoRa().C().Confirmed}
		}
	}

	if a.uplink == nil && conf.Node().C().ReportVia != config.RadioNone {
		log.Warn("report radio not available, position reports are disabled",
			zap.String("report_via", string(conf.Node().C().ReportVia)))
	}

	return a
}

// Start brings the devices into their operating state
func (a *App) Start() {
	if a.Sigfox != nil {
		ok, err := a.Sigfox.IsDeviceConnected()
		if err != nil || !ok {
			log.Warn("sigfox modem did not answer", zap.Error(err))
		}
	}

	if a.GPS != nil {
		for _, s := range a.Conf.GPS().C().InitSentences {
			if err := a.GPS.Send(s); err != nil {
				log.Error("could not configure gps", zap.String("sentence", s), zap.Error(err))
			}
		}
	}

	if a.LoRa != nil {
		a.join()
	}
}

func (a *App) join() {
	a.lastJoinAt = a.clk.NowMs()
	a.joinStarted = true

	if v, err := a.LoRa.Version(); err == nil {
		log.Info("lora modem found", zap.String("version", v))
	}

	appEUI, appKey := a.Conf.LoRa().C().Keys()
	if err := a.LoRa.Join(appEUI, appKey); err != nil {
		log.Error("lora join failed", zap.Error(err))
	}
}

// Run polls every session until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	a.Start()

	poll := time.NewTicker(a.Conf.Node().C().PollInterval.Value())
	defer poll.Stop()

	watchdog := time.NewTicker(a.WatchdogInterval)
	defer watchdog.Stop()

	if err := systemd.Ready(); err != nil {
		log.Debug("systemd ready notification skipped", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("node loop stopped")
			_ = systemd.Stopping()
			return nil

		case <-poll.C:
			a.Tick()

		case <-watchdog.C:
			_ = systemd.EntertainWatchdog()
		}
	}
}

// Tick runs one poll cycle: every session is updated and results are handled
func (a *App) Tick() {
	for _, s := range a.sessions {
		s.Update()
	}

	if a.Sigfox != nil {
		if rx, ok := a.Sigfox.PullDownlink(); ok {
			log.Info("sigfox downlink", zap.String("data", rx.AsHex(' ').String()))
		}
	}

	if a.LoRa != nil {
		if d, ok := a.LoRa.PullPendingDownlink(); ok {
			log.Info("lora downlink", zap.Uint8("port", d.Port), zap.String("data", d.Payload.AsHex(' ').String()))
		}
	}

	a.maybeReport()
}

func (a *App) maybeReport() {
	if a.uplink == nil || a.GPS == nil || !a.GPS.HasFix() {
		return
	}

	nodeConf := a.Conf.Node().C()
	now := a.clk.NowMs()

	if a.reported && clock.Since(now, a.lastReportAt) < clock.ToMs(nodeConf.ReportInterval.Value()) {
		return
	}

	if a.LoRa != nil && a.uplink.Name() == "lora" && !a.LoRa.IsConnected() && !a.LoRa.Pending() {
		rejoin := clock.ToMs(a.Conf.LoRa().C().RejoinInterval.Value())
		if a.joinStarted && clock.Since(now, a.lastJoinAt) < rejoin {
			return
		}

		log.Info("lora not connected, joining again")
		a.join()
		return
	}

	if !a.uplink.Ready() {
		return
	}

	fix := a.GPS.PullFix()
	if a.reported && nodeConf.MinDistance > 0 && fix.DistanceTo(a.lastReportFix) < nodeConf.MinDistance {
		log.Debug("position unchanged, skipping report")
		a.lastReportAt = now
		return
	}

	payload := EncodeReport(fix)
	if err := a.uplink.Send(payload.Bytes()); err != nil {
		if !errors.Is(err, modem.ErrRequestPending) {
			log.Error("sending position report failed", zap.String("radio", a.uplink.Name()), zap.Error(err))
		}
		return
	}

	log.Info("position report sent",
		zap.String("radio", a.uplink.Name()),
		zap.Float64("lat", fix.Latitude),
		zap.Float64("lon", fix.Longitude))

	a.reported = true
	a.reports++
	a.lastReportAt = now
	a.lastReportFix = fix

	_ = systemd.Status(fmt.Sprintf("%d position reports sent", a.reports))
}

// Reports returns how many position reports were handed to the radio
func (a *App) Reports() int {
	return a.reports
}

// Shutdown closes every transport that can be closed
func (a *App) Shutdown() {
	for _, t := range []transport.Transport{a.devices.GPS, a.devices.Sigfox, a.devices.LoRa} {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Error("closing device failed", zap.Error(err))
			}
		}
	}
}
