package main

import (
	"flag"
	"time"

	"github.com/LeoCommon/fieldnode/internal/config"
	"github.com/LeoCommon/fieldnode/internal/modem/lora"
	"github.com/LeoCommon/fieldnode/internal/modem/nmea"
	"github.com/LeoCommon/fieldnode/internal/modem/sigfox"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"github.com/LeoCommon/fieldnode/pkg/usb"
	"go.uber.org/zap"
)

const (
	ModemStartRetryCount = 5
	ModemStartRetryWait  = 5 * time.Second

	// How long the gps is listened to for a fix
	GPSProbeDuration = 30 * time.Second
)

// probe checks that a device answers on its protocol
func probe(role usb.Role, t *transport.Serial) error {
	clk := clock.System()

	switch role {
	case usb.RoleSigfox:
		ok, err := sigfox.New(t, clk, sigfox.Options{}).IsDeviceConnected()
		if err != nil {
			return err
		}
		log.Info("sigfox modem answered", zap.Bool("connected", ok))

	case usb.RoleLoRa:
		s := lora.New(t, clk, lora.Options{})
		v, err := s.Version()
		if err != nil {
			return err
		}
		eui, err := s.HardwareEUI()
		if err != nil {
			return err
		}
		log.Info("lora modem answered", zap.String("version", v), zap.String("hweui", eui.AsHex(0).String()))

	case usb.RoleGPS:
		s := nmea.New(t, nmea.DefaultOptions())
		deadline := time.Now().Add(GPSProbeDuration)
		for time.Now().Before(deadline) && !s.HasFix() {
			s.Update()
			time.Sleep(100 * time.Millisecond)
		}
		log.Info("gps probed",
			zap.Bool("fix", s.HasFix()),
			zap.Int("sentences", s.Sentences()),
			zap.Int("checksum_errors", s.ChecksumErrors()),
			zap.Any("position", s.Fix()))
	}

	return nil
}

func main() {
	role := flag.String("role", string(usb.RoleGPS), "device to probe: gps, sigfox or lora")
	port := flag.String("port", config.PortAuto, "tty of the device or auto")
	baud := flag.Int("baud", 9600, "baud rate")
	debug := flag.Bool("debug", true, "true if the debug logging should be enabled")
	flag.Parse()

	log.Init(*debug)
	defer log.Sync()

	var err error

	for attempts := 0; attempts < ModemStartRetryCount; attempts++ {
		if attempts > 0 {
			// A hung usb serial bridge often recovers after a port reset
			if resetErr := usb.ResetDevice(usb.Role(*role)); resetErr != nil {
				log.Warn("usb reset failed", zap.Error(resetErr))
			}
			time.Sleep(ModemStartRetryWait)
		}

		p := *port
		if p == config.PortAuto {
			if p, err = usb.ResolvePort(usb.Role(*role)); err != nil {
				log.Error("Failed to find device", zap.Error(err))
				continue
			}
		}

		var t *transport.Serial
		t, err = transport.OpenSerial(transport.SerialConfig{Port: p, BaudRate: *baud})
		if err != nil {
			log.Error("Failed to open modem interface", zap.Error(err))
			continue
		}

		err = probe(usb.Role(*role), t)
		_ = t.Close()
		if err != nil {
			log.Error("Device did not answer", zap.Error(err))
			continue
		}

		// Break out of the loop
		break
	}

	if err != nil {
		log.Fatal("giving up", zap.Error(err))
	}
}
