package node

import (
	"fmt"

	"github.com/LeoCommon/fieldnode/internal/config"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"github.com/LeoCommon/fieldnode/pkg/usb"
	"go.uber.org/zap"
)

func openDevice(role usb.Role, c config.SerialDeviceConfig) (transport.Transport, error) {
	if !c.Enabled {
		log.Info("device disabled", zap.String("role", string(role)))
		return nil, nil
	}

	port := c.Port
	if port == config.PortAuto {
		p, err := usb.ResolvePort(role)
		if err != nil {
			return nil, err
		}
		port = p
	}

	s, err := transport.OpenSerial(transport.SerialConfig{Port: port, BaudRate: c.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("opening %s device: %w", role, err)
	}

	return s, nil
}

// OpenDevices opens the serial port of every enabled device. A device that
// cannot be opened is left out, the node runs with what is available.
func OpenDevices(conf *config.Manager) Devices {
	var d Devices

	for _, dev := range []struct {
		role usb.Role
		conf config.SerialDeviceConfig
		dst  *transport.Transport
	}{
		{usb.RoleGPS, conf.GPS().C().SerialDeviceConfig, &d.GPS},
		{usb.RoleSigfox, conf.Sigfox().C().SerialDeviceConfig, &d.Sigfox},
		{usb.RoleLoRa, conf.LoRa().C().SerialDeviceConfig, &d.LoRa},
	} {
		t, err := openDevice(dev.role, dev.conf)
		if err != nil {
			log.Error("device unavailable", zap.String("role", string(dev.role)), zap.Error(err))
			continue
		}

		if t != nil {
			*dev.dst = t
		}
	}

	return d
}
