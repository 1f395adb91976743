package usb

import (
	"fmt"
	"sort"

	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// ResolvePort returns the tty of the first attached supported device with the
// given role. Ports are checked in name order so the choice is stable.
func ResolvePort(role Role) (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("enumerating serial ports: %w", err)
	}

	return matchPort(ports, role)
}

func matchPort(ports []*enumerator.PortDetails, role Role) (string, error) {
	sort.Slice(ports, func(i, j int) bool {
		return ports[i].Name < ports[j].Name
	})

	for _, p := range ports {
		if !p.IsUSB {
			continue
		}

		vid, err := ParseHexUINT16(p.VID)
		if err != nil {
			log.Debug("could not parse hex vid", zap.String("port", p.Name), zap.String("vid", p.VID))
			continue
		}

		pid, err := ParseHexUINT16(p.PID)
		if err != nil {
			log.Debug("could not parse hex pid", zap.String("port", p.Name), zap.String("pid", p.PID))
			continue
		}

		tuple, found := FindSupportedDeviceTuple(gousb.ID(vid), gousb.ID(pid))
		if !found || tuple.Role != role {
			continue
		}

		log.Info("found supported device", zap.String("device", tuple.Device.String()), zap.String("port", p.Name))
		return p.Name, nil
	}

	return "", NewNotFoundError(fmt.Sprintf("no %s device attached", role))
}
