package usb

import (
	"fmt"

	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/google/gousb"
	"go.uber.org/zap"
)

// resetUSB resets the device with the given ids, found is false if it is not attached.
// Replaced in tests.
var resetUSB = func(vid, pid gousb.ID) (found bool, err error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	dev, err := usbCtx.OpenDeviceWithVIDPID(vid, pid)
	if dev == nil {
		return false, err
	}

	// Close when we are done
	defer dev.Close()

	return true, dev.Reset()
}

// ResetDevice issues a usb port reset on the first attached device with the
// given role, a hung usb serial bridge comes back with a fresh tty afterwards.
func ResetDevice(role Role) error {
	for _, d := range SupportedDevices {
		if d.Role != role {
			continue
		}

		found, err := resetUSB(d.VendorID, d.ProductID)
		if !found {
			if err != nil {
				log.Debug("could not open usb device", zap.String("device", d.String()), zap.Error(err))
			}
			continue
		}

		if err != nil {
			log.Error("resetting usb device failed", zap.String("device", d.String()), zap.Error(err))
			return err
		}

		log.Info("usb device reset", zap.String("device", d.String()))
		return nil
	}

	return NewNotFoundError(fmt.Sprintf("no %s device attached", role))
}
