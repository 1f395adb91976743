package usb

import (
	"fmt"
	"strconv"

	"github.com/google/gousb"
)

type DeviceType int

const (
	Unknown DeviceType = iota
	// GPS receivers
	GPSUBlox7
	GPSUBlox8
	GPSProlific
	// Modems
	ModemSigfoxFTDI
	ModemRN2483
)

// Role is the protocol a device speaks, it maps to one session of the node
type Role string

const (
	RoleGPS    Role = "gps"
	RoleSigfox Role = "sigfox"
	RoleLoRa   Role = "lora"
)

var (
	SupportedDevices = DeviceMap{
		GPSUBlox7: {
			VendorID:  0x1546,
			ProductID: 0x01a7,
			Name:      "u-blox 7 GNSS",
			Role:      RoleGPS,
		},
		GPSUBlox8: {
			VendorID:  0x1546,
			ProductID: 0x01a8,
			Name:      "u-blox 8 GNSS",
			Role:      RoleGPS,
		},
		GPSProlific: {
			VendorID:  0x067b,
			ProductID: 0x2303,
			Name:      "Prolific PL2303 GPS",
			Role:      RoleGPS,
		},
		ModemSigfoxFTDI: {
			VendorID:  0x0403,
			ProductID: 0x6015,
			Name:      "FTDI FT230X AX-SFEU",
			Role:      RoleSigfox,
		},
		ModemRN2483: {
			VendorID:  0x04d8,
			ProductID: 0x00df,
			Name:      "Microchip MCP2200 RN2483",
			Role:      RoleLoRa,
		},
	}
)

type Device struct {
	Name      string
	VendorID  gousb.ID
	ProductID gousb.ID
	Role      Role
}

func (d *Device) String() string {
	return fmt.Sprintf("%s pid: %s vid: %s", d.Name, d.ProductID.String(), d.VendorID.String())
}

type DeviceMap map[DeviceType]*Device

type DeviceTuple struct {
	*Device
	DeviceType
}

func FindSupportedDeviceTuple(vendorID gousb.ID, productID gousb.ID) (DeviceTuple, bool) {
	for k, device := range SupportedDevices {
		if device.VendorID == vendorID && device.ProductID == productID {
			return DeviceTuple{DeviceType: k, Device: device}, true
		}
	}
	return DeviceTuple{}, false
}

func ParseHexUINT16(str string) (uint16, error) {
	val, err := strconv.ParseUint(str, 16, 16)
	if err != nil {
		return 0, err
	}

	return uint16(val), nil
}
