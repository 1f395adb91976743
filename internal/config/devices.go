package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
)

// PortAuto makes the node look the device up by its USB bridge
const PortAuto = "auto"

// SerialDeviceConfig is shared by every serial attached device
type SerialDeviceConfig struct {
	Enabled      bool   `toml:"enabled"`
	Port         string `toml:"port" comment:"tty path or auto"`
	BaudRate     int    `toml:"baud_rate"`
	MaxFrameSize int    `toml:"max_frame_size,omitempty"`
}

func (s *SerialDeviceConfig) verify(section string) error {
	if !s.Enabled {
		return nil
	}

	if s.Port == "" {
		return fmt.Errorf("%s: enabled but no port set", section)
	}

	if s.BaudRate <= 0 {
		return fmt.Errorf("%s: invalid baud_rate %d", section, s.BaudRate)
	}

	if s.MaxFrameSize < 0 {
		return fmt.Errorf("%s: invalid max_frame_size %d", section, s.MaxFrameSize)
	}

	return nil
}

type SigfoxConfig struct {
	SerialDeviceConfig
	NetworkTimeout TOMLDuration `toml:"network_timeout" comment:"how long an uplink may take"`
	PingTimeout    TOMLDuration `toml:"ping_timeout"`
	Ack            bool         `toml:"ack" comment:"request a downlink with every report"`
}

func DefaultSigfoxConfig() SigfoxConfig {
	return SigfoxConfig{
		SerialDeviceConfig: SerialDeviceConfig{
			Enabled:  true,
			Port:     PortAuto,
			BaudRate: 9600,
		},
		NetworkTimeout: TOMLDuration(60 * time.Second),
		PingTimeout:    TOMLDuration(time.Second),
	}
}

type SigfoxConfigManager struct {
	BaseConfigManager[SigfoxConfig]
}

func verifySigfox(c *SigfoxConfig) error {
	if err := c.verify("sigfox"); err != nil {
		return err
	}

	if c.NetworkTimeout.Value() < 0 || c.PingTimeout.Value() < 0 {
		return errors.New("sigfox: negative timeout")
	}

	return nil
}

func NewSigfoxConfigManager(config *SigfoxConfig, mgr *Manager) *SigfoxConfigManager {
	j := SigfoxConfigManager{}
	j.conf = config
	j.check = verifySigfox
	j.mgr = mgr

	return &j
}

type GPSConfig struct {
	SerialDeviceConfig
	VerifyChecksum bool     `toml:"verify_checksum" comment:"drop sentences with a mismatching checksum"`
	InitSentences  []string `toml:"init_sentences,omitempty" comment:"sent to the receiver after opening, without $ and checksum"`
}

func DefaultGPSConfig() GPSConfig {
	return GPSConfig{
		SerialDeviceConfig: SerialDeviceConfig{
			Enabled:  true,
			Port:     PortAuto,
			BaudRate: 9600,
		},
		VerifyChecksum: true,
	}
}

type GPSConfigManager struct {
	BaseConfigManager[GPSConfig]
}

func verifyGPS(c *GPSConfig) error {
	if err := c.verify("gps"); err != nil {
		return err
	}

	for _, s := range c.InitSentences {
		if strings.ContainsAny(s, "$*\r\n") {
			return fmt.Errorf("gps: init sentence %q must not contain framing", s)
		}
	}

	return nil
}

func NewGPSConfigManager(config *GPSConfig, mgr *Manager) *GPSConfigManager {
	j := GPSConfigManager{}
	j.conf = config
	j.check = verifyGPS
	j.mgr = mgr

	return &j
}

type LoRaConfig struct {
	SerialDeviceConfig
	Band            int          `toml:"band" comment:"frequency plan, 868 or 433"`
	AppPort         uint8        `toml:"app_port" comment:"application port of the uplinks"`
	AppEUI          string       `toml:"app_eui" comment:"hex encoded, 8 bytes"`
	AppKey          string       `toml:"app_key" comment:"hex encoded, 16 bytes"`
	Confirmed       bool         `toml:"confirmed"`
	ResponseTimeout TOMLDuration `toml:"response_timeout"`
	JoinTimeout     TOMLDuration `toml:"join_timeout"`
	TxTimeout       TOMLDuration `toml:"tx_timeout"`
	RejoinInterval  TOMLDuration `toml:"rejoin_interval" comment:"minimum time between two join attempts"`
}

func DefaultLoRaConfig() LoRaConfig {
	return LoRaConfig{
		SerialDeviceConfig: SerialDeviceConfig{
			Port:     PortAuto,
			BaudRate: 57600,
		},
		Band:            868,
		AppPort:         1,
		ResponseTimeout: TOMLDuration(2 * time.Second),
		JoinTimeout:     TOMLDuration(30 * time.Second),
		TxTimeout:       TOMLDuration(60 * time.Second),
		RejoinInterval:  TOMLDuration(5 * time.Minute),
	}
}

// Keys decodes the OTAA application EUI and key
func (l LoRaConfig) Keys() (appEUI, appKey []byte) {
	return bytebuf.FromHexString(l.AppEUI).Bytes(), bytebuf.FromHexString(l.AppKey).Bytes()
}

type LoRaConfigManager struct {
	BaseConfigManager[LoRaConfig]
}

func verifyLoRa(c *LoRaConfig) error {
	if err := c.verify("lora"); err != nil {
		return err
	}

	if !c.Enabled {
		return nil
	}

	if c.Band != 868 && c.Band != 433 {
		return fmt.Errorf("lora: unsupported band %d", c.Band)
	}

	if c.RejoinInterval.Value() <= 0 {
		return errors.New("lora: rejoin_interval must be positive")
	}

	if c.AppPort == 0 || c.AppPort > 223 {
		return fmt.Errorf("lora: invalid app_port %d", c.AppPort)
	}

	eui, key := c.Keys()
	if len(eui) != 8 || len(c.AppEUI) != 16 {
		return errors.New("lora: app_eui must be 16 hex digits")
	}

	if len(key) != 16 || len(c.AppKey) != 32 {
		return errors.New("lora: app_key must be 32 hex digits")
	}

	return nil
}

func NewLoRaConfigManager(config *LoRaConfig, mgr *Manager) *LoRaConfigManager {
	j := LoRaConfigManager{}
	j.conf = config
	j.check = verifyLoRa
	j.mgr = mgr

	return &j
}
