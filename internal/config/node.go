package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultReportInterval = 15 * time.Minute
)

// Radio selects the uplink position reports are sent over
type Radio string

const (
	RadioNone   Radio = "none"
	RadioSigfox Radio = "sigfox"
	RadioLoRa   Radio = "lora"
)

// SupportedOptions lists the options for the config parser
func (r Radio) SupportedOptions() []Radio {
	return []Radio{
		RadioNone,
		RadioSigfox,
		RadioLoRa,
	}
}

// If you want to modify any field at run-time here, use the manager's Set
type NodeConfig struct {
	Name           string       `toml:"name,omitempty"`
	Debug          bool         `toml:"debug"`
	PollInterval   TOMLDuration `toml:"poll_interval" comment:"how often the serial devices are polled"`
	ReportInterval TOMLDuration `toml:"report_interval" comment:"minimum time between two position reports"`
	ReportVia      Radio        `toml:"report_via" comment:"none, sigfox or lora"`
	MinDistance    float64      `toml:"min_distance,omitempty" comment:"skip reports if the node moved less metres than this"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		PollInterval:   TOMLDuration(DefaultPollInterval),
		ReportInterval: TOMLDuration(DefaultReportInterval),
		ReportVia:      RadioSigfox,
	}
}

type NodeConfigManager struct {
	BaseConfigManager[NodeConfig]
}

// verifyNode checks the "hard" conditions that the rest of the code relies on
func verifyNode(c *NodeConfig) error {
	if c.PollInterval.Value() <= 0 {
		return errors.New("poll_interval must be positive")
	}

	if c.ReportInterval.Value() <= 0 {
		return errors.New("report_interval must be positive")
	}

	if !slices.Contains(c.ReportVia.SupportedOptions(), c.ReportVia) {
		return fmt.Errorf("unsupported report_via %q", c.ReportVia)
	}

	if c.MinDistance < 0 {
		return errors.New("min_distance must not be negative")
	}

	return nil
}

func NewNodeConfigManager(config *NodeConfig, mgr *Manager) *NodeConfigManager {
	j := NodeConfigManager{}
	j.conf = config
	j.check = verifyNode
	j.mgr = mgr

	return &j
}
