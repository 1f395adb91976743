package config

import (
	"flag"
	"os"
	"sync"
	"time"

	"github.com/LeoCommon/fieldnode/pkg/file"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	ProductName             = "fieldnode"
	UserdataDirectoryPrefix = "/data/"
	ConfigFolder            = "config/"

	ConfigPathPrefix = ConfigFolder + ProductName + "/"
	ConfigFile       = "config.toml"

	DefaultConfigPath = UserdataDirectoryPrefix + ConfigPathPrefix + ConfigFile

	DefaultDebugModeValue = false
)

type CLIFlags struct {
	ConfigPath string
	Debug      bool
}

type MainConfig struct {
	Node   NodeConfig   `toml:"node"`
	Sigfox SigfoxConfig `toml:"sigfox"`
	GPS    GPSConfig    `toml:"gps"`
	LoRa   LoRaConfig   `toml:"lora"`
}

type ConfigManager interface {
	lock()
	unlock()
	Verify() error
}

type ConfigManagerKey string

const (
	CMNode   ConfigManagerKey = "node"
	CMSigfox ConfigManagerKey = "sigfox"
	CMGPS    ConfigManagerKey = "gps"
	CMLoRa   ConfigManagerKey = "lora"
)

type ConfigManagerStore map[ConfigManagerKey]ConfigManager

type Manager struct {
	mu sync.RWMutex

	// The actual config, never share this with other code
	config *MainConfig

	// The config manager store (pointers)
	store ConfigManagerStore

	// The config path
	path string
}

// section looks up the manager of one config section
func section[M ConfigManager](m *Manager, key ConfigManagerKey) M {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[key].(M)
	if !ok {
		log.Panic("implementation mistake, config section missing", zap.String("section", string(key)))
	}
	return cm
}

func (m *Manager) Node() *NodeConfigManager {
	return section[*NodeConfigManager](m, CMNode)
}

func (m *Manager) Sigfox() *SigfoxConfigManager {
	return section[*SigfoxConfigManager](m, CMSigfox)
}

func (m *Manager) GPS() *GPSConfigManager {
	return section[*GPSConfigManager](m, CMGPS)
}

func (m *Manager) LoRa() *LoRaConfigManager {
	return section[*LoRaConfigManager](m, CMLoRa)
}

// Load reads the config file on top of the defaults and verifies every section
func (m *Manager) Load(path string, acceptEmptyConfig bool) error {
	data, err := os.ReadFile(path)
	if err == nil {
		if err = toml.Unmarshal(data, m.config); err != nil {
			log.Error("failed to unmarshal config file", zap.Error(err))
		}
	}

	if err != nil && !acceptEmptyConfig {
		return err
	}

	// Store the load path
	m.path = path

	// Each config section manager gets his own locking primitive
	m.store = ConfigManagerStore{
		CMNode:   NewNodeConfigManager(&m.config.Node, m),
		CMSigfox: NewSigfoxConfigManager(&m.config.Sigfox, m),
		CMGPS:    NewGPSConfigManager(&m.config.GPS, m),
		CMLoRa:   NewLoRaConfigManager(&m.config.LoRa, m),
	}

	// Verify all configs contain the mandatory values
	for _, value := range m.store {
		if err := value.Verify(); err != nil {
			return err
		}
	}

	log.Debug("active config", zap.Any("config", m.config), zap.String("path", m.path))

	return nil
}

// Save locks all configs and writes it to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Lock all config managers
	for _, value := range m.store {
		value.lock()
	}

	// Unlock the config managers when we are done
	defer func() {
		for _, value := range m.store {
			value.unlock()
		}
	}()

	// Marshal the config, does not use getters, so no locking => safe
	configData, err := toml.Marshal(m.config)
	if err != nil {
		return err
	}

	if err := file.WriteTo(m.path, configData); err != nil {
		log.Error("Failed to write config file", zap.Error(err))
		return err
	}

	return nil
}

// New returns the configuration with every default applied
func New() *MainConfig {
	return &MainConfig{
		Node:   DefaultNodeConfig(),
		Sigfox: DefaultSigfoxConfig(),
		GPS:    DefaultGPSConfig(),
		LoRa:   DefaultLoRaConfig(),
	}
}

// Marshal renders c as TOML, used for the sample config
func Marshal(c *MainConfig) ([]byte, error) {
	return toml.Marshal(c)
}

func NewManager() *Manager {
	return &Manager{
		mu:     sync.RWMutex{},
		store:  make(ConfigManagerStore),
		config: New(),
	}
}

func ParseCLIFlags() CLIFlags {
	flags := CLIFlags{}

	flag.StringVar(&flags.ConfigPath, "config", DefaultConfigPath, "relative or absolute path to the config file")
	flag.BoolVar(&flags.Debug, "debug", DefaultDebugModeValue, "true if the debug logging should be enabled")

	flag.Parse()

	return flags
}

type TOMLDuration time.Duration

func (d *TOMLDuration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = TOMLDuration(x)
	return nil
}

func (c TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(c).String()), nil
}

func (c TOMLDuration) Value() time.Duration {
	return time.Duration(c)
}
