// Package config persists a KIPA daemon's configuration to disk,
// generalising the teacher's config.go ConfigManager
// (~/.pangea/node_<id>_config.json) from Pangea Net's numeric node id
// to KIPA's key-id identity and routing parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
)

var logger = logging.Logger("kipa/config")

// DefaultConfigDirName is the per-user config directory name,
// generalised from the teacher's ".pangea".
const DefaultConfigDirName = ".kipa"

// NodeConfig is the persistent configuration for a single daemon
// instance, generalising the teacher's NodeConfig struct to KIPA's
// routing and transport parameters.
type NodeConfig struct {
	KeyID              string   `json:"key_id"`
	GlobalPort         uint16   `json:"global_port"`
	LocalSocketPath    string   `json:"local_socket_path"`
	InterfaceName      string   `json:"interface_name,omitempty"`
	ForceIPv6          bool     `json:"force_ipv6"`
	NeighbourCapacity  int      `json:"neighbour_capacity"`
	SecretKeyPath      string   `json:"secret_key_path"`
	BootstrapAddresses []string `json:"bootstrap_addresses,omitempty"`
	LastSavedAt        string   `json:"last_saved_at,omitempty"`
}

// ConfigManager loads and saves a NodeConfig from a per-key-id JSON
// file, directly generalised from the teacher's ConfigManager.
type ConfigManager struct {
	configPath string
	mu         sync.RWMutex
	config     *NodeConfig
}

// NewConfigManager constructs a ConfigManager for keyID, defaulting
// the config path to "~/.kipa/node_<keyID>_config.json" (or a temp
// directory if the home directory cannot be resolved).
func NewConfigManager(keyID string) *ConfigManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Warnw("could not resolve home directory, falling back to temp dir", "error", err)
		homeDir = os.TempDir()
	}

	configDir := filepath.Join(homeDir, DefaultConfigDirName)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.Warnw("could not create config directory, falling back to temp dir", "error", err)
		configDir = os.TempDir()
	}

	configPath := filepath.Join(configDir, fmt.Sprintf("node_%s_config.json", keyID))
	return &ConfigManager{
		configPath: configPath,
		config: &NodeConfig{
			KeyID:             keyID,
			GlobalPort:        10842,
			NeighbourCapacity: 8,
		},
	}
}

// Path returns the file this manager reads and writes.
func (m *ConfigManager) Path() string { return m.configPath }

// Load reads the config file from disk, or returns the in-memory
// default if no file exists yet.
func (m *ConfigManager) Load() (*NodeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		logger.Infow("no existing config file, using defaults", "path", m.configPath)
		return m.config, nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, api.Wrap(api.KindConfiguration, "failed to read config file", err)
	}
	var cfg NodeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, api.Wrap(api.KindConfiguration, "failed to parse config file", err)
	}
	m.config = &cfg
	logger.Infow("loaded configuration", "path", m.configPath, "last_saved_at", cfg.LastSavedAt)
	return m.config, nil
}

// Save writes cfg to disk, stamping LastSavedAt.
func (m *ConfigManager) Save(cfg *NodeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.LastSavedAt = time.Now().Format(time.RFC3339)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return api.Wrap(api.KindInternal, "failed to marshal config", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return api.Wrap(api.KindConfiguration, "failed to write config file", err)
	}
	m.config = cfg
	logger.Infow("saved configuration", "path", m.configPath)
	return nil
}

// Current returns a copy of the in-memory configuration.
func (m *ConfigManager) Current() *NodeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.config
	if m.config.BootstrapAddresses != nil {
		cp.BootstrapAddresses = append([]string(nil), m.config.BootstrapAddresses...)
	}
	return &cp
}

// AddBootstrapAddress appends addr to the bootstrap list if not
// already present.
func (m *ConfigManager) AddBootstrapAddress(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.config.BootstrapAddresses {
		if existing == addr {
			return
		}
	}
	m.config.BootstrapAddresses = append(m.config.BootstrapAddresses, addr)
}
