// Package config loads and saves the daemon's own configuration: a small
// JSON document naming the on-disk store location, the listen socket,
// and checkpoint/logging behavior. Distinct from the policy store itself
// (package persist), which has its own on-disk text format.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreauthz/policyd/plog"
)

const (
	// ConfigFileName is the file name used under the config directory.
	ConfigFileName = "policyd.json"
	// DefaultSocketPath is used when Config.SocketPath is empty.
	DefaultSocketPath = "/run/policyd/policyd.sock"
)

// Config is the daemon's own configuration.
type Config struct {
	// StorageDir holds the on-disk persist.DirStreamFactory tree.
	StorageDir string `json:"storage_dir"`
	// SocketPath is where the daemon listens for client connections.
	SocketPath string `json:"socket_path"`
	// CheckpointIntervalMS is how often the daemon checkpoints the
	// in-memory store to StorageDir, in milliseconds. Zero disables
	// periodic checkpointing (the store is then written only by the final
	// checkpoint at shutdown).
	CheckpointIntervalMS int `json:"checkpoint_interval_ms"`
	// AgentReplyTimeoutMS is a reply timeout for pending checks, in
	// milliseconds. It is stored and loaded but not read by the daemon:
	// pending checks are dropped only when Daemon.SweepExpired is called,
	// with the age its caller passes.
	AgentReplyTimeoutMS int `json:"agent_reply_timeout_ms"`
	// DebugLog is stored and loaded but not read by the daemon; debug
	// logging is switched on only by the POLICYD_DEBUG env var.
	DebugLog bool `json:"debug_log"`
}

// GetConfigDir returns the directory the daemon reads/writes its own
// configuration and default storage from.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".policyd"), nil
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	dir, err := GetConfigDir()
	if err != nil {
		plog.ErrorLog.Printf("failed to get config directory: %v", err)
		dir = "."
	}
	return &Config{
		StorageDir:           filepath.Join(dir, "store"),
		SocketPath:           DefaultSocketPath,
		CheckpointIntervalMS: 5000,
		AgentReplyTimeoutMS:  10000,
		DebugLog:             false,
	}
}

// LoadConfig reads the configuration file, falling back to (and
// persisting) DefaultConfig when absent.
func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		plog.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			defaultCfg := DefaultConfig()
			if saveErr := SaveConfig(defaultCfg); saveErr != nil {
				plog.WarnLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}
		plog.WarnLog.Printf("failed to read config file: %v", err)
		return DefaultConfig()
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		plog.ErrorLog.Printf("failed to parse config file: %v", err)
		return DefaultConfig()
	}
	return &cfg
}

// SaveConfig writes cfg to the config file atomically.
func SaveConfig(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	return atomicWriteFile(configPath, data, 0o644)
}
