// Package config handles nftledger configuration.
//
// Settings are resolved from defaults, then the config file, then
// command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Backend names a storage engine.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBadger Backend = "badger"
)

// Config holds runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	Storage  StorageConfig
	Registry RegistryConfig
	Log      LogConfig
}

// StorageConfig selects where ledger records are kept.
type StorageConfig struct {
	Backend Backend `conf:"storage.backend"`
}

// RegistryConfig holds the collection metadata applied by `init`.
type RegistryConfig struct {
	Name       string   `conf:"registry.name"`
	Symbol     string   `conf:"registry.symbol"`
	Logo       string   `conf:"registry.logo"`
	Custodians []string `conf:"registry.custodians"` // Hex principals.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.nftledger
//	macOS:   ~/Library/Application Support/NFTLedger
//	Windows: %APPDATA%\NFTLedger
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nftledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "NFTLedger")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "NFTLedger")
		}
		return filepath.Join(home, "AppData", "Roaming", "NFTLedger")
	default:
		return filepath.Join(home, ".nftledger")
	}
}

// LedgerDir returns the Badger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "ledger")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "nftledger.conf")
}
