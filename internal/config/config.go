// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server struct {
		Host string `json:"host" toml:"host"`
		Port int    `json:"port" toml:"port"`
	} `json:"server" toml:"server"`

	Workspace struct {
		Root       string   `json:"root" toml:"root"`
		IgnoreDirs []string `json:"ignore_dirs" toml:"ignore_dirs"`
		Watch      bool     `json:"watch" toml:"watch"`
	} `json:"workspace" toml:"workspace"`

	Archive struct {
		Path            string `json:"path" toml:"path"` // empty keeps the archive in memory
		CacheSize       int    `json:"cache_size" toml:"cache_size"`
		CompressMinSize int    `json:"compress_min_size" toml:"compress_min_size"`
	} `json:"archive" toml:"archive"`

	Bridge struct {
		QueueSize int `json:"queue_size" toml:"queue_size"`
	} `json:"bridge" toml:"bridge"`

	Environment string `json:"environment" toml:"environment"` // development, production
	LogLevel    string `json:"log_level" toml:"log_level"`     // debug, info, warn, error
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 7717
	cfg.Workspace.Root = "."
	cfg.Workspace.Watch = true
	cfg.Archive.CacheSize = 256
	cfg.Archive.CompressMinSize = 1024
	cfg.Bridge.QueueSize = 256
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return cfg
}

// Path returns the config file for the current PRECURSOR_ENV
func Path() string {
	env := os.Getenv("PRECURSOR_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON or TOML config file on top of Default. The format is
// picked from the file extension.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace root is required")
	}
	if c.Bridge.QueueSize <= 0 {
		return fmt.Errorf("bridge queue size must be positive")
	}
	if c.Archive.CacheSize <= 0 {
		return fmt.Errorf("archive cache size must be positive")
	}
	return nil
}

// Addr is the host:port the server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
