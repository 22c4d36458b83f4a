// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	DefaultPort      = 3993
	DefaultCacheSize = 1024
)

type daemon struct {
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	Debug     bool   `mapstructure:"debug" json:"debug"`
	CacheSize int    `mapstructure:"cache_size" json:"cache_size"`
}

type database struct {
	Driver string `mapstructure:"driver" json:"driver"`
	Path   string `mapstructure:"path" json:"path"`
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// Config is the configuration struct
type Config struct {
	Roots []string `mapstructure:"roots" json:"roots"`
	// VerifyTime validates signer chains as of this instant instead of now.
	VerifyTime time.Time `mapstructure:"verify_time" json:"verify_time"`
	Daemon     daemon    `mapstructure:"daemon" json:"daemon"`
	Database   database  `mapstructure:"database" json:"database"`
}

func (c *Config) verify() error {
	if c.Daemon.Host == "" {
		c.Daemon.Host = "localhost"
	}
	if c.Daemon.Port == 0 {
		c.Daemon.Port = DefaultPort
	} else if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("invalid daemon port %d", c.Daemon.Port)
	}
	switch {
	case c.Daemon.CacheSize == 0:
		c.Daemon.CacheSize = DefaultCacheSize
	case c.Daemon.CacheSize < 0:
		return fmt.Errorf("daemon cache_size must not be negative")
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "memory"
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %v", err)
			}
			c.Database.Path = filepath.Join(home, ".config", "receipt", "receipts.db")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
