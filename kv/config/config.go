package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap-incubator/tinydoc/log"
	"github.com/pingcap/errors"
)

const (
	BackendMemory  = "memory"
	BackendDurable = "durable"
)

type Config struct {
	LogLevel string `toml:"log-level"`
	// Backend selects the persistence variant, "memory" or "durable".
	Backend string `toml:"backend"`

	DBPath string `toml:"db-path"` // Directory to store the data in. Created if missing.

	SyncWrites    bool `toml:"sync-writes"`
	NumCompactors int  `toml:"num-compactors"`
	// Human readable sizes, e.g. "64MB".
	ValueLogFileSize string `toml:"value-log-file-size"`
	// The durable backend reports itself unavailable below this much free space.
	MinFreeDisk string `toml:"min-free-disk"`

	// Primary is the static answer to the primary capability check when no
	// checker is injected.
	Primary bool `toml:"primary"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendDurable:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Backend == BackendDurable {
		if c.DBPath == "" {
			return fmt.Errorf("db-path must be set for the durable backend")
		}
		if c.NumCompactors == 1 || c.NumCompactors < 0 {
			return fmt.Errorf("num-compactors must be 0 or at least 2, got %d", c.NumCompactors)
		}
		size, err := c.ValueLogFileSizeBytes()
		if err != nil {
			return err
		}
		if size < int64(MB) || size >= 2*int64(GB) {
			return fmt.Errorf("value-log-file-size must be in [1MB, 2GB), got %s", c.ValueLogFileSize)
		}
		if _, err := c.MinFreeDiskBytes(); err != nil {
			return err
		}
	}

	if !c.Primary {
		log.Warnf("primary is false, readwrite-primary transactions will be rejected " +
			"unless a primary checker is injected.")
	}
	return nil
}

func (c *Config) ValueLogFileSizeBytes() (int64, error) {
	return parseSize("value-log-file-size", c.ValueLogFileSize)
}

func (c *Config) MinFreeDiskBytes() (int64, error) {
	if c.MinFreeDisk == "" {
		return 0, nil
	}
	return parseSize("min-free-disk", c.MinFreeDisk)
}

func parseSize(name, s string) (int64, error) {
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errors.Annotatef(err, "invalid %s", name)
	}
	return size, nil
}

const (
	KB uint64 = 1024
	MB uint64 = 1024 * 1024
	GB uint64 = 1024 * 1024 * 1024
)

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:         getLogLevel(),
		Backend:          BackendDurable,
		DBPath:           "/tmp/tinydoc",
		SyncWrites:       true,
		NumCompactors:    4,
		ValueLogFileSize: "256MB",
		MinFreeDisk:      "64MB",
		Primary:          true,
	}
}

// NewTestConfig returns a durable config rooted at dbPath with small files and
// no free-space floor.
func NewTestConfig(dbPath string) *Config {
	return &Config{
		LogLevel:         getLogLevel(),
		Backend:          BackendDurable,
		DBPath:           dbPath,
		SyncWrites:       false,
		NumCompactors:    2,
		ValueLogFileSize: "16MB",
		Primary:          true,
	}
}

// LoadFile decodes a TOML file on top of the default config.
func LoadFile(path string) (*Config, error) {
	conf := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, errors.Annotatef(err, "load config %s", path)
	}
	return conf, nil
}
