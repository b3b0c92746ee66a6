// Package config loads a kiss.SessionConfig from a YAML file, mirroring
// spec.md §6's configuration surface. Grounded on
// doismellburning-samoyed's gopkg.in/yaml.v3 dependency, generalized
// from sparques-hamirc's ad hoc flag-based configuration in main.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ke4ahr/kisscore/kiss"
)

// File is the on-disk shape of a session configuration file.
type File struct {
	Device          string        `yaml:"device"`
	Baud            int           `yaml:"baud"`
	PollingMode     string        `yaml:"polling_mode"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ChecksumMode    bool          `yaml:"checksum_mode"`
	MaxQueueSize    int           `yaml:"max_queue_size"`
	OwnAddress      uint8         `yaml:"own_address"`
	MultiDrop       bool          `yaml:"multi_drop"`
	PollAddresses   []uint8       `yaml:"poll_addresses"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses a YAML configuration file into a File and the
// kiss.SessionConfig it describes.
func Load(path string) (File, kiss.SessionConfig, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, kiss.SessionConfig{}, fmt.Errorf("kiss/config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, kiss.SessionConfig{}, fmt.Errorf("kiss/config: parse %s: %w", path, err)
	}
	cfg, err := f.SessionConfig()
	return f, cfg, err
}

// SessionConfig converts the on-disk representation into a
// kiss.SessionConfig, validating the polling_mode enum per spec.md §7's
// InvalidConfig case.
func (f File) SessionConfig() (kiss.SessionConfig, error) {
	mode, err := parsePollingMode(f.PollingMode)
	if err != nil {
		return kiss.SessionConfig{}, err
	}
	return kiss.SessionConfig{
		PollingMode:     mode,
		PollInterval:    f.PollInterval,
		ChecksumMode:    f.ChecksumMode,
		MaxQueueSize:    f.MaxQueueSize,
		OwnAddress:      f.OwnAddress,
		MultiDrop:       f.MultiDrop,
		PollAddresses:   f.PollAddresses,
		ShutdownTimeout: f.ShutdownTimeout,
	}, nil
}

func parsePollingMode(s string) (kiss.PollingMode, error) {
	switch s {
	case "", "off":
		return kiss.PollOff, nil
	case "active":
		return kiss.PollActive, nil
	case "passive":
		return kiss.PollPassive, nil
	default:
		return 0, fmt.Errorf("%w: polling_mode %q must be off/active/passive", kiss.ErrInvalidConfig, s)
	}
}
