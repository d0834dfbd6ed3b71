// Package config parses the daemon's YAML configuration file using an
// aux-struct-then-validate-then-apply-defaults style.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/hiviewdfx/hilogd/internal/compress"
	"github.com/hiviewdfx/hilogd/internal/log"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
)

// BufferSize overrides one log type's byte quota away from DefaultBufferSize.
type BufferSize struct {
	Type string
	Size int
}

// PersisterJob is a persister job to start at daemon boot, the config-file
// equivalent of an operator later issuing a Persist control command.
type PersisterJob struct {
	ID          uint32
	Path        string
	CompressAlg string
	FileSize    uint32
	FileNum     uint32
	SleepTime   time.Duration
	Types       []string
}

// Config is the daemon's fully parsed configuration.
type Config struct {
	SocketPath        string
	ControlSocketPath string
	LiveTailAddr      string
	DefaultBufferSize int
	BufferSizes       []BufferSize
	Persisters        []PersisterJob
}

// Parse unmarshals and validates data into a Config, applying the same
// defaults the daemon would use if a field is left blank.
func (c *Config) Parse(data []byte) error {
	var aux struct {
		SocketPath        string `yaml:"socket_path"`
		ControlSocketPath string `yaml:"control_socket_path"`
		LiveTailAddr      string `yaml:"live_tail_addr"`
		LogLevel          string `yaml:"log_level"`
		DefaultBufferSize int    `yaml:"default_buffer_size"`
		BufferSizes       []struct {
			Type string `yaml:"type"`
			Size int    `yaml:"size"`
		} `yaml:"buffer_sizes"`
		Persisters []struct {
			ID          uint32   `yaml:"id"`
			Path        string   `yaml:"path"`
			CompressAlg string   `yaml:"compress_alg"`
			FileSize    uint32   `yaml:"file_size"`
			FileNum     uint32   `yaml:"file_num"`
			SleepTime   int      `yaml:"sleep_time_sec"`
			Types       []string `yaml:"types"`
		} `yaml:"persisters"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.SocketPath == "" {
		return errors.New("socket_path must be set")
	}
	c.SocketPath = aux.SocketPath
	c.ControlSocketPath = aux.ControlSocketPath
	c.LiveTailAddr = aux.LiveTailAddr

	if aux.LogLevel != "" {
		switch strings.ToLower(aux.LogLevel) {
		case "fatal":
			log.SetLevel(log.FATAL)
		case "error":
			log.SetLevel(log.ERROR)
		case "warning", "warn":
			log.SetLevel(log.WARNING)
		case "debug":
			log.SetLevel(log.DEBUG)
		case "info":
			fallthrough
		default:
			log.SetLevel(log.INFO)
		}
	}

	if aux.DefaultBufferSize > 0 {
		c.DefaultBufferSize = aux.DefaultBufferSize
	} else {
		c.DefaultBufferSize = logbuffer.DefaultBuffLen
	}

	for _, b := range aux.BufferSizes {
		if _, err := ParseLogType(b.Type); err != nil {
			log.Error("config: ignoring buffer_sizes entry for unknown type %q", b.Type)
			continue
		}
		c.BufferSizes = append(c.BufferSizes, BufferSize{Type: b.Type, Size: b.Size})
	}

	for _, p := range aux.Persisters {
		if p.Path == "" {
			log.Error("config: ignoring persister %d with empty path", p.ID)
			continue
		}
		sleep := time.Duration(p.SleepTime) * time.Second
		c.Persisters = append(c.Persisters, PersisterJob{
			ID:          p.ID,
			Path:        p.Path,
			CompressAlg: p.CompressAlg,
			FileSize:    p.FileSize,
			FileNum:     p.FileNum,
			SleepTime:   sleep,
			Types:       p.Types,
		})
	}

	return nil
}

// ParseLogType maps a config/CLI type name to its logmodel.LogType.
func ParseLogType(name string) (logmodel.LogType, error) {
	switch strings.ToLower(name) {
	case "app":
		return logmodel.LogApp, nil
	case "init":
		return logmodel.LogInit, nil
	case "core":
		return logmodel.LogCore, nil
	case "kmsg":
		return logmodel.LogKmsg, nil
	case "sec", "security":
		return logmodel.LogSec, nil
	default:
		return 0, fmt.Errorf("unknown log type %q", name)
	}
}

// ParseCompressAlg maps a config/CLI algorithm name to its compress.Algorithm.
func ParseCompressAlg(name string) (compress.Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "off", "none":
		return compress.Off, nil
	case "zlib":
		return compress.Zlib, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q", name)
	}
}

// TypesToMask ORs a list of type names into the bitmask reader.Condition
// and QueryCondition both use.
func TypesToMask(names []string) (uint16, error) {
	var mask uint16
	for _, n := range names {
		t, err := ParseLogType(n)
		if err != nil {
			return 0, err
		}
		mask |= uint16(1) << uint16(t)
	}
	return mask, nil
}
