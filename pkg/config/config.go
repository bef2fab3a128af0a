package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/gatt"
	"github.com/srg/polarhr/internal/monitor"
	"github.com/srg/polarhr/internal/sink"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Values come from struct defaults,
// then an optional YAML file, then command-line flags.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Adapter        string   `yaml:"adapter" default:"/org/bluez/hci0"`
	Devices        []string `yaml:"devices"`
	Characteristic string   `yaml:"characteristic" default:"2a37"`

	Output         string `yaml:"output" default:"-"`
	Format         string `yaml:"format" default:"csv"`
	HealthWarnings bool   `yaml:"health_warnings" default:"false"`
	Extras         bool   `yaml:"extras" default:"true"`
	OSC            string `yaml:"osc"`
	Listen         string `yaml:"listen"`

	StartupScanWindow    time.Duration `yaml:"startup_scan_window" default:"90s"`
	ReacquireScanWindow  time.Duration `yaml:"reacquire_scan_window" default:"15s"`
	ReacquireInterval    time.Duration `yaml:"reacquire_interval" default:"10s"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" default:"20s"`
	CharacteristicWindow time.Duration `yaml:"characteristic_window" default:"10s"`
	IdleWait             time.Duration `yaml:"idle_wait" default:"500ms"`
	BatteryPollInterval  time.Duration `yaml:"battery_poll_interval" default:"60s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Devices = append([]string(nil), monitor.DefaultNames...)
	return cfg
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected so typos do not silently fall back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that would otherwise only fail at runtime.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := sink.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := gatt.ExpandUUID(c.Characteristic); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Adapter, "/") {
		return fmt.Errorf("adapter must be an object path, got %q", c.Adapter)
	}
	if len(c.Devices) == 0 {
		return errors.New("at least one device name is required")
	}
	for name, d := range map[string]time.Duration{
		"startup_scan_window":   c.StartupScanWindow,
		"reacquire_scan_window": c.ReacquireScanWindow,
		"reacquire_interval":    c.ReacquireInterval,
		"connect_timeout":       c.ConnectTimeout,
		"characteristic_window": c.CharacteristicWindow,
		"idle_wait":             c.IdleWait,
		"battery_poll_interval": c.BatteryPollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// MonitorOptions converts the configuration to monitor options.
func (c *Config) MonitorOptions() (monitor.Options, error) {
	uuid, err := gatt.ExpandUUID(c.Characteristic)
	if err != nil {
		return monitor.Options{}, err
	}
	opts := monitor.DefaultOptions()
	opts.Adapter = bluez.ObjectPath(c.Adapter)
	opts.Names = append([]string(nil), c.Devices...)
	opts.Characteristic = uuid
	opts.StartupScanWindow = c.StartupScanWindow
	opts.ReacquireScanWindow = c.ReacquireScanWindow
	opts.ReacquireInterval = c.ReacquireInterval
	opts.ConnectTimeout = c.ConnectTimeout
	opts.CharacteristicWindow = c.CharacteristicWindow
	opts.IdleWait = c.IdleWait
	opts.Extras = c.Extras
	opts.BatteryPollInterval = c.BatteryPollInterval
	return opts, nil
}

// NewLogger creates a logger at level writing to out.
func (c *Config) NewLogger(level logrus.Level, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(out)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
