// Package config loads the rtu-demo settings from flags, a YAML file and
// defaults, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/grid-x/serial"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	rtu "github.com/bangzek/rtu-discovery"
)

// SimDevice selects the built-in simulated bus instead of a serial port.
const SimDevice = "sim"

type Config struct {
	Serial      SerialConfig    `mapstructure:"serial"`
	Discovery   DiscoveryConfig `mapstructure:"discovery"`
	Definitions string          `mapstructure:"definitions"` // YAML definition file, optional
	Log         LogConfig       `mapstructure:"log"`
	Poll        PollConfig      `mapstructure:"poll"`
}

type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"` // NONE, ODD, EVEN or N, O, E
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // margin on top of the wire time
	RS485    RS485Config   `mapstructure:"rs485"`
}

type RS485Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

type DiscoveryConfig struct {
	Start int `mapstructure:"start"`
	Count int `mapstructure:"count"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // empty or "-" for stdout
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"device":      "serial.device",
	"baud_rate":   "serial.baud_rate",
	"parity":      "serial.parity",
	"timeout":     "serial.timeout",
	"rs485":       "serial.rs485.enabled",
	"start":       "discovery.start",
	"count":       "discovery.count",
	"definitions": "definitions",
	"log_level":   "log.level",
	"log_file":    "log.file",
	"poll":        "poll.interval",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", rtu.BAUDRATE)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", rtu.TIMEOUT)
	v.SetDefault("discovery.start", rtu.MinDevAddr)
	v.SetDefault("discovery.count", rtu.MaxDevAddr)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("poll.interval", 5*time.Second)
}

// Flags returns the command line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("device", "p", "/dev/ttyUSB0",
		"Serial port device name ('"+SimDevice+"' for a simulated bus).")
	fs.IntP("baud_rate", "s", rtu.BAUDRATE, "Serial port speed.")
	fs.String("parity", "N", "Serial port parity (N, O, E).")
	fs.DurationP("timeout", "W", rtu.TIMEOUT, "Response wait margin.")
	fs.Bool("rs485", false, "Drive RTS for an RS485 transceiver.")
	fs.Int("start", rtu.MinDevAddr, "First address to discover.")
	fs.Int("count", rtu.MaxDevAddr, "Number of addresses to discover.")
	fs.StringP("definitions", "d", "", "Register definition file.")
	fs.StringP("log_level", "v", "info",
		"Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "",
		"Log file name ('-' for logging to STDOUT only).")
	fs.DurationP("poll", "i", 5*time.Second, "Sensor poll interval.")
	return fs
}

// Load reads the configuration. fs must come from Flags and be parsed.
// Without a config flag the file is looked up as rtu-demo.yaml in the
// usual places and may be absent.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("rtu-demo")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rtu-demo/")
		v.AddConfigPath("$HOME/.rtu-demo")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Serial.Parity = strings.ToUpper(config.Serial.Parity)
	config.Log.Level = strings.ToLower(config.Log.Level)
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if _, err := c.Serial.parity(); err != nil {
		return fmt.Errorf("serial.parity: %w", err)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate: invalid %d", c.Serial.BaudRate)
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		return fmt.Errorf("serial.data_bits: invalid %d", c.Serial.DataBits)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits: invalid %d", c.Serial.StopBits)
	}
	if c.Serial.Timeout <= 0 {
		return fmt.Errorf("serial.timeout: invalid %s", c.Serial.Timeout)
	}
	d := c.Discovery
	if d.Start < rtu.MinDevAddr || d.Start > rtu.MaxDevAddr {
		return fmt.Errorf("discovery.start: invalid address %d", d.Start)
	}
	if d.Count < 0 || d.Start+d.Count-1 > rtu.MaxDevAddr {
		return fmt.Errorf("discovery.count: invalid %d from %d", d.Count, d.Start)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: invalid %q", c.Log.Level)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval: invalid %s", c.Poll.Interval)
	}
	return nil
}

// LineParity is the parity setting. An unknown setting, which Load
// rejects, falls back to NoParity.
func (s SerialConfig) LineParity() rtu.Parity {
	p, err := s.parity()
	if err != nil {
		return rtu.NoParity
	}
	return p
}

func (s SerialConfig) parity() (rtu.Parity, error) {
	var p rtu.Parity
	err := p.UnmarshalText([]byte(strings.ToUpper(s.Parity)))
	return p, err
}

// Port returns the opener for the configured line: an RS485Port when
// rs485 is enabled, a plain SerialPort otherwise.
func (s SerialConfig) Port() rtu.PortOpener {
	if s.RS485.Enabled {
		return &rtu.RS485Port{
			Dev:      s.Device,
			Baudrate: s.BaudRate,
			DataBits: s.DataBits,
			StopBits: s.StopBits,
			Parity:   s.LineParity(),
			RS485: serial.RS485Config{
				Enabled:            true,
				DelayRtsBeforeSend: s.RS485.DelayRtsBeforeSend,
				DelayRtsAfterSend:  s.RS485.DelayRtsAfterSend,
				RtsHighDuringSend:  s.RS485.RtsHighDuringSend,
				RtsHighAfterSend:   s.RS485.RtsHighAfterSend,
				RxDuringTx:         s.RS485.RxDuringTx,
			},
		}
	}
	return &rtu.SerialPort{
		Dev:      s.Device,
		Baudrate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.LineParity(),
	}
}
