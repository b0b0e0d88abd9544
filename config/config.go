// Package config loads the YAML configuration shared by the server and the
// viewer binaries, applies defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"enginewatch/strutil"

	"gopkg.in/yaml.v3"
)

// Viewer surface modes.
const (
	ModeTview    = "tview"
	ModePlain    = "plain"
	ModeHeadless = "headless"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Telnet    TelnetConfig    `yaml:"telnet"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Logging   LoggingConfig   `yaml:"logging"`
	Stats     StatsConfig     `yaml:"stats"`
	Viewer    ViewerConfig    `yaml:"viewer"`
}

// ServerConfig contains general server settings
type ServerConfig struct {
	Name     string `yaml:"name"`
	HTTPAddr string `yaml:"http_addr"`
}

// RefreshConfig controls the periodic simulate cycle.
type RefreshConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// AnalysisConfig points at the analysis/simulation collaborator.
type AnalysisConfig struct {
	BaseURL string `yaml:"base_url"`
	// TimeoutMS bounds each collaborator call; 0 means no client-side timeout.
	TimeoutMS int `yaml:"timeout_ms"`
}

// BroadcastConfig tunes the WebSocket fan-out.
type BroadcastConfig struct {
	ClientBuffer int `yaml:"client_buffer"`
	PingSeconds  int `yaml:"ping_seconds"`
}

// TelnetConfig contains telnet viewer settings
type TelnetConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
	UseZiutek      bool   `yaml:"use_ziutek"`
	WelcomeMessage string `yaml:"welcome_message"`
	SparkWidth     int    `yaml:"spark_width"`
	Locale         string `yaml:"locale"`
}

// MQTTConfig contains the optional MQTT mirror settings
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// RecorderConfig contains the SQLite diagnostics recorder settings
type RecorderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	PerSensorLimit int    `yaml:"per_sensor_limit"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// StatsConfig controls the periodic console stats line.
type StatsConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// ViewerConfig contains the viewer binary settings
type ViewerConfig struct {
	URL            string `yaml:"url"`
	Mode           string `yaml:"mode"`
	Locale         string `yaml:"locale"`
	ReconnectMinMS int    `yaml:"reconnect_min_ms"`
	ReconnectMaxMS int    `yaml:"reconnect_max_ms"`
	RefreshFPS     int    `yaml:"refresh_fps"`
	SparkWidth     int    `yaml:"spark_width"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(filename string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Name) == "" {
		c.Server.Name = "enginewatch"
	}
	if strings.TrimSpace(c.Server.HTTPAddr) == "" {
		c.Server.HTTPAddr = ":3000"
	}
	if c.Refresh.IntervalMS <= 0 {
		c.Refresh.IntervalMS = 3000
	}
	if strings.TrimSpace(c.Analysis.BaseURL) == "" {
		c.Analysis.BaseURL = "http://localhost:5000"
	}
	if c.Broadcast.ClientBuffer <= 0 {
		c.Broadcast.ClientBuffer = 16
	}
	if c.Broadcast.PingSeconds <= 0 {
		c.Broadcast.PingSeconds = 25
	}
	if c.Telnet.Port <= 0 {
		c.Telnet.Port = 7300
	}
	if c.Telnet.MaxConnections <= 0 {
		c.Telnet.MaxConnections = 50
	}
	if c.Telnet.SparkWidth <= 0 {
		c.Telnet.SparkWidth = 40
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = 1883
	}
	if strings.TrimSpace(c.MQTT.Topic) == "" {
		c.MQTT.Topic = "enginewatch/sensors/update"
	}
	if strings.TrimSpace(c.MQTT.ClientID) == "" {
		c.MQTT.ClientID = "enginewatch-bridge"
	}
	if strings.TrimSpace(c.Recorder.Path) == "" {
		c.Recorder.Path = "data/records/snapshots.db"
	}
	if c.Recorder.PerSensorLimit <= 0 {
		c.Recorder.PerSensorLimit = 1000
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = "data/logs"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Stats.IntervalSeconds <= 0 {
		c.Stats.IntervalSeconds = 60
	}
	if strings.TrimSpace(c.Viewer.URL) == "" {
		c.Viewer.URL = "ws://localhost:3000/alerts"
	}
	c.Viewer.Mode = strutil.NormalizeLower(c.Viewer.Mode)
	if c.Viewer.Mode == "" {
		c.Viewer.Mode = ModeTview
	}
	if strings.TrimSpace(c.Viewer.Locale) == "" {
		c.Viewer.Locale = "ru"
	}
	if c.Viewer.ReconnectMinMS <= 0 {
		c.Viewer.ReconnectMinMS = 500
	}
	if c.Viewer.ReconnectMaxMS <= 0 {
		c.Viewer.ReconnectMaxMS = 15000
	}
	if c.Viewer.RefreshFPS <= 0 {
		c.Viewer.RefreshFPS = 10
	}
	if c.Viewer.SparkWidth <= 0 {
		c.Viewer.SparkWidth = 60
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if u, err := url.Parse(c.Analysis.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: analysis.base_url %q is not an absolute URL", ErrInvalid, c.Analysis.BaseURL)
	}
	if c.Analysis.TimeoutMS < 0 {
		return fmt.Errorf("%w: analysis.timeout_ms must be >= 0", ErrInvalid)
	}
	if c.Telnet.Port > 65535 || c.MQTT.Port > 65535 {
		return fmt.Errorf("%w: port out of range", ErrInvalid)
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrInvalid)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	}
	switch c.Viewer.Mode {
	case ModeTview, ModePlain, ModeHeadless:
	default:
		return fmt.Errorf("%w: viewer.mode %q (want tview, plain or headless)", ErrInvalid, c.Viewer.Mode)
	}
	if u, err := url.Parse(c.Viewer.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: viewer.url %q must be a ws:// or wss:// URL", ErrInvalid, c.Viewer.URL)
	}
	if c.Viewer.ReconnectMaxMS < c.Viewer.ReconnectMinMS {
		return fmt.Errorf("%w: viewer.reconnect_max_ms must be >= reconnect_min_ms", ErrInvalid)
	}
	return nil
}

// RefreshInterval returns the refresh cadence.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalMS) * time.Millisecond
}

// AnalysisTimeout returns the per-call collaborator timeout (0 = none).
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutMS) * time.Millisecond
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Server: %s (http %s)\n", c.Server.Name, c.Server.HTTPAddr)
	fmt.Printf("Refresh: every %s from %s\n", c.RefreshInterval(), c.Analysis.BaseURL)
	if c.Analysis.TimeoutMS > 0 {
		fmt.Printf("Analysis timeout: %s\n", c.AnalysisTimeout())
	}
	fmt.Printf("Broadcast: client buffer %d, ping %ds\n", c.Broadcast.ClientBuffer, c.Broadcast.PingSeconds)
	if c.Telnet.Enabled {
		fmt.Printf("Telnet viewer: port %d (max %d)\n", c.Telnet.Port, c.Telnet.MaxConnections)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT mirror: %s:%d (topic: %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.Topic)
	}
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s (per-sensor limit %d)\n", c.Recorder.Path, c.Recorder.PerSensorLimit)
	}
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retain %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
