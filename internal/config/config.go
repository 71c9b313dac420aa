// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"edge-logger/internal/collector"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Storage StorageConfig `yaml:"storage"`
	State   StateConfig   `yaml:"state"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Modbus  ModbusConfig  `yaml:"modbus"`
}

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	QoS            int           `yaml:"qos"`
	ClientID       string        `yaml:"client_id"`
	TopicBase      string        `yaml:"topic_base"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StorageConfig controls where and how telemetry is persisted.
type StorageConfig struct {
	LogDir        string        `yaml:"log_dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	MaxQueue      int           `yaml:"max_queue"`  // 0: unbounded
	IndexPath     string        `yaml:"index_path"` // empty: no SQLite index
}

// StateConfig sizes the in-memory device state.
type StateConfig struct {
	HistoryPoints int `yaml:"history_points"`
}

// HTTPConfig is the listen address of the API server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for net.Listen.
func (h HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

// LogConfig selects the log level, format and optional file.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
	File   string `yaml:"file"`   // relative paths live under storage.log_dir
	Output string `yaml:"output"` // stdout | stderr
}

// ModbusConfig enables the optional Modbus collector.
type ModbusConfig struct {
	Enabled    bool                     `yaml:"enabled"`
	MaxWorkers int                      `yaml:"max_workers"`
	DedupTTL   time.Duration            `yaml:"dedup_ttl"`
	Servers    []collector.ServerConfig `yaml:"servers"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Host:           "127.0.0.1",
			Port:           1883,
			KeepAlive:      60 * time.Second,
			QoS:            1,
			ClientID:       "edge-logger",
			TopicBase:      "v1",
			ConnectTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			LogDir:        "logs",
			FlushInterval: time.Second,
			BatchSize:     200,
			PollTimeout:   200 * time.Millisecond,
		},
		State: StateConfig{HistoryPoints: 300},
		HTTP:  HTTPConfig{Host: "0.0.0.0", Port: 8080},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   "app.log",
			Output: "stdout",
		},
		Modbus: ModbusConfig{MaxWorkers: 10},
	}
}

// Load applies defaults, then the YAML file at path (if any), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
		}
		*dst = n
		return nil
	}
	secs := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number of seconds", ErrInvalid, key, v)
		}
		*dst = time.Duration(f * float64(time.Second))
		return nil
	}

	str("MQTT_HOST", &cfg.MQTT.Host)
	str("MQTT_USER", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_TOPIC_BASE", &cfg.MQTT.TopicBase)
	str("LOG_DIR", &cfg.Storage.LogDir)
	str("APP_LOG_FILE", &cfg.Log.File)
	str("HTTP_HOST", &cfg.HTTP.Host)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("INDEX_PATH", &cfg.Storage.IndexPath)

	return errors.Join(
		num("MQTT_PORT", &cfg.MQTT.Port),
		secs("MQTT_KEEPALIVE", &cfg.MQTT.KeepAlive),
		num("MQTT_QOS", &cfg.MQTT.QoS),
		secs("FLUSH_INTERVAL_SEC", &cfg.Storage.FlushInterval),
		num("FLUSH_BATCH_SIZE", &cfg.Storage.BatchSize),
		num("HISTORY_POINTS", &cfg.State.HistoryPoints),
		num("HTTP_PORT", &cfg.HTTP.Port),
	)
}

// Validate reports the first setting the service cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MQTT.QoS < 0 || c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt.qos %d not in 0..2", ErrInvalid, c.MQTT.QoS)
	case !validPort(c.MQTT.Port):
		return fmt.Errorf("%w: mqtt.port %d", ErrInvalid, c.MQTT.Port)
	case !validPort(c.HTTP.Port):
		return fmt.Errorf("%w: http.port %d", ErrInvalid, c.HTTP.Port)
	case c.MQTT.TopicBase == "":
		return fmt.Errorf("%w: mqtt.topic_base is empty", ErrInvalid)
	case c.Storage.LogDir == "":
		return fmt.Errorf("%w: storage.log_dir is empty", ErrInvalid)
	case c.Storage.BatchSize < 1:
		return fmt.Errorf("%w: storage.batch_size must be >= 1", ErrInvalid)
	case c.Storage.FlushInterval <= 0:
		return fmt.Errorf("%w: storage.flush_interval must be positive", ErrInvalid)
	case c.Storage.MaxQueue < 0:
		return fmt.Errorf("%w: storage.max_queue must be >= 0", ErrInvalid)
	case c.State.HistoryPoints < 1:
		return fmt.Errorf("%w: state.history_points must be >= 1", ErrInvalid)
	case c.Modbus.Enabled && len(c.Modbus.Servers) == 0:
		return fmt.Errorf("%w: modbus enabled but no servers configured", ErrInvalid)
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }
