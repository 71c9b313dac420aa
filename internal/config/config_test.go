package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 60*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "edge-logger", cfg.MQTT.ClientID)
	assert.Equal(t, "v1", cfg.MQTT.TopicBase)
	assert.Equal(t, "logs", cfg.Storage.LogDir)
	assert.Equal(t, time.Second, cfg.Storage.FlushInterval)
	assert.Equal(t, 200, cfg.Storage.BatchSize)
	assert.Equal(t, 300, cfg.State.HistoryPoints)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, "app.log", cfg.Log.File)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
mqtt:
  host: broker.local
  qos: 0
  topic_base: plant
storage:
  flush_interval: 250ms
  batch_size: 50
  index_path: logs/index.db
state:
  history_points: 20
modbus:
  enabled: true
  servers:
    - server_id: s1
      protocol: modbus-tcp
      connection: {host: 10.0.0.5, port: 502}
      devices:
        - device_id: plc-1
          slave_id: 1
          poll_interval: 2s
          points:
            - {address: 0, name: pressure, data_type: float32}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 0, cfg.MQTT.QoS)
	assert.Equal(t, "plant", cfg.MQTT.TopicBase)
	assert.Equal(t, 250*time.Millisecond, cfg.Storage.FlushInterval)
	assert.Equal(t, 50, cfg.Storage.BatchSize)
	assert.Equal(t, "logs/index.db", cfg.Storage.IndexPath)
	assert.Equal(t, 20, cfg.State.HistoryPoints)
	require.Len(t, cfg.Modbus.Servers, 1)
	assert.Equal(t, 2*time.Second, cfg.Modbus.Servers[0].Devices[0].PollInterval)
	assert.Equal(t, "pressure", cfg.Modbus.Servers[0].Devices[0].Points[0].Name)
}

func TestLoadEnvWinsOverYAML(t *testing.T) {
	path := writeFile(t, "mqtt:\n  host: from-yaml\n")
	t.Setenv("MQTT_HOST", "from-env")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("FLUSH_INTERVAL_SEC", "0.5")
	t.Setenv("HISTORY_POINTS", "7")
	t.Setenv("MQTT_KEEPALIVE", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Storage.FlushInterval)
	assert.Equal(t, 7, cfg.State.HistoryPoints)
	assert.Equal(t, 30*time.Second, cfg.MQTT.KeepAlive)
}

func TestLoadRejectsBadEnvNumber(t *testing.T) {
	t.Setenv("FLUSH_BATCH_SIZE", "lots")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"mqtt port", func(c *Config) { c.MQTT.Port = 0 }},
		{"http port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"topic base", func(c *Config) { c.MQTT.TopicBase = "" }},
		{"batch size", func(c *Config) { c.Storage.BatchSize = 0 }},
		{"history", func(c *Config) { c.State.HistoryPoints = 0 }},
		{"modbus without servers", func(c *Config) { c.Modbus.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
