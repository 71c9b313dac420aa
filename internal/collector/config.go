package collector

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig describes one Modbus endpoint and the devices behind it.
type ServerConfig struct {
	ServerID   string        `yaml:"server_id"`
	ServerName string        `yaml:"server_name"`
	Protocol   string        `yaml:"protocol"` // modbus-tcp | modbus-rtu
	Connection Connection    `yaml:"connection"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	Enabled    bool          `yaml:"enabled"`
	Devices    []Device      `yaml:"devices"`
}

type Connection struct {
	// TCP
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RTU
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
	DataBits   int    `yaml:"data_bits"`
	StopBits   int    `yaml:"stop_bits"`
	Parity     string `yaml:"parity"`
}

// Device is one slave. DeviceID becomes the telemetry device id.
type Device struct {
	DeviceID     string        `yaml:"device_id"`
	SlaveID      uint8         `yaml:"slave_id"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Points       []Point       `yaml:"points"`
}

// Point is one register. Name becomes the telemetry datatype.
type Point struct {
	Address      uint16  `yaml:"address"`
	Name         string  `yaml:"name"`
	DataType     string  `yaml:"data_type"`     // uint16 | int16 | uint32 | int32 | float32
	ByteOrder    string  `yaml:"byte_order"`    // ABCD | DCBA | BADC | CDAB
	RegisterType string  `yaml:"register_type"` // holding (default) | input | coil | discrete
	Scale        float64 `yaml:"scale"`         // 0 means 1
	Offset       float64 `yaml:"offset"`
}

// Validate checks the fields the poller cannot do without.
func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.ServerID) == "" {
		return fmt.Errorf("modbus server without server_id")
	}
	for _, d := range s.Devices {
		if strings.TrimSpace(d.DeviceID) == "" {
			return fmt.Errorf("server %s: device without device_id", s.ServerID)
		}
		for _, p := range d.Points {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("server %s device %s: point @%d without name", s.ServerID, d.DeviceID, p.Address)
			}
		}
	}
	return nil
}
