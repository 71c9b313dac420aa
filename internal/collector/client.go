package collector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	mb "github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

// Sink receives readings as opaque telemetry strings.
type Sink interface {
	IngestReading(device, metric, value string)
}

// Reading is a decoded and scaled point value.
type Reading struct {
	Device string
	Point  string
	Value  float64
}

// FormatValue renders v the way it is stored: shortest decimal, no exponent.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Poller reads every point of one device on its poll interval.
type Poller struct {
	Server ServerConfig
	Device Device
	Sink   Sink
	Log    zerolog.Logger

	dedup   *valueCache
	handler handlerWithConn
}

// handlerWithConn is the part of the TCP and RTU handlers the poller uses.
type handlerWithConn interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

func (p *Poller) newHandler() (handlerWithConn, string, error) {
	proto := strings.ToLower(strings.TrimSpace(p.Server.Protocol))
	timeout := p.Server.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	switch proto {
	case "modbus-tcp", "tcp", "":
		address := fmt.Sprintf("%s:%d", p.Server.Connection.Host, p.Server.Connection.Port)
		h := mb.NewTCPClientHandler(address)
		h.Timeout = timeout
		h.SlaveId = p.Device.SlaveID
		return h, address, nil
	case "modbus-rtu", "rtu":
		conn := p.Server.Connection
		if strings.TrimSpace(conn.SerialPort) == "" {
			return nil, "", errors.New("serial_port is required for RTU")
		}
		h := mb.NewRTUClientHandler(conn.SerialPort)
		if conn.BaudRate > 0 {
			h.BaudRate = conn.BaudRate
		}
		if conn.DataBits > 0 {
			h.DataBits = conn.DataBits
		}
		if conn.StopBits > 0 {
			h.StopBits = conn.StopBits
		}
		if parity := strings.ToUpper(strings.TrimSpace(conn.Parity)); parity != "" {
			h.Parity = parity
		}
		h.Timeout = timeout
		h.SlaveId = p.Device.SlaveID
		return h, conn.SerialPort, nil
	default:
		return nil, "", fmt.Errorf("protocol %q not supported", p.Server.Protocol)
	}
}

// Run connects, polls until ctx is done, and closes the connection.
func (p *Poller) Run(ctx context.Context) error {
	h, addr, err := p.newHandler()
	if err != nil {
		return err
	}
	p.handler = h

	retry := max(p.Server.RetryCount, 0)
	for attempt := 0; ; attempt++ {
		err := h.Connect()
		if err == nil {
			break
		}
		if attempt >= retry {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil
		}
	}
	defer h.Close()
	p.Log.Info().Str("addr", addr).Int("points", len(p.Device.Points)).Msg("modbus device connected")

	client := mb.NewClient(h)

	interval := p.Device.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx, client); err != nil && ctx.Err() == nil {
			p.Log.Warn().Err(err).Msg("modbus poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// pollOnce reads all points and forwards the ones that changed.
func (p *Poller) pollOnce(ctx context.Context, client mb.Client) error {
	for _, pt := range p.Device.Points {
		if err := ctx.Err(); err != nil {
			return err
		}

		v, err := readPoint(client, pt)
		if err != nil && p.reconnect() == nil {
			v, err = readPoint(client, pt)
		}
		if err != nil {
			return fmt.Errorf("read %s@%d: %w", pt.Name, pt.Address, err)
		}

		if p.dedup != nil && p.dedup.seen(p.Server.ServerID+"|"+p.Device.DeviceID+"|"+pt.Name, v) {
			continue
		}
		p.Sink.IngestReading(p.Device.DeviceID, pt.Name, FormatValue(v))
	}
	return nil
}

func (p *Poller) reconnect() error {
	if p.handler == nil {
		return errors.New("not connected")
	}
	p.handler.Close()
	time.Sleep(200 * time.Millisecond)
	return p.handler.Connect()
}

func registerCount(dataType string) uint16 {
	switch dataType {
	case "float32", "uint32", "int32":
		return 2
	}
	return 1
}

// readPoint reads one point and returns its scaled value.
func readPoint(client mb.Client, pt Point) (float64, error) {
	dt := strings.ToLower(strings.TrimSpace(pt.DataType))
	if dt == "" {
		dt = "uint16"
	}

	switch strings.ToLower(strings.TrimSpace(pt.RegisterType)) {
	case "", "holding":
		data, err := client.ReadHoldingRegisters(pt.Address, registerCount(dt))
		if err != nil {
			return 0, err
		}
		return decodeRegisters(data, dt, pt)
	case "input":
		data, err := client.ReadInputRegisters(pt.Address, registerCount(dt))
		if err != nil {
			return 0, err
		}
		return decodeRegisters(data, dt, pt)
	case "coil":
		data, err := client.ReadCoils(pt.Address, 1)
		if err != nil {
			return 0, err
		}
		return bit(data), nil
	case "discrete":
		data, err := client.ReadDiscreteInputs(pt.Address, 1)
		if err != nil {
			return 0, err
		}
		return bit(data), nil
	default:
		return 0, fmt.Errorf("unsupported register type %q", pt.RegisterType)
	}
}

func bit(data []byte) float64 {
	if len(data) > 0 && data[0]&0x01 == 0x01 {
		return 1
	}
	return 0
}

func decodeRegisters(data []byte, dt string, pt Point) (float64, error) {
	scale := pt.Scale
	if scale == 0 {
		scale = 1
	}
	need := int(registerCount(dt)) * 2
	if len(data) < need {
		return 0, fmt.Errorf("short read for %s: %d bytes", dt, len(data))
	}

	var raw float64
	switch dt {
	case "uint16":
		raw = float64(binary.BigEndian.Uint16(data))
	case "int16":
		raw = float64(int16(binary.BigEndian.Uint16(data)))
	case "uint32":
		raw = float64(binary.BigEndian.Uint32(reorder32(data, pt.ByteOrder)))
	case "int32":
		raw = float64(int32(binary.BigEndian.Uint32(reorder32(data, pt.ByteOrder))))
	case "float32":
		raw = float64(math.Float32frombits(binary.BigEndian.Uint32(reorder32(data, pt.ByteOrder))))
	default:
		return 0, fmt.Errorf("unsupported data type %q", dt)
	}
	return raw*scale + pt.Offset, nil
}

// reorder32 puts 4 bytes into ABCD order.
func reorder32(in []byte, order string) []byte {
	switch strings.ToUpper(strings.TrimSpace(order)) {
	case "DCBA":
		return []byte{in[3], in[2], in[1], in[0]}
	case "BADC":
		return []byte{in[1], in[0], in[3], in[2]}
	case "CDAB":
		return []byte{in[2], in[3], in[0], in[1]}
	default:
		return in[:4]
	}
}
