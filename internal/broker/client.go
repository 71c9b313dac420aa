// Package broker connects the service to the MQTT broker.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

const (
	publishTimeout = 5 * time.Second
	quiesceMs      = 250
)

// Handler receives every delivery on the subscribed filters.
// It may be called from several goroutines at once.
type Handler func(topic string, payload []byte)

// Options configures the MQTT connection and subscription.
type Options struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string // empty: edge-logger-<random>
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	QoS            byte
	Filters        []string
}

// Client wraps a paho client that resubscribes after every (re)connect.
type Client struct {
	opts    Options
	handler Handler
	log     zerolog.Logger
	mc      mqtt.Client
}

// New returns a client that passes every message on its topics to handler. Call Connect to start it.
func New(opts Options, handler Handler, log zerolog.Logger) *Client {
	if opts.ClientID == "" {
		opts.ClientID = "edge-logger-" + uuid.NewString()[:8]
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	c := &Client{opts: opts, handler: handler, log: log}
	c.mc = mqtt.NewClient(c.clientOptions())
	return c
}

func (c *Client) clientOptions() *mqtt.ClientOptions {
	o := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", c.opts.Host, c.opts.Port)).
		SetClientID(c.opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectTimeout(c.opts.ConnectTimeout).
		// handlers publish time responses and must not block the router
		SetOrderMatters(false).
		SetDefaultPublishHandler(c.onMessage).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			c.log.Info().Msg("mqtt reconnecting")
		})
	if c.opts.KeepAlive > 0 {
		o.SetKeepAlive(c.opts.KeepAlive)
	}
	if c.opts.Username != "" {
		o.SetUsername(c.opts.Username)
		o.SetPassword(c.opts.Password)
	}
	return o
}

// ClientID returns the id presented to the broker.
func (c *Client) ClientID() string { return c.opts.ClientID }

// Connect starts connecting. It waits up to ConnectTimeout for the first
// session; after that the client keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	tok := c.mc.Connect()

	timer := time.NewTimer(c.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s:%d: %w", c.opts.Host, c.opts.Port, err)
		}
	case <-timer.C:
		c.log.Warn().
			Str("broker", fmt.Sprintf("%s:%d", c.opts.Host, c.opts.Port)).
			Msg("mqtt broker not reachable yet; retrying in background")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// IsConnected reports whether a session is currently up.
func (c *Client) IsConnected() bool { return c.mc.IsConnectionOpen() }

// Publish sends payload and waits for the broker's acknowledgement.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := c.mc.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return tok.Error()
}

// Close disconnects after letting in-flight work finish briefly.
func (c *Client) Close() {
	c.mc.Disconnect(quiesceMs)
	c.log.Info().Msg("mqtt disconnected")
}

func (c *Client) subscriptions() map[string]byte {
	subs := make(map[string]byte, len(c.opts.Filters))
	for _, f := range c.opts.Filters {
		subs[f] = c.opts.QoS
	}
	return subs
}

func (c *Client) onConnect(mc mqtt.Client) {
	subs := c.subscriptions()
	c.log.Info().Str("client_id", c.opts.ClientID).Int("filters", len(subs)).Msg("mqtt connected")
	if len(subs) == 0 {
		return
	}

	tok := mc.SubscribeMultiple(subs, c.onMessage)
	if !tok.WaitTimeout(publishTimeout) {
		c.log.Error().Msg("mqtt subscribe timed out")
		return
	}
	if err := tok.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onMessage(_ mqtt.Client, m mqtt.Message) {
	c.handler(m.Topic(), m.Payload())
}
