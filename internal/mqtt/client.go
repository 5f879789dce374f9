// Package mqtt publishes attendance and alert events to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("not connected to MQTT broker")

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string // Prefix for published topics
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:       "vigia",
		Topic:          "vigia",
		QoS:            1,
		ConnectTimeout: 30 * time.Second,
	}
}

// Client is a thin wrapper around the paho client. Reconnects are left to
// paho's auto-reconnect.
type Client struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	internal paho.Client
}

func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if _, err := url.Parse(config.Broker); err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConfig().ConnectTimeout
	}

	return &Client{
		config: config,
		logger: logger.With(slog.String("component", "mqtt")),
	}, nil
}

// Connect establishes the broker session
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(paho.Client) {
		c.logger.Info("connected to MQTT broker", slog.String("broker", c.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("connection to MQTT broker lost", slog.Any("error", err))
	})

	c.internal = paho.NewClient(opts)

	token := c.internal.Connect()
	if err := wait(ctx, token, c.config.ConnectTimeout); err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	return nil
}

// Publish sends payload and waits for the broker acknowledgement
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	internal := c.internal
	c.mu.Unlock()

	if internal == nil || !internal.IsConnected() {
		return ErrNotConnected
	}

	token := internal.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if err := wait(ctx, token, 10*time.Second); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal != nil && c.internal.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internal != nil && c.internal.IsConnected() {
		c.internal.Disconnect(250)
	}
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timeout")
	}
}
