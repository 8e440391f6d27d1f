// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// subscribeQoS is the MQTT quality-of-service level for all
// subscriptions. Level 1 gives at-least-once delivery; duplicate
// redelivery of terminal events is absorbed upstream by the
// dispatcher's idempotent completion flag.
const subscribeQoS = 1

// MQTTConfig holds configuration for creating an MQTTConn.
type MQTTConfig struct {
	// BrokerURL is the broker address (e.g., "tcp://localhost:1883").
	BrokerURL string
	// ClientID identifies this client to the broker. If empty, a
	// random one is generated.
	ClientID string
	// ConnectTimeout bounds Connect, including internal retries.
	// If zero, 5 seconds.
	ConnectTimeout time.Duration
	// KeepAlive is the MQTT keepalive interval. If zero, 60 seconds.
	KeepAlive time.Duration
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// MQTTConn is a Conn backed by the Eclipse Paho MQTT client.
//
// The session is clean (no broker-side replay of messages published
// before the subscription existed) and auto-reconnecting: after a
// dropped connection the Paho client re-establishes the session and
// the OnConnect hook replays every tracked topic filter. Inbound
// messages are delivered in publish order on Paho's dispatch
// goroutine.
type MQTTConn struct {
	broker         string
	client         mqtt.Client
	connectTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	handler Handler
	filters map[string]struct{}
}

// Compile-time interface check.
var _ Conn = (*MQTTConn)(nil)

// NewMQTT creates an MQTT-backed Conn. The connection is not
// established until Connect is called.
func NewMQTT(config MQTTConfig) (*MQTTConn, error) {
	if config.BrokerURL == "" {
		return nil, fmt.Errorf("transport: BrokerURL is required")
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "clmon-" + uuid.NewString()[:8]
	}
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	keepAlive := config.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn := &MQTTConn{
		broker:         config.BrokerURL,
		connectTimeout: connectTimeout,
		logger:         logger,
		filters:        make(map[string]struct{}),
	}

	options := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(conn.onConnect).
		SetConnectionLostHandler(conn.onConnectionLost)

	conn.client = mqtt.NewClient(options)
	return conn, nil
}

// Handle registers the inbound handler. Call before Connect.
func (c *MQTTConn) Handle(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect establishes the broker session, retrying with exponential
// backoff until the configured connect timeout elapses. Idempotent:
// returns nil immediately when already connected.
func (c *MQTTConn) Connect(ctx context.Context) error {
	if c.client.IsConnected() {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = c.connectTimeout

	attempt := func() error {
		token := c.client.Connect()
		token.Wait()
		return token.Error()
	}
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &ConnectionError{Broker: c.broker, Err: err}
	}
	return nil
}

// Subscribe registers a topic filter and issues the subscribe request
// asynchronously. The filter is tracked for replay on reconnect.
// Safe to call from within the inbound handler.
func (c *MQTTConn) Subscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("transport: empty topic filter")
	}
	c.mu.Lock()
	c.filters[topic] = struct{}{}
	c.mu.Unlock()

	if c.client.IsConnected() {
		c.subscribeAsync(topic)
	}
	return nil
}

// Unsubscribe removes a topic filter and issues the unsubscribe
// request asynchronously. Safe to call from within the inbound
// handler.
func (c *MQTTConn) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.filters, topic)
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return nil
	}
	token := c.client.Unsubscribe(topic)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn("mqtt unsubscribe failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

// Close disconnects from the broker, allowing in-flight work a short
// quiesce window.
func (c *MQTTConn) Close() error {
	c.client.Disconnect(250)
	return nil
}

// subscribeAsync issues the wire subscribe without blocking the
// caller. Blocking on the token here would deadlock when Subscribe is
// called from the inbound handler, which runs on the same goroutine
// that completes the token.
func (c *MQTTConn) subscribeAsync(topic string) {
	token := c.client.Subscribe(topic, subscribeQoS, c.route)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn("mqtt subscribe failed", "topic", topic, "error", err)
		}
	}()
}

// route delivers one inbound message to the registered handler.
func (c *MQTTConn) route(_ mqtt.Client, message mqtt.Message) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(message.Topic(), message.Payload())
	}
}

// onConnect fires on every established session, including automatic
// reconnects, and replays the tracked subscription set so the broker's
// view matches the registry's.
func (c *MQTTConn) onConnect(mqtt.Client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.filters))
	for topic := range c.filters {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		c.subscribeAsync(topic)
	}
	c.logger.Info("mqtt connected", "broker", c.broker, "resubscribed", len(topics))
}

func (c *MQTTConn) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("mqtt connection lost, reconnecting", "broker", c.broker, "error", err)
}
