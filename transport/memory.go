// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// queueDepth is the per-connection inbound buffer. Deliveries beyond a
// full buffer are dropped, mirroring a broker shedding a slow
// consumer.
const queueDepth = 1024

// inboundMessage is one (topic, payload) pair queued for dispatch.
type inboundMessage struct {
	topic   string
	payload []byte
}

// MemoryBroker is an in-process broker for tests. Connections created
// with Dial receive every Publish whose topic matches one of their
// subscribed filters, each on its own serial dispatch goroutine —
// the same single-handler contract as MQTTConn, without a network.
type MemoryBroker struct {
	mu    sync.Mutex
	conns map[*MemoryConn]struct{}
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{conns: make(map[*MemoryConn]struct{})}
}

// Dial creates a connection attached to this broker. The connection
// is inert until Connect is called.
func (b *MemoryBroker) Dial() *MemoryConn {
	conn := &MemoryConn{
		broker:  b,
		filters: make(map[string]struct{}),
		queue:   make(chan inboundMessage, queueDepth),
	}
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
	return conn
}

// Publish delivers payload to every connected subscriber whose filter
// set matches topic. The payload is copied per subscriber, so callers
// may reuse the slice.
func (b *MemoryBroker) Publish(topic string, payload []byte) {
	b.mu.Lock()
	conns := make([]*MemoryConn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.deliver(topic, payload)
	}
}

// MemoryConn is an in-process Conn for tests. It records every wire
// subscribe/unsubscribe request so tests can assert how many times the
// registry touched the transport.
type MemoryConn struct {
	broker *MemoryBroker
	queue  chan inboundMessage

	mu                  sync.Mutex
	handler             Handler
	filters             map[string]struct{}
	connected           bool
	done                chan struct{}
	subscribeRequests   []string
	unsubscribeRequests []string
}

// Compile-time interface check.
var _ Conn = (*MemoryConn)(nil)

// Handle registers the inbound handler. Call before Connect.
func (c *MemoryConn) Handle(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect starts the dispatch goroutine. Idempotent; may be called
// again after Close to simulate a reconnect, in which case the
// subscription set registered before the drop remains active.
func (c *MemoryConn) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.connected = true
	c.done = make(chan struct{})
	go c.dispatchLoop(c.done)
	return nil
}

// Subscribe registers a topic filter and records the wire request.
func (c *MemoryConn) Subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters[topic] = struct{}{}
	c.subscribeRequests = append(c.subscribeRequests, topic)
	return nil
}

// Unsubscribe removes a topic filter and records the wire request.
func (c *MemoryConn) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.filters, topic)
	c.unsubscribeRequests = append(c.unsubscribeRequests, topic)
	return nil
}

// Close stops dispatch. Messages published while closed are not
// queued.
func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.done)
	return nil
}

// SubscribeRequests returns every topic filter passed to Subscribe, in
// order, including duplicates.
func (c *MemoryConn) SubscribeRequests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribeRequests...)
}

// UnsubscribeRequests returns every topic filter passed to
// Unsubscribe, in order.
func (c *MemoryConn) UnsubscribeRequests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribeRequests...)
}

// deliver queues one message if the connection is up and subscribed to
// the topic. Drops the message when the queue is full rather than
// blocking the broker.
func (c *MemoryConn) deliver(topic string, payload []byte) {
	c.mu.Lock()
	match := c.connected && c.matchesLocked(topic)
	c.mu.Unlock()
	if !match {
		return
	}

	message := inboundMessage{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case c.queue <- message:
	default:
	}
}

func (c *MemoryConn) matchesLocked(topic string) bool {
	for filter := range c.filters {
		if MatchTopic(filter, topic) {
			return true
		}
	}
	return false
}

// dispatchLoop invokes the handler serially — one message at a time,
// in arrival order — until Close. The handler runs without any
// MemoryConn lock held, so re-entrant Subscribe and Unsubscribe calls
// from inside it cannot deadlock.
func (c *MemoryConn) dispatchLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case message := <-c.queue:
			c.mu.Lock()
			handler := c.handler
			c.mu.Unlock()
			if handler != nil {
				handler(message.topic, message.payload)
			}
		}
	}
}
