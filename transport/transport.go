// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
)

// Handler receives every inbound message on the connection. Invoked
// serially per topic on the transport's dispatch goroutine. The
// payload slice must not be retained past the call.
type Handler func(topic string, payload []byte)

// Conn is a persistent pub/sub connection with one inbound handler.
//
// Implementations own their dispatch goroutine(s) and guarantee that
// Subscribe and Unsubscribe may be called re-entrantly from within the
// handler without deadlocking. The subscription set survives
// reconnects: after a dropped connection is re-established, every
// topic filter registered through Subscribe is active again.
type Conn interface {
	// Handle registers the single inbound handler. Must be called
	// before Connect; later calls replace the handler.
	Handle(h Handler)

	// Connect establishes the connection, retrying internally with
	// bounded backoff. Idempotent. Returns *ConnectionError when no
	// session can be established within the configured deadline, or
	// ctx.Err() when the context ends first.
	Connect(ctx context.Context) error

	// Subscribe registers interest in a topic filter (MQTT wildcards
	// allowed). Non-blocking: the request is issued asynchronously and
	// the filter is tracked for replay on reconnect.
	Subscribe(topic string) error

	// Unsubscribe removes a topic filter registered with Subscribe.
	Unsubscribe(topic string) error

	// Close disconnects and releases resources. The handler receives
	// no messages after Close returns.
	Close() error
}

// ConnectionError reports that a connection could not be established
// within policy. Returned only from Connect; reconnects after a
// session existed are retried silently.
type ConnectionError struct {
	// Broker is the broker address the connect targeted.
	Broker string
	// Err is the final underlying failure.
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connecting to %s: %v", e.Broker, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
