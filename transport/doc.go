// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport adapts a persistent publish/subscribe connection
// for the monitoring subsystem.
//
// The package defines one interface, [Conn]: connect, close, topic
// subscription, and a single inbound handler that receives every
// (topic, payload) pair on the connection's private dispatch
// goroutine. Per-topic delivery order is preserved; there is no
// ordering guarantee across topics.
//
// Two implementations are provided. [MQTTConn] wraps the Eclipse Paho
// client: the initial connect is retried with bounded exponential
// backoff inside a configurable deadline, and after a broker
// disconnect the client reconnects and replays the tracked
// subscription set without caller intervention. [MemoryConn] attaches
// to an in-process [MemoryBroker] and exists for tests — it honors the
// same single-handler, serial-dispatch contract without a network.
//
// Subscribe and Unsubscribe are safe to call from within the inbound
// handler. A failed (re-)connect within policy is surfaced as
// [*ConnectionError], and only from Connect; transient reconnects are
// retried silently.
package transport
