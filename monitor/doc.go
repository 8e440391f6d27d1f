// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor is the compute client's real-time monitoring
// subsystem: it learns over a pub/sub connection when asynchronous
// jobs progress and complete, and tracks which workers currently
// advertise which task types.
//
// The central type is [Monitor]. It owns one [transport.Conn] and is
// the connection's sole inbound handler. Inbound traffic splits into
// two streams: job status events on one topic per job
// (<prefix>/jobs/<job_id>/events) and worker capability heartbeats on
// one topic per worker (<prefix>/workers/<worker_id>), where an empty
// payload is the worker's disconnect signal.
//
// Job listeners are registered with [Monitor.SubscribeJobUpdates]: any
// number of independent subscriptions may watch one job, each with an
// optional progress callback (fires on every event) and an optional
// completion callback (fires exactly once, on the first terminal
// event — duplicate redelivery under at-least-once transport is
// absorbed). The first listener for a job subscribes the job's topic
// on the transport; the last [Monitor.Unsubscribe] releases it.
// Callbacks run on the transport's dispatch goroutine, outside all
// monitor locks, and are supervised: a panicking callback is logged
// and delivery to the other listeners continues.
//
// Worker capability state is an advisory cache reconciled by repeated
// heartbeats. Entries are removed by tombstones and, because a
// disconnect signal can itself be lost, by a TTL sweep on an injected
// clock. [Monitor.WaitForCapability] blocks until a task type has idle
// capacity, returning a typed [*WorkerUnavailableError] on deadline.
//
// Malformed payloads never escape the subsystem: they are logged and
// dropped, isolating one bad publisher from all consumers. The only
// operations that propagate failures are Start (connection policy
// exhausted) and WaitForCapability (deadline).
package monitor
