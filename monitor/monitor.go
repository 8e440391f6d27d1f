// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/curatelab/compute-client-go/lib/clock"
	"github.com/curatelab/compute-client-go/transport"
)

// Config holds configuration for creating a Monitor.
type Config struct {
	// Conn is the pub/sub connection the monitor owns. Required. The
	// monitor registers itself as the connection's inbound handler;
	// nothing else may subscribe topics on it.
	Conn transport.Conn

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// Clock drives timeouts, heartbeat stamps, and stale eviction.
	// If nil, clock.Real().
	Clock clock.Clock

	// TopicPrefix is the leading segment of all job and worker
	// topics. If empty, "inference".
	TopicPrefix string

	// WorkerWaitTimeout is the WaitForCapability deadline used when
	// the caller passes none. If zero, 30 seconds.
	WorkerWaitTimeout time.Duration

	// WaitPollInterval is the safety-poll period under event-driven
	// capability waits. If zero, 1 second.
	WaitPollInterval time.Duration

	// StaleWorkerTTL evicts capability entries not refreshed within
	// this window, covering lost disconnect signals. If zero, 90
	// seconds; negative disables eviction (tombstones only).
	StaleWorkerTTL time.Duration
}

// Monitor is the real-time monitoring subsystem of the compute
// client: it owns one pub/sub connection and turns its message stream
// into per-job callback deliveries and an advisory worker capability
// cache. All operations are safe for concurrent use; only Start and
// WaitForCapability block.
type Monitor struct {
	conn    transport.Conn
	logger  *slog.Logger
	clock   clock.Clock
	prefix  string
	subs    *subscriptionRegistry
	workers *workerRegistry
	waiters *waitCoordinator

	waitTimeout      time.Duration
	waitPollInterval time.Duration
	staleTTL         time.Duration

	mu        sync.Mutex
	started   bool
	closed    bool
	sweepStop chan struct{}
}

// New creates a Monitor. The connection is not touched until Start.
func New(config Config) (*Monitor, error) {
	if config.Conn == nil {
		return nil, fmt.Errorf("monitor: Conn is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	prefix := config.TopicPrefix
	if prefix == "" {
		prefix = "inference"
	}
	waitTimeout := config.WorkerWaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	pollInterval := config.WaitPollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	staleTTL := config.StaleWorkerTTL
	if staleTTL == 0 {
		staleTTL = 90 * time.Second
	}

	return &Monitor{
		conn:             config.Conn,
		logger:           logger,
		clock:            clk,
		prefix:           prefix,
		subs:             newSubscriptionRegistry(),
		workers:          newWorkerRegistry(logger),
		waiters:          newWaitCoordinator(),
		waitTimeout:      waitTimeout,
		waitPollInterval: pollInterval,
		staleTTL:         staleTTL,
	}, nil
}

// Start registers the inbound handler, connects, and subscribes the
// worker capability wildcard. Idempotent. Connection failures within
// the transport's policy surface here as *transport.ConnectionError.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.conn.Handle(m.handleMessage)
	if err := m.conn.Connect(ctx); err != nil {
		return err
	}
	if err := m.conn.Subscribe(m.workerWildcard()); err != nil {
		return fmt.Errorf("monitor: subscribing worker capabilities: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.started = true
	if m.staleTTL > 0 {
		m.sweepStop = make(chan struct{})
		go m.runStaleSweep(m.sweepStop)
	}
	m.logger.Info("job monitor started", "topic_prefix", m.prefix)
	return nil
}

// Close stops the stale sweep and closes the connection. Idempotent.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.sweepStop != nil {
		close(m.sweepStop)
	}
	m.mu.Unlock()
	return m.conn.Close()
}

func (m *Monitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SubscribeJobUpdates registers listeners for one job's events and
// returns the subscription id for later Unsubscribe. Both callbacks
// are optional. The first listener for a job subscribes the job's
// topic on the transport; further listeners share it. Non-blocking.
func (m *Monitor) SubscribeJobUpdates(jobID string, callbacks JobCallbacks) (SubscriptionID, error) {
	if m.isClosed() {
		return "", ErrClosed
	}
	if jobID == "" {
		return "", fmt.Errorf("monitor: empty job id")
	}

	id, err := m.subs.subscribe(jobID, callbacks, func() error {
		if err := m.conn.Subscribe(m.jobEventsTopic(jobID)); err != nil {
			return fmt.Errorf("monitor: subscribing job topic: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug("registered job listeners", "job_id", jobID, "subscription_id", id)
	return id, nil
}

// Unsubscribe removes exactly the identified listener record. When the
// job's listener set empties, the job topic is released immediately.
// Unknown ids are logged and ignored.
func (m *Monitor) Unsubscribe(id SubscriptionID) {
	removed := m.subs.unsubscribe(id, func(jobID string) {
		if err := m.conn.Unsubscribe(m.jobEventsTopic(jobID)); err != nil {
			m.logger.Warn("releasing job topic failed", "job_id", jobID, "error", err)
		}
	})
	if !removed {
		m.logger.Warn("unsubscribe for unknown subscription", "subscription_id", id)
	}
}

// GetWorkerCapabilities returns a copy of the current worker
// capability cache.
func (m *Monitor) GetWorkerCapabilities() map[string]WorkerCapability {
	return m.workers.all()
}

// GetWorker returns one worker's last-known capability record.
func (m *Monitor) GetWorker(workerID string) (WorkerCapability, bool) {
	return m.workers.get(workerID)
}

// CapabilitySnapshot returns idle-slot counts summed per task type.
func (m *Monitor) CapabilitySnapshot() map[string]int {
	return m.workers.capabilityCounts()
}

// SubscribeWorkerUpdates registers an observer for capability changes.
// The observer receives a nil capability when a worker disconnects or
// is evicted as stale. Observers run on the transport's dispatch
// goroutine and live for the monitor's lifetime.
func (m *Monitor) SubscribeWorkerUpdates(observer WorkerObserver) {
	m.workers.addObserver(observer)
}

// handleMessage is the transport's single inbound handler. Everything
// that arrives on the connection routes through here; parse failures
// are contained and logged, never propagated.
func (m *Monitor) handleMessage(topic string, payload []byte) {
	workersPrefix := m.prefix + "/workers/"
	jobsPrefix := m.prefix + "/jobs/"

	switch {
	case strings.HasPrefix(topic, workersPrefix):
		workerID := strings.TrimPrefix(topic, workersPrefix)
		if workerID == "" || strings.Contains(workerID, "/") {
			m.logger.Debug("ignoring message on unrecognized worker topic", "topic", topic)
			return
		}
		m.handleWorkerMessage(workerID, payload)

	case strings.HasPrefix(topic, jobsPrefix) && strings.HasSuffix(topic, "/events"):
		jobID := strings.TrimSuffix(strings.TrimPrefix(topic, jobsPrefix), "/events")
		if jobID == "" || strings.Contains(jobID, "/") {
			m.logger.Debug("ignoring message on unrecognized job topic", "topic", topic)
			return
		}
		m.handleJobEvent(jobID, payload)

	default:
		m.logger.Debug("ignoring message on unrecognized topic", "topic", topic)
	}
}

// handleWorkerMessage processes one capability heartbeat or tombstone.
// An empty payload is the disconnect signal, published on the worker's
// behalf when its connection drops uncleanly.
func (m *Monitor) handleWorkerMessage(workerID string, payload []byte) {
	if len(payload) == 0 {
		if m.workers.remove(workerID) {
			m.logger.Info("worker disconnected", "worker_id", workerID)
		}
		return
	}

	capability, err := parseWorkerCapability(payload)
	if err != nil {
		// One worker's bad data must not disrupt processing of
		// others: drop and log, never raise.
		m.logger.Warn("invalid worker capability message", "worker_id", workerID, "error", err)
		return
	}
	if capability.WorkerID != workerID {
		m.logger.Warn("capability message worker_id does not match topic",
			"topic_worker_id", workerID,
			"payload_worker_id", capability.WorkerID,
		)
		return
	}
	capability.LastSeen = m.clock.Now()
	m.workers.update(capability)
	m.waiters.notify(capability)
}

// handleJobEvent parses and dispatches one job status event.
func (m *Monitor) handleJobEvent(jobID string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	event, err := parseJobStatusEvent(payload)
	if err != nil {
		m.logger.Warn("invalid job event message", "job_id", jobID, "error", err)
		return
	}
	if event.JobID != jobID {
		m.logger.Warn("job event job_id does not match topic",
			"topic_job_id", jobID,
			"payload_job_id", event.JobID,
		)
		return
	}
	m.dispatchJobEvent(event)
}

// dispatchJobEvent delivers one event to every active listener for the
// job. The listener set is snapshotted under the registry lock and
// callbacks are invoked outside it, so a callback may subscribe or
// unsubscribe — including its own record — without corrupting the
// iteration or deadlocking.
func (m *Monitor) dispatchJobEvent(event JobStatusEvent) {
	listeners := m.subs.snapshot(event.JobID)
	if len(listeners) == 0 {
		return
	}
	terminal := event.Status.Terminal()

	for _, sub := range listeners {
		switch sub.callbacks.shape() {
		case shapeNone:
			// Listener-less record: nothing to deliver, kept until
			// explicit unsubscribe.
		case shapeProgressOnly:
			m.invoke(sub, sub.callbacks.OnProgress, event, "on_progress")
		case shapeCompleteOnly:
			if terminal && m.subs.markCompleteDelivered(sub.id) {
				m.invoke(sub, sub.callbacks.OnComplete, event, "on_complete")
			}
		case shapeBoth:
			m.invoke(sub, sub.callbacks.OnProgress, event, "on_progress")
			if terminal && m.subs.markCompleteDelivered(sub.id) {
				m.invoke(sub, sub.callbacks.OnComplete, event, "on_complete")
			}
		}
	}
}

// invoke runs one user callback as a supervised boundary: a panic is
// recorded and delivery to the remaining listeners continues.
func (m *Monitor) invoke(sub *subscription, callback func(JobStatusEvent), event JobStatusEvent, kind string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.logger.Error("job callback panicked",
				"job_id", sub.jobID,
				"subscription_id", sub.id,
				"callback", kind,
				"panic", recovered,
			)
		}
	}()
	callback(event)
}

// runStaleSweep periodically evicts capability entries whose
// heartbeats stopped without a tombstone. Sweeps at half the TTL so an
// entry overstays by at most TTL/2.
func (m *Monitor) runStaleSweep(stop <-chan struct{}) {
	ticker := m.clock.NewTicker(m.staleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.workers.evictStale(m.clock.Now().Add(-m.staleTTL))
		}
	}
}

// workerWildcard is the capability topic filter subscribed at Start.
func (m *Monitor) workerWildcard() string {
	return m.prefix + "/workers/+"
}

// jobEventsTopic is the per-job event topic.
func (m *Monitor) jobEventsTopic(jobID string) string {
	return m.prefix + "/jobs/" + jobID + "/events"
}
