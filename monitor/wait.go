// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"sync"
	"time"
)

// capabilityWaiter is one blocked WaitForCapability call. The wake
// channel has capacity 1: a notification during a re-check is
// buffered, not lost, and duplicate notifications collapse.
type capabilityWaiter struct {
	taskType string
	wake     chan struct{}
}

// waitCoordinator wakes blocked capability waits when matching
// capacity is advertised. Registration is explicit and every exit
// path of a wait deregisters, so abandoned waits leave nothing
// behind.
type waitCoordinator struct {
	mu      sync.Mutex
	waiters map[*capabilityWaiter]struct{}
}

func newWaitCoordinator() *waitCoordinator {
	return &waitCoordinator{waiters: make(map[*capabilityWaiter]struct{})}
}

func (c *waitCoordinator) register(taskType string) *capabilityWaiter {
	waiter := &capabilityWaiter{
		taskType: taskType,
		wake:     make(chan struct{}, 1),
	}
	c.mu.Lock()
	c.waiters[waiter] = struct{}{}
	c.mu.Unlock()
	return waiter
}

func (c *waitCoordinator) deregister(waiter *capabilityWaiter) {
	c.mu.Lock()
	delete(c.waiters, waiter)
	c.mu.Unlock()
}

// pending returns the number of registered waiters.
func (c *waitCoordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// notify wakes every waiter whose task type the capability satisfies.
// Sends are non-blocking; a full wake buffer means the waiter already
// has a pending wake.
func (c *waitCoordinator) notify(capability WorkerCapability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for waiter := range c.waiters {
		if !capability.Has(waiter.taskType) {
			continue
		}
		select {
		case waiter.wake <- struct{}{}:
		default:
		}
	}
}

// WaitForCapability blocks until some worker advertises taskType with
// an idle slot, the timeout elapses, or ctx ends. A non-positive
// timeout uses the monitor's configured default.
//
// Waking is event-driven from capability heartbeats, with a bounded
// safety poll underneath in case a wake is lost between the
// availability check and channel registration. On timeout the error
// is a *WorkerUnavailableError carrying the capacity that was visible
// at the deadline; absence of capacity before the deadline is never
// an error.
func (m *Monitor) WaitForCapability(ctx context.Context, taskType string, timeout time.Duration) error {
	if m.isClosed() {
		return ErrClosed
	}
	if timeout <= 0 {
		timeout = m.waitTimeout
	}

	if m.workers.available(taskType) {
		return nil
	}

	waiter := m.waiters.register(taskType)
	defer m.waiters.deregister(waiter)

	// Availability may have arrived between the check above and the
	// registration. Re-check now that the waiter is visible to
	// notify.
	if m.workers.available(taskType) {
		return nil
	}

	deadline := m.clock.After(timeout)
	poll := m.clock.NewTicker(m.waitPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-waiter.wake:
			if m.workers.available(taskType) {
				return nil
			}
			// The advertising worker went busy or disconnected
			// between the notification and this check. Keep waiting.
		case <-poll.C:
			if m.workers.available(taskType) {
				return nil
			}
		case <-deadline:
			return &WorkerUnavailableError{
				TaskType:  taskType,
				Available: m.workers.capabilityCounts(),
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
