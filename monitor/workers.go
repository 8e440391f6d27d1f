// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"sync"
	"time"
)

// WorkerObserver is notified on every capability change. A nil
// capability means the worker disconnected (tombstone) or was evicted
// as stale.
type WorkerObserver func(workerID string, capability *WorkerCapability)

// workerRegistry is the advisory cache of worker capability state,
// reconciled by repeated heartbeats. Entries leave three ways: a
// tombstone (empty payload on the worker's topic), stale eviction, or
// never — a heartbeat refreshes LastSeen each time.
type workerRegistry struct {
	mu        sync.RWMutex
	workers   map[string]WorkerCapability
	observers []WorkerObserver
	logger    *slog.Logger
}

func newWorkerRegistry(logger *slog.Logger) *workerRegistry {
	return &workerRegistry{
		workers: make(map[string]WorkerCapability),
		logger:  logger,
	}
}

// update stores a heartbeat and notifies observers.
func (r *workerRegistry) update(capability WorkerCapability) {
	r.mu.Lock()
	r.workers[capability.WorkerID] = capability
	observers := r.observersLocked()
	r.mu.Unlock()

	for _, observer := range observers {
		r.notify(observer, capability.WorkerID, &capability)
	}
}

// remove drops a worker on its tombstone. Unknown workers are a no-op
// (the tombstone may arrive after eviction, or for a worker whose
// heartbeats were all malformed).
func (r *workerRegistry) remove(workerID string) bool {
	r.mu.Lock()
	_, existed := r.workers[workerID]
	if existed {
		delete(r.workers, workerID)
	}
	observers := r.observersLocked()
	r.mu.Unlock()

	if !existed {
		return false
	}
	for _, observer := range observers {
		r.notify(observer, workerID, nil)
	}
	return true
}

// evictStale removes every worker whose LastSeen predates cutoff and
// notifies observers, exactly as a tombstone would. Covers the case
// where the disconnect signal itself was lost.
func (r *workerRegistry) evictStale(cutoff time.Time) []string {
	r.mu.Lock()
	var evicted []string
	for workerID, capability := range r.workers {
		if capability.LastSeen.Before(cutoff) {
			delete(r.workers, workerID)
			evicted = append(evicted, workerID)
		}
	}
	observers := r.observersLocked()
	r.mu.Unlock()

	for _, workerID := range evicted {
		r.logger.Warn("evicting stale worker capability entry", "worker_id", workerID)
		for _, observer := range observers {
			r.notify(observer, workerID, nil)
		}
	}
	return evicted
}

// get returns one worker's record.
func (r *workerRegistry) get(workerID string) (WorkerCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	capability, ok := r.workers[workerID]
	return capability, ok
}

// all returns a copy of the current records.
func (r *workerRegistry) all() map[string]WorkerCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]WorkerCapability, len(r.workers))
	for workerID, capability := range r.workers {
		out[workerID] = capability
	}
	return out
}

// capabilityCounts sums idle slots per task type across workers.
func (r *workerRegistry) capabilityCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, capability := range r.workers {
		for _, taskType := range capability.Capabilities {
			counts[taskType] += capability.IdleCount
		}
	}
	return counts
}

// available reports whether some worker declares taskType with an
// idle slot.
func (r *workerRegistry) available(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, capability := range r.workers {
		if capability.Has(taskType) {
			return true
		}
	}
	return false
}

// addObserver registers a capability-change observer. Observers cannot
// be removed; they live as long as the monitor.
func (r *workerRegistry) addObserver(observer WorkerObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

func (r *workerRegistry) observersLocked() []WorkerObserver {
	return append([]WorkerObserver(nil), r.observers...)
}

// notify invokes one observer, containing panics so a defective
// observer cannot disrupt capability processing for everyone else.
func (r *workerRegistry) notify(observer WorkerObserver, workerID string, capability *WorkerCapability) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("worker observer panicked",
				"worker_id", workerID,
				"panic", recovered,
			)
		}
	}()
	observer(workerID, capability)
}
