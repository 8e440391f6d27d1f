// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job lifecycle states. Jobs progress queued → in_progress →
// completed/failed.
const (
	StatusQueued     JobStatus = "queued"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further updates are expected for a job
// in this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) known() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// JobStatusEvent is one update on a job's event topic. Immutable once
// parsed; callbacks receive it by value.
type JobStatusEvent struct {
	// JobID identifies the job.
	JobID string `json:"job_id"`
	// Status is the job's lifecycle state at this event.
	Status JobStatus `json:"status"`
	// Progress is a percentage in [0, 100].
	Progress int `json:"progress"`
	// Timestamp is the server-side event time in milliseconds.
	Timestamp int64 `json:"timestamp"`
	// TaskOutput carries status-specific results, present on
	// completion.
	TaskOutput map[string]any `json:"task_output,omitempty"`
	// ErrorMessage is set when Status is failed.
	ErrorMessage string `json:"error_message,omitempty"`
}

// parseJobStatusEvent decodes and validates a job event payload.
func parseJobStatusEvent(payload []byte) (JobStatusEvent, error) {
	var event JobStatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return JobStatusEvent{}, fmt.Errorf("decoding job event: %w", err)
	}
	if event.JobID == "" {
		return JobStatusEvent{}, fmt.Errorf("job event missing job_id")
	}
	if !event.Status.known() {
		return JobStatusEvent{}, fmt.Errorf("job event has unknown status %q", event.Status)
	}
	if event.Progress < 0 || event.Progress > 100 {
		return JobStatusEvent{}, fmt.Errorf("job event progress %d out of range", event.Progress)
	}
	return event, nil
}

// WorkerCapability is one worker's last-known capability declaration,
// refreshed by heartbeats on the worker's topic.
type WorkerCapability struct {
	// WorkerID identifies the worker.
	WorkerID string `json:"worker_id"`
	// Capabilities lists the task types the worker can execute.
	Capabilities []string `json:"capabilities"`
	// IdleCount is the number of idle execution slots.
	IdleCount int `json:"idle_count"`
	// Timestamp is the worker-side heartbeat time in milliseconds.
	Timestamp int64 `json:"timestamp"`

	// LastSeen is stamped locally when the heartbeat is processed.
	// Drives stale-entry eviction.
	LastSeen time.Time `json:"-"`
}

// Has reports whether the worker declares taskType with at least one
// idle slot.
func (w WorkerCapability) Has(taskType string) bool {
	if w.IdleCount <= 0 {
		return false
	}
	for _, capability := range w.Capabilities {
		if capability == taskType {
			return true
		}
	}
	return false
}

// parseWorkerCapability decodes and validates a capability heartbeat
// payload.
func parseWorkerCapability(payload []byte) (WorkerCapability, error) {
	var capability WorkerCapability
	if err := json.Unmarshal(payload, &capability); err != nil {
		return WorkerCapability{}, fmt.Errorf("decoding capability message: %w", err)
	}
	if capability.WorkerID == "" {
		return WorkerCapability{}, fmt.Errorf("capability message missing worker_id")
	}
	if capability.IdleCount < 0 {
		return WorkerCapability{}, fmt.Errorf("capability message idle_count %d negative", capability.IdleCount)
	}
	return capability, nil
}
