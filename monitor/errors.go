// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations invoked after Close.
var ErrClosed = errors.New("monitor: closed")

// WorkerUnavailableError reports that WaitForCapability reached its
// deadline with no worker advertising the task type. Recoverable: the
// caller may fall back to queueing the job and polling. Callers can
// use errors.As to inspect what capacity existed at the deadline:
//
//	var unavailable *monitor.WorkerUnavailableError
//	if errors.As(err, &unavailable) {
//	    log.Printf("no %s workers; saw %v", unavailable.TaskType, unavailable.Available)
//	}
type WorkerUnavailableError struct {
	// TaskType is the capability that was waited for.
	TaskType string
	// Available is the idle-slot count per task type at the deadline.
	Available map[string]int
}

func (e *WorkerUnavailableError) Error() string {
	return fmt.Sprintf("monitor: no workers available for task type %q (available: %v)", e.TaskType, e.Available)
}

// IsWorkerUnavailable reports whether err is a *WorkerUnavailableError.
func IsWorkerUnavailable(err error) bool {
	var unavailable *WorkerUnavailableError
	return errors.As(err, &unavailable)
}
