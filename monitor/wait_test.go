// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curatelab/compute-client-go/lib/testutil"
)

func TestWaitForCapabilityImmediate(t *testing.T) {
	f := newFixture(t, nil)
	f.publishCapability(t, WorkerCapability{
		WorkerID:     "w1",
		Capabilities: []string{"hash"},
		IdleCount:    1,
	})

	if err := f.mon.WaitForCapability(context.Background(), "hash", time.Minute); err != nil {
		t.Fatalf("WaitForCapability failed with capacity present: %v", err)
	}
	if pending := f.mon.waiters.pending(); pending != 0 {
		t.Errorf("pending waiters = %d, want 0", pending)
	}
}

func TestWaitForCapabilityWakesOnHeartbeat(t *testing.T) {
	f := newFixture(t, nil)

	result := make(chan error, 1)
	go func() {
		result <- f.mon.WaitForCapability(context.Background(), "clip_embedding", time.Hour)
	}()

	// The waiter registers its deadline and safety poll before
	// blocking; wait for both so the heartbeat below cannot race the
	// registration.
	f.clk.WaitForTimers(2)

	f.publishCapability(t, WorkerCapability{
		WorkerID:     "w1",
		Capabilities: []string{"clip_embedding"},
		IdleCount:    1,
	})

	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for wake"); err != nil {
		t.Fatalf("WaitForCapability failed: %v", err)
	}
	if pending := f.mon.waiters.pending(); pending != 0 {
		t.Errorf("pending waiters = %d, want 0", pending)
	}
}

func TestWaitForCapabilityTimeout(t *testing.T) {
	f := newFixture(t, nil)

	// Unrelated capacity exists; the waited-for type never appears.
	f.publishCapability(t, WorkerCapability{
		WorkerID:     "w1",
		Capabilities: []string{"hash"},
		IdleCount:    1,
	})

	result := make(chan error, 1)
	go func() {
		result <- f.mon.WaitForCapability(context.Background(), "clip_embedding", 100*time.Millisecond)
	}()

	f.clk.WaitForTimers(2)
	f.clk.Advance(100 * time.Millisecond)

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for timeout")
	if !IsWorkerUnavailable(err) {
		t.Fatalf("error = %v, want WorkerUnavailableError", err)
	}
	var unavailable *WorkerUnavailableError
	errors.As(err, &unavailable)
	if unavailable.TaskType != "clip_embedding" {
		t.Errorf("TaskType = %q", unavailable.TaskType)
	}
	if unavailable.Available["hash"] != 1 {
		t.Errorf("Available = %v, want hash:1", unavailable.Available)
	}
	if pending := f.mon.waiters.pending(); pending != 0 {
		t.Errorf("pending waiters = %d after timeout, want 0", pending)
	}
}

func TestWaitForCapabilityBusyWorkerDoesNotSatisfy(t *testing.T) {
	f := newFixture(t, nil)

	// A worker declaring the type with zero idle slots must not end
	// the wait.
	f.publishCapability(t, WorkerCapability{
		WorkerID:     "w1",
		Capabilities: []string{"hash"},
		IdleCount:    0,
	})

	result := make(chan error, 1)
	go func() {
		result <- f.mon.WaitForCapability(context.Background(), "hash", 100*time.Millisecond)
	}()
	f.clk.WaitForTimers(2)
	f.clk.Advance(100 * time.Millisecond)

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for timeout")
	if !IsWorkerUnavailable(err) {
		t.Fatalf("error = %v, want WorkerUnavailableError", err)
	}
}

func TestWaitForCapabilitySafetyPoll(t *testing.T) {
	f := newFixture(t, nil)

	result := make(chan error, 1)
	go func() {
		result <- f.mon.WaitForCapability(context.Background(), "hash", time.Hour)
	}()
	f.clk.WaitForTimers(2)

	// Install capacity behind the coordinator's back — no wake is
	// sent. The safety poll must still observe it.
	f.mon.workers.update(WorkerCapability{
		WorkerID:     "w1",
		Capabilities: []string{"hash"},
		IdleCount:    1,
	})
	f.clk.Advance(time.Second)

	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for poll wake"); err != nil {
		t.Fatalf("WaitForCapability failed: %v", err)
	}
}

func TestWaitForCapabilityContextCancel(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- f.mon.WaitForCapability(ctx, "hash", time.Hour)
	}()
	f.clk.WaitForTimers(2)
	cancel()

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for cancellation")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if pending := f.mon.waiters.pending(); pending != 0 {
		t.Errorf("pending waiters = %d after cancel, want 0", pending)
	}
}

func TestWaitForCapabilityAfterClose(t *testing.T) {
	f := newFixture(t, nil)
	f.mon.Close()
	if err := f.mon.WaitForCapability(context.Background(), "hash", time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
}
