// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel-based helpers shared by monitor and
// transport tests. The helpers encapsulate the timeout safety valve so
// individual tests never reach for bare time.After calls.
package testutil

import (
	"fmt"
	"time"
)

// failer is the subset of *testing.T the helpers need. Declared as an
// interface so the helpers work with *testing.T and *testing.B alike.
type failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	event := testutil.RequireReceive(t, events, 5*time.Second, "waiting for job event")
func RequireReceive[T any](t failer, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireNoReceive asserts that ch stays silent for the full window.
// Use this to prove an event was NOT delivered (for example, that a
// completion callback did not fire a second time). Keep the window
// short — the test pays for it in wall-clock time.
func RequireNoReceive[T any](t failer, ch <-chan T, window time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v on channel: %s", v, formatMessage(msgAndArgs))
	case <-time.After(window):
	}
}

// RequireClosed waits for ch to be closed (or receive a value) within
// timeout, or fails the test.
func RequireClosed(t failer, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// formatMessage formats optional message arguments: a single string, or
// a format string followed by args.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
