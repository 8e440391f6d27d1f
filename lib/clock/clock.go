// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, or time.NewTicker directly. Real() provides standard library
// behavior; Fake() provides a deterministic clock that advances only when
// Advance is called, which lets timeout and eviction tests run without
// real sleeps.
package clock

import "time"

// Clock abstracts the time operations the monitor needs: reading the
// current time, one-shot deadlines, and periodic ticks. Every struct
// that waits or stamps timestamps carries a Clock field; tests inject
// a FakeClock and drive it explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on its C channel
	// every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop to
// release resources. The channel has capacity 1 — ticks are dropped,
// not queued, when the consumer falls behind (matching time.Ticker).
type Ticker struct {
	// C delivers ticks.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No more ticks are sent on C after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}
