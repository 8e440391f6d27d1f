// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfter(t *testing.T) {
	t.Run("fires when advanced past deadline", func(t *testing.T) {
		c := Fake(testEpoch)
		ch := c.After(5 * time.Second)

		c.Advance(4 * time.Second)
		select {
		case <-ch:
			t.Fatal("fired before deadline")
		default:
		}

		c.Advance(time.Second)
		select {
		case fired := <-ch:
			if got, want := fired, testEpoch.Add(5*time.Second); !got.Equal(want) {
				t.Errorf("fire time = %v, want %v", got, want)
			}
		default:
			t.Fatal("did not fire at deadline")
		}
	})

	t.Run("non-positive duration fires immediately", func(t *testing.T) {
		c := Fake(testEpoch)
		select {
		case <-c.After(0):
		default:
			t.Fatal("After(0) did not fire immediately")
		}
		if c.PendingCount() != 0 {
			t.Errorf("pending count = %d, want 0", c.PendingCount())
		}
	})
}

func TestFakeTicker(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}

	ticker.Stop()
	c.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("tick delivered after Stop")
	default:
	}
}

func TestFakeTickerSpansMultipleIntervals(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	// Channel capacity is 1, so a 3-second advance delivers one tick
	// and drops the other two.
	c.Advance(3 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after multi-interval advance")
	}
	select {
	case <-ticker.C:
		t.Fatal("overflow tick was queued, want dropped")
	default:
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(testEpoch)

	registered := make(chan struct{})
	fired := make(chan struct{})
	go func() {
		ch := c.After(time.Minute)
		close(registered)
		<-ch
		close(fired)
	}()

	c.WaitForTimers(1)
	<-registered
	c.Advance(time.Minute)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter goroutine never woke")
	}
}

func TestNow(t *testing.T) {
	c := Fake(testEpoch)
	c.Advance(90 * time.Minute)
	if got, want := c.Now(), testEpoch.Add(90*time.Minute); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}
