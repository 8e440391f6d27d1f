// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/curatelab/compute-client-go/lib/testutil"
)

type received struct {
	topic   string
	payload string
}

func newTestConn(t *testing.T, broker *MemoryBroker) (*MemoryConn, chan received) {
	t.Helper()
	conn := broker.Dial()
	messages := make(chan received, 64)
	conn.Handle(func(topic string, payload []byte) {
		messages <- received{topic: topic, payload: string(payload)}
	})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, messages
}

func TestMemoryConnDelivery(t *testing.T) {
	broker := NewMemoryBroker()
	conn, messages := newTestConn(t, broker)

	if err := conn.Subscribe("inference/workers/+"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	broker.Publish("inference/workers/w1", []byte("hello"))
	got := testutil.RequireReceive(t, messages, 5*time.Second, "waiting for matching publish")
	if got.topic != "inference/workers/w1" || got.payload != "hello" {
		t.Errorf("received %+v", got)
	}

	// A non-matching topic is not delivered.
	broker.Publish("inference/jobs/abc/events", []byte("nope"))
	testutil.RequireNoReceive(t, messages, 100*time.Millisecond, "unsubscribed topic delivered")
}

func TestMemoryConnPerTopicOrdering(t *testing.T) {
	broker := NewMemoryBroker()
	conn, messages := newTestConn(t, broker)

	if err := conn.Subscribe("inference/jobs/abc/events"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	const count = 50
	for i := 0; i < count; i++ {
		broker.Publish("inference/jobs/abc/events", []byte(fmt.Sprintf("%d", i)))
	}
	for i := 0; i < count; i++ {
		got := testutil.RequireReceive(t, messages, 5*time.Second, "waiting for message %d", i)
		if want := fmt.Sprintf("%d", i); got.payload != want {
			t.Fatalf("message %d: payload = %q, want %q", i, got.payload, want)
		}
	}
}

func TestMemoryConnReentrantSubscribe(t *testing.T) {
	broker := NewMemoryBroker()
	conn := broker.Dial()

	// The handler subscribes to a second topic from inside the
	// dispatch goroutine. This must not deadlock, and the new
	// subscription must take effect for subsequent publishes.
	second := make(chan received, 1)
	conn.Handle(func(topic string, payload []byte) {
		switch topic {
		case "trigger":
			if err := conn.Subscribe("followup"); err != nil {
				t.Errorf("re-entrant Subscribe failed: %v", err)
			}
		case "followup":
			second <- received{topic: topic, payload: string(payload)}
		}
	})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.Subscribe("trigger"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	broker.Publish("trigger", []byte("go"))

	// The re-entrant subscribe races with this publish, so retry
	// until delivery sticks.
	deadline := time.After(5 * time.Second)
	for {
		broker.Publish("followup", []byte("done"))
		select {
		case got := <-second:
			if got.payload != "done" {
				t.Fatalf("payload = %q, want done", got.payload)
			}
			return
		case <-deadline:
			t.Fatal("followup subscription never became active")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMemoryConnCloseStopsDelivery(t *testing.T) {
	broker := NewMemoryBroker()
	conn, messages := newTestConn(t, broker)

	if err := conn.Subscribe("topic"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	broker.Publish("topic", []byte("before"))
	testutil.RequireReceive(t, messages, 5*time.Second, "pre-close delivery")

	conn.Close()
	broker.Publish("topic", []byte("after"))
	testutil.RequireNoReceive(t, messages, 100*time.Millisecond, "delivery after Close")
}

func TestMemoryConnSubscriptionsSurviveReconnect(t *testing.T) {
	broker := NewMemoryBroker()
	conn, messages := newTestConn(t, broker)

	if err := conn.Subscribe("topic"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	conn.Close()
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	broker.Publish("topic", []byte("again"))
	got := testutil.RequireReceive(t, messages, 5*time.Second, "post-reconnect delivery")
	if got.payload != "again" {
		t.Errorf("payload = %q, want again", got.payload)
	}
}

func TestMemoryConnWireRequestRecording(t *testing.T) {
	broker := NewMemoryBroker()
	conn := broker.Dial()

	conn.Subscribe("a")
	conn.Subscribe("b")
	conn.Subscribe("a")
	conn.Unsubscribe("b")

	if got := conn.SubscribeRequests(); len(got) != 3 {
		t.Errorf("subscribe requests = %v, want 3 entries", got)
	}
	if got := conn.UnsubscribeRequests(); len(got) != 1 || got[0] != "b" {
		t.Errorf("unsubscribe requests = %v, want [b]", got)
	}
}
