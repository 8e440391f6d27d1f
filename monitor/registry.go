// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"sync"

	"github.com/google/uuid"
)

// SubscriptionID is the opaque token returned by SubscribeJobUpdates.
// Its only use is to target Unsubscribe. Unique for the monitor's
// lifetime.
type SubscriptionID string

// JobCallbacks holds the listener functions for one subscription.
// Either may be nil.
type JobCallbacks struct {
	// OnProgress fires for every event on the job, including terminal
	// ones.
	OnProgress func(JobStatusEvent)
	// OnComplete fires at most once, on the first terminal event
	// observed after the subscription was created. Redelivered
	// terminal events (at-least-once transport) do not fire it again.
	OnComplete func(JobStatusEvent)
}

// callbackShape classifies which listeners a subscription carries, so
// the dispatcher has one exhaustive delivery site instead of nil
// checks scattered through it.
type callbackShape uint8

const (
	shapeNone callbackShape = iota
	shapeProgressOnly
	shapeCompleteOnly
	shapeBoth
)

func (cb JobCallbacks) shape() callbackShape {
	switch {
	case cb.OnProgress != nil && cb.OnComplete != nil:
		return shapeBoth
	case cb.OnProgress != nil:
		return shapeProgressOnly
	case cb.OnComplete != nil:
		return shapeCompleteOnly
	}
	return shapeNone
}

// subscription is one listener record. Owned by the registry; the
// completeDelivered flag is read and written only under the registry
// mutex.
type subscription struct {
	id        SubscriptionID
	jobID     string
	callbacks JobCallbacks

	// completeDelivered makes OnComplete idempotent under duplicate
	// terminal redelivery. Explicit state, never inferred.
	completeDelivered bool
}

// subscriptionRegistry maps jobs to their active listener records. One
// mutex guards all mutation and snapshot reads; callbacks are never
// invoked while it is held.
//
// The transport's topic-subscription set must stay consistent with the
// in-memory listener sets, so the first-listener and last-listener
// transitions execute their wire hooks inside the registry lock. Hooks
// must not re-enter the registry.
type subscriptionRegistry struct {
	mu    sync.Mutex
	byID  map[SubscriptionID]*subscription
	byJob map[string][]*subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		byID:  make(map[SubscriptionID]*subscription),
		byJob: make(map[string][]*subscription),
	}
}

// subscribe stores a new listener record. When it is the first record
// for the job, onFirst runs inside the lock — if it fails, the record
// is discarded and the error returned.
func (r *subscriptionRegistry) subscribe(jobID string, callbacks JobCallbacks, onFirst func() error) (SubscriptionID, error) {
	sub := &subscription{
		id:        SubscriptionID(uuid.NewString()),
		jobID:     jobID,
		callbacks: callbacks,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byJob[jobID]) == 0 && onFirst != nil {
		if err := onFirst(); err != nil {
			return "", err
		}
	}
	r.byID[sub.id] = sub
	r.byJob[jobID] = append(r.byJob[jobID], sub)
	return sub.id, nil
}

// unsubscribe removes exactly the identified record. When the job's
// listener set empties, onLast runs inside the lock. Unknown ids are
// ignored.
func (r *subscriptionRegistry) unsubscribe(id SubscriptionID, onLast func(jobID string)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	listeners := r.byJob[sub.jobID]
	for i, candidate := range listeners {
		if candidate.id == id {
			listeners = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}
	if len(listeners) == 0 {
		delete(r.byJob, sub.jobID)
		if onLast != nil {
			onLast(sub.jobID)
		}
	} else {
		r.byJob[sub.jobID] = listeners
	}
	return true
}

// snapshot returns a copy of the job's listener slice. Dispatch
// iterates the copy with no lock held, so a callback that subscribes
// or unsubscribes mid-delivery mutates the live set, not the
// iteration.
func (r *subscriptionRegistry) snapshot(jobID string) []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	listeners := r.byJob[jobID]
	if len(listeners) == 0 {
		return nil
	}
	return append([]*subscription(nil), listeners...)
}

// markCompleteDelivered sets the record's completion flag. Returns
// false when completion was already delivered (or the record is gone),
// in which case OnComplete must not fire.
func (r *subscriptionRegistry) markCompleteDelivered(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok || sub.completeDelivered {
		return false
	}
	sub.completeDelivered = true
	return true
}

// count returns the number of active records for a job.
func (r *subscriptionRegistry) count(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byJob[jobID])
}
