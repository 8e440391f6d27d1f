// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import "testing"

func TestParseJobStatusEvent(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		event, err := parseJobStatusEvent([]byte(`{
			"job_id": "abc",
			"status": "in_progress",
			"progress": 40,
			"timestamp": 1700000000000
		}`))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if event.JobID != "abc" || event.Status != StatusInProgress || event.Progress != 40 {
			t.Errorf("parsed event = %+v", event)
		}
		if event.Status.Terminal() {
			t.Error("in_progress reported terminal")
		}
	})

	t.Run("failed event carries error message", func(t *testing.T) {
		event, err := parseJobStatusEvent([]byte(`{
			"job_id": "abc",
			"status": "failed",
			"progress": 80,
			"error_message": "decode error"
		}`))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !event.Status.Terminal() {
			t.Error("failed not reported terminal")
		}
		if event.ErrorMessage != "decode error" {
			t.Errorf("error message = %q", event.ErrorMessage)
		}
	})

	rejects := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"missing job_id", `{"status": "queued"}`},
		{"unknown status", `{"job_id": "abc", "status": "exploded"}`},
		{"progress below range", `{"job_id": "abc", "status": "queued", "progress": -1}`},
		{"progress above range", `{"job_id": "abc", "status": "queued", "progress": 101}`},
	}
	for _, tc := range rejects {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			if _, err := parseJobStatusEvent([]byte(tc.payload)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestParseWorkerCapability(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		capability, err := parseWorkerCapability([]byte(`{
			"worker_id": "w1",
			"capabilities": ["hash", "clip_embedding"],
			"idle_count": 2,
			"timestamp": 1700000000000
		}`))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if capability.WorkerID != "w1" || capability.IdleCount != 2 {
			t.Errorf("parsed capability = %+v", capability)
		}
		if !capability.Has("hash") {
			t.Error("Has(hash) = false")
		}
		if capability.Has("exif") {
			t.Error("Has(exif) = true for undeclared type")
		}
	})

	t.Run("busy worker has no available capability", func(t *testing.T) {
		capability := WorkerCapability{
			WorkerID:     "w1",
			Capabilities: []string{"hash"},
			IdleCount:    0,
		}
		if capability.Has("hash") {
			t.Error("Has(hash) = true with zero idle slots")
		}
	})

	rejects := []struct {
		name    string
		payload string
	}{
		{"not json", `)(`},
		{"missing worker_id", `{"capabilities": ["hash"], "idle_count": 1}`},
		{"negative idle_count", `{"worker_id": "w1", "idle_count": -1}`},
	}
	for _, tc := range rejects {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			if _, err := parseWorkerCapability([]byte(tc.payload)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}
