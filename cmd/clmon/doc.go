// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Clmon tails the compute service's real-time event stream from an
// MQTT broker. It is a line-oriented debugging tool, not a dashboard:
// one event per line on stdout, diagnostics on stderr.
//
// Modes (exactly one):
//
//	clmon --job <id>             print status events for one job until
//	                             it reaches a terminal state
//	clmon --workers              tail worker capability updates
//	clmon --wait-for <task-type> block until a worker with idle
//	                             capacity for the task type appears
//
// A --config YAML file overrides the built-in defaults (local broker,
// "inference" topic prefix). --timeout bounds --wait-for.
package main
