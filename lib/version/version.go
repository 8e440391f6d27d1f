// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version string stamped into
// binaries at link time via -ldflags.
package version

// version is overridden at build time:
//
//	go build -ldflags "-X github.com/curatelab/compute-client-go/lib/version.version=v1.2.3"
var version = "dev"

// Info returns the version string for --version output.
func Info() string { return version }
