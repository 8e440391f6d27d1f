// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the compute client.
//
// Configuration is loaded from a single YAML file passed explicitly
// (--config flag or an embedder-supplied path). There are no fallbacks
// and no automatic discovery: deterministic, auditable configuration
// with no hidden overrides. Every field has a working default, so a
// missing file is not an error for callers that use Default directly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the monitoring subsystem.
type Config struct {
	// Broker configures the MQTT broker connection.
	Broker BrokerConfig `yaml:"broker"`

	// Monitor configures subscription and wait behavior.
	Monitor MonitorConfig `yaml:"monitor"`
}

// BrokerConfig configures the MQTT broker connection.
type BrokerConfig struct {
	// Host is the broker hostname. Default: localhost.
	Host string `yaml:"host"`

	// Port is the broker TCP port. Default: 1883.
	Port int `yaml:"port"`

	// ClientID identifies this client to the broker. When empty, the
	// transport generates a random one, which is correct for most
	// deployments — fixed IDs cause broker-side session takeover when
	// two processes share one.
	ClientID string `yaml:"client_id"`

	// ConnectTimeout bounds the initial connect, including retries.
	// Default: 5s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MonitorConfig configures subscription and wait behavior.
type MonitorConfig struct {
	// TopicPrefix is the leading segment of all job and worker topics.
	// Default: inference.
	TopicPrefix string `yaml:"topic_prefix"`

	// WorkerWaitTimeout is the default deadline for WaitForCapability
	// when the caller passes none. Default: 30s.
	WorkerWaitTimeout time.Duration `yaml:"worker_wait_timeout"`

	// StaleWorkerTTL evicts capability records not refreshed within
	// this window, covering lost disconnect signals. Zero disables
	// eviction (tombstones only). Default: 90s.
	StaleWorkerTTL time.Duration `yaml:"stale_worker_ttl"`
}

// Default returns a Config with development defaults: a local broker
// and the service's standard topic prefix.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Host:           "localhost",
			Port:           1883,
			ConnectTimeout: 5 * time.Second,
		},
		Monitor: MonitorConfig{
			TopicPrefix:       "inference",
			WorkerWaitTimeout: 30 * time.Second,
			StaleWorkerTTL:    90 * time.Second,
		},
	}
}

// LoadFile loads configuration from the given YAML file. Fields absent
// from the file keep their Default values.
func LoadFile(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return config, nil
}

// Validate checks field ranges. Called by LoadFile; embedders that
// build a Config programmatically should call it themselves.
func (c Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host must not be empty")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port %d out of range", c.Broker.Port)
	}
	if c.Broker.ConnectTimeout <= 0 {
		return fmt.Errorf("broker.connect_timeout must be positive")
	}
	if c.Monitor.TopicPrefix == "" {
		return fmt.Errorf("monitor.topic_prefix must not be empty")
	}
	if c.Monitor.WorkerWaitTimeout <= 0 {
		return fmt.Errorf("monitor.worker_wait_timeout must be positive")
	}
	if c.Monitor.StaleWorkerTTL < 0 {
		return fmt.Errorf("monitor.stale_worker_ttl must not be negative")
	}
	return nil
}

// BrokerURL returns the broker address in the tcp://host:port form the
// transport expects.
func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker.Host, c.Broker.Port)
}
