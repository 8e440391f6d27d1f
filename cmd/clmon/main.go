// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/curatelab/compute-client-go/lib/config"
	"github.com/curatelab/compute-client-go/lib/version"
	"github.com/curatelab/compute-client-go/monitor"
	"github.com/curatelab/compute-client-go/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clmon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	jobID := flag.String("job", "", "job id to follow until it completes or fails")
	workers := flag.Bool("workers", false, "tail worker capability updates")
	waitFor := flag.String("wait-for", "", "block until a worker with idle capacity for this task type appears")
	timeout := flag.Duration("timeout", 0, "deadline for --wait-for (default: configured worker wait timeout)")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	verbose := flag.Bool("verbose", false, "log at debug level")
	showVersion := flag.Bool("version", false, "print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("clmon %s\n", version.Info())
		return nil
	}

	modes := 0
	for _, selected := range []bool{*jobID != "", *workers, *waitFor != ""} {
		if selected {
			modes++
		}
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of --job, --workers, or --wait-for is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := transport.NewMQTT(transport.MQTTConfig{
		BrokerURL:      cfg.BrokerURL(),
		ClientID:       cfg.Broker.ClientID,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	staleTTL := cfg.Monitor.StaleWorkerTTL
	if staleTTL == 0 {
		staleTTL = -1
	}
	mon, err := monitor.New(monitor.Config{
		Conn:              conn,
		Logger:            logger,
		TopicPrefix:       cfg.Monitor.TopicPrefix,
		WorkerWaitTimeout: cfg.Monitor.WorkerWaitTimeout,
		StaleWorkerTTL:    staleTTL,
	})
	if err != nil {
		return err
	}
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.BrokerURL(), err)
	}
	defer mon.Close()

	switch {
	case *jobID != "":
		return followJob(ctx, mon, *jobID)
	case *workers:
		return tailWorkers(ctx, mon)
	default:
		return waitForCapability(ctx, mon, *waitFor, *timeout)
	}
}

// followJob prints every status event for one job and exits when the
// job reaches a terminal state.
func followJob(ctx context.Context, mon *monitor.Monitor, jobID string) error {
	done := make(chan monitor.JobStatusEvent, 1)
	id, err := mon.SubscribeJobUpdates(jobID, monitor.JobCallbacks{
		OnProgress: printJobEvent,
		OnComplete: func(event monitor.JobStatusEvent) {
			select {
			case done <- event:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer mon.Unsubscribe(id)

	select {
	case event := <-done:
		if event.Status == monitor.StatusFailed {
			return fmt.Errorf("job %s failed: %s", jobID, event.ErrorMessage)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

func printJobEvent(event monitor.JobStatusEvent) {
	line := fmt.Sprintf("%s  job=%s status=%s progress=%d%%",
		time.Now().Format(time.RFC3339), event.JobID, event.Status, event.Progress)
	if event.ErrorMessage != "" {
		line += fmt.Sprintf(" error=%q", event.ErrorMessage)
	}
	fmt.Println(line)
}

// tailWorkers prints the current capability cache once connected, then
// one line per capability change until interrupted.
func tailWorkers(ctx context.Context, mon *monitor.Monitor) error {
	mon.SubscribeWorkerUpdates(func(workerID string, capability *monitor.WorkerCapability) {
		if capability == nil {
			fmt.Printf("%s  worker=%s gone\n", time.Now().Format(time.RFC3339), workerID)
			return
		}
		fmt.Printf("%s  worker=%s idle=%d capabilities=%s\n",
			time.Now().Format(time.RFC3339), workerID,
			capability.IdleCount, strings.Join(capability.Capabilities, ","))
	})

	<-ctx.Done()
	return nil
}

// waitForCapability blocks until capacity for the task type appears or
// the deadline passes. On timeout the known capacity is printed so the
// operator can see what the fleet does offer.
func waitForCapability(ctx context.Context, mon *monitor.Monitor, taskType string, timeout time.Duration) error {
	err := mon.WaitForCapability(ctx, taskType, timeout)
	if err == nil {
		fmt.Printf("capacity available for %s\n", taskType)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}

	var unavailable *monitor.WorkerUnavailableError
	if errors.As(err, &unavailable) {
		if len(unavailable.Available) == 0 {
			fmt.Fprintln(os.Stderr, "no workers connected")
		} else {
			types := make([]string, 0, len(unavailable.Available))
			for available := range unavailable.Available {
				types = append(types, available)
			}
			sort.Strings(types)
			fmt.Fprintln(os.Stderr, "available capacity:")
			for _, available := range types {
				fmt.Fprintf(os.Stderr, "  %s: %d idle\n", available, unavailable.Available[available])
			}
		}
	}
	return err
}
