// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events is the sweep progress bus the scheduler (C4) publishes
// on: sync-started, device-synced, sync-completed. Every Publish reaches
// in-process subscribers synchronously; if a NATS address is configured
// the same payload is additionally published on a NATS subject, the way
// the teacher's nats package fans events out to other services.
package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/punch-agent/punch-agent/pkg/log"
	"github.com/nats-io/nats.go"
)

// Handler receives the JSON-encoded payload published on subject.
type Handler func(subject string, payload []byte)

// Bus fans events out in-process and, optionally, over NATS.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	conn     *nats.Conn
}

// New constructs a Bus with no NATS backend. Call Connect to attach one.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Connect dials the configured NATS server. A zero-value Config (no
// Address) is not an error — the bus simply stays in-process-only, which
// is the expected mode for a single local agent with no cloud-side
// subscriber.
func (b *Bus) Connect(cfg Config) error {
	if cfg.Address == "" {
		log.Debugf("events: no NATS address configured, running in-process only")
		return nil
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("events: NATS disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("events: NATS reconnected to %s", nc.ConnectedUrl())
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return fmt.Errorf("events: NATS connect: %w", err)
	}

	b.mu.Lock()
	b.conn = nc
	b.mu.Unlock()

	log.Infof("events: connected to NATS at %s", cfg.Address)
	return nil
}

// Subscribe registers an in-process handler for subject, returning an
// unsubscribe function.
func (b *Bus) Subscribe(subject string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[subject] = append(b.handlers[subject], h)
	idx := len(b.handlers[subject]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.handlers[subject]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// Publish marshals event to JSON and delivers it to every in-process
// subscriber, then to NATS if connected. In-process delivery errors are
// impossible (handlers don't return errors); a NATS publish failure is
// logged, not returned, so a disconnected broker never blocks a sweep.
func (b *Bus) Publish(subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", subject, err)
	}

	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[subject]...)
	conn := b.conn
	b.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(subject, payload)
		}
	}

	if conn != nil {
		if err := conn.Publish(subject, payload); err != nil {
			log.Warnf("events: NATS publish to %s failed: %v", subject, err)
		}
	}
	return nil
}

// Close drains the NATS connection, if any.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
