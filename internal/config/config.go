// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the agent's static process configuration: where to
// listen, where the database lives, how verbose to log. This is distinct
// from the runtime Settings (apiPort/pollInterval/cloudApiKey) kept in
// the store — those are mutable at runtime and validated per-key; this
// file is read once at startup.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ProgramConfig is the top-level config.json shape.
type ProgramConfig struct {
	Addr     string `json:"addr"`
	DBDriver string `json:"dbDriver"`
	DB       string `json:"db"`
	LogLevel string `json:"logLevel"`

	// NatsAddress, if non-empty, is used by pkg/events to also publish
	// sweep events on a NATS subject in addition to the always-on
	// in-process fan-out.
	NatsAddress string `json:"natsAddress"`

	CommandTimeout time.Duration `json:"-"`
	ConnectTimeout time.Duration `json:"-"`

	CommandTimeoutMs int `json:"commandTimeoutMs"`
	ConnectTimeoutMs int `json:"connectTimeoutMs"`
}

var Keys = ProgramConfig{
	Addr:             ":3000",
	DBDriver:         "sqlite3",
	DB:               "./var/punch-agent.db",
	LogLevel:         "info",
	CommandTimeoutMs: 5000,
	ConnectTimeoutMs: 10000,
}

const schemaDoc = `{
	"type": "object",
	"properties": {
		"addr":             {"type": "string"},
		"dbDriver":         {"type": "string", "enum": ["sqlite3"]},
		"db":               {"type": "string"},
		"logLevel":         {"type": "string", "enum": ["debug", "info", "notice", "warn", "err", "fatal", "crit"]},
		"natsAddress":      {"type": "string"},
		"commandTimeoutMs": {"type": "integer", "minimum": 1},
		"connectTimeoutMs": {"type": "integer", "minimum": 1}
	}
}`

// Init reads and validates flagConfigFile into Keys. A missing file is
// not an error — the defaults above apply. An env: prefix on db means
// read the DSN from that environment variable instead, the same
// convention the teacher's main.go applies to its DB config key.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			Keys.finalize()
			return nil
		}
		return fmt.Errorf("config: read %s: %w", flagConfigFile, err)
	}

	if err := Validate(schemaDoc, raw); err != nil {
		return fmt.Errorf("config: %s: %w", flagConfigFile, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decode %s: %w", flagConfigFile, err)
	}

	Keys.finalize()
	return nil
}

func (k *ProgramConfig) finalize() {
	if strings.HasPrefix(k.DB, "env:") {
		k.DB = os.Getenv(strings.TrimPrefix(k.DB, "env:"))
	}
	k.CommandTimeout = time.Duration(k.CommandTimeoutMs) * time.Millisecond
	k.ConnectTimeout = time.Duration(k.ConnectTimeoutMs) * time.Millisecond
}
