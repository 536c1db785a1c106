// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package events

// Config configures the optional NATS backend for the event bus. An empty
// Address means the bus runs in-process-only — every Publish still
// reaches local subscribers, just not a remote NATS deployment.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
}

const ConfigSchema = `{
	"type": "object",
	"description": "Configuration for the sweep event bus's optional NATS backend.",
	"properties": {
		"address":         {"type": "string"},
		"username":        {"type": "string"},
		"password":        {"type": "string"},
		"creds-file-path": {"type": "string"}
	}
}`

// Subjects used by the scheduler to report sweep progress.
const (
	SubjectSyncStarted   = "punch-agent.sync-started"
	SubjectDeviceSynced  = "punch-agent.device-synced"
	SubjectSyncCompleted = "punch-agent.sync-completed"
)
