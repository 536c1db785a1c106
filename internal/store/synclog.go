// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"fmt"
	"time"
)

// AddSyncLog records one sweep outcome for a device and trims the table
// to the most recent syncLogRetention rows, so the audit trail can't grow
// unbounded over the agent's lifetime.
func (s *Store) AddSyncLog(l SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.DB.Exec(
		`INSERT INTO sync_logs (device_id, type, count, status, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.DeviceID, l.Type, l.Count, l.Status, l.Message, unixOf(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: add sync log: %w", err)
	}

	_, err = s.DB.Exec(
		`DELETE FROM sync_logs WHERE id NOT IN (
			SELECT id FROM sync_logs ORDER BY id DESC LIMIT ?
		)`,
		syncLogRetention,
	)
	if err != nil {
		return fmt.Errorf("store: trim sync logs: %w", err)
	}
	return nil
}

// ListSyncLogs returns the most recent logs, newest first, optionally
// restricted to one device. limit<=0 returns up to syncLogRetention rows.
func (s *Store) ListSyncLogs(deviceID *int64, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = syncLogRetention
	}

	logs := []SyncLog{}
	var err error
	if deviceID != nil {
		err = s.DB.Select(&logs,
			`SELECT * FROM sync_logs WHERE device_id = ? ORDER BY id DESC LIMIT ?`,
			*deviceID, limit)
	} else {
		err = s.DB.Select(&logs,
			`SELECT * FROM sync_logs ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list sync logs: %w", err)
	}
	for i := range logs {
		logs[i].populateTimes()
	}
	return logs, nil
}
