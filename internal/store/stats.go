// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"fmt"
	"time"
)

// Stats aggregates a snapshot of device and punch counts for GET /api/stats.
func (s *Store) Stats() (Stats, error) {
	var out Stats

	if err := s.DB.Get(&out.TotalDevices, `SELECT count(*) FROM devices`); err != nil {
		return Stats{}, fmt.Errorf("store: stats totalDevices: %w", err)
	}
	if err := s.DB.Get(&out.ActiveDevices, `SELECT count(*) FROM devices WHERE active = 1`); err != nil {
		return Stats{}, fmt.Errorf("store: stats activeDevices: %w", err)
	}
	if err := s.DB.Get(&out.TotalPunches, `SELECT count(*) FROM punches`); err != nil {
		return Stats{}, fmt.Errorf("store: stats totalPunches: %w", err)
	}
	if err := s.DB.Get(&out.UnsyncedCount, `SELECT count(*) FROM punches WHERE synced_to_cloud = 0`); err != nil {
		return Stats{}, fmt.Errorf("store: stats unsyncedCount: %w", err)
	}

	now := time.Now().UTC()
	todayStart := unixOf(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	if err := s.DB.Get(&out.TodayPunches, `SELECT count(*) FROM punches WHERE timestamp >= ?`, todayStart); err != nil {
		return Stats{}, fmt.Errorf("store: stats todayPunches: %w", err)
	}

	return out, nil
}
