// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/punch-agent/punch-agent/pkg/log"
)

var (
	ErrDeviceNotFound  = errors.New("store: device not found")
	ErrDuplicateDevice = errors.New("store: device ip:port already registered")
)

// AddDevice inserts a new device. (ip, port) must be unique.
func (s *Store) AddDevice(d Device) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := unixOf(time.Now())
	if d.Port == 0 {
		d.Port = 4370
	}

	res, err := s.DB.Exec(
		`INSERT INTO devices (name, ip, port, location, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.IP, d.Port, d.Location, d.Active, now, now,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, ErrDuplicateDevice
		}
		log.Errorf("store: AddDevice: %v", err)
		return 0, fmt.Errorf("store: add device: %w", err)
	}
	return res.LastInsertId()
}

// GetDevice fetches one device by id.
func (s *Store) GetDevice(id int64) (Device, error) {
	var d Device
	err := s.DB.Get(&d, `SELECT * FROM devices WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("store: get device %d: %w", id, err)
	}
	d.populateTimes()
	return d, nil
}

// ListDevices returns all devices, optionally filtered to active ones
// only, ordered by name — the order the scheduler sweeps in.
func (s *Store) ListDevices(activeOnly bool) ([]Device, error) {
	query := `SELECT * FROM devices`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name ASC`

	devices := []Device{}
	if err := s.DB.Select(&devices, query); err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	for i := range devices {
		devices[i].populateTimes()
	}
	return devices, nil
}

// DeviceUpdate carries the optional fields UpdateDevice may change.
type DeviceUpdate struct {
	Name     *string
	IP       *string
	Port     *int
	Location *string
	Active   *bool
}

// UpdateDevice applies a partial update, re-checking (ip, port)
// uniqueness if either changes.
func (s *Store) UpdateDevice(id int64, upd DeviceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.GetDevice(id)
	if err != nil {
		return err
	}

	if upd.Name != nil {
		existing.Name = *upd.Name
	}
	if upd.IP != nil {
		existing.IP = *upd.IP
	}
	if upd.Port != nil {
		existing.Port = *upd.Port
	}
	if upd.Location != nil {
		existing.Location = *upd.Location
	}
	if upd.Active != nil {
		existing.Active = *upd.Active
	}

	_, err = s.DB.Exec(
		`UPDATE devices SET name=?, ip=?, port=?, location=?, active=?, updated_at=? WHERE id=?`,
		existing.Name, existing.IP, existing.Port, existing.Location, existing.Active,
		unixOf(time.Now()), id,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrDuplicateDevice
		}
		return fmt.Errorf("store: update device %d: %w", id, err)
	}
	return nil
}

// StampLastSync records the most recent successful sweep time for a
// device; called by the scheduler after each device's sync completes.
func (s *Store) StampLastSync(id int64, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.DB.Exec(`UPDATE devices SET last_sync=?, updated_at=? WHERE id=?`,
		unixOf(when), unixOf(time.Now()), id)
	if err != nil {
		return fmt.Errorf("store: stamp last_sync for device %d: %w", id, err)
	}
	return nil
}

// DeleteDevice removes a device. Callers are responsible for ensuring no
// live session references it, per spec.md's device lifecycle invariant.
func (s *Store) DeleteDevice(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.DB.Exec(`DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete device %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete device %d: %w", id, err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
