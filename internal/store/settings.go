// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/punch-agent/punch-agent/internal/config"
)

var ErrUnknownSetting = errors.New("store: unknown setting key")

// settingSchemas enumerates the runtime-mutable settings SetSetting
// accepts, each guarded by its own JSON Schema fragment so a bad value
// can't wedge the scheduler or the drain surface.
var settingSchemas = map[string]string{
	"apiPort":      `{"type": "integer", "minimum": 1, "maximum": 65535}`,
	"pollInterval": `{"type": "integer", "minimum": 1}`,
	"cloudApiKey":  `{"type": "string", "minLength": 1}`,
}

// GetSetting returns the raw stored value for key, or "" if unset.
func (s *Store) GetSetting(key string) (string, error) {
	if _, ok := settingSchemas[key]; !ok {
		return "", ErrUnknownSetting
	}

	var value string
	err := s.DB.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting validates value against key's schema and upserts it.
func (s *Store) SetSetting(key string, value json.RawMessage) error {
	schema, ok := settingSchemas[key]
	if !ok {
		return ErrUnknownSetting
	}
	if err := config.Validate(schema, value); err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw := string(value)
	_, err := s.DB.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, raw,
	)
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	return nil
}

// GetSettingString decodes a string-typed setting's raw JSON value,
// returning "" if unset.
func (s *Store) GetSettingString(key string) (string, error) {
	raw, err := s.GetSetting(key)
	if err != nil || raw == "" {
		return "", err
	}
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", fmt.Errorf("store: decode setting %s: %w", key, err)
	}
	return v, nil
}

// GetSettingInt decodes an integer-typed setting's raw JSON value,
// returning ok=false if unset.
func (s *Store) GetSettingInt(key string) (int, bool, error) {
	raw, err := s.GetSetting(key)
	if err != nil || raw == "" {
		return 0, false, err
	}
	var v int
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return 0, false, fmt.Errorf("store: decode setting %s: %w", key, err)
	}
	return v, true, nil
}

// ListSettings returns every known setting key alongside its current
// stored value ("" if unset).
func (s *Store) ListSettings() (map[string]string, error) {
	out := make(map[string]string, len(settingSchemas))
	for key := range settingSchemas {
		value, err := s.GetSetting(key)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}
