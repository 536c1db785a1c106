// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh migrated sqlite3 database under t.TempDir(),
// closing it automatically at test cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustAddDevice(t *testing.T, s *Store, name string, port int) int64 {
	t.Helper()
	id, err := s.AddDevice(Device{Name: name, IP: "10.0.0.1", Port: port, Active: true})
	require.NoError(t, err)
	return id
}
