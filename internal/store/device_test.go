// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetDevice(t *testing.T) {
	s := newTestStore(t)

	id := mustAddDevice(t, s, "lobby", 4370)
	d, err := s.GetDevice(id)
	require.NoError(t, err)
	assert.Equal(t, "lobby", d.Name)
	assert.Equal(t, 4370, d.Port)
	assert.True(t, d.Active)
}

func TestAddDeviceDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddDevice(Device{Name: "a", IP: "10.0.0.1", Port: 4370})
	require.NoError(t, err)

	_, err = s.AddDevice(Device{Name: "b", IP: "10.0.0.1", Port: 4370})
	require.ErrorIs(t, err, ErrDuplicateDevice)
}

func TestAddDeviceDefaultsPort(t *testing.T) {
	s := newTestStore(t)
	id, err := s.AddDevice(Device{Name: "no-port", IP: "10.0.0.2"})
	require.NoError(t, err)

	d, err := s.GetDevice(id)
	require.NoError(t, err)
	assert.Equal(t, 4370, d.Port)
}

func TestGetDeviceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDevice(999)
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestListDevicesActiveOnly(t *testing.T) {
	s := newTestStore(t)
	mustAddDevice(t, s, "active-one", 4370)
	id2 := mustAddDevice(t, s, "inactive-one", 4371)

	inactive := false
	require.NoError(t, s.UpdateDevice(id2, DeviceUpdate{Active: &inactive}))

	all, err := s.ListDevices(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := s.ListDevices(true)
	require.NoError(t, err)
	assert.Len(t, activeOnly, 1)
	assert.Equal(t, "active-one", activeOnly[0].Name)
}

func TestUpdateDeviceUniquenessReenforced(t *testing.T) {
	s := newTestStore(t)
	mustAddDevice(t, s, "one", 4370)
	id2 := mustAddDevice(t, s, "two", 4371)

	newPort := 4370
	err := s.UpdateDevice(id2, DeviceUpdate{Port: &newPort})
	require.ErrorIs(t, err, ErrDuplicateDevice)
}

func TestDeleteDevice(t *testing.T) {
	s := newTestStore(t)
	id := mustAddDevice(t, s, "temp", 4370)

	require.NoError(t, s.DeleteDevice(id))
	_, err := s.GetDevice(id)
	require.ErrorIs(t, err, ErrDeviceNotFound)

	err = s.DeleteDevice(id)
	require.ErrorIs(t, err, ErrDeviceNotFound)
}
