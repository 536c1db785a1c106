// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePunch(deviceID int64, userID string, when time.Time) Punch {
	return Punch{
		DeviceID:  deviceID,
		OderID:    1,
		UserID:    userID,
		Timestamp: when,
		Status:    0,
		Punch:     0,
	}
}

func TestAddPunchDeduplicatesByNaturalKey(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)
	when := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	n, err := s.AddPunch(samplePunch(devID, "42", when))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.AddPunch(samplePunch(devID, "42", when))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "duplicate natural key must be silently ignored")

	count, err := s.CountPunches(PunchFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestAddPunchRejectsEmptyUserID(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)

	_, err := s.AddPunch(samplePunch(devID, "", time.Now()))
	require.Error(t, err)
}

func TestAddPunchesBulkAtomicAndDeduping(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	records := []Punch{
		samplePunch(devID, "1", base),
		samplePunch(devID, "2", base.Add(time.Minute)),
		samplePunch(devID, "1", base), // duplicate of the first
	}

	n, err := s.AddPunchesBulk(records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.CountPunches(PunchFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestAddPunchesBulkDropsInvalidRecordsButKeepsRest(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	records := []Punch{
		samplePunch(devID, "1", base),
		samplePunch(devID, "", base.Add(time.Minute)), // invalid: empty userId
	}

	n, err := s.AddPunchesBulk(records)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListPunchesFiltersAndOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	_, err := s.AddPunchesBulk([]Punch{
		samplePunch(devID, "1", base),
		samplePunch(devID, "2", base.Add(time.Hour)),
		samplePunch(devID, "1", base.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	all, err := s.ListPunches(PunchFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp))
	assert.True(t, all[1].Timestamp.After(all[2].Timestamp))

	userID := "1"
	byUser, err := s.ListPunches(PunchFilter{UserID: &userID}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	_, err := s.AddPunchesBulk([]Punch{
		samplePunch(devID, "1", base),
		samplePunch(devID, "2", base.Add(time.Minute)),
	})
	require.NoError(t, err)

	unsynced, err := s.ListUnsynced(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)

	ids := []int64{unsynced[0].ID, unsynced[1].ID}
	require.NoError(t, s.MarkSynced(ids))
	require.NoError(t, s.MarkSynced(ids)) // repeat call, must not error

	stillUnsynced, err := s.ListUnsynced(time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, stillUnsynced)
}

func TestMarkSyncedIgnoresUnknownIDs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MarkSynced([]int64{12345}))
}

func TestClearPunches(t *testing.T) {
	s := newTestStore(t)
	devID := mustAddDevice(t, s, "dev", 4370)
	_, err := s.AddPunch(samplePunch(devID, "1", time.Now()))
	require.NoError(t, err)

	n, err := s.ClearPunches()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, err := s.CountPunches(PunchFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
