// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punch-agent/punch-agent/internal/httpapi"
	"github.com/punch-agent/punch-agent/internal/store"
)

func setup(t *testing.T) (*httpapi.API, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "httpapi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &httpapi.API{Store: st}, st
}

func doRequest(router http.Handler, method, target string, body []byte, apiKey string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	api, _ := setup(t)
	rec := doRequest(api.NewRouter(), http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAttendanceSyncRequiresAPIKey(t *testing.T) {
	api, _ := setup(t)
	rec := doRequest(api.NewRouter(), http.MethodGet, "/api/attendance/sync", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAttendanceSyncRejectsWhenKeyUnconfigured(t *testing.T) {
	api, _ := setup(t)
	rec := doRequest(api.NewRouter(), http.MethodGet, "/api/attendance/sync", nil, "anything")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAttendanceSyncRejectsWrongKey(t *testing.T) {
	api, st := setup(t)
	require.NoError(t, st.SetSetting("cloudApiKey", []byte(`"correct-key"`)))

	rec := doRequest(api.NewRouter(), http.MethodGet, "/api/attendance/sync", nil, "wrong-key")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttendanceSyncReturnsUnsyncedPunches(t *testing.T) {
	api, st := setup(t)
	require.NoError(t, st.SetSetting("cloudApiKey", []byte(`"correct-key"`)))

	devID, err := st.AddDevice(store.Device{Name: "dev", IP: "10.0.0.1", Port: 4370})
	require.NoError(t, err)
	_, err = st.AddPunch(store.Punch{DeviceID: devID, UserID: "7", Timestamp: time.Now()})
	require.NoError(t, err)

	rec := doRequest(api.NewRouter(), http.MethodGet, "/api/attendance/sync", nil, "correct-key")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["count"])
}

func TestMarkSyncedRejectsEmptyIDs(t *testing.T) {
	api, st := setup(t)
	require.NoError(t, st.SetSetting("cloudApiKey", []byte(`"correct-key"`)))

	rec := doRequest(api.NewRouter(), http.MethodPost, "/api/attendance/mark-synced", []byte(`{"ids":[]}`), "correct-key")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkSyncedFlipsFlagAndIsIdempotent(t *testing.T) {
	api, st := setup(t)
	require.NoError(t, st.SetSetting("cloudApiKey", []byte(`"correct-key"`)))

	devID, err := st.AddDevice(store.Device{Name: "dev", IP: "10.0.0.1", Port: 4370})
	require.NoError(t, err)
	n, err := st.AddPunch(store.Punch{DeviceID: devID, UserID: "7", Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	unsynced, err := st.ListUnsynced(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	id := unsynced[0].ID

	body, _ := json.Marshal(map[string]any{"ids": []int64{id}})
	rec := doRequest(api.NewRouter(), http.MethodPost, "/api/attendance/mark-synced", body, "correct-key")
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := doRequest(api.NewRouter(), http.MethodPost, "/api/attendance/mark-synced", body, "correct-key")
	assert.Equal(t, http.StatusOK, rec2.Code)

	remaining, err := st.ListUnsynced(time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDeviceCRUD(t *testing.T) {
	api, st := setup(t)
	require.NoError(t, st.SetSetting("cloudApiKey", []byte(`"correct-key"`)))
	router := api.NewRouter()

	createBody, _ := json.Marshal(map[string]any{"name": "lobby", "ip": "10.0.0.9", "port": 4370})
	rec := doRequest(router, http.MethodPost, "/api/devices", createBody, "correct-key")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := int64(created["id"].(float64))

	rec = doRequest(router, http.MethodGet, "/api/devices", nil, "correct-key")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodDelete, devicePath(id), nil, "correct-key")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, devicePath(id), nil, "correct-key")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func devicePath(id int64) string {
	return "/api/devices/" + strconv.FormatInt(id, 10)
}
