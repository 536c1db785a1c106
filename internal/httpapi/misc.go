// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"net/http"
	"strconv"
)

// getStats is GET /api/stats.
func (api *API) getStats(rw http.ResponseWriter, r *http.Request) {
	stats, err := api.Store.Stats()
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": stats})
}

// getSyncLogs is GET /api/sync-logs?deviceId=<id>&limit=<n>.
func (api *API) getSyncLogs(rw http.ResponseWriter, r *http.Request) {
	var deviceID *int64
	if raw := r.URL.Query().Get("deviceId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(rw, http.StatusBadRequest, "deviceId must be an integer")
			return
		}
		deviceID = &id
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(rw, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := api.Store.ListSyncLogs(deviceID, limit)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to list sync logs")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": logs})
}
