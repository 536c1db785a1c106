// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

const defaultSyncLimit = 1000

// getAttendanceSync is GET /api/attendance/sync?since=<ISO>&limit=<u32>.
func (api *API) getAttendanceSync(rw http.ResponseWriter, r *http.Request) {
	limit := defaultSyncLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(rw, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(rw, http.StatusBadRequest, "since must be an ISO-8601 timestamp")
			return
		}
		since = t
	}

	punches, err := api.Store.ListUnsynced(since, limit)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to list unsynced punches")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(punches),
		"data":    punches,
	})
}

type markSyncedRequest struct {
	IDs []int64 `json:"ids"`
}

// postMarkSynced is POST /api/attendance/mark-synced.
func (api *API) postMarkSynced(rw http.ResponseWriter, r *http.Request) {
	var req markSyncedRequest
	if err := decode(r.Body, &req); err != nil || len(req.IDs) == 0 {
		writeError(rw, http.StatusBadRequest, "ids array is required")
		return
	}

	if err := api.Store.MarkSynced(req.IDs); err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to mark records synced")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"success": true,
		"message": "Marked " + strconv.Itoa(len(req.IDs)) + " records as synced",
	})
}
