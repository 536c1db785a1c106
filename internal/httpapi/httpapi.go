// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi is the drain HTTP surface (C5): the narrow, API-key
// gated attendance-sync endpoints an upstream cloud drainer polls, plus
// thin CRUD/stats/log-listing wrappers over the store, mounted and
// middleware-wrapped the way the teacher's api.RestApi mounts its own
// routes onto a gorilla/mux router.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/punch-agent/punch-agent/internal/scheduler"
	"github.com/punch-agent/punch-agent/internal/store"
	"github.com/punch-agent/punch-agent/pkg/log"
)

// Version is the agent's release version, reported by /api/health.
const Version = "1.0.0"

// API holds the dependencies every handler needs.
type API struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
}

// NewRouter builds the full mux.Router: the unauthenticated health check,
// and, behind the API-key middleware, the drain endpoints and the thin
// admin wrappers.
func (api *API) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", api.health).Methods(http.MethodGet)

	r.Methods(http.MethodOptions).PathPrefix("/").HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	gated := r.PathPrefix("/api").Subrouter()
	gated.Use(api.apiKeyMiddleware)

	gated.HandleFunc("/attendance/sync", api.getAttendanceSync).Methods(http.MethodGet)
	gated.HandleFunc("/attendance/mark-synced", api.postMarkSynced).Methods(http.MethodPost)

	gated.HandleFunc("/devices", api.listDevices).Methods(http.MethodGet)
	gated.HandleFunc("/devices", api.createDevice).Methods(http.MethodPost)
	gated.HandleFunc("/devices/{id}", api.getDevice).Methods(http.MethodGet)
	gated.HandleFunc("/devices/{id}", api.updateDevice).Methods(http.MethodPut)
	gated.HandleFunc("/devices/{id}", api.deleteDevice).Methods(http.MethodDelete)

	gated.HandleFunc("/stats", api.getStats).Methods(http.MethodGet)
	gated.HandleFunc("/sync-logs", api.getSyncLogs).Methods(http.MethodGet)

	return r
}

// Wrap applies CORS, compression and panic recovery around r, the same
// middleware stack the teacher's server.go builds for its own router,
// configured per spec.md §4.5 (any origin, X-API-Key + Content-Type
// allowed, GET/POST/PUT/DELETE/OPTIONS).
func Wrap(r http.Handler) http.Handler {
	h := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"X-API-Key", "Content-Type"}),
	)(r)
	h = handlers.CompressHandler(h)
	h = handlers.RecoveryHandler()(h)
	return h
}

func (api *API) health(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		log.Errorf("httpapi: encode response: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}

func decode(r io.Reader, val any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}
