// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/punch-agent/punch-agent/internal/store"
)

// listDevices is GET /api/devices.
func (api *API) listDevices(rw http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	devices, err := api.Store.ListDevices(activeOnly)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to list devices")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": devices})
}

type createDeviceRequest struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Location string `json:"location"`
	Active   *bool  `json:"active"`
}

// createDevice is POST /api/devices.
func (api *API) createDevice(rw http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decode(r.Body, &req); err != nil || req.Name == "" || req.IP == "" {
		writeError(rw, http.StatusBadRequest, "name and ip are required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	id, err := api.Store.AddDevice(store.Device{
		Name: req.Name, IP: req.IP, Port: req.Port, Location: req.Location, Active: active,
	})
	if errors.Is(err, store.ErrDuplicateDevice) {
		writeError(rw, http.StatusConflict, "a device with this ip:port is already registered")
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to create device")
		return
	}

	writeJSON(rw, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func parseDeviceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// getDevice is GET /api/devices/{id}.
func (api *API) getDevice(rw http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "invalid device id")
		return
	}

	d, err := api.Store.GetDevice(id)
	if errors.Is(err, store.ErrDeviceNotFound) {
		writeError(rw, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "failed to get device")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": d})
}

// updateDevice is PUT /api/devices/{id}.
func (api *API) updateDevice(rw http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "invalid device id")
		return
	}

	var upd store.DeviceUpdate
	if err := decode(r.Body, &upd); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := api.Store.UpdateDevice(id, upd); err != nil {
		switch {
		case errors.Is(err, store.ErrDeviceNotFound):
			writeError(rw, http.StatusNotFound, "device not found")
		case errors.Is(err, store.ErrDuplicateDevice):
			writeError(rw, http.StatusConflict, "a device with this ip:port is already registered")
		default:
			writeError(rw, http.StatusInternalServerError, "failed to update device")
		}
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{"success": true})
}

// deleteDevice is DELETE /api/devices/{id}.
func (api *API) deleteDevice(rw http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := api.Store.DeleteDevice(id); err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			writeError(rw, http.StatusNotFound, "device not found")
			return
		}
		writeError(rw, http.StatusInternalServerError, "failed to delete device")
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{"success": true})
}
