// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/punch-agent/punch-agent/pkg/log"
)

// apiKeyMiddleware gates every /api/* route except /api/health on the
// X-API-Key header, per spec.md §4.5.
func (api *API) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if got == "" {
			writeError(rw, http.StatusUnauthorized, "API key required in X-API-Key header")
			return
		}

		configured, err := api.Store.GetSettingString("cloudApiKey")
		if err != nil {
			log.Errorf("httpapi: read cloudApiKey setting: %v", err)
			writeError(rw, http.StatusInternalServerError, "internal error")
			return
		}
		if configured == "" {
			writeError(rw, http.StatusServiceUnavailable, "API key not configured on this agent")
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(configured)) != 1 {
			writeError(rw, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(rw, r)
	})
}
