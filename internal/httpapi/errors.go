// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/seismonet/quakewatch/internal/errs"
)

// errorResponse is the JSON body every non-2xx response carries, the
// {error, message, request_id} shape spec §7 requires.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// statusFor maps the closed error taxonomy onto HTTP status codes per spec §7.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.Validation, errs.SchemaMismatch:
		return http.StatusBadRequest
	case errs.RateLimited:
		return http.StatusTooManyRequests
	case errs.Unavailable, errs.DeadlineExceeded:
		return http.StatusServiceUnavailable
	case errs.Corruption, errs.Internal:
		return http.StatusInternalServerError
	case errs.Transient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if kind == errs.RateLimited {
		w.Header().Set("Retry-After", "1")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:     kind.String(),
		Message:   err.Error(),
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
