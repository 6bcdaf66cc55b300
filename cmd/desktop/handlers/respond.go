// Package handlers provides REST API handlers for the sync core.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// statusFor maps an error code to an HTTP status.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation, apperrors.ErrRecordInvalid:
		return http.StatusBadRequest
	case apperrors.ErrNotFound, apperrors.ErrRecordNotFound, apperrors.ErrSyncConflictNotFound:
		return http.StatusNotFound
	case apperrors.ErrSyncAuthFailed:
		return http.StatusUnauthorized
	case apperrors.ErrSyncOffline, apperrors.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrSyncFailed, apperrors.ErrSyncRemoteFailed, apperrors.ErrSyncQueueReplay:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	var body ErrorBody
	body.Error.Code = string(code)
	body.Error.Message = apperrors.MessageOf(err)
	writeJSON(w, statusFor(code), body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, apperrors.New(apperrors.ErrInvalid, msg))
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
