package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stablevault/native/vault"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
}

// statusForKind maps engine failure kinds onto HTTP status codes.
func statusForKind(kind vault.Kind) int {
	switch kind {
	case vault.KindInvalidAmount, vault.KindInvalidBeneficiary, vault.KindInvalidParameter,
		vault.KindBelowMinimumInstalment, vault.KindAmountTooLow:
		return http.StatusBadRequest
	case vault.KindUnauthorized:
		return http.StatusForbidden
	case vault.KindRatioNotBelowThreshold, vault.KindInstalmentPeriodNotExceeded:
		return http.StatusConflict
	case vault.KindInsufficientBalance, vault.KindOverflow:
		return http.StatusUnprocessableEntity
	case vault.KindOracleUnavailable, vault.KindPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError renders an engine error with its kind.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := vault.KindOf(err)
	status := statusForKind(kind)
	message := err.Error()
	var engineErr *vault.Error
	if status == http.StatusInternalServerError {
		loggerFrom(r).Error("engine failure", "error", err)
		message = http.StatusText(status)
	} else if errors.As(err, &engineErr) && engineErr.Err != nil {
		message = engineErr.Err.Error()
	}
	writeError(w, r, status, message, kind.String())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message, kind string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Kind:      kind,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
