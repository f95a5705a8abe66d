package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apptly/apptly/internal/otp"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// RemainingAttempts is set on incorrect-code responses so the client can
	// show how many tries are left.
	RemainingAttempts *int `json:"remaining_attempts,omitempty"`

	// RetryAfterSeconds is set on lockout responses with the length of the
	// block window.
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondWithOTPError maps an OTP engine failure onto an HTTP status and a
// machine-checkable error code.
func respondWithOTPError(w http.ResponseWriter, err error) {
	var engineErr *otp.Error
	if !errors.As(err, &engineErr) {
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	kind := engineErr.Kind

	status := http.StatusInternalServerError
	switch kind {
	case otp.KindInvalidIdentity, otp.KindNoActiveRequest, otp.KindExpired:
		status = http.StatusBadRequest
	case otp.KindIdentityNotFound:
		status = http.StatusNotFound
	case otp.KindResendBlocked, otp.KindResendLimitExceeded, otp.KindVerifyBlocked, otp.KindVerifyLimitExceeded:
		status = http.StatusForbidden
	case otp.KindIncorrectCode:
		status = http.StatusUnauthorized
	case otp.KindDeliveryFailed:
		status = http.StatusBadGateway
	case otp.KindDependencyUnavailable:
		status = http.StatusInternalServerError
	}

	detail := ErrorDetail{
		Code:    kind.String(),
		Message: engineErr.Message,
	}
	if kind == otp.KindIncorrectCode {
		remaining := engineErr.Remaining
		detail.RemainingAttempts = &remaining
	}
	if engineErr.BlockedFor > 0 {
		detail.RetryAfterSeconds = int64(engineErr.BlockedFor.Seconds())
	}

	respondWithJSON(w, status, ErrorResponse{Error: detail})
}
