package otp

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an OTP engine failure so handlers can map it to an HTTP
// status without matching on message text.
type Kind int

const (
	KindInvalidIdentity Kind = iota
	KindIdentityNotFound
	KindDependencyUnavailable
	KindResendBlocked
	KindResendLimitExceeded
	KindDeliveryFailed
	KindNoActiveRequest
	KindExpired
	KindVerifyBlocked
	KindIncorrectCode
	KindVerifyLimitExceeded
)

func (k Kind) String() string {
	switch k {
	case KindInvalidIdentity:
		return "INVALID_IDENTITY"
	case KindIdentityNotFound:
		return "IDENTITY_NOT_FOUND"
	case KindDependencyUnavailable:
		return "DEPENDENCY_UNAVAILABLE"
	case KindResendBlocked:
		return "RESEND_BLOCKED"
	case KindResendLimitExceeded:
		return "RESEND_LIMIT_EXCEEDED"
	case KindDeliveryFailed:
		return "DELIVERY_FAILED"
	case KindNoActiveRequest:
		return "NO_ACTIVE_REQUEST"
	case KindExpired:
		return "EXPIRED"
	case KindVerifyBlocked:
		return "VERIFY_BLOCKED"
	case KindIncorrectCode:
		return "INCORRECT_CODE"
	case KindVerifyLimitExceeded:
		return "VERIFY_LIMIT_EXCEEDED"
	}
	return "UNKNOWN"
}

// Error is the failure type returned by Engine operations.
type Error struct {
	Kind    Kind
	Message string

	// Remaining is the number of verify attempts left. Set for KindIncorrectCode.
	Remaining int

	// BlockedFor is the lockout window applied to the identity. Set for the
	// blocked and limit-exceeded kinds.
	BlockedFor time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from an engine error. The second return is false
// when err did not originate from the engine.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
