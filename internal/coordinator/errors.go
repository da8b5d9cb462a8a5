package coordinator

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Send and Activate once the event loop has exited.
var ErrStopped = errors.New("coordinator stopped")

// SyncError describes a failed transfer, receive or lifecycle step.
//
// None of these reach the caller of Send: they become Failed states and are
// carried by notifications for display and logging.
type SyncError struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// ErrCodeEncodeFailure means the local snapshot could not be serialized.
	ErrCodeEncodeFailure ErrorCode = "ENCODE_FAILURE"

	// ErrCodeDecodeFailure means received bytes are not a record list.
	ErrCodeDecodeFailure ErrorCode = "DECODE_FAILURE"

	// ErrCodeTransportFailure means the session failed to deliver a payload.
	ErrCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"

	// ErrCodeReachabilityLost means the peer stopped being reachable.
	ErrCodeReachabilityLost ErrorCode = "REACHABILITY_LOST"

	// ErrCodeActivationFailure means the session failed to activate.
	ErrCodeActivationFailure ErrorCode = "ACTIVATION_FAILURE"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Cause is the short description recorded on a Failed state.
func (e *SyncError) Cause() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func newSyncError(code ErrorCode, msg string, err error) *SyncError {
	return &SyncError{Code: code, Message: msg, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsEncodeFailure reports whether err is a SyncError with ErrCodeEncodeFailure.
func IsEncodeFailure(err error) bool { return hasCode(err, ErrCodeEncodeFailure) }

// IsDecodeFailure reports whether err is a SyncError with ErrCodeDecodeFailure.
func IsDecodeFailure(err error) bool { return hasCode(err, ErrCodeDecodeFailure) }

// IsTransportFailure reports whether err is a SyncError with
// ErrCodeTransportFailure.
func IsTransportFailure(err error) bool { return hasCode(err, ErrCodeTransportFailure) }

// IsReachabilityLost reports whether err is a SyncError with
// ErrCodeReachabilityLost.
func IsReachabilityLost(err error) bool { return hasCode(err, ErrCodeReachabilityLost) }

// IsActivationFailure reports whether err is a SyncError with
// ErrCodeActivationFailure.
func IsActivationFailure(err error) bool { return hasCode(err, ErrCodeActivationFailure) }
