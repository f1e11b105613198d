package protocol

import (
	"github.com/pkg/errors"
)

// ErrorCode is the wire representation of an error category.
type ErrorCode string

const (
	CodeInvalidPassword  ErrorCode = "INVALID_PASSWORD"
	CodeWalletLocked     ErrorCode = "WALLET_LOCKED"
	CodeAccountNotFound  ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeAddressNotFound  ErrorCode = "ADDRESS_NOT_FOUND"
	CodeUserRejected     ErrorCode = "USER_REJECTED"
	CodeNotConnected     ErrorCode = "NOT_CONNECTED"
	CodeInvalidPayload   ErrorCode = "INVALID_PAYLOAD"
	CodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"
	CodeReadinessTimeout ErrorCode = "READINESS_TIMEOUT"
	CodeRequestTimeout   ErrorCode = "REQUEST_TIMEOUT"
	CodeChannelClosed    ErrorCode = "CHANNEL_CLOSED"
	CodeWorkerCrashed    ErrorCode = "WORKER_CRASHED"
	CodeInternal         ErrorCode = "INTERNAL"
)

// Error is a typed protocol error. Two errors match with errors.Is when
// their codes are equal, so errors rebuilt from the wire compare equal to the
// sentinels below.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}

	return e.Message
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error) //nolint:errorlint // identity by code
	return ok && t.Code == e.Code
}

var (
	ErrInvalidPassword  = &Error{Code: CodeInvalidPassword, Message: "invalid password"}
	ErrWalletLocked     = &Error{Code: CodeWalletLocked, Message: "wallet is locked"}
	ErrAccountNotFound  = &Error{Code: CodeAccountNotFound, Message: "account not found"}
	ErrAddressNotFound  = &Error{Code: CodeAddressNotFound, Message: "address not found"}
	ErrUserRejected     = &Error{Code: CodeUserRejected, Message: "user rejected the request"}
	ErrNotConnected     = &Error{Code: CodeNotConnected, Message: "not connected"}
	ErrInvalidPayload   = &Error{Code: CodeInvalidPayload, Message: "invalid payload"}
	ErrChecksumMismatch = &Error{Code: CodeChecksumMismatch, Message: "checksum mismatch"}
	ErrReadinessTimeout = &Error{Code: CodeReadinessTimeout, Message: "frame readiness timed out"}
	ErrRequestTimeout   = &Error{Code: CodeRequestTimeout, Message: "request timed out"}
	ErrChannelClosed    = &Error{Code: CodeChannelClosed, Message: "channel closed"}
	ErrWorkerCrashed    = &Error{Code: CodeWorkerCrashed, Message: "worker crashed"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

// ToWire maps err onto a wire error. Errors outside the taxonomy become
// INTERNAL and keep their message.
func ToWire(err error) *Error {
	if err == nil {
		return nil
	}

	var pErr *Error
	if errors.As(err, &pErr) {
		return &Error{Code: pErr.Code, Message: err.Error()}
	}

	return &Error{Code: CodeInternal, Message: err.Error()}
}

// FromWire rebuilds an error received over a channel.
func FromWire(e *Error) error {
	if e == nil {
		return nil
	}

	return &Error{Code: e.Code, Message: e.Message}
}

// IsTransport reports whether err was caused by the transport rather than
// by the user or the wallet state. Callers may retry the whole operation.
func IsTransport(err error) bool {
	return errors.Is(err, ErrReadinessTimeout) ||
		errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrChannelClosed) ||
		errors.Is(err, ErrWorkerCrashed)
}
