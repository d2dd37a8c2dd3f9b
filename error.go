// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"errors"
	"fmt"
)

// Error codes surfaced as the revert reason of a failed send or relay.
const (
	CodeUnauthorized int32 = iota + 1
	CodeDuplicateMessage
	CodeUnknownMessage
	CodeMessageExpired
	CodeAlreadyRelayed
	CodeInsufficientAttachedValue
	CodeFeeBelowMinimum
	CodeInvalidFee
	CodeInvalidTarget
	CodeInvalidMessageType
	CodeGasLimitExceeded
	CodeInvalidProof
	CodeUnknownRoot
	CodeVerificationTimeout
)

var (
	ErrUnauthorized              = &Error{Code: CodeUnauthorized, Message: "Unauthorized"}
	ErrDuplicateMessage          = &Error{Code: CodeDuplicateMessage, Message: "DuplicateMessage"}
	ErrUnknownMessage            = &Error{Code: CodeUnknownMessage, Message: "UnknownMessage"}
	ErrMessageExpired            = &Error{Code: CodeMessageExpired, Message: "MessageExpired"}
	ErrAlreadyRelayed            = &Error{Code: CodeAlreadyRelayed, Message: "AlreadyRelayed"}
	ErrInsufficientAttachedValue = &Error{Code: CodeInsufficientAttachedValue, Message: "InsufficientAttachedValue"}
	ErrFeeBelowMinimum           = &Error{Code: CodeFeeBelowMinimum, Message: "FeeBelowMinimum"}
	ErrInvalidFee                = &Error{Code: CodeInvalidFee, Message: "InvalidFee"}
	ErrInvalidTarget             = &Error{Code: CodeInvalidTarget, Message: "InvalidTarget"}
	ErrInvalidMessageType        = &Error{Code: CodeInvalidMessageType, Message: "InvalidMessageType"}
	ErrGasLimitExceeded          = &Error{Code: CodeGasLimitExceeded, Message: "GasLimitExceeded"}
	ErrInvalidProof              = &Error{Code: CodeInvalidProof, Message: "InvalidProof"}
	ErrUnknownRoot               = &Error{Code: CodeUnknownRoot, Message: "UnknownRoot"}
	ErrVerificationTimeout       = &Error{Code: CodeVerificationTimeout, Message: "VerificationTimeout"}
)

// Error is a protocol error. Message holds the error kind and doubles as the
// revert reason reported to callers.
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("messenger error %d: %s", e.Code, e.Message)
}

// Reason returns the error kind carried by err, or "Unknown" if err does not
// wrap an *Error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Unknown"
}

// IsRetryable reports whether a failed operation may succeed if repeated
// without changing its inputs. Registry consistency violations, expiry and
// replay are terminal.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	return e.Code == CodeVerificationTimeout
}
