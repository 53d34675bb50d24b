// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// ErrorCode is a stable numeric error code carried in ProtocolException
// messages. Codes are part of the wire contract: values are never
// reused or renumbered.
type ErrorCode int32

const (
	CodeMalformedMessage      ErrorCode = 1
	CodeUnsupportedProtocol   ErrorCode = 2
	CodeUnexpectedMessageType ErrorCode = 3
	CodeInvalidArgument       ErrorCode = 4
	CodeNotFound              ErrorCode = 5
	CodeRequestDenied         ErrorCode = 6
	CodeNoSupportedProtocols  ErrorCode = 7
	CodeInternalError         ErrorCode = 8
)

// ProtocolError is a wire-visible failure: a stable code plus a
// human-readable message. It doubles as the ProtocolException payload
// and as a Go error, so handlers return it and the dispatcher encodes
// it without translation. Callers extract it with errors.As:
//
//	var protocolErr *wire.ProtocolError
//	if errors.As(err, &protocolErr) {
//	    if protocolErr.Code == wire.CodeNotFound { ... }
//	}
type ProtocolError struct {
	Code    ErrorCode `cbor:"1,keyasint"`
	Message string    `cbor:"2,keyasint"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// Errorf builds a ProtocolError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}
