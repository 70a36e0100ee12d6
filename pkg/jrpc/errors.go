package jrpc

import (
	"encoding/json"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes, plus the implementation-defined server
// error code used for connection loss and malformed replies.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Error is a JSON-RPC 2.0 error object. It is returned by Call when the
// server replies with an error, and raised locally (with CodeServerError)
// on connection loss or an invalid response shape.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code %d)", e.Message, e.Code)
}

// Is supports errors.Is by matching any *Error target, or one with the same
// code when the target carries a nonzero code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

// errConnectionClosed builds the error delivered to pending callers when the
// transport closes underneath them.
func errConnectionClosed() *Error {
	return &Error{Code: CodeServerError, Message: "connection closed before response received"}
}

// errInvalidResponse builds the error for a reply carrying neither result
// nor error.
func errInvalidResponse() *Error {
	return &Error{Code: CodeServerError, Message: "server sent an invalid response"}
}
