package triggerware

import (
	"errors"
	"fmt"

	"github.com/triggerware/triggerware-go/pkg/jrpc"
)

// InvalidQueryError reports a query the server rejected during validation,
// execution, or registration.
type InvalidQueryError struct {
	Query string
	Err   error
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %v", e.Query, e.Err)
}

func (e *InvalidQueryError) Unwrap() error { return e.Err }

// PreparedQueryError reports a misuse of a prepared query's parameters.
type PreparedQueryError struct {
	Msg string
	Err error
}

func (e *PreparedQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prepared query: %s: %v", e.Msg, e.Err)
	}
	return "prepared query: " + e.Msg
}

func (e *PreparedQueryError) Unwrap() error { return e.Err }

// PolledQueryError reports an invalid polled-query configuration or a failed
// polled-query operation.
type PolledQueryError struct {
	Msg string
	Err error
}

func (e *PolledQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("polled query: %s: %v", e.Msg, e.Err)
	}
	return "polled query: " + e.Msg
}

func (e *PolledQueryError) Unwrap() error { return e.Err }

// SubscriptionError reports an invalid subscription state transition or a
// failed subscribe/unsubscribe call.
type SubscriptionError struct {
	Msg string
	Err error
}

func (e *SubscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscription: %s: %v", e.Msg, e.Err)
	}
	return "subscription: " + e.Msg
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// passthrough reports whether err should be surfaced as-is rather than
// rewrapped with operation context: connection loss and server internal
// errors are not operation-specific, and neither are non-RPC errors such as
// context cancellation.
func passthrough(err error) bool {
	var rpcErr *jrpc.Error
	if !errors.As(err, &rpcErr) {
		return true
	}
	return rpcErr.Code == jrpc.CodeServerError || rpcErr.Code == jrpc.CodeInternalError
}
