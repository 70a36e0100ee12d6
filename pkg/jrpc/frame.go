package jrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// errNeedMore signals that the buffer holds a prefix of a JSON value and
// decoding should be retried after more bytes arrive.
var errNeedMore = errors.New("jrpc: incomplete message")

// decodeValue attempts to decode one complete JSON value from the front of
// buf, skipping leading whitespace. On success it returns the raw value and
// the unconsumed remainder of buf (aliasing buf's backing array). When buf
// holds only a prefix of a value it returns errNeedMore and the caller must
// retry after appending more bytes. Any other error means the leading bytes
// are malformed and cannot be resynchronized.
func decodeValue(buf []byte) (json.RawMessage, []byte, error) {
	trimmed := bytes.TrimLeft(buf, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, trimmed, errNeedMore
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, trimmed, errNeedMore
		}
		return nil, trimmed, err
	}
	return raw, trimmed[dec.InputOffset():], nil
}

// message is the decoded shape of any inbound JSON-RPC envelope. Field
// presence drives routing: id+method is an inbound call, id alone a reply,
// method alone a notification.
type message struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// request is the outbound envelope for Call.
type request struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

// notification is the outbound envelope for Notify: no id, no reply.
type notification struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// response is the outbound envelope replying to a successful inbound server
// call. The id is echoed verbatim from the inbound envelope, and result is
// always present, even when null.
type response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

// errorResponse is the outbound envelope replying to a failed inbound call.
type errorResponse struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *Error          `json:"error"`
}
