// Package jsonrpc holds the JSON-RPC 2.0 envelope shared by the HTTP
// surface and the subprocess wire.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version the bridge speaks.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined codes in the reserved -32000..-32099 range.
const (
	CodeServerError     = -32000
	CodeProcessNotReady = -32001
	CodeProcessClosed   = -32002
	CodeTimeout         = -32003
)

// Envelope is one JSON-RPC 2.0 message. A request carries Method and
// optionally Params; a response carries exactly one of Result or Error.
// A nil ID marks a notification.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a response envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IsNotification reports whether the envelope has no id. A literal null id
// counts as absent, matching how the wire treats it.
func (e *Envelope) IsNotification() bool {
	return len(e.ID) == 0 || string(e.ID) == "null"
}

// NewResponse shapes a success envelope echoing the request id. The id is
// omitted entirely when the request carried none.
func NewResponse(id json.RawMessage, result any) (*Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Envelope{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewError shapes an error envelope. Data is optional diagnostic payload;
// nil leaves it out.
func NewError(id json.RawMessage, code int, message string, data any) *Envelope {
	return &Envelope{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

// StringID encodes a plain string as a JSON id value.
func StringID(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
