// Package rpctypes defines the wire shapes exchanged with ElectrumX-style
// upstreams and the envelope returned to HTTP callers.
package rpctypes

import "encoding/json"

// Request is a JSON-RPC call sent to an upstream over a WebSocket text frame.
// The "jsonrpc" marker is neither emitted nor expected.
type Request struct {
	ID     uint32        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// RPCError is the error member of a Response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is a JSON-RPC reply read from an upstream. Exactly one of Result
// or Error is expected to be set; a response with neither is treated as an
// empty completion by the coordinator, not a protocol violation.
type Response struct {
	ID     uint32          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Envelope is the uniform outward shape of every HTTP response body (R in
// the design). Success is always present; omitted optional fields are absent
// from the serialization, not null, which is why every optional field below
// carries omitempty.
type Envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Code     *int            `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	Health   *bool           `json:"health,omitempty"`
}

// OK builds a success envelope carrying an upstream result verbatim.
func OK(result json.RawMessage) Envelope {
	return Envelope{Success: true, Response: result}
}

// UpstreamError builds an envelope passing through an upstream error object.
func UpstreamError(code int, message string) Envelope {
	c := code
	return Envelope{Success: false, Code: &c, Message: message}
}

// LocalError builds a local-error envelope. Local errors always use code -1.
func LocalError(message string) Envelope {
	c := -1
	return Envelope{Success: false, Code: &c, Message: message}
}

// Health builds the envelope returned by the health probe.
func Health(ok bool) Envelope {
	h := ok
	return Envelope{Success: true, Health: &h}
}

// GlobalTip is the subset of blockchain.atomicals.get_global's result the
// tip poller cares about.
type GlobalTip struct {
	Global struct {
		Height uint64 `json:"height"`
	} `json:"global"`
}

// TipMethod is the single method the proxy interprets semantics for (§4.3):
// it is excluded from caching and is the method the tip poller calls.
const TipMethod = "blockchain.atomicals.get_global"
