package flow

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errTrailingData = errors.New("invalid character after top-level value")

// IOType is the input or output kind a flow is invoked with.
type IOType string

const (
	IOChat IOType = "chat"
	IOText IOType = "text"
)

// Tweaks maps a flow component name to its override parameters.
// The values are passed through to Langflow untouched.
type Tweaks map[string]map[string]any

// Request describes a single flow invocation.
// Stream selects the ?stream= query flag; it is not part of the body.
type Request struct {
	InputValue string `json:"input_value"`
	InputType  IOType `json:"input_type"`
	OutputType IOType `json:"output_type"`
	Tweaks     Tweaks `json:"tweaks"`
	Stream     bool   `json:"-"`
}

// normalized fills in the defaults Langflow expects.
func (r Request) normalized() Request {
	if r.InputType == "" {
		r.InputType = IOChat
	}
	if r.OutputType == "" {
		r.OutputType = IOChat
	}
	if r.Tweaks == nil {
		r.Tweaks = Tweaks{}
	}
	return r
}

// Response is the parsed body of a successful run call, kept as-is.
type Response struct {
	Body any
}

// MarshalJSON renders the body exactly as it was received.
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Body)
}

// Message returns outputs[0].outputs[0].outputs.message.message.text.
func (r *Response) Message() (string, error) {
	return LookupString(r.Body, "outputs", 0, "outputs", 0, "outputs", "message", "message", "text")
}

// StreamURL returns outputs[0].outputs[0].artifacts.stream_url if present.
func (r *Response) StreamURL() (string, bool) {
	u, err := LookupString(r.Body, "outputs", 0, "outputs", 0, "artifacts", "stream_url")
	if err != nil || u == "" {
		return "", false
	}
	return u, true
}

// StreamEvent is one decoded message from a flow's event stream.
type StreamEvent map[string]any

// Chunk returns the incremental text carried by the event, if any.
func (e StreamEvent) Chunk() string {
	s, _ := e["chunk"].(string)
	return s
}

// StreamCallbacks receive the events of an open stream. Any of them may be nil.
type StreamCallbacks struct {
	OnUpdate func(StreamEvent)
	OnClose  func(reason string)
	OnError  func(error)
}

// decodeJSON parses b keeping numbers as json.Number so the body
// round-trips unchanged.
func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
