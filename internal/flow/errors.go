package flow

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ValidationError reports a missing or empty required input.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required."
}

// RemoteAPIError is returned when Langflow answers with a non-2xx status.
// Body holds the decoded JSON payload, or the raw text if it did not parse.
type RemoteAPIError struct {
	StatusCode int
	Status     string
	Body       any
}

func (e *RemoteAPIError) Error() string {
	text := e.Status
	if text == "" {
		text = http.StatusText(e.StatusCode)
	}
	var body string
	switch b := e.Body.(type) {
	case string:
		body = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			body = fmt.Sprint(b)
		} else {
			body = string(raw)
		}
	}
	return fmt.Sprintf("%d %s - %s", e.StatusCode, text, body)
}

// TransportError wraps a failure to reach Langflow or to read its reply.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flow %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseShapeError reports a field missing from a Langflow payload.
type ResponseShapeError struct {
	Path string
}

func (e *ResponseShapeError) Error() string {
	return "unexpected flow response: missing " + e.Path
}

// StreamParseError is delivered to OnError when an event payload is not a JSON object.
type StreamParseError struct {
	Data string
	Err  error
}

func (e *StreamParseError) Error() string {
	return fmt.Sprintf("stream event %q: %v", e.Data, e.Err)
}

func (e *StreamParseError) Unwrap() error { return e.Err }

// StreamTransportError is delivered to OnError when the stream connection fails.
type StreamTransportError struct {
	URL string
	Err error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.URL, e.Err)
}

func (e *StreamTransportError) Unwrap() error { return e.Err }
