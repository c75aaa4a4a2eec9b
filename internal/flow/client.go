package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("flowchat/flow")

// Client talks to the Langflow run API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger; zap.L() is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for baseURL (e.g. https://api.langflow.astra.datastax.com)
// authenticating with the given application token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.L()
	}
	return c
}

// RunURL builds the run endpoint for a flow.
func (c *Client) RunURL(flowID, collectionID string, stream bool) string {
	return fmt.Sprintf("%s/lf/%s/api/v1/run/%s?stream=%s",
		c.baseURL,
		url.PathEscape(collectionID),
		url.PathEscape(flowID),
		strconv.FormatBool(stream),
	)
}

// Send posts req to the flow and returns the decoded body.
func (c *Client) Send(ctx context.Context, flowID, collectionID string, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "flow.Send",
		trace.WithAttributes(
			attribute.String("flow.id", flowID),
			attribute.String("flow.collection_id", collectionID),
			attribute.Bool("flow.stream", req.Stream),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.send(ctx, flowID, collectionID, req)
	flowRequestDuration.Observe(time.Since(start).Seconds())
	flowRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("flow request failed",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("flow_id", flowID),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, flowID, collectionID string, req Request) (*Response, error) {
	if req.InputValue == "" {
		return nil, &ValidationError{Field: "inputValue"}
	}
	endpoint := c.RunURL(flowID, collectionID, req.Stream)

	body, err := json.Marshal(req.normalized())
	if err != nil {
		return nil, fmt.Errorf("encode flow request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "request", URL: endpoint, Err: err}
	}
	hreq.Header.Set("Authorization", "Bearer "+c.token)
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	hresp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, &TransportError{Op: "post", URL: endpoint, Err: err}
	}
	defer hresp.Body.Close()

	raw, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read", URL: endpoint, Err: err}
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		var parsed any
		if err := decodeJSON(raw, &parsed); err != nil {
			parsed = string(raw)
		}
		return nil, &RemoteAPIError{
			StatusCode: hresp.StatusCode,
			Status:     http.StatusText(hresp.StatusCode),
			Body:       parsed,
		}
	}

	var parsed any
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, &TransportError{Op: "decode", URL: endpoint, Err: err}
	}
	return &Response{Body: parsed}, nil
}

// RunFlow sends req and, when streaming was requested and Langflow handed
// back a stream URL, opens that stream with cb. It does not wait for the
// stream; the returned *Stream is nil when none was opened and must
// otherwise be closed by the caller.
func (c *Client) RunFlow(ctx context.Context, flowID, collectionID string, req Request, cb StreamCallbacks) (*Response, *Stream, error) {
	resp, err := c.Send(ctx, flowID, collectionID, req)
	if err != nil {
		return nil, nil, err
	}
	if !req.Stream {
		return resp, nil, nil
	}
	streamURL, ok := resp.StreamURL()
	if !ok {
		c.logger.Debug("stream requested but no stream_url returned", zap.String("flow_id", flowID))
		return resp, nil, nil
	}
	c.logger.Info("streaming flow output", zap.String("flow_id", flowID), zap.String("stream_url", streamURL))
	// the stream outlives the request that started it
	stream := c.OpenStream(context.WithoutCancel(ctx), streamURL, cb)
	return resp, stream, nil
}

func outcome(err error) string {
	var (
		verr *ValidationError
		rerr *RemoteAPIError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &rerr):
		return "remote_error"
	default:
		return "transport_error"
	}
}
