package flow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxEventSize = 1 << 20

// ErrStreamEnded is wrapped in a StreamTransportError when the server hangs
// up without sending a close event.
var ErrStreamEnded = errors.New("stream ended without close event")

// Stream is a handle on an open flow event stream.
type Stream struct {
	url    string
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

// Close terminates the stream. No callback fires once Close has returned,
// apart from one already in progress. Calling it again is a no-op.
func (s *Stream) Close() error {
	s.terminate()
	return nil
}

// Done is closed when the stream's reader has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// URL is the stream endpoint.
func (s *Stream) URL() string {
	return s.url
}

// terminate reports whether this call was the one that ended the stream.
func (s *Stream) terminate() bool {
	first := false
	s.once.Do(func() {
		first = true
		s.closed.Store(true)
		s.cancel()
	})
	return first
}

// OpenStream connects to a server-sent event stream and delivers its events
// to cb from a background goroutine, in arrival order. Unnamed events are
// decoded as JSON objects and passed to OnUpdate. A "close" event ends the
// stream through OnClose; a decode failure or a broken connection ends it
// through OnError. Exactly one of those terminal callbacks fires unless the
// caller closes the stream first. There is no reconnect.
func (c *Client) OpenStream(ctx context.Context, streamURL string, cb StreamCallbacks) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{url: streamURL, cancel: cancel, done: make(chan struct{})}
	go c.readStream(ctx, s, cb)
	return s
}

func (c *Client) readStream(ctx context.Context, s *Stream, cb StreamCallbacks) {
	defer close(s.done)
	defer s.cancel()

	ctx, span := tracer.Start(ctx, "flow.Stream", trace.WithAttributes(attribute.String("flow.stream_url", s.url)))
	defer span.End()
	logger := c.logger.With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("stream_url", s.url),
	)

	fail := func(err error) {
		kind := "transport_error"
		var perr *StreamParseError
		if errors.As(err, &perr) {
			kind = "parse_error"
		}
		if !s.terminate() {
			return
		}
		streamEvents.WithLabelValues(kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("flow stream error", zap.Error(err))
		if cb.OnError != nil {
			cb.OnError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		fail(&StreamTransportError{URL: s.url, Err: err})
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fail(&StreamTransportError{URL: s.url, Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fail(&StreamTransportError{
			URL: s.url,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		})
		return
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		fail(&StreamTransportError{URL: s.url, Err: fmt.Errorf("unexpected content type %q", ct)})
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		event   string
		data    []string
		hasData bool
	)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			name, payload, seen := event, strings.Join(data, "\n"), hasData
			event, data, hasData = "", nil, false
			// blocks without a data field are never dispatched, except close
			if !seen && name != "close" {
				continue
			}
			switch name {
			case "", "message":
				var ev StreamEvent
				if err := decodeJSON([]byte(payload), &ev); err != nil || ev == nil {
					if err == nil {
						err = errors.New("payload is not a JSON object")
					}
					fail(&StreamParseError{Data: payload, Err: err})
					return
				}
				if s.closed.Load() {
					return
				}
				streamEvents.WithLabelValues("update").Inc()
				if cb.OnUpdate != nil {
					cb.OnUpdate(ev)
				}
			case "close":
				if !s.terminate() {
					return
				}
				streamEvents.WithLabelValues("close").Inc()
				logger.Info("flow stream closed by server")
				if cb.OnClose != nil {
					cb.OnClose("Stream closed")
				}
				return
			default:
				logger.Debug("ignoring stream event", zap.String("event", name))
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}

	if err := scanner.Err(); err != nil {
		fail(&StreamTransportError{URL: s.url, Err: err})
		return
	}
	fail(&StreamTransportError{URL: s.url, Err: ErrStreamEnded})
}
