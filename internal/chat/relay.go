package chat

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ffaiyaz23/flowchat/internal/flow"
	"github.com/gin-contrib/sse"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const relayFailure = "the assistant could not finish this reply"

// relayMsg is one stream callback handed from the flow stream goroutine
// to the request goroutine.
type relayMsg struct {
	chunk  string
	closed bool
	err    error
}

// Relay runs a streaming turn and forwards each chunk to the caller as a
// server-sent "message" event, ending with "close" or "error". When the
// flow returns no stream the extracted reply is sent as a single message.
// The upstream stream is closed when the caller disconnects.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	turnID := uuid.NewString()
	w.Header().Set(requestIDHeader, turnID)

	ctx, span := tracer.Start(r.Context(), "chat.Relay", trace.WithAttributes(attribute.String("chat.turn_id", turnID)))
	defer span.End()
	logger := h.logger.With(
		zap.String("turn_id", turnID),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	turn, status, msg := decodeTurn(w, r)
	if status != http.StatusOK {
		writeJSON(w, status, turnResponse{Error: msg})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, turnResponse{Error: "streaming unsupported"})
		return
	}

	msgs := make(chan relayMsg, 16)
	quit := make(chan struct{})
	defer close(quit)
	push := func(m relayMsg) {
		select {
		case msgs <- m:
		case <-quit:
		}
	}

	resp, stream, err := h.runner.RunFlow(ctx, h.cfg.FlowID, h.cfg.CollectionID,
		turn.flowRequest(h.cfg.Tweaks, true),
		flow.StreamCallbacks{
			OnUpdate: func(ev flow.StreamEvent) { push(relayMsg{chunk: ev.Chunk()}) },
			OnClose:  func(string) { push(relayMsg{closed: true}) },
			OnError:  func(err error) { push(relayMsg{err: err}) },
		})
	if err != nil {
		h.fail(w, span, logger, err)
		return
	}

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	seq := 0
	emit := func(event string, data any) bool {
		seq++
		err := sse.Encode(w, sse.Event{Id: fmt.Sprintf("%s-%d", turnID, seq), Event: event, Data: data})
		if err != nil {
			logger.Warn("relay write failed", zap.Error(err))
			return false
		}
		flusher.Flush()
		return true
	}

	if stream == nil {
		text, err := resp.Message()
		if err != nil {
			span.RecordError(err)
			logger.Error("relay fallback failed", zap.Error(err))
			emit("error", map[string]string{"error": relayFailure})
			return
		}
		if emit("message", map[string]string{"chunk": text}) {
			emit("close", map[string]string{"reason": "complete"})
		}
		return
	}
	defer stream.Close()

	var expired <-chan time.Time
	if h.cfg.StreamTimeout > 0 {
		t := time.NewTimer(h.cfg.StreamTimeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			logger.Info("relay client went away")
			return
		case <-expired:
			logger.Warn("relay stream timed out", zap.Duration("timeout", h.cfg.StreamTimeout))
			emit("error", map[string]string{"error": relayFailure})
			return
		case m := <-msgs:
			switch {
			case m.err != nil:
				span.RecordError(m.err)
				logger.Error("relay stream failed", zap.Error(m.err))
				emit("error", map[string]string{"error": relayFailure})
				return
			case m.closed:
				emit("close", map[string]string{"reason": "Stream closed"})
				return
			default:
				if !emit("message", map[string]string{"chunk": m.chunk}) {
					return
				}
			}
		}
	}
}
