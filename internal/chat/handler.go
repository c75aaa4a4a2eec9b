package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ffaiyaz23/flowchat/internal/flow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("flowchat/chat")

const (
	errInputRequired = "inputValue is required."
	errBadBody       = "invalid request body."
	requestIDHeader  = "X-Request-ID"
)

// Runner runs a flow; *flow.Client satisfies it.
type Runner interface {
	RunFlow(ctx context.Context, flowID, collectionID string, req flow.Request, cb flow.StreamCallbacks) (*flow.Response, *flow.Stream, error)
}

// Config holds the fixed flow parameters every chat turn is sent with.
type Config struct {
	FlowID        string
	CollectionID  string
	Tweaks        flow.Tweaks
	StreamTimeout time.Duration
}

// Handler turns one chat message into one flow run.
type Handler struct {
	runner  Runner
	cfg     Config
	streams *registry
	logger  *zap.Logger
}

// NewHandler builds the chat handler. A nil logger means zap.L().
func NewHandler(runner Runner, cfg Config, logger *zap.Logger) *Handler {
	if cfg.Tweaks == nil {
		cfg.Tweaks = DefaultTweaks()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Handler{
		runner:  runner,
		cfg:     cfg,
		streams: newRegistry(),
		logger:  logger,
	}
}

// turnRequest is the body the dashboard widget posts.
type turnRequest struct {
	InputValue string      `json:"inputValue"`
	InputType  flow.IOType `json:"inputType"`
	OutputType flow.IOType `json:"outputType"`
	Stream     bool        `json:"stream"`
	Render     string      `json:"render"`
}

func (t turnRequest) flowRequest(tweaks flow.Tweaks, stream bool) flow.Request {
	req := flow.Request{
		InputValue: t.InputValue,
		InputType:  t.InputType,
		OutputType: t.OutputType,
		Tweaks:     tweaks,
		Stream:     stream,
	}
	if req.InputType == "" {
		req.InputType = flow.IOChat
	}
	if req.OutputType == "" {
		req.OutputType = flow.IOChat
	}
	return req
}

type turnResponse struct {
	Message  *string        `json:"message,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Response *flow.Response `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ServeHTTP answers POST {inputValue, inputType?, outputType?, stream?, render?}
// with {message}, {response} or {error}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	turnID := uuid.NewString()
	w.Header().Set(requestIDHeader, turnID)

	ctx, span := tracer.Start(r.Context(), "chat.Handle", trace.WithAttributes(attribute.String("chat.turn_id", turnID)))
	defer span.End()
	logger := h.logger.With(
		zap.String("turn_id", turnID),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	turn, status, msg := decodeTurn(w, r)
	if status != http.StatusOK {
		logger.Info("rejected chat turn", zap.String("reason", msg))
		writeJSON(w, status, turnResponse{Error: msg})
		return
	}
	span.SetAttributes(attribute.Bool("chat.stream", turn.Stream))

	var cb flow.StreamCallbacks
	if turn.Stream {
		cb = flow.StreamCallbacks{
			OnUpdate: func(ev flow.StreamEvent) { logger.Info("stream chunk received", zap.String("chunk", ev.Chunk())) },
			OnClose:  func(reason string) { logger.Info("stream closed", zap.String("reason", reason)) },
			OnError:  func(err error) { logger.Warn("stream error", zap.Error(err)) },
		}
	}

	resp, stream, err := h.runner.RunFlow(ctx, h.cfg.FlowID, h.cfg.CollectionID,
		turn.flowRequest(h.cfg.Tweaks, turn.Stream), cb)
	if err != nil {
		h.fail(w, span, logger, err)
		return
	}

	if turn.Stream {
		if stream != nil {
			h.streams.track(turnID, stream, h.cfg.StreamTimeout)
		}
		writeJSON(w, http.StatusOK, turnResponse{Response: resp})
		return
	}

	text, err := resp.Message()
	if err != nil {
		h.fail(w, span, logger, err)
		return
	}
	out := turnResponse{Message: &text}
	if turn.Render == "html" {
		out.HTML = RenderHTML(text)
	}
	logger.Info("chat turn answered", zap.Int("reply_len", len(text)))
	writeJSON(w, http.StatusOK, out)
}

// Close terminates every stream still open from earlier turns.
func (h *Handler) Close() error {
	h.streams.closeAll()
	return nil
}

// OpenStreams reports how many flow streams are currently tracked.
func (h *Handler) OpenStreams() int {
	return h.streams.len()
}

func (h *Handler) fail(w http.ResponseWriter, span trace.Span, logger *zap.Logger, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var verr *flow.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, turnResponse{Error: verr.Error()})
		return
	}
	logger.Error("chat turn failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, turnResponse{Error: err.Error()})
}

// decodeTurn returns http.StatusOK or the rejection status and message.
func decodeTurn(w http.ResponseWriter, r *http.Request) (turnRequest, int, string) {
	var turn turnRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&turn)
	if errors.Is(err, io.EOF) {
		return turn, http.StatusBadRequest, errInputRequired
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "inputValue" {
		return turn, http.StatusBadRequest, errInputRequired
	}
	if err != nil {
		return turn, http.StatusBadRequest, errBadBody
	}
	if turn.InputValue == "" {
		return turn, http.StatusBadRequest, errInputRequired
	}
	return turn, http.StatusOK, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("write response failed", "error", err)
	}
}
