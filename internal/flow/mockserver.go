package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockServer imitates the Langflow run and stream endpoints. It echoes the
// input back, one word per stream chunk when streaming is requested.
type MockServer struct {
	// Token, when set, must be presented as the bearer token.
	Token string
	// ChunkDelay is the pause between streamed chunks.
	ChunkDelay time.Duration
	// OmitStreamURL makes streaming runs answer without a stream_url.
	OmitStreamURL bool

	RunCalls    atomic.Int64
	StreamCalls atomic.Int64

	mu      sync.Mutex
	pending map[string]string
	router  chi.Router
}

// NewMockServer builds the mock handler.
func NewMockServer(token string) *MockServer {
	m := &MockServer{
		Token:      token,
		ChunkDelay: 50 * time.Millisecond,
		pending:    make(map[string]string),
	}
	r := chi.NewRouter()
	r.Post("/lf/{collectionID}/api/v1/run/{flowID}", m.handleRun)
	r.Get("/stream/{streamID}", m.handleStream)
	m.router = r
	return m
}

func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// StartMockServer serves a MockServer on addr (e.g. ":0") and returns the
// server and the address it is listening on.
func StartMockServer(addr, token string) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("mock flow server listen: %w", err)
	}
	server := &http.Server{Handler: NewMockServer(token)}
	go func() {
		zap.S().Infow("mock flow server listening", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorw("mock flow server failed", "error", err)
		}
	}()
	return server, ln.Addr().String(), nil
}

func (m *MockServer) handleRun(w http.ResponseWriter, r *http.Request) {
	m.RunCalls.Add(1)

	if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") ||
		(m.Token != "" && strings.TrimPrefix(auth, "Bearer ") != m.Token) {
		writeMockJSON(w, http.StatusUnauthorized, map[string]any{"detail": "unauthorized"})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMockJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid JSON"})
		return
	}
	if req.InputValue == "" {
		writeMockJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "input_value is required"})
		return
	}

	reply := "Echo: " + req.InputValue
	artifacts := map[string]any{}
	if r.URL.Query().Get("stream") == "true" && !m.OmitStreamURL {
		id := uuid.NewString()
		m.mu.Lock()
		m.pending[id] = reply
		m.mu.Unlock()
		artifacts["stream_url"] = "http://" + r.Host + "/stream/" + id
	}

	writeMockJSON(w, http.StatusOK, map[string]any{
		"session_id": chi.URLParam(r, "flowID"),
		"outputs": []any{
			map[string]any{
				"inputs": map[string]any{"input_value": req.InputValue},
				"outputs": []any{
					map[string]any{
						"outputs": map[string]any{
							"message": map[string]any{
								"message": map[string]any{"text": reply, "sender": "Machine"},
								"type":    "message",
							},
						},
						"artifacts": artifacts,
					},
				},
			},
		},
	})
}

func (m *MockServer) handleStream(w http.ResponseWriter, r *http.Request) {
	m.StreamCalls.Add(1)

	id := chi.URLParam(r, "streamID")
	m.mu.Lock()
	reply, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if !ok {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for i, word := range strings.Fields(reply) {
		err := sse.Encode(w, sse.Event{
			Id:   fmt.Sprint(i),
			Data: map[string]string{"chunk": word + " "},
		})
		if err != nil {
			zap.S().Warnw("mock stream write failed", "error", err)
			return
		}
		flusher.Flush()
		select {
		case <-r.Context().Done():
			return
		case <-time.After(m.ChunkDelay):
		}
	}
	if err := sse.Encode(w, sse.Event{Event: "close", Data: map[string]string{"status": "done"}}); err != nil {
		zap.S().Warnw("mock stream close failed", "error", err)
	}
	flusher.Flush()
}

func writeMockJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("mock write failed", "error", err)
	}
}
