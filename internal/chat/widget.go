package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Widget is a chat client for the collection endpoint. It keeps the
// session transcript the way the dashboard's chat box does.
type Widget struct {
	endpoint   string
	httpClient *http.Client
	transcript *Transcript
	logger     *zap.Logger
}

// NewWidget creates a widget posting to endpoint
// (e.g. http://localhost:3000/api/collection).
func NewWidget(endpoint string, httpClient *http.Client, logger *zap.Logger) *Widget {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Widget{
		endpoint:   endpoint,
		httpClient: httpClient,
		transcript: NewTranscript(),
		logger:     logger,
	}
}

// Transcript returns the widget's session.
func (w *Widget) Transcript() *Transcript {
	return w.transcript
}

// Send posts one user message and records the reply. Blank input is
// ignored and returns false. Failures are logged and recorded as the
// generic apology; the returned message is whatever was appended.
func (w *Widget) Send(ctx context.Context, text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}
	w.transcript.Append(Message{Text: text, IsUser: true})

	reply, err := w.ask(ctx, text)
	if err != nil {
		w.logger.Error("chat request failed", zap.Error(err))
		reply = Apology
	}
	m := Message{Text: reply}
	w.transcript.Append(m)
	return m, true
}

func (w *Widget) ask(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"inputValue": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("api error: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if out.Message == "" {
		return "", errors.New("unexpected api response structure")
	}
	return out.Message, nil
}
