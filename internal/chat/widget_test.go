package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ffaiyaz23/flowchat/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWidget_RecordsReply(t *testing.T) {
	h := newTestHandler(t, flow.NewMockServer("tok"))
	srv := httptest.NewServer(h)
	defer srv.Close()

	w := NewWidget(srv.URL, srv.Client(), zap.NewNop())
	got, sent := w.Send(context.Background(), "  top genre?  ")

	require.True(t, sent)
	assert.Equal(t, Message{Text: "Echo: top genre?"}, got)
	assert.Equal(t, []Message{
		{Text: Greeting},
		{Text: "top genre?", IsUser: true},
		{Text: "Echo: top genre?"},
	}, w.Transcript().Messages())
}

func TestWidget_ApologizesOnFailure(t *testing.T) {
	h := newTestHandler(t, &cannedFlow{status: http.StatusForbidden, body: `{"detail":"forbidden"}`})
	srv := httptest.NewServer(h)
	defer srv.Close()

	w := NewWidget(srv.URL, srv.Client(), zap.NewNop())
	got, sent := w.Send(context.Background(), "hello")

	require.True(t, sent)
	assert.Equal(t, Apology, got.Text)
	msgs := w.Transcript().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, Message{Text: "hello", IsUser: true}, msgs[1])
	assert.Equal(t, Message{Text: Apology}, msgs[2])
}

func TestWidget_ApologizesWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	w := NewWidget(url, nil, zap.NewNop())
	got, _ := w.Send(context.Background(), "hello")
	assert.Equal(t, Apology, got.Text)
}

func TestWidget_IgnoresBlankInput(t *testing.T) {
	w := NewWidget("http://127.0.0.1:0", nil, zap.NewNop())
	_, sent := w.Send(context.Background(), "   ")
	assert.False(t, sent)
	assert.Equal(t, []Message{{Text: Greeting}}, w.Transcript().Messages())
}

func TestRenderHTML(t *testing.T) {
	got := RenderHTML("# Top\n\n- reels\n- [docs](https://example.com)")
	assert.Contains(t, got, `<h1 id="top">Top</h1>`)
	assert.Contains(t, got, "<li>reels</li>")
	assert.Contains(t, got, `target="_blank"`)
}
