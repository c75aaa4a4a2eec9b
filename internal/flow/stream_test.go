package flow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer replies to every request with the given raw event stream.
func sseServer(t *testing.T, raw string, hold bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, raw)
		w.(http.Flusher).Flush()
		if hold {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type recorder struct {
	mu      sync.Mutex
	updates []StreamEvent
	closes  []string
	errs    []error
	done    chan struct{}
	once    sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnUpdate: func(ev StreamEvent) {
			r.mu.Lock()
			r.updates = append(r.updates, ev)
			r.mu.Unlock()
		},
		OnClose: func(reason string) {
			r.mu.Lock()
			r.closes = append(r.closes, reason)
			r.mu.Unlock()
			r.once.Do(func() { close(r.done) })
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.once.Do(func() { close(r.done) })
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no terminal callback")
	}
}

func TestOpenStream_UpdatesThenClose(t *testing.T) {
	srv := sseServer(t, "data: {\"chunk\":\"a\"}\n\n"+
		"data:{\"chunk\":\"b\"}\n\n"+
		"event: close\ndata: {}\n\n"+
		"data: {\"chunk\":\"late\"}\n\n", true)

	rec := newRecorder()
	s := NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)
	<-s.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.updates, 2)
	assert.Equal(t, "a", rec.updates[0].Chunk())
	assert.Equal(t, "b", rec.updates[1].Chunk())
	assert.Equal(t, []string{"Stream closed"}, rec.closes)
	assert.Empty(t, rec.errs)
}

func TestOpenStream_SkipsBlocksWithoutData(t *testing.T) {
	srv := sseServer(t, "event: message\n\n"+
		"id: 7\n\n"+
		"data: {\"chunk\":\"a\"}\n\n"+
		"event: close\n\n", true)

	rec := newRecorder()
	s := NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)
	<-s.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.updates, 1)
	assert.Equal(t, "a", rec.updates[0].Chunk())
	assert.Equal(t, []string{"Stream closed"}, rec.closes)
	assert.Empty(t, rec.errs)
}

func TestOpenStream_ParseErrorPropagates(t *testing.T) {
	srv := sseServer(t, "data: {\"chunk\":\"a\"}\n\ndata: not json\n\ndata: {\"chunk\":\"b\"}\n\n", true)

	rec := newRecorder()
	s := NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)
	<-s.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.updates, 1)
	require.Len(t, rec.errs, 1)
	var perr *StreamParseError
	require.ErrorAs(t, rec.errs[0], &perr)
	assert.Equal(t, "not json", perr.Data)
}

func TestOpenStream_NonObjectPayloadIsParseError(t *testing.T) {
	srv := sseServer(t, "data: [1,2]\n\n", true)

	rec := newRecorder()
	NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	var perr *StreamParseError
	assert.ErrorAs(t, rec.errs[0], &perr)
}

func TestOpenStream_EOFWithoutClose(t *testing.T) {
	srv := sseServer(t, ": keepalive\nevent: progress\ndata: {}\n\ndata: {\"chunk\":\"a\"}\n\n", false)

	rec := newRecorder()
	NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.updates, 1, "named events are ignored")
	require.Len(t, rec.errs, 1)
	var terr *StreamTransportError
	require.ErrorAs(t, rec.errs[0], &terr)
	assert.ErrorIs(t, terr, ErrStreamEnded)
}

func TestOpenStream_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	rec := newRecorder()
	NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	var terr *StreamTransportError
	assert.ErrorAs(t, rec.errs[0], &terr)
}

func TestOpenStream_DoesNotSendToken(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: close\ndata: {}\n\n")
	}))
	defer srv.Close()

	rec := newRecorder()
	NewClient("http://unused", "secret").OpenStream(context.Background(), srv.URL, rec.callbacks())
	rec.wait(t)
	assert.Empty(t, <-auth)
}

func TestStream_CloseIsIdempotentAndSilent(t *testing.T) {
	srv := sseServer(t, "data: {\"chunk\":\"a\"}\n\n", true)

	rec := newRecorder()
	s := NewClient("http://unused", "tok").OpenStream(context.Background(), srv.URL, rec.callbacks())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "reader did not exit after Close")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.closes, "no close callback after caller Close")
	assert.Empty(t, rec.errs, "no error callback after caller Close")
}
