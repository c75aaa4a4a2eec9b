package chat

import (
	"sync"
	"time"

	"github.com/ffaiyaz23/flowchat/internal/flow"
)

// registry tracks streams opened by earlier turns so they can be torn
// down on shutdown or when they outlive their timeout.
type registry struct {
	mu      sync.Mutex
	streams map[string]*flow.Stream
	closed  bool
	wg      sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{streams: make(map[string]*flow.Stream)}
}

// track holds s until it finishes. A zero timeout leaves it unbounded.
// Once closeAll has run, s is closed straight away.
func (r *registry) track(id string, s *flow.Stream, timeout time.Duration) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = s.Close()
		return
	}
	r.streams[id] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		var expired <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-s.Done():
		case <-expired:
			_ = s.Close()
			<-s.Done()
		}
		r.mu.Lock()
		delete(r.streams, id)
		r.mu.Unlock()
	}()
}

func (r *registry) closeAll() {
	r.mu.Lock()
	r.closed = true
	open := make([]*flow.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
	r.wg.Wait()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
