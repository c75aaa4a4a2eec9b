package chat

import "sync"

const (
	// Greeting opens every widget session.
	Greeting = "Hi! I'm your analytics assistant. How can I help you today?"
	// Apology replaces the reply whenever a turn fails, whatever the cause.
	Apology = "I apologize, but I encountered an error processing your request."
)

// Message is one entry in a chat session.
type Message struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
}

// Transcript is an append-only list of messages kept for one session.
type Transcript struct {
	mu   sync.Mutex
	msgs []Message
}

// NewTranscript starts a session with the assistant's greeting.
func NewTranscript() *Transcript {
	return &Transcript{msgs: []Message{{Text: Greeting}}}
}

func (t *Transcript) Append(m Message) {
	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.mu.Unlock()
}

// Messages returns a copy of the session so far.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}
