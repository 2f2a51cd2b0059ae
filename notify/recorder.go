package notify

import (
	"context"
	"sync"
)

// Recorder is a Publisher that keeps every message in memory. Err, when set, is returned from
// Publish after the message has been recorded.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// On returns the messages published on channel.
func (r *Recorder) On(channel string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}
