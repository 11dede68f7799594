package email

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemorySender keeps sent messages in memory. Used in tests.
type MemorySender struct {
	mu   sync.Mutex
	msgs []Message

	// FailFunc can be set to make Send fail for some messages.
	FailFunc func(msg Message) error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailFunc != nil {
		if err := s.FailFunc(msg); err != nil {
			return "", err
		}
	}

	s.msgs = append(s.msgs, msg)
	return uuid.New().String(), nil
}

// Messages returns a copy of all sent messages.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Reset forgets all sent messages.
func (s *MemorySender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = nil
}
