package monitor

import (
	"sync"

	"go.uber.org/zap"
)

// AlertSink delivers operator-facing alert messages.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Send(message string) error {
	if s.Log != nil {
		s.Log.Warn("alert", zap.String("message", message))
	}
	return nil
}

// MemorySink keeps the most recent alerts in memory.
type MemorySink struct {
	mu       sync.Mutex
	limit    int
	messages []string
}

// NewMemorySink keeps at most limit messages (100 when limit <= 0).
func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 100
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Send(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	if len(s.messages) > s.limit {
		s.messages = s.messages[len(s.messages)-s.limit:]
	}
	return nil
}

// Messages returns a copy of the retained alerts, oldest first.
func (s *MemorySink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Fanout sends every message to each sink and returns the first error.
type Fanout []AlertSink

func (f Fanout) Send(message string) error {
	var first error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Send(message); err != nil && first == nil {
			first = err
		}
	}
	return first
}
