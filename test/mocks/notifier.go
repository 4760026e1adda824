package mocks

import (
	"sync"
	"time"
)

// MockNotifier implements the alerts.Notifier interface for testing
type MockNotifier struct {
	SentMessages []SentMessage
	SentCount    int
	FailNext     error
	mu           sync.Mutex
}

// SentMessage represents a sent message
type SentMessage struct {
	Text string
	Time time.Time
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		SentMessages: make([]SentMessage, 0),
	}
}

// SendMessage records the message, or fails once when FailNext is set
func (m *MockNotifier) SendMessage(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}

	m.SentCount++
	m.SentMessages = append(m.SentMessages, SentMessage{
		Text: text,
		Time: time.Now(),
	})
	return nil
}

// Messages returns a copy of the sent message texts
func (m *MockNotifier) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	texts := make([]string, 0, len(m.SentMessages))
	for _, msg := range m.SentMessages {
		texts = append(texts, msg.Text)
	}
	return texts
}

// Reset clears all recorded messages
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentMessages = m.SentMessages[:0]
	m.SentCount = 0
	m.FailNext = nil
}
