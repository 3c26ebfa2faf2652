package testutil

import (
	"strings"
	"sync"
)

// RecordingLogger collects Logger messages.
type RecordingLogger struct {
	mu       sync.Mutex
	messages []string
}

// Log appends message. Pass rl.Log where an engine.Logger is expected.
func (l *RecordingLogger) Log(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
}

// Messages returns a copy of the collected messages.
func (l *RecordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

// Contains reports whether any message contains substr.
func (l *RecordingLogger) Contains(substr string) bool {
	for _, m := range l.Messages() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
