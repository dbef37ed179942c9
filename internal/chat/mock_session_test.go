package chat

import (
	"strings"
	"sync"
)

// recordingSession 记录收到的所有事件。
type recordingSession struct {
	name string

	mu     sync.Mutex
	events []Event
}

func newRecordingSession(name string) *recordingSession {
	return &recordingSession{name: name}
}

func (s *recordingSession) Name() string {
	return s.name
}

func (s *recordingSession) Deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSession) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Take 返回并清空已记录的事件。
func (s *recordingSession) Take() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}

type stubValidator struct{}

func (stubValidator) IsValidChannelName(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t")
}

func (stubValidator) IsValidMessage(text string) bool {
	return strings.TrimSpace(text) != ""
}
