package editor

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStatusTTL is how long a status message stays current.
const DefaultStatusTTL = 5 * time.Second

// StatusLine holds the latest transient status message.
type StatusLine struct {
	mu  sync.Mutex
	msg string
	at  time.Time
	ttl time.Duration
	now func() time.Time
}

// NewStatusLine creates a status line. A nil clock uses time.Now.
func NewStatusLine(ttl time.Duration, now func() time.Time) *StatusLine {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StatusLine{ttl: ttl, now: now}
}

// Set replaces the message.
func (s *StatusLine) Set(msg string) {
	s.mu.Lock()
	s.msg = msg
	s.at = s.now()
	s.mu.Unlock()
}

// Setf formats and sets the message.
func (s *StatusLine) Setf(format string, args ...any) {
	s.Set(fmt.Sprintf(format, args...))
}

// Last returns the latest message and when it was set, expired or not.
func (s *StatusLine) Last() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msg, s.at
}

// Current returns the message while it is within its TTL, else "".
func (s *StatusLine) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.msg == "" || s.now().Sub(s.at) > s.ttl {
		return ""
	}
	return s.msg
}

// String renders the current message with its timestamp.
func (s *StatusLine) String() string {
	msg := s.Current()
	if msg == "" {
		return ""
	}
	_, at := s.Last()
	return fmt.Sprintf("[%s] %s", at.Format("15:04:05"), msg)
}
