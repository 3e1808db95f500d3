package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "promptcal/internal/log"
)

// DefaultMaxSessions bounds the number of live conversations.
const DefaultMaxSessions = 100

// Sessions is the set of live conversations, keyed by a random ID. Sessions
// are in memory only. Past Max, Create evicts the oldest idle conversation.
type Sessions struct {
	Max int

	dispatcher Dispatcher
	sink       EventSink
	config     ConfigSource
	loc        *time.Location

	mu       sync.Mutex
	sessions map[string]*Conversation
	order    []string
}

func NewSessions(d Dispatcher, sink EventSink, cfg ConfigSource, loc *time.Location) *Sessions {
	return &Sessions{
		Max:        DefaultMaxSessions,
		dispatcher: d,
		sink:       sink,
		config:     cfg,
		loc:        loc,
		sessions:   make(map[string]*Conversation),
	}
}

// Create starts a new, empty conversation.
func (s *Sessions) Create() *Conversation {
	conv := NewConversation(uuid.NewString(), s.dispatcher, s.sink, s.config, s.loc)
	s.mu.Lock()
	s.sessions[conv.ID] = conv
	s.order = append(s.order, conv.ID)
	s.evictLocked()
	s.mu.Unlock()
	appLog.Debug("assistant session created", "session", conv.ID)
	return conv
}

// evictLocked drops the oldest idle conversations until the set fits in Max.
// Busy ones are skipped, so the set may stay over Max while turns run.
func (s *Sessions) evictLocked() {
	if s.Max <= 0 {
		return
	}
	for i := 0; len(s.order) > s.Max && i < len(s.order)-1; {
		id := s.order[i]
		if s.sessions[id].Busy() {
			i++
			continue
		}
		delete(s.sessions, id)
		s.order = append(s.order[:i], s.order[i+1:]...)
		appLog.Debug("assistant session evicted", "session", id)
	}
}

func (s *Sessions) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.sessions[id]
	return conv, ok
}

// Delete drops a conversation. It reports whether it existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// IDs lists session IDs in creation order.
func (s *Sessions) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

