package ws

import (
	"sync"
	"time"
)

// Session is the server-side record of one authenticated connection.
type Session struct {
	ConnID      string
	UserID      string
	Username    string
	ConnectedAt time.Time
	Info        ConnInfo

	sender    Sender
	closeOnce sync.Once

	mu      sync.RWMutex
	room    string
	project string
}

func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) Project() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project
}

func (s *Session) setRoom(roomID string) {
	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()
}

func (s *Session) setProject(projectID string) {
	s.mu.Lock()
	s.project = projectID
	s.mu.Unlock()
}

// Scope resolves where relayed events go: the project channel when one is
// joined, otherwise the room channel. ok is false outside any room.
func (s *Session) Scope() (scope ChannelScope, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == "" {
		return ChannelScope{}, false
	}
	if s.project != "" {
		return ProjectScope(s.project), true
	}
	return RoomScope(s.room), true
}

// Registry maps connection ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Create(sender Sender, userID, username string, at time.Time) *Session {
	s := &Session{
		ConnID:      sender.ConnID(),
		UserID:      userID,
		Username:    username,
		ConnectedAt: at,
		sender:      sender,
	}
	r.mu.Lock()
	r.sessions[s.ConnID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
