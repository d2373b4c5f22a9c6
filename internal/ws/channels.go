package ws

import (
	"sync"
	"time"
)

// Sender delivers encoded frames to one connection without blocking.
type Sender interface {
	ConnID() string
	Send(frame []byte) bool
}

type member struct {
	sender   Sender
	userID   string
	username string
	joinedAt time.Time
}

// Channels holds the live membership of every room and project channel.
type Channels struct {
	mu     sync.RWMutex
	groups map[string]map[string]member
}

func NewChannels() *Channels {
	return &Channels{groups: make(map[string]map[string]member)}
}

// Add registers m in scope. Re-adding a connection keeps its original joinedAt.
func (c *Channels) Add(scope ChannelScope, m member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	group, ok := c.groups[scope.Key()]
	if !ok {
		group = make(map[string]member)
		c.groups[scope.Key()] = group
	}
	if existing, ok := group[m.sender.ConnID()]; ok {
		m.joinedAt = existing.joinedAt
	}
	group[m.sender.ConnID()] = m
}

// Remove drops connID from scope. emptied is true when the channel has no
// members left afterwards.
func (c *Channels) Remove(scope ChannelScope, connID string) (removed, emptied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	group, ok := c.groups[scope.Key()]
	if !ok {
		return false, false
	}
	if _, ok := group[connID]; !ok {
		return false, false
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(c.groups, scope.Key())
		return true, true
	}
	return true, false
}

// Members returns a snapshot of scope's members.
func (c *Channels) Members(scope ChannelScope) []member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	group := c.groups[scope.Key()]
	out := make([]member, 0, len(group))
	for _, m := range group {
		out = append(out, m)
	}
	return out
}

// Others returns the senders in scope except connID.
func (c *Channels) Others(scope ChannelScope, connID string) []Sender {
	c.mu.RLock()
	defer c.mu.RUnlock()
	group := c.groups[scope.Key()]
	out := make([]Sender, 0, len(group))
	for id, m := range group {
		if id != connID {
			out = append(out, m.sender)
		}
	}
	return out
}

// HasUser reports whether userID holds any connection in scope.
func (c *Channels) HasUser(scope ChannelScope, userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.groups[scope.Key()] {
		if m.userID == userID {
			return true
		}
	}
	return false
}

func (c *Channels) Contains(scope ChannelScope, connID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.groups[scope.Key()][connID]
	return ok
}

func (c *Channels) Len(scope ChannelScope) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups[scope.Key()])
}
