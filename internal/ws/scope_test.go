package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelScopeKeys(t *testing.T) {
	assert.Equal(t, "room-12345678", RoomScope("12345678").Key())
	assert.Equal(t, "project-p1", ProjectScope("p1").Key())
	assert.NotEqual(t, RoomScope("x").Key(), ProjectScope("x").Key())
	assert.True(t, ChannelScope{}.IsZero())
}

func TestSessionScopePrefersProject(t *testing.T) {
	s := &Session{}
	_, ok := s.Scope()
	assert.False(t, ok)

	s.setRoom("12345678")
	scope, ok := s.Scope()
	assert.True(t, ok)
	assert.Equal(t, RoomScope("12345678"), scope)

	s.setProject("p1")
	scope, _ = s.Scope()
	assert.Equal(t, ProjectScope("p1"), scope)
}
