package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"collab-service/internal/models"
)

func TestProjectPresenceDeduplicatesByUser(t *testing.T) {
	t0 := time.Unix(100, 0)
	members := []member{
		{sender: newFakeSender("b2"), userID: "b", username: "bob", joinedAt: t0.Add(2 * time.Second)},
		{sender: newFakeSender("a1"), userID: "a", username: "alice", joinedAt: t0},
		{sender: newFakeSender("b1"), userID: "b", username: "bob", joinedAt: t0.Add(time.Second)},
	}

	got := projectPresence(members, nil, t0)

	assert.Equal(t, []Presence{
		{UserID: "a", Username: "alice", JoinedAt: t0, Connections: 1},
		{UserID: "b", Username: "bob", JoinedAt: t0.Add(time.Second), Connections: 2},
	}, got)
}

func TestProjectPresenceIncludesSelf(t *testing.T) {
	t0 := time.Unix(100, 0)
	now := t0.Add(time.Minute)
	members := []member{{sender: newFakeSender("a1"), userID: "a", username: "alice", joinedAt: t0}}

	got := projectPresence(members, &models.UserRef{ID: "c", Username: "carol"}, now)
	assert.Len(t, got, 2)
	assert.Equal(t, "c", got[1].UserID)
	assert.Equal(t, now, got[1].JoinedAt)

	got = projectPresence(members, &models.UserRef{ID: "a", Username: "alice"}, now)
	assert.Len(t, got, 1)
}

func TestProjectPresenceEmpty(t *testing.T) {
	assert.Empty(t, projectPresence(nil, nil, time.Now()))
}
