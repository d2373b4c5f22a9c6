package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelsAddRemove(t *testing.T) {
	c := NewChannels()
	room := RoomScope("12345678")
	a, b := newFakeSender("a"), newFakeSender("b")
	t0 := time.Unix(100, 0)

	c.Add(room, member{sender: a, userID: "u1", joinedAt: t0})
	c.Add(room, member{sender: a, userID: "u1", joinedAt: t0.Add(time.Minute)})
	require.Equal(t, 1, c.Len(room))
	assert.Equal(t, t0, c.Members(room)[0].joinedAt, "re-adding keeps the first join time")

	c.Add(room, member{sender: b, userID: "u2", joinedAt: t0})
	require.Equal(t, 2, c.Len(room))
	assert.Equal(t, []Sender{b}, c.Others(room, "a"))
	assert.True(t, c.HasUser(room, "u1"))
	assert.False(t, c.HasUser(ProjectScope("12345678"), "u1"))

	removed, emptied := c.Remove(room, "a")
	assert.True(t, removed)
	assert.False(t, emptied)

	removed, _ = c.Remove(room, "a")
	assert.False(t, removed)

	removed, emptied = c.Remove(room, "b")
	assert.True(t, removed)
	assert.True(t, emptied)
	assert.Empty(t, c.Members(room))
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	s := r.Create(newFakeSender("c1"), "u1", "alice", time.Now())

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	r.Remove("c1")
	_, ok = r.Get("c1")
	assert.False(t, ok)
	r.Remove("c1")
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("room-1/u1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestRevisionTracker(t *testing.T) {
	tr := newRevisionTracker()
	scope := RoomScope("12345678")
	t0 := time.Unix(1000, 0)

	rev, conflict := tr.Next(scope, "f1", "u1", t0)
	assert.Equal(t, uint64(1), rev)
	assert.False(t, conflict)

	rev, conflict = tr.Next(scope, "f1", "u2", t0.Add(500*time.Millisecond))
	assert.Equal(t, uint64(2), rev)
	assert.True(t, conflict)

	rev, conflict = tr.Next(scope, "f1", "u1", t0.Add(10*time.Second))
	assert.Equal(t, uint64(3), rev)
	assert.False(t, conflict)

	tr.Forget(scope)
	rev, _ = tr.Next(scope, "f1", "u1", t0)
	assert.Equal(t, uint64(1), rev)
}
