package ws

import (
	"sync"
	"time"
)

const conflictWindow = 2 * time.Second

type fileRevision struct {
	rev    uint64
	author string
	at     time.Time
}

// revisionTracker counts accepted code-change events per file. It only
// observes; the relay never consults it to reject or reorder edits.
type revisionTracker struct {
	mu    sync.Mutex
	files map[string]map[string]fileRevision
}

func newRevisionTracker() *revisionTracker {
	return &revisionTracker{files: make(map[string]map[string]fileRevision)}
}

// Next bumps fileID's revision in scope. conflict reports that a different
// author wrote the same file less than conflictWindow ago.
func (t *revisionTracker) Next(scope ChannelScope, fileID, author string, at time.Time) (rev uint64, conflict bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	files, ok := t.files[scope.Key()]
	if !ok {
		files = make(map[string]fileRevision)
		t.files[scope.Key()] = files
	}
	prev := files[fileID]
	conflict = prev.rev > 0 && prev.author != author && at.Sub(prev.at) < conflictWindow
	next := fileRevision{rev: prev.rev + 1, author: author, at: at}
	files[fileID] = next
	return next.rev, conflict
}

// Forget drops every counter of scope.
func (t *revisionTracker) Forget(scope ChannelScope) {
	t.mu.Lock()
	delete(t.files, scope.Key())
	t.mu.Unlock()
}
