package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

// Result describes the state of a key after a Check or Record.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type window struct {
	key   string
	count int
	start time.Time
}

// Limiter is a fixed-window attempt counter keyed by client identity. At most
// maxKeys windows are tracked; the least recently touched key is evicted first.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	maxKeys int
	now     func() time.Time
	order   *list.List
	entries map[string]*list.Element
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter allowing max attempts per key per window.
func New(max int, window time.Duration, maxKeys int, opts ...Option) *Limiter {
	if maxKeys <= 0 {
		maxKeys = 1
	}
	l := &Limiter{
		max:     max,
		window:  window,
		maxKeys: maxKeys,
		now:     time.Now,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether key still has budget without consuming any.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.lookup(key)
	if w == nil {
		return Result{Allowed: true, Remaining: l.max}
	}
	return l.result(w)
}

// Record consumes one attempt for key.
func (l *Limiter) Record(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.lookup(key)
	if w == nil {
		w = l.insert(key)
	}
	w.count++
	return l.result(w)
}

// Reset forgets key, e.g. after a successful attempt.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.entries[key]; ok {
		l.order.Remove(el)
		delete(l.entries, key)
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

func (l *Limiter) lookup(key string) *window {
	el, ok := l.entries[key]
	if !ok {
		return nil
	}
	w := el.Value.(*window)
	if l.now().Sub(w.start) >= l.window {
		l.order.Remove(el)
		delete(l.entries, key)
		return nil
	}
	l.order.MoveToFront(el)
	return w
}

func (l *Limiter) insert(key string) *window {
	for l.order.Len() >= l.maxKeys {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.entries, oldest.Value.(*window).key)
	}
	w := &window{key: key, start: l.now()}
	l.entries[key] = l.order.PushFront(w)
	return w
}

func (l *Limiter) result(w *window) Result {
	remaining := l.max - w.count
	if remaining > 0 {
		return Result{Allowed: true, Remaining: remaining}
	}
	return Result{Allowed: false, RetryAfter: w.start.Add(l.window).Sub(l.now())}
}
