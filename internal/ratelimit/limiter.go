// Package ratelimit implements per-connection fixed-window limits for
// realtime operations. State is local to the process: a connection lives on
// exactly one gateway instance.
package ratelimit

import (
	"sync"
	"time"
)

// Kind names a rate-limited operation.
type Kind string

const (
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
)

// Defaults match the realtime gateway's published limits.
const (
	DefaultLimit  = 30
	DefaultWindow = time.Minute
)

type window struct {
	start time.Time
	count int
}

type key struct {
	conn string
	kind Kind
}

// Limiter is safe for concurrent use.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[key]*window
}

// New creates a Limiter allowing limit calls per window for each connection
// and kind. Non-positive values fall back to the defaults.
func New(limit int, win time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  win,
		now:     time.Now,
		windows: make(map[key]*window),
	}
}

// WithClock replaces the time source. It must be called before first use.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow counts one call of kind on conn. It returns false, without counting,
// once the window's cap is reached. A window older than the window length is
// reset on the next call.
func (l *Limiter) Allow(conn string, kind Kind) bool {
	now := l.now()
	k := key{conn: conn, kind: kind}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok {
		w = &window{start: now}
		l.windows[k] = w
	}
	if now.Sub(w.start) > l.window {
		w.start = now
		w.count = 0
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remove drops every window held for conn.
func (l *Limiter) Remove(conn string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.windows {
		if k.conn == conn {
			delete(l.windows, k)
		}
	}
}

// Len reports the number of live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
