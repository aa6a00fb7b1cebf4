package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	last         time.Time
	blockedUntil time.Time
}

// Memory is an in-process lockout limiter with the same semantics as PG.
type Memory struct {
	mu  sync.Mutex
	pol Policy
	m   map[string]*entry
	now func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(pol Policy) *Memory {
	return &Memory{pol: pol, m: make(map[string]*entry), now: time.Now}
}

func key(subject string, ipHash []byte) string { return subject + "\x00" + string(ipHash) }

func (l *Memory) Allow(_ context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[key(subject, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (l *Memory) Success(_ context.Context, subject string, ipHash []byte) error {
	l.mu.Lock()
	delete(l.m, key(subject, ipHash))
	l.mu.Unlock()
	return nil
}

func (l *Memory) Failure(_ context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := key(subject, ipHash)
	e, ok := l.m[k]
	if !ok || now.Sub(e.last) > l.pol.Window {
		e = &entry{}
		l.m[k] = e
	}
	e.fails++
	e.last = now
	if e.fails < l.pol.MaxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(l.pol.BlockFor)
	return true, l.pol.BlockFor, nil
}
