package xrayclient

import "sync"

// inboundLocks serializes read-modify-write cycles on one inbound's client list
type inboundLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newInboundLocks() *inboundLocks {
	return &inboundLocks{locks: make(map[int]*sync.Mutex)}
}

// lock acquires the mutex for inboundID and returns its release func
func (l *inboundLocks) lock(inboundID int) func() {
	l.mu.Lock()
	m, ok := l.locks[inboundID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[inboundID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
