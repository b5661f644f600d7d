package service

import "sync"

// ticketLocks serializes write operations per ticket ID so a transition can
// never interleave with a pause/resume or another transition on the same
// ticket. Reads do not take the lock.
type ticketLocks struct {
	locks sync.Map
}

func newTicketLocks() *ticketLocks {
	return &ticketLocks{}
}

// Lock acquires the mutex for a ticket and returns its release func.
func (l *ticketLocks) Lock(ticketID string) func() {
	entry, _ := l.locks.LoadOrStore(ticketID, &sync.Mutex{})
	mu := entry.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
