package engagement

import "sync"

// userLocks hands out one mutex per chat id. Entries are dropped when the
// last holder releases, so the map only grows with concurrent activity.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[int64]*userLock)}
}

// Lock blocks until chatID is free and returns its release func.
func (l *userLocks) Lock(chatID int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[chatID]
	if !ok {
		ul = &userLock{}
		l.m[chatID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, chatID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
