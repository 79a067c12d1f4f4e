package receive

import "sync"

// chatLocks serializes receive processing per chat. Two concurrent
// deliveries for the same chat must not race the guard-check/persist
// pair; deliveries for different chats stay fully parallel.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for chatID and returns its unlock func.
func (c *chatLocks) acquire(chatID string) func() {
	c.mu.Lock()
	l, ok := c.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[chatID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
