package telegram

import "sync"

// chatLocks allows one image in flight per chat.
type chatLocks struct {
	m sync.Map // chatID -> struct{}
}

func (c *chatLocks) tryLock(chatID int64) bool {
	_, loaded := c.m.LoadOrStore(chatID, struct{}{})
	return !loaded
}

func (c *chatLocks) unlock(chatID int64) { c.m.Delete(chatID) }
