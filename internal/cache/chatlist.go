package cache

import (
	"cmp"
	"slices"
	"sync"

	"github.com/matheus3301/livechat/internal/store"
)

// ChatList is the in-memory chat list. It is loaded once from the store and
// then kept in step by applying every committed chat row it is notified of.
// The store delivers notifications in commit order, so the last row applied
// is the row the store holds.
type ChatList struct {
	mu     sync.RWMutex
	byNum  map[string]store.Chat
	sorted []store.Chat
}

// NewChatList creates an empty list.
func NewChatList() *ChatList {
	return &ChatList{byNum: make(map[string]store.Chat)}
}

// Load replaces the list with the store's contents.
func (l *ChatList) Load(db *store.DB) error {
	chats, err := db.GetChats()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byNum = make(map[string]store.Chat, len(chats))
	for _, c := range chats {
		l.byNum[c.Number] = c
	}
	l.resort()
	return nil
}

// Changed implements store.ChangeListener.
func (l *ChatList) Changed(c store.Change) {
	if c.Table != store.TableChats {
		return
	}
	chat, ok := c.Row.(store.Chat)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byNum[chat.Number] = chat
	l.resort()
}

// Snapshot returns a copy of the list, most recent first.
func (l *ChatList) Snapshot() []store.Chat {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.sorted)
}

// Len returns the number of chats.
func (l *ChatList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sorted)
}

func (l *ChatList) resort() {
	l.sorted = l.sorted[:0]
	for _, c := range l.byNum {
		l.sorted = append(l.sorted, c)
	}
	slices.SortFunc(l.sorted, compareRecency)
}

// compareRecency orders by last message time, then last update, newest
// first, with the number as a stable tie-break.
func compareRecency(a, b store.Chat) int {
	if c := cmp.Compare(b.Last.At, a.Last.At); c != 0 {
		return c
	}
	if c := cmp.Compare(b.LastUpdated, a.LastUpdated); c != 0 {
		return c
	}
	return cmp.Compare(a.Number, b.Number)
}
