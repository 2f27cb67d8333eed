package store

// Table names reported in change notifications.
const (
	TableChats    = "chats"
	TableMessages = "messages"
)

// Op is the kind of write that produced a change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Change describes one committed row write. Row holds a Chat or a Message.
type Change struct {
	Table string
	Op    Op
	Key   string
	Row   any
}

// ChangeListener observes committed writes.
type ChangeListener interface {
	Changed(c Change)
}

// ChangeFunc adapts a function to ChangeListener.
type ChangeFunc func(c Change)

func (f ChangeFunc) Changed(c Change) { f(c) }

// OnChange registers l for every subsequent committed write.
func (db *DB) OnChange(l ChangeListener) {
	db.mu.Lock()
	db.listeners = append(db.listeners, l)
	db.mu.Unlock()
}

func (db *DB) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	db.mu.RLock()
	listeners := append([]ChangeListener(nil), db.listeners...)
	db.mu.RUnlock()
	for _, c := range changes {
		for _, l := range listeners {
			l.Changed(c)
		}
	}
}
