package reconcile

import "github.com/matheus3301/livechat/internal/store"

// ResolveMirror picks the chat mirror to keep when next arrives while cur is
// stored. A mirror of the same message takes the status ShouldApply allows
// and keeps identifiers next leaves empty. A mirror of a different message
// wins unless it is older than cur.
func ResolveMirror(cur, next store.LastMessage) store.LastMessage {
	if !store.SameMessage(cur, next) {
		if cur.At > 0 && next.At > 0 && next.At < cur.At {
			return cur
		}
		return next
	}
	if !ShouldApply(cur.Status, next.Status) {
		next.Status = cur.Status
	}
	if next.WAMID == "" {
		next.WAMID = cur.WAMID
	}
	if next.UniqueID == "" {
		next.UniqueID = cur.UniqueID
	}
	if next.ID == 0 {
		next.ID = cur.ID
	}
	if next.SendByUsername == "" {
		next.SendByUsername = cur.SendByUsername
		next.SendByMobile = cur.SendByMobile
	}
	if next.At == 0 {
		next.At = cur.At
	}
	return next
}

// KeepNewestMirror is a store.ChatResolver applying ResolveMirror to the
// upsert's mirror.
func KeepNewestMirror(current *store.Chat, u store.ChatUpsert) store.ChatUpsert {
	if current == nil || u.Last == nil {
		return u
	}
	last := ResolveMirror(current.Last, *u.Last)
	u.Last = &last
	return u
}
