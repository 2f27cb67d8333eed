// Package ingest applies push channel events to the local store.
package ingest

import (
	"github.com/matheus3301/livechat/internal/store"
	"github.com/matheus3301/livechat/internal/wire"
)

// Decision is the chat-level outcome of one push event.
type Decision struct {
	// Patch is the chat write to persist. It carries either UnreadCount=0
	// (open chat) or UnreadDelta, never a computed absolute count.
	Patch       store.ChatUpsert
	UnreadDelta int
	ResetUnread bool
	// NewMessage is true when the event's identifiers differ from the
	// cached last-message mirror.
	NewMessage bool
}

// Decide computes the unread transition for evt given the cached chat row
// and the chat the user currently has open. Status events never touch the
// unread count. A message into the open chat resets it to zero; a new
// incoming message into any other chat adds one; duplicates and outgoing
// echoes leave it unchanged.
func Decide(cached *store.Chat, evt wire.PushEvent, openChat string) Decision {
	if evt.Kind != wire.KindMessage {
		return Decision{}
	}

	mirror := evt.Message.Mirror()
	d := Decision{
		Patch: store.ChatUpsert{
			Number: evt.ChatNumber,
			Name:   evt.ContactName,
			Last:   &mirror,
		},
		NewMessage: cached == nil || !store.SameMessage(cached.Last, mirror),
	}

	switch {
	case openChat != "" && evt.ChatNumber == openChat:
		zero := 0
		d.Patch.UnreadCount = &zero
		d.ResetUnread = true
	case d.NewMessage && evt.Message.Type != store.DirectionOut:
		d.UnreadDelta = 1
		d.Patch.UnreadDelta = 1
	}
	return d
}
