package reconcile

import (
	"fmt"

	"github.com/matheus3301/livechat/internal/store"
	"go.uber.org/zap"
)

// MergeResult reports how a server echo was stored.
type MergeResult struct {
	// Merged is true when a temp_* placeholder was rewritten in place.
	Merged bool
	// TempID is the placeholder that was rewritten, if any.
	TempID string
	// Inserted is true when no placeholder matched and the echo became a new row.
	Inserted  bool
	MessageID string
}

// Merger reconciles optimistic temp_* outgoing messages with the server's
// authoritative record of the same message.
type Merger struct {
	db     *store.DB
	logger *zap.Logger
}

// NewMerger creates a merger backed by db.
func NewMerger(db *store.DB, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{db: db, logger: logger}
}

// MergeServerEcho stores server as the confirmed version of a pending
// outgoing message in chatNumber. The newest matching placeholder is
// rewritten in place; with no match the echo is inserted as a new row.
func (m *Merger) MergeServerEcho(chatNumber string, server store.Message) (MergeResult, error) {
	if server.ChatNumber == "" {
		server.ChatNumber = chatNumber
	}

	known, err := m.db.FindMessageByMessageID(server.MessageID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("lookup %q: %w", server.MessageID, err)
	}
	if known != nil {
		// Already confirmed through another path; refresh without regressing status.
		updated := overlay(*known, server)
		if err := m.db.UpsertMessages([]store.Message{updated}); err != nil {
			return MergeResult{}, fmt.Errorf("update confirmed message: %w", err)
		}
		if err := m.refreshChat(chatNumber, "", updated); err != nil {
			return MergeResult{}, err
		}
		return MergeResult{MessageID: updated.MessageID}, nil
	}

	msgs, err := m.db.GetMessages(chatNumber)
	if err != nil {
		return MergeResult{}, fmt.Errorf("load messages: %w", err)
	}

	if cand := findPlaceholder(msgs, server); cand != nil {
		merged := overlay(*cand, server)
		ok, err := m.db.RekeyMessage(cand.MessageID, merged)
		if err != nil {
			return MergeResult{}, fmt.Errorf("rewrite placeholder %q: %w", cand.MessageID, err)
		}
		if ok {
			m.logger.Debug("merged server echo",
				zap.String("temp_id", cand.MessageID),
				zap.String("message_id", merged.MessageID))
			if err := m.refreshChat(chatNumber, cand.MessageID, merged); err != nil {
				return MergeResult{}, err
			}
			return MergeResult{Merged: true, TempID: cand.MessageID, MessageID: merged.MessageID}, nil
		}
	}

	if err := m.db.UpsertMessages([]store.Message{server}); err != nil {
		return MergeResult{}, fmt.Errorf("insert server echo: %w", err)
	}
	if err := m.refreshChat(chatNumber, "", server); err != nil {
		return MergeResult{}, err
	}
	return MergeResult{Inserted: true, MessageID: server.MessageID}, nil
}

// findPlaceholder scans newest first for an unconfirmed outgoing temp_*
// message whose content matches the echo exactly.
func findPlaceholder(msgs []store.Message, server store.Message) *store.Message {
	isText := server.MediaURL == "" && (server.MessageType == "" || server.MessageType == "text")
	for i := len(msgs) - 1; i >= 0; i-- {
		c := &msgs[i]
		if c.Type != store.DirectionOut || !store.IsTempID(c.MessageID) {
			continue
		}
		switch c.Status {
		case store.StatusPending, store.StatusSent, "":
		default:
			continue
		}
		if isText {
			if c.MessageType == "text" && c.Message == server.Message {
				return c
			}
			continue
		}
		if c.MediaURL != "" && c.MediaURL == server.MediaURL {
			return c
		}
	}
	return nil
}

// overlay copies the server-owned identity and content fields of server onto
// base, keeping every other field of base.
func overlay(base, server store.Message) store.Message {
	base.MessageID = server.MessageID
	if server.WAMID != "" {
		base.WAMID = server.WAMID
	}
	if server.ServerID != 0 {
		base.ServerID = server.ServerID
	}
	if server.CreateDate != "" {
		base.CreateDate = server.CreateDate
	}
	if server.Status != "" && ShouldApply(base.Status, server.Status) {
		base.Status = server.Status
		base.FailedReason = server.FailedReason
	}
	if server.MessageType != "" {
		base.MessageType = server.MessageType
	}
	if server.Message != "" {
		base.Message = server.Message
	}
	if server.Timestamp != 0 {
		base.Timestamp = server.Timestamp
	}
	if server.MediaURL != "" {
		base.MediaURL = server.MediaURL
	}
	if server.SendByUsername != "" {
		base.SendByUsername = server.SendByUsername
		base.SendByMobile = server.SendByMobile
	}
	return base
}

// refreshChat points the chat mirror at msg. A mirror still showing the
// rewritten placeholder is replaced unconditionally; otherwise the regular
// upsert merge decides whether msg is newer.
func (m *Merger) refreshChat(chatNumber, tempID string, msg store.Message) error {
	mirror := msg.Mirror()
	if tempID != "" {
		chat, err := m.db.GetChat(chatNumber)
		if err != nil {
			return fmt.Errorf("load chat: %w", err)
		}
		if chat != nil && chat.Last.UniqueID == tempID {
			if _, err := m.db.UpdateChat(chatNumber, store.ChatPatch{Last: &mirror}); err != nil {
				return fmt.Errorf("refresh chat mirror: %w", err)
			}
			return nil
		}
	}
	if _, err := m.db.UpsertChatsWith([]store.ChatUpsert{{Number: chatNumber, Last: &mirror}}, KeepNewestMirror); err != nil {
		return fmt.Errorf("refresh chat mirror: %w", err)
	}
	return nil
}
