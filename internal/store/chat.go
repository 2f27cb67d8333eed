package store

import (
	"database/sql"
	"fmt"
	"time"
)

const chatColumns = `number, name, is_favorite, wamid, unique_id, last_id, create_date, type,
	message_type, message, status, send_by_username, send_by_mobile, last_message_at,
	unread_count, unread, last_updated`

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (*Chat, error) {
	var c Chat
	var status string
	err := s.Scan(&c.Number, &c.Name, &c.IsFavorite, &c.Last.WAMID, &c.Last.UniqueID, &c.Last.ID,
		&c.Last.CreateDate, &c.Last.Type, &c.Last.MessageType, &c.Last.Message, &status,
		&c.Last.SendByUsername, &c.Last.SendByMobile, &c.Last.At,
		&c.UnreadCount, &c.Unread, &c.LastUpdated)
	if err != nil {
		return nil, err
	}
	c.Last.Status = Status(status)
	return &c, nil
}

func getChat(q queryer, number string) (*Chat, error) {
	c, err := scanChat(q.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE number = ?`, number))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func writeChat(tx *sql.Tx, c *Chat) error {
	_, err := tx.Exec(`
		INSERT INTO chats (`+chatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			name = excluded.name,
			is_favorite = excluded.is_favorite,
			wamid = excluded.wamid,
			unique_id = excluded.unique_id,
			last_id = excluded.last_id,
			create_date = excluded.create_date,
			type = excluded.type,
			message_type = excluded.message_type,
			message = excluded.message,
			status = excluded.status,
			send_by_username = excluded.send_by_username,
			send_by_mobile = excluded.send_by_mobile,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			unread = excluded.unread,
			last_updated = excluded.last_updated`,
		c.Number, c.Name, boolInt(c.IsFavorite), c.Last.WAMID, c.Last.UniqueID, c.Last.ID,
		c.Last.CreateDate, c.Last.Type, c.Last.MessageType, c.Last.Message, string(c.Last.Status),
		c.Last.SendByUsername, c.Last.SendByMobile, c.Last.At,
		c.UnreadCount, boolInt(c.Unread), c.LastUpdated)
	return err
}

// UpsertChats merges each input into the stored row for its number, creating
// rows that do not exist yet. Each merge is a read-modify-write inside one
// transaction. A Last mirror replaces the stored one as given. The merged
// rows are returned in input order.
func (db *DB) UpsertChats(in []ChatUpsert) ([]Chat, error) {
	return db.UpsertChatsWith(in, nil)
}

// ChatResolver rewrites an upsert against the row it is about to merge into.
// current is nil for a new chat.
type ChatResolver func(current *Chat, u ChatUpsert) ChatUpsert

// UpsertChatsWith is UpsertChats with resolve applied to each input inside
// the transaction, after the stored row has been read.
func (db *DB) UpsertChatsWith(in []ChatUpsert, resolve ChatResolver) ([]Chat, error) {
	out := make([]Chat, 0, len(in))
	err := db.withTx(func(tx *sql.Tx, changes *[]Change) error {
		now := time.Now().UnixMilli()
		for _, u := range in {
			if u.Number == "" {
				continue
			}
			existing, err := getChat(tx, u.Number)
			if err != nil {
				return fmt.Errorf("load chat %q: %w", u.Number, err)
			}
			if resolve != nil {
				u = resolve(existing, u)
			}
			merged := mergeChat(existing, u, now)
			if err := writeChat(tx, &merged); err != nil {
				return fmt.Errorf("upsert chat %q: %w", u.Number, err)
			}
			op := OpUpdate
			if existing == nil {
				op = OpInsert
			}
			*changes = append(*changes, Change{Table: TableChats, Op: op, Key: merged.Number, Row: merged})
			out = append(out, merged)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateChat applies a partial update to an existing chat. It returns nil
// when the chat does not exist.
func (db *DB) UpdateChat(number string, p ChatPatch) (*Chat, error) {
	var updated *Chat
	err := db.withTx(func(tx *sql.Tx, changes *[]Change) error {
		c, err := getChat(tx, number)
		if err != nil {
			return fmt.Errorf("load chat %q: %w", number, err)
		}
		if c == nil {
			return nil
		}
		if p.Name != nil {
			c.Name = *p.Name
		}
		if p.IsFavorite != nil {
			c.IsFavorite = *p.IsFavorite
		}
		if p.UnreadCount != nil {
			c.UnreadCount = max(*p.UnreadCount, 0)
		}
		if p.Last != nil {
			c.Last = *p.Last
		}
		if p.Status != nil {
			c.Last.Status = *p.Status
		}
		c.Unread = c.UnreadCount > 0
		c.LastUpdated = time.Now().UnixMilli()
		if err := writeChat(tx, c); err != nil {
			return fmt.Errorf("update chat %q: %w", number, err)
		}
		*changes = append(*changes, Change{Table: TableChats, Op: OpUpdate, Key: number, Row: *c})
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetChats returns all chats ordered by last_id descending. Callers that need
// true recency sort by Last.At.
func (db *DB) GetChats() ([]Chat, error) {
	rows, err := db.Query(`SELECT ` + chatColumns + ` FROM chats ORDER BY last_id DESC, number ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by number, or nil if absent.
func (db *DB) GetChat(number string) (*Chat, error) {
	return getChat(db, number)
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

func mergeChat(existing *Chat, u ChatUpsert, now int64) Chat {
	var c Chat
	if existing != nil {
		c = *existing
	} else {
		c.Number = u.Number
	}
	if u.Name != "" {
		c.Name = u.Name
	}
	if u.IsFavorite != nil {
		c.IsFavorite = *u.IsFavorite
	}
	if u.UnreadCount != nil {
		c.UnreadCount = max(*u.UnreadCount, 0)
	}
	c.UnreadCount = max(c.UnreadCount+u.UnreadDelta, 0)
	if u.Last != nil {
		c.Last = *u.Last
	}
	c.Unread = c.UnreadCount > 0
	c.LastUpdated = now
	return c
}

// SameMessage reports whether two mirrors identify the same message.
func SameMessage(a, b LastMessage) bool {
	switch {
	case a.WAMID != "" && a.WAMID == b.WAMID:
		return true
	case a.UniqueID != "" && a.UniqueID == b.UniqueID:
		return true
	case a.ID != 0 && a.ID == b.ID:
		return true
	}
	return false
}
