package store

import (
	"database/sql"
	"fmt"
)

const messageColumns = `message_id, wamid, server_id, chat_number, type, message_type, message,
	media_url, media_name, is_voice, latitude, longitude, location_name, location_address,
	contact_name, contact_number, status, failed_reason, is_template, is_forwarded, is_reply,
	reply_wamid, send_by_username, send_by_mobile, read_by_username, read_by_mobile,
	create_date, timestamp, retry_count`

func scanMessage(s scanner) (*Message, error) {
	var m Message
	var status string
	err := s.Scan(&m.MessageID, &m.WAMID, &m.ServerID, &m.ChatNumber, &m.Type, &m.MessageType, &m.Message,
		&m.MediaURL, &m.MediaName, &m.IsVoice, &m.Latitude, &m.Longitude, &m.LocationName, &m.LocationAddress,
		&m.ContactName, &m.ContactNumber, &status, &m.FailedReason, &m.IsTemplate, &m.IsForwarded, &m.IsReply,
		&m.ReplyWAMID, &m.SendByUsername, &m.SendByMobile, &m.ReadByUsername, &m.ReadByMobile,
		&m.CreateDate, &m.Timestamp, &m.RetryCount)
	if err != nil {
		return nil, err
	}
	m.Status = Status(status)
	return &m, nil
}

func messageArgs(m *Message) []any {
	return []any{m.MessageID, m.WAMID, m.ServerID, m.ChatNumber, m.Type, m.MessageType, m.Message,
		m.MediaURL, m.MediaName, boolInt(m.IsVoice), m.Latitude, m.Longitude, m.LocationName, m.LocationAddress,
		m.ContactName, m.ContactNumber, string(m.Status), m.FailedReason,
		boolInt(m.IsTemplate), boolInt(m.IsForwarded), boolInt(m.IsReply),
		m.ReplyWAMID, m.SendByUsername, m.SendByMobile, m.ReadByUsername, m.ReadByMobile,
		m.CreateDate, m.Timestamp, m.RetryCount}
}

func findMessage(q queryer, messageID string) (*Message, error) {
	m, err := scanMessage(q.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

const messageUpdateSet = `
	message_id = ?, wamid = ?, server_id = ?, chat_number = ?, type = ?, message_type = ?, message = ?,
	media_url = ?, media_name = ?, is_voice = ?, latitude = ?, longitude = ?, location_name = ?,
	location_address = ?, contact_name = ?, contact_number = ?, status = ?, failed_reason = ?,
	is_template = ?, is_forwarded = ?, is_reply = ?, reply_wamid = ?, send_by_username = ?,
	send_by_mobile = ?, read_by_username = ?, read_by_mobile = ?, create_date = ?, timestamp = ?,
	retry_count = ?`

// UpsertMessages updates each message in place when its message_id is
// already stored and inserts it otherwise.
func (db *DB) UpsertMessages(msgs []Message) error {
	return db.withTx(func(tx *sql.Tx, changes *[]Change) error {
		for i := range msgs {
			m := &msgs[i]
			if m.MessageID == "" || m.ChatNumber == "" {
				continue
			}
			existing, err := findMessage(tx, m.MessageID)
			if err != nil {
				return fmt.Errorf("load message %q: %w", m.MessageID, err)
			}
			op := OpInsert
			if existing != nil {
				op = OpUpdate
				_, err = tx.Exec(`UPDATE messages SET `+messageUpdateSet+` WHERE message_id = ?`,
					append(messageArgs(m), m.MessageID)...)
			} else {
				_, err = tx.Exec(`INSERT INTO messages (`+messageColumns+`)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					messageArgs(m)...)
			}
			if err != nil {
				return fmt.Errorf("upsert message %q: %w", m.MessageID, err)
			}
			*changes = append(*changes, Change{Table: TableMessages, Op: op, Key: m.MessageID, Row: *m})
		}
		return nil
	})
}

// RekeyMessage overwrites the row stored under oldID with m, including its
// message_id. It reports false when no row is stored under oldID.
func (db *DB) RekeyMessage(oldID string, m Message) (bool, error) {
	found := false
	err := db.withTx(func(tx *sql.Tx, changes *[]Change) error {
		res, err := tx.Exec(`UPDATE messages SET `+messageUpdateSet+` WHERE message_id = ?`,
			append(messageArgs(&m), oldID)...)
		if err != nil {
			return fmt.Errorf("rekey message %q: %w", oldID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		found = true
		*changes = append(*changes, Change{Table: TableMessages, Op: OpUpdate, Key: m.MessageID, Row: m})
		return nil
	})
	return found, err
}

// UpdateMessageStatus writes status (and failedReason for failed messages)
// without any precedence checks. It reports false when the message is absent.
func (db *DB) UpdateMessageStatus(messageID string, status Status, failedReason string) (bool, error) {
	found := false
	err := db.withTx(func(tx *sql.Tx, changes *[]Change) error {
		m, err := findMessage(tx, messageID)
		if err != nil {
			return fmt.Errorf("load message %q: %w", messageID, err)
		}
		if m == nil {
			return nil
		}
		m.Status = status
		if status == StatusFailed {
			m.FailedReason = failedReason
		}
		if _, err := tx.Exec(`UPDATE messages SET status = ?, failed_reason = ? WHERE message_id = ?`,
			string(m.Status), m.FailedReason, messageID); err != nil {
			return fmt.Errorf("update status %q: %w", messageID, err)
		}
		found = true
		*changes = append(*changes, Change{Table: TableMessages, Op: OpUpdate, Key: messageID, Row: *m})
		return nil
	})
	return found, err
}

// FindMessageByMessageID returns the message stored under messageID, or nil.
func (db *DB) FindMessageByMessageID(messageID string) (*Message, error) {
	return findMessage(db, messageID)
}

// FindMessageByWAMID returns the newest message carrying the provider id, or nil.
func (db *DB) FindMessageByWAMID(wamid string) (*Message, error) {
	if wamid == "" {
		return nil, nil
	}
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages
		WHERE wamid = ? ORDER BY id DESC LIMIT 1`, wamid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessages returns all messages of a chat ordered by timestamp, ties
// broken by insertion order.
func (db *DB) GetMessages(chatNumber string) ([]Message, error) {
	rows, err := db.Query(`SELECT `+messageColumns+` FROM messages
		WHERE chat_number = ?
		ORDER BY timestamp ASC, id ASC`, chatNumber)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// LatestMessage returns the newest message of a chat by timestamp, or nil.
func (db *DB) LatestMessage(chatNumber string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages
		WHERE chat_number = ?
		ORDER BY timestamp DESC, id DESC LIMIT 1`, chatNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
