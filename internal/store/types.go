package store

import "strings"

// Status is the delivery status of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Level returns the position of s in the pending < sent < delivered < read
// lattice. Failed and unknown statuses have level 0.
func (s Status) Level() int {
	switch s {
	case StatusPending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	}
	return 0
}

// ParseStatus normalizes a provider status string. Unknown values map to "".
func ParseStatus(s string) Status {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return st
	}
	return ""
}

// Direction values for Message.Type and LastMessage.Type.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// TempPrefix marks client-generated message IDs awaiting server confirmation.
const TempPrefix = "temp_"

// IsTempID reports whether id is a client-generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// LastMessage mirrors the most recently known message of a chat.
type LastMessage struct {
	WAMID          string
	UniqueID       string
	ID             int64
	CreateDate     string
	Type           string
	MessageType    string
	Message        string
	Status         Status
	SendByUsername string
	SendByMobile   string
	At             int64 // epoch ms, parsed from CreateDate
}

// Chat is the per-counterparty conversation summary row.
type Chat struct {
	Number      string
	Name        string
	IsFavorite  bool
	Last        LastMessage
	UnreadCount int
	Unread      bool
	LastUpdated int64
}

// DisplayName returns the chat name, falling back to the number.
func (c *Chat) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Number
}

// ChatUpsert describes an incoming chat write. Nil pointer fields keep the
// stored value; a nil Last keeps the stored last-message mirror.
// UnreadDelta is added after UnreadCount is applied, inside the same
// transaction, so increments never race with resets.
type ChatUpsert struct {
	Number      string
	Name        string
	IsFavorite  *bool
	UnreadCount *int
	UnreadDelta int
	Last        *LastMessage
}

// ChatPatch is a partial update applied by UpdateChat.
type ChatPatch struct {
	Name        *string
	IsFavorite  *bool
	UnreadCount *int
	Status      *Status
	Last        *LastMessage
}

// Message is one logical chat message.
type Message struct {
	MessageID       string
	WAMID           string
	ServerID        int64
	ChatNumber      string
	Type            string
	MessageType     string
	Message         string
	MediaURL        string
	MediaName       string
	IsVoice         bool
	Latitude        float64
	Longitude       float64
	LocationName    string
	LocationAddress string
	ContactName     string
	ContactNumber   string
	Status          Status
	FailedReason    string
	IsTemplate      bool
	IsForwarded     bool
	IsReply         bool
	ReplyWAMID      string
	SendByUsername  string
	SendByMobile    string
	ReadByUsername  string
	ReadByMobile    string
	CreateDate      string
	Timestamp       int64
	RetryCount      int
}

// Mirror builds the chat last-message view of m.
func (m *Message) Mirror() LastMessage {
	return LastMessage{
		WAMID:          m.WAMID,
		UniqueID:       m.MessageID,
		ID:             m.ServerID,
		CreateDate:     m.CreateDate,
		Type:           m.Type,
		MessageType:    m.MessageType,
		Message:        m.Message,
		Status:         m.Status,
		SendByUsername: m.SendByUsername,
		SendByMobile:   m.SendByMobile,
		At:             m.Timestamp,
	}
}

// OutboxEntry represents a queued outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatNumber   string
	Body         string
	Status       string // queued, sending, sent, failed
	Attempts     int
	ErrorMessage string
	ServerMsgID  string
	CreatedAt    int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
