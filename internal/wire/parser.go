// Package wire normalizes the REST sync and push channel payloads into store
// types. Payloads are loosely shaped (numbers as strings, optional blocks,
// mixed boolean encodings) so decoding goes through gjson rather than
// fixed structs.
package wire

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/matheus3301/livechat/internal/store"
	"github.com/tidwall/gjson"
)

// ErrMalformed is returned when a payload cannot be normalized.
var ErrMalformed = errors.New("malformed payload")

// SyncPage is one page of the remote chat-list snapshot.
type SyncPage struct {
	Chats   []store.ChatUpsert
	LastID  int64
	HasMore bool
	// Skipped counts records dropped for missing a contact number.
	Skipped int
}

// Kind tags a PushEvent.
type Kind int

const (
	KindMessage Kind = iota + 1
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindStatus:
		return "status"
	}
	return "unknown"
}

// PushEvent is a decoded push channel event. Message events carry Message;
// status events carry MessageID, Status and FailedReason.
type PushEvent struct {
	Kind        Kind
	ChatNumber  string
	ContactName string

	Message store.Message

	MessageID    string
	Status       store.Status
	FailedReason string
}

// ServerError reports whether data is an `{"error": true}` response and
// returns its message.
func ServerError(data []byte) (string, bool) {
	if !gjson.ValidBytes(data) {
		return "", false
	}
	root := gjson.ParseBytes(data)
	if !root.Get("error").Bool() {
		return "", false
	}
	for _, key := range []string{"message", "msg", "error_message"} {
		if m := root.Get(key); m.Exists() {
			return m.String(), true
		}
	}
	return "server error", true
}

// DecodeSyncPage decodes `{error, data: [{contact, last_message}], last_id, has_more}`.
// Records that are not objects or lack contact.number are skipped.
func DecodeSyncPage(data []byte) (*SyncPage, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("sync page: %w", ErrMalformed)
	}
	root := gjson.ParseBytes(data)

	items := root.Get("data")
	if items.Exists() && !items.IsArray() {
		return nil, fmt.Errorf("sync page data is %s: %w", items.Type, ErrMalformed)
	}

	page := &SyncPage{
		LastID:  root.Get("last_id").Int(),
		HasMore: root.Get("has_more").Bool(),
	}
	items.ForEach(func(_, rec gjson.Result) bool {
		u, ok := parseChatRecord(rec)
		if !ok {
			page.Skipped++
			return true
		}
		page.Chats = append(page.Chats, u)
		return true
	})
	return page, nil
}

func parseChatRecord(rec gjson.Result) (store.ChatUpsert, bool) {
	if !rec.IsObject() {
		return store.ChatUpsert{}, false
	}
	contact := rec.Get("contact")
	number := contact.Get("number").String()
	if number == "" {
		return store.ChatUpsert{}, false
	}

	u := store.ChatUpsert{
		Number: number,
		Name:   contact.Get("name").String(),
	}
	// Only a real JSON boolean is authoritative; null, absent or 0/1 are not.
	if fav := contact.Get("is_favorite"); fav.Type == gjson.True || fav.Type == gjson.False {
		b := fav.Bool()
		u.IsFavorite = &b
	}
	if lm := rec.Get("last_message"); lm.IsObject() {
		last := parseLastMessage(lm)
		u.Last = &last
	}
	return u, true
}

func parseLastMessage(lm gjson.Result) store.LastMessage {
	createDate := lm.Get("create_date").String()
	return store.LastMessage{
		WAMID:          lm.Get("wamid").String(),
		UniqueID:       lm.Get("unique_id").String(),
		ID:             lm.Get("id").Int(),
		CreateDate:     createDate,
		Type:           lm.Get("type").String(),
		MessageType:    lm.Get("message_type").String(),
		Message:        lm.Get("message").String(),
		Status:         store.ParseStatus(lm.Get("status").String()),
		SendByUsername: lm.Get("send_by.username").String(),
		SendByMobile:   lm.Get("send_by.mobile").String(),
		At:             ParseTimestamp(createDate),
	}
}

// DecodePushEvent decodes one push channel frame. A frame with a `changes`
// field is a status event; anything else must carry a message.
func DecodePushEvent(data []byte) (PushEvent, error) {
	if !gjson.ValidBytes(data) {
		return PushEvent{}, fmt.Errorf("push event: %w", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return PushEvent{}, fmt.Errorf("push event is %s: %w", root.Type, ErrMalformed)
	}

	evt := PushEvent{
		ChatNumber:  root.Get("contact.number").String(),
		ContactName: root.Get("contact.name").String(),
	}

	if changes := root.Get("changes"); changes.Exists() {
		evt.Kind = KindStatus
		evt.Status = store.ParseStatus(changes.String())
		if evt.Status == "" || evt.Status == store.StatusPending {
			return PushEvent{}, fmt.Errorf("status event changes=%q: %w", changes.String(), ErrMalformed)
		}
		evt.MessageID = firstString(root, "message_id", "wamid", "message.message_id", "message.wamid")
		if evt.MessageID == "" {
			return PushEvent{}, fmt.Errorf("status event without message id: %w", ErrMalformed)
		}
		evt.FailedReason = firstString(root, "failed_reason", "message.failed_reason")
		if evt.ChatNumber == "" {
			evt.ChatNumber = root.Get("chat_number").String()
		}
		return evt, nil
	}

	msg := root.Get("message")
	if !msg.IsObject() {
		return PushEvent{}, fmt.Errorf("push event without message: %w", ErrMalformed)
	}
	evt.Kind = KindMessage
	evt.Message = parseMessage(msg)
	if evt.ChatNumber == "" {
		evt.ChatNumber = evt.Message.ChatNumber
	}
	evt.Message.ChatNumber = evt.ChatNumber
	if evt.ChatNumber == "" || evt.Message.MessageID == "" {
		return PushEvent{}, fmt.Errorf("message event without number or id: %w", ErrMalformed)
	}
	return evt, nil
}

// DecodeServerMessage decodes the send-path response: either the message
// object itself or `{error, data: {...}}`.
func DecodeServerMessage(data []byte) (store.Message, error) {
	if !gjson.ValidBytes(data) {
		return store.Message{}, fmt.Errorf("server message: %w", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	msg := root
	if d := root.Get("data"); d.IsObject() {
		msg = d
	}
	if !msg.IsObject() {
		return store.Message{}, fmt.Errorf("server message is %s: %w", msg.Type, ErrMalformed)
	}
	m := parseMessage(msg)
	if m.MessageID == "" {
		return store.Message{}, fmt.Errorf("server message without id: %w", ErrMalformed)
	}
	return m, nil
}

// parseMessage normalizes a message object. The key falls back from
// message_id to wamid, unique_id and finally the numeric server id.
func parseMessage(r gjson.Result) store.Message {
	m := store.Message{
		MessageID:       r.Get("message_id").String(),
		WAMID:           r.Get("wamid").String(),
		ServerID:        r.Get("id").Int(),
		ChatNumber:      firstString(r, "chat_number", "number"),
		Type:            r.Get("type").String(),
		MessageType:     r.Get("message_type").String(),
		Message:         firstString(r, "message", "caption"),
		MediaURL:        r.Get("media_url").String(),
		MediaName:       r.Get("media_name").String(),
		IsVoice:         r.Get("is_voice").Bool(),
		Latitude:        r.Get("latitude").Float(),
		Longitude:       r.Get("longitude").Float(),
		LocationName:    r.Get("location_name").String(),
		LocationAddress: r.Get("location_address").String(),
		ContactName:     r.Get("contact_name").String(),
		ContactNumber:   r.Get("contact_number").String(),
		Status:          store.ParseStatus(r.Get("status").String()),
		FailedReason:    r.Get("failed_reason").String(),
		IsTemplate:      r.Get("is_template").Bool(),
		IsForwarded:     r.Get("is_forwarded").Bool(),
		IsReply:         r.Get("is_reply").Bool(),
		ReplyWAMID:      r.Get("reply_wamid").String(),
		SendByUsername:  r.Get("send_by.username").String(),
		SendByMobile:    r.Get("send_by.mobile").String(),
		ReadByUsername:  r.Get("read_by.username").String(),
		ReadByMobile:    r.Get("read_by.mobile").String(),
		CreateDate:      r.Get("create_date").String(),
		RetryCount:      int(r.Get("retry_count").Int()),
	}
	if m.MessageID == "" {
		m.MessageID = firstString(r, "wamid", "unique_id")
	}
	if m.MessageID == "" && m.ServerID != 0 {
		m.MessageID = strconv.FormatInt(m.ServerID, 10)
	}
	if ts := r.Get("timestamp"); ts.Exists() {
		m.Timestamp = timestampResult(ts)
	}
	if m.Timestamp == 0 {
		m.Timestamp = ParseTimestamp(m.CreateDate)
	}
	return m
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
