package api

import (
	"fmt"
	"time"

	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/outbox"
	"github.com/matheus3301/livechat/internal/push"
	"github.com/matheus3301/livechat/internal/status"
	"github.com/matheus3301/livechat/internal/store"
	intsync "github.com/matheus3301/livechat/internal/sync"
	"github.com/matheus3301/livechat/internal/wire"
	"google.golang.org/protobuf/types/known/structpb"
)

type fields map[string]*structpb.Value

func (f fields) toStruct() *structpb.Struct {
	return &structpb.Struct{Fields: f}
}

func str(s string) *structpb.Value { return structpb.NewStringValue(s) }
func boolean(b bool) *structpb.Value { return structpb.NewBoolValue(b) }

func num[T int | int64 | float64](n T) *structpb.Value {
	return structpb.NewNumberValue(float64(n))
}

func getString(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func getInt64(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

func getFloat(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func getBool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func has(s *structpb.Struct, key string) bool {
	_, ok := s.GetFields()[key]
	return ok
}

// ChatToStruct encodes a chat row, including its last-message mirror.
func ChatToStruct(c store.Chat) *structpb.Struct {
	return fields{
		"number":       str(c.Number),
		"name":         str(c.Name),
		"display_name": str(c.DisplayName()),
		"is_favorite":  boolean(c.IsFavorite),
		"unread_count": num(c.UnreadCount),
		"unread":       boolean(c.Unread),
		"last_updated": num(c.LastUpdated),
		"last":         structpb.NewStructValue(lastToStruct(c.Last)),
	}.toStruct()
}

func lastToStruct(l store.LastMessage) *structpb.Struct {
	return fields{
		"wamid":            str(l.WAMID),
		"unique_id":        str(l.UniqueID),
		"id":               num(l.ID),
		"create_date":      str(l.CreateDate),
		"type":             str(l.Type),
		"message_type":     str(l.MessageType),
		"message":          str(l.Message),
		"status":           str(string(l.Status)),
		"send_by_username": str(l.SendByUsername),
		"send_by_mobile":   str(l.SendByMobile),
		"at":               num(l.At),
	}.toStruct()
}

// ChatFromStruct decodes a struct produced by ChatToStruct.
func ChatFromStruct(s *structpb.Struct) store.Chat {
	last := s.GetFields()["last"].GetStructValue()
	return store.Chat{
		Number:      getString(s, "number"),
		Name:        getString(s, "name"),
		IsFavorite:  getBool(s, "is_favorite"),
		UnreadCount: int(getInt64(s, "unread_count")),
		Unread:      getBool(s, "unread"),
		LastUpdated: getInt64(s, "last_updated"),
		Last: store.LastMessage{
			WAMID:          getString(last, "wamid"),
			UniqueID:       getString(last, "unique_id"),
			ID:             getInt64(last, "id"),
			CreateDate:     getString(last, "create_date"),
			Type:           getString(last, "type"),
			MessageType:    getString(last, "message_type"),
			Message:        getString(last, "message"),
			Status:         store.Status(getString(last, "status")),
			SendByUsername: getString(last, "send_by_username"),
			SendByMobile:   getString(last, "send_by_mobile"),
			At:             getInt64(last, "at"),
		},
	}
}

// MessageToStruct encodes a message row.
func MessageToStruct(m store.Message) *structpb.Struct {
	return fields{
		"message_id":       str(m.MessageID),
		"wamid":            str(m.WAMID),
		"id":               num(m.ServerID),
		"chat_number":      str(m.ChatNumber),
		"type":             str(m.Type),
		"message_type":     str(m.MessageType),
		"message":          str(m.Message),
		"media_url":        str(m.MediaURL),
		"media_name":       str(m.MediaName),
		"is_voice":         boolean(m.IsVoice),
		"latitude":         num(m.Latitude),
		"longitude":        num(m.Longitude),
		"location_name":    str(m.LocationName),
		"location_address": str(m.LocationAddress),
		"contact_name":     str(m.ContactName),
		"contact_number":   str(m.ContactNumber),
		"status":           str(string(m.Status)),
		"failed_reason":    str(m.FailedReason),
		"is_template":      boolean(m.IsTemplate),
		"is_forwarded":     boolean(m.IsForwarded),
		"is_reply":         boolean(m.IsReply),
		"reply_wamid":      str(m.ReplyWAMID),
		"send_by_username": str(m.SendByUsername),
		"send_by_mobile":   str(m.SendByMobile),
		"read_by_username": str(m.ReadByUsername),
		"read_by_mobile":   str(m.ReadByMobile),
		"create_date":      str(m.CreateDate),
		"timestamp":        num(m.Timestamp),
		"retry_count":      num(m.RetryCount),
	}.toStruct()
}

// MessageFromStruct decodes a struct produced by MessageToStruct.
func MessageFromStruct(s *structpb.Struct) store.Message {
	return store.Message{
		MessageID:       getString(s, "message_id"),
		WAMID:           getString(s, "wamid"),
		ServerID:        getInt64(s, "id"),
		ChatNumber:      getString(s, "chat_number"),
		Type:            getString(s, "type"),
		MessageType:     getString(s, "message_type"),
		Message:         getString(s, "message"),
		MediaURL:        getString(s, "media_url"),
		MediaName:       getString(s, "media_name"),
		IsVoice:         getBool(s, "is_voice"),
		Latitude:        getFloat(s, "latitude"),
		Longitude:       getFloat(s, "longitude"),
		LocationName:    getString(s, "location_name"),
		LocationAddress: getString(s, "location_address"),
		ContactName:     getString(s, "contact_name"),
		ContactNumber:   getString(s, "contact_number"),
		Status:          store.Status(getString(s, "status")),
		FailedReason:    getString(s, "failed_reason"),
		IsTemplate:      getBool(s, "is_template"),
		IsForwarded:     getBool(s, "is_forwarded"),
		IsReply:         getBool(s, "is_reply"),
		ReplyWAMID:      getString(s, "reply_wamid"),
		SendByUsername:  getString(s, "send_by_username"),
		SendByMobile:    getString(s, "send_by_mobile"),
		ReadByUsername:  getString(s, "read_by_username"),
		ReadByMobile:    getString(s, "read_by_mobile"),
		CreateDate:      getString(s, "create_date"),
		Timestamp:       getInt64(s, "timestamp"),
		RetryCount:      int(getInt64(s, "retry_count")),
	}
}

// SearchResult is a decoded search hit.
type SearchResult struct {
	Message store.Message
	Snippet string
}

func searchResultToStruct(r store.SearchResult) *structpb.Struct {
	return fields{
		"message": structpb.NewStructValue(MessageToStruct(r.Message)),
		"snippet": str(r.Snippet),
	}.toStruct()
}

// SearchResultFromStruct decodes one element of a SearchMessages response.
func SearchResultFromStruct(s *structpb.Struct) SearchResult {
	return SearchResult{
		Message: MessageFromStruct(s.GetFields()["message"].GetStructValue()),
		Snippet: getString(s, "snippet"),
	}
}

func summaryToStruct(sum intsync.Summary) *structpb.Struct {
	return fields{
		"pages":   num(sum.Pages),
		"chats":   num(sum.Chats),
		"skipped": num(sum.Skipped),
		"last_id": num(sum.LastID),
	}.toStruct()
}

// SummaryFromStruct decodes a SyncNow response.
func SummaryFromStruct(s *structpb.Struct) intsync.Summary {
	return intsync.Summary{
		Pages:   int(getInt64(s, "pages")),
		Chats:   int(getInt64(s, "chats")),
		Skipped: int(getInt64(s, "skipped")),
		LastID:  getInt64(s, "last_id"),
	}
}

// payloadValue encodes the payload of a bus event for WatchChanges.
func payloadValue(p any) *structpb.Value {
	switch v := p.(type) {
	case nil:
		return structpb.NewNullValue()
	case string:
		return str(v)
	case store.Change:
		f := fields{
			"table": str(v.Table),
			"op":    str(string(v.Op)),
			"key":   str(v.Key),
		}
		switch row := v.Row.(type) {
		case store.Chat:
			f["row"] = structpb.NewStructValue(ChatToStruct(row))
		case store.Message:
			f["row"] = structpb.NewStructValue(MessageToStruct(row))
		}
		return structpb.NewStructValue(f.toStruct())
	case status.StatusChange:
		return structpb.NewStructValue(fields{
			"from":   str(string(v.From)),
			"to":     str(string(v.To)),
			"reason": str(v.Reason),
		}.toStruct())
	case outbox.Ack:
		return structpb.NewStructValue(fields{
			"client_msg_id": str(v.ClientMsgID),
			"server_msg_id": str(v.ServerMsgID),
			"chat_number":   str(v.ChatNumber),
			"error":         str(v.Error),
		}.toStruct())
	case intsync.Summary:
		return structpb.NewStructValue(summaryToStruct(v))
	case wire.PushEvent:
		f := fields{
			"kind":        str(v.Kind.String()),
			"chat_number": str(v.ChatNumber),
		}
		if v.Kind == wire.KindStatus {
			f["message_id"] = str(v.MessageID)
			f["status"] = str(string(v.Status))
		} else {
			f["message"] = structpb.NewStructValue(MessageToStruct(v.Message))
		}
		return structpb.NewStructValue(f.toStruct())
	case push.Disconnect:
		return structpb.NewStructValue(fields{
			"reason":   str(v.Reason),
			"retry_ms": num(v.Retry.Milliseconds()),
		}.toStruct())
	}
	return str(fmt.Sprint(p))
}

func envelope(eventID, projectID string, evt bus.Event) *structpb.Struct {
	return fields{
		"event_id":            str(eventID),
		"project":             str(projectID),
		"kind":                str(evt.Kind),
		"occurred_at_unix_ms": num(evt.Timestamp.UnixMilli()),
		"payload":             payloadValue(evt.Payload),
	}.toStruct()
}

// Event is a decoded WatchChanges envelope.
type Event struct {
	ID         string
	Project    string
	Kind       string
	OccurredAt time.Time
	Payload    *structpb.Value
}

// EventFromStruct decodes a WatchChanges envelope.
func EventFromStruct(s *structpb.Struct) Event {
	return Event{
		ID:         getString(s, "event_id"),
		Project:    getString(s, "project"),
		Kind:       getString(s, "kind"),
		OccurredAt: time.UnixMilli(getInt64(s, "occurred_at_unix_ms")),
		Payload:    s.GetFields()["payload"],
	}
}
