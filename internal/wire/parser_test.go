package wire

import (
	"errors"
	"testing"

	"github.com/matheus3301/livechat/internal/store"
)

func TestDecodeSyncPage(t *testing.T) {
	data := []byte(`{
		"error": false,
		"last_id": 120,
		"has_more": true,
		"data": [
			{"contact": {"number": "5511999", "name": "Ana", "is_favorite": true},
			 "last_message": {"wamid": "wamid.A", "id": 77, "unique_id": "u-1",
				"create_date": "2024-05-01 10:00:00", "type": "in", "message_type": "text",
				"message": "oi", "status": "READ", "send_by": {"username": "bob", "mobile": "55"}}},
			{"contact": {"number": 5522, "name": ""}},
			{"contact": {"name": "no number"}},
			"garbage"
		]
	}`)

	page, err := DecodeSyncPage(data)
	if err != nil {
		t.Fatal(err)
	}
	if page.LastID != 120 || !page.HasMore {
		t.Errorf("cursor = %d/%v, want 120/true", page.LastID, page.HasMore)
	}
	if page.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", page.Skipped)
	}
	if len(page.Chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(page.Chats))
	}

	first := page.Chats[0]
	if first.Number != "5511999" || first.Name != "Ana" {
		t.Errorf("identity = %q/%q", first.Number, first.Name)
	}
	if first.IsFavorite == nil || !*first.IsFavorite {
		t.Error("is_favorite not decoded")
	}
	if first.UnreadCount != nil {
		t.Error("sync page must never carry unread_count")
	}
	if first.Last == nil {
		t.Fatal("last message missing")
	}
	l := first.Last
	if l.WAMID != "wamid.A" || l.ID != 77 || l.UniqueID != "u-1" || l.Status != store.StatusRead {
		t.Errorf("last = %+v", l)
	}
	if l.SendByUsername != "bob" || l.SendByMobile != "55" {
		t.Errorf("send_by = %q/%q", l.SendByUsername, l.SendByMobile)
	}
	if l.At != 1714557600000 {
		t.Errorf("at = %d, want 1714557600000", l.At)
	}

	second := page.Chats[1]
	if second.Number != "5522" {
		t.Errorf("numeric number decoded as %q", second.Number)
	}
	if second.IsFavorite != nil {
		t.Error("absent is_favorite must stay nil")
	}
	if second.Last != nil {
		t.Error("absent last_message must stay nil")
	}
}

func TestDecodeSyncPageFavoriteEncodings(t *testing.T) {
	tests := []struct {
		name string
		fav  string
		want *bool
	}{
		{"true", `true`, boolPtr(true)},
		{"false", `false`, boolPtr(false)},
		{"null", `null`, nil},
		{"number", `1`, nil},
		{"string", `"true"`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodeSyncPage([]byte(`{"data":[{"contact":{"number":"1","is_favorite":` + tt.fav + `}}]}`))
			if err != nil {
				t.Fatal(err)
			}
			got := page.Chats[0].IsFavorite
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("is_favorite = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeSyncPageMalformed(t *testing.T) {
	for _, in := range []string{`not json`, `{"data": {"x": 1}}`} {
		if _, err := DecodeSyncPage([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeSyncPage(%s) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestServerError(t *testing.T) {
	msg, ok := ServerError([]byte(`{"error": true, "message": "invalid project"}`))
	if !ok || msg != "invalid project" {
		t.Errorf("ServerError = %q, %v", msg, ok)
	}
	if _, ok := ServerError([]byte(`{"error": false, "data": []}`)); ok {
		t.Error("error=false reported as server error")
	}
}

func TestDecodePushEventMessage(t *testing.T) {
	evt, err := DecodePushEvent([]byte(`{
		"contact": {"number": "5511", "name": "Ana"},
		"message": {"wamid": "wamid.X", "id": "12", "type": "in", "message_type": "image",
			"message": "", "caption": "look", "media_url": "https://cdn/a.jpg", "is_voice": 0,
			"timestamp": 1714557600, "status": "delivered",
			"read_by": {"username": "carol"}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != KindMessage {
		t.Fatalf("kind = %v, want message", evt.Kind)
	}
	m := evt.Message
	if m.MessageID != "wamid.X" {
		t.Errorf("message id fallback = %q, want wamid.X", m.MessageID)
	}
	if m.ChatNumber != "5511" || evt.ContactName != "Ana" {
		t.Errorf("chat = %q/%q", m.ChatNumber, evt.ContactName)
	}
	if m.ServerID != 12 || m.Message != "look" || m.MediaURL != "https://cdn/a.jpg" {
		t.Errorf("message = %+v", m)
	}
	if m.Timestamp != 1714557600000 {
		t.Errorf("timestamp = %d, want seconds scaled to ms", m.Timestamp)
	}
	if m.ReadByUsername != "carol" || m.Status != store.StatusDelivered {
		t.Errorf("read_by/status = %q/%q", m.ReadByUsername, m.Status)
	}
}

func TestDecodePushEventStatus(t *testing.T) {
	evt, err := DecodePushEvent([]byte(`{"changes": "failed", "wamid": "wamid.Y", "failed_reason": "blocked"}`))
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != KindStatus || evt.MessageID != "wamid.Y" || evt.Status != store.StatusFailed || evt.FailedReason != "blocked" {
		t.Errorf("event = %+v", evt)
	}
}

func TestDecodePushEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"invalid json", `{`},
		{"array", `[]`},
		{"unknown change", `{"changes": "archived", "message_id": "m"}`},
		{"pending change", `{"changes": "pending", "message_id": "m"}`},
		{"status without id", `{"changes": "read"}`},
		{"no message", `{"contact": {"number": "1"}}`},
		{"no number", `{"message": {"message_id": "m"}}`},
		{"no id", `{"contact": {"number": "1"}, "message": {"message": "hi"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePushEvent([]byte(tt.in)); !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeServerMessage(t *testing.T) {
	m, err := DecodeServerMessage([]byte(`{"error": false, "data": {"message_id": "srv-1", "wamid": "w", "id": 9,
		"type": "out", "message_type": "text", "message": "hello", "status": "sent",
		"create_date": "2024-05-01T10:00:00Z"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.MessageID != "srv-1" || m.ServerID != 9 || m.Status != store.StatusSent || m.Timestamp != 1714557600000 {
		t.Errorf("message = %+v", m)
	}

	if _, err := DecodeServerMessage([]byte(`{"data": {"message": "no id"}}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"garbage", 0},
		{"2024-05-01 10:00:00", 1714557600000},
		{"2024-05-01T10:00:00Z", 1714557600000},
		{"2024-05-01T07:00:00-03:00", 1714557600000},
		{"1714557600", 1714557600000},
		{"1714557600123", 1714557600123},
	}
	for _, tt := range tests {
		if got := ParseTimestamp(tt.in); got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
