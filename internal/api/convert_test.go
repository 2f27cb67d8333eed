package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/cache"
	"github.com/matheus3301/livechat/internal/outbox"
	"github.com/matheus3301/livechat/internal/push"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/status"
	"github.com/matheus3301/livechat/internal/store"
	intsync "github.com/matheus3301/livechat/internal/sync"
	"github.com/matheus3301/livechat/internal/wire"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: disk", cache.ErrUnavailable), codes.Unavailable},
		{fmt.Errorf("%w: text", outbox.ErrInvalidMessage), codes.InvalidArgument},
		{intsync.ErrInProgress, codes.Aborted},
		{fmt.Errorf("fetch: %w", remote.ErrTokenExpired), codes.Unauthenticated},
		{fmt.Errorf("fetch: %w", remote.ErrServer), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPayloadValue(t *testing.T) {
	change := payloadValue(store.Change{
		Table: store.TableMessages,
		Op:    store.OpUpdate,
		Key:   "m1",
		Row:   store.Message{MessageID: "m1", ChatNumber: "5511", Status: store.StatusRead, Timestamp: 1700000000123},
	}).GetStructValue()
	if getString(change, "table") != "messages" || getString(change, "op") != "update" {
		t.Errorf("change = %v", change)
	}
	row := MessageFromStruct(change.GetFields()["row"].GetStructValue())
	if row.MessageID != "m1" || row.Status != store.StatusRead || row.Timestamp != 1700000000123 {
		t.Errorf("row = %+v", row)
	}

	sc := payloadValue(status.StatusChange{From: status.Booting, To: status.Ready}).GetStructValue()
	if getString(sc, "from") != "BOOTING" || getString(sc, "to") != "READY" {
		t.Errorf("status change = %v", sc)
	}

	st := payloadValue(wire.PushEvent{Kind: wire.KindStatus, MessageID: "w1", Status: store.StatusDelivered}).GetStructValue()
	if getString(st, "message_id") != "w1" || getString(st, "status") != "delivered" {
		t.Errorf("push status = %v", st)
	}

	d := payloadValue(push.Disconnect{Reason: "eof", Retry: 2 * time.Second}).GetStructValue()
	if getInt64(d, "retry_ms") != 2000 {
		t.Errorf("disconnect = %v", d)
	}

	if v := payloadValue("5511"); v.GetStringValue() != "5511" {
		t.Errorf("string payload = %v", v)
	}
	if v := payloadValue(nil); v.GetNullValue() != 0 || v.GetKind() == nil {
		t.Errorf("nil payload = %v", v)
	}
}

func TestEnvelope(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	env := envelope("id-1", "p1", bus.Event{Kind: bus.KindOutboxAck, Timestamp: at, Payload: outbox.Ack{ClientMsgID: "temp_1", ServerMsgID: "srv"}})

	e := EventFromStruct(env)
	if e.ID != "id-1" || e.Project != "p1" || e.Kind != "outbox.ack" || !e.OccurredAt.Equal(at) {
		t.Errorf("event = %+v", e)
	}
	if got := getString(e.Payload.GetStructValue(), "server_msg_id"); got != "srv" {
		t.Errorf("server_msg_id = %q", got)
	}
}

func TestChatStructRoundTrip(t *testing.T) {
	in := store.Chat{
		Number:      "5511",
		Name:        "Ana",
		IsFavorite:  true,
		UnreadCount: 2,
		Unread:      true,
		LastUpdated: 1700000000999,
		Last: store.LastMessage{
			UniqueID: "m1",
			ID:       42,
			Type:     store.DirectionOut,
			Status:   store.StatusDelivered,
			At:       1700000000000,
		},
	}
	out := ChatFromStruct(ChatToStruct(in))
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if got := getString(ChatToStruct(store.Chat{Number: "5522"}), "display_name"); got != "5522" {
		t.Errorf("display_name = %q, want number fallback", got)
	}
}
