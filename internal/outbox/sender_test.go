package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/ingest"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/store"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []remote.SendRequest
	err   error
}

func (m *mockSender) SendMessage(_ context.Context, _ remote.Tokens, req remote.SendRequest) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return store.Message{}, m.err
	}
	return store.Message{
		MessageID:   "srv-" + req.ChatNumber,
		WAMID:       "wamid-" + req.ChatNumber,
		Type:        store.DirectionOut,
		MessageType: "text",
		Message:     req.Text,
		Status:      store.StatusSent,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestSender(t *testing.T, mock *mockSender) (*Sender, *store.DB, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	s := NewSender(db, mock, ingest.NewIngestor(db, nil), b, "p1", nil, nil)
	return s, db, b
}

func TestSendIsOptimistic(t *testing.T) {
	s, db, _ := newTestSender(t, &mockSender{})

	msg, err := s.Send(t.Context(), "5511", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !store.IsTempID(msg.MessageID) || msg.Status != store.StatusPending {
		t.Errorf("message = %+v, want pending temp_*", msg)
	}

	msgs, err := db.GetMessages("5511")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MessageID != msg.MessageID || msgs[0].Type != store.DirectionOut {
		t.Fatalf("messages = %+v", msgs)
	}
	c, _ := db.GetChat("5511")
	if c == nil || c.Last.UniqueID != msg.MessageID || c.Last.Status != store.StatusPending {
		t.Errorf("chat mirror = %+v, want the placeholder", c)
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, outgoing must not count", c.UnreadCount)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 1 || pending[0].ClientMsgID != msg.MessageID || pending[0].Body != "hello" {
		t.Errorf("outbox = %+v", pending)
	}
}

func TestSendValidation(t *testing.T) {
	s, _, _ := newTestSender(t, &mockSender{})

	tests := []struct {
		name   string
		number string
		text   string
	}{
		{"empty number", "", "hi"},
		{"blank number", "  ", "hi"},
		{"empty text", "5511", ""},
		{"blank text", "5511", " \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Send(t.Context(), tt.number, tt.text); !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestDrainMergesServerRecord(t *testing.T) {
	mock := &mockSender{}
	s, db, b := newTestSender(t, mock)
	ch, unsub := b.Subscribe("outbox.", 10)
	defer unsub()

	msg, err := s.Send(t.Context(), "5511", "hello")
	if err != nil {
		t.Fatal(err)
	}
	s.Drain(t.Context())

	if mock.callCount() != 1 {
		t.Fatalf("got %d send calls, want 1", mock.callCount())
	}
	if req := mock.calls[0]; req.ProjectID != "p1" || req.ClientMsgID != msg.MessageID || req.Text != "hello" {
		t.Errorf("request = %+v", req)
	}

	msgs, _ := db.GetMessages("5511")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 after merge", len(msgs))
	}
	if msgs[0].MessageID != "srv-5511" || msgs[0].Status != store.StatusSent {
		t.Errorf("message = %+v, want srv-5511/sent", msgs[0])
	}
	c, _ := db.GetChat("5511")
	if c.Last.UniqueID != "srv-5511" {
		t.Errorf("chat mirror = %q, want srv-5511", c.Last.UniqueID)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}

	select {
	case evt := <-ch:
		ack, ok := evt.Payload.(Ack)
		if evt.Kind != bus.KindOutboxAck || !ok {
			t.Fatalf("event = %+v", evt)
		}
		if ack.ClientMsgID != msg.MessageID || ack.ServerMsgID != "srv-5511" {
			t.Errorf("ack = %+v", ack)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbox.ack")
	}
}

func TestDrainServerRejectionFails(t *testing.T) {
	mock := &mockSender{err: fmt.Errorf("%w: invalid number", remote.ErrServer)}
	s, db, b := newTestSender(t, mock)
	ch, unsub := b.Subscribe("outbox.", 10)
	defer unsub()

	msg, err := s.Send(t.Context(), "5511", "hello")
	if err != nil {
		t.Fatal(err)
	}
	s.Drain(t.Context())
	s.Drain(t.Context())

	if mock.callCount() != 1 {
		t.Errorf("got %d send calls, a rejection must not be retried", mock.callCount())
	}
	m, _ := db.FindMessageByMessageID(msg.MessageID)
	if m == nil || m.Status != store.StatusFailed || !strings.Contains(m.FailedReason, "invalid number") {
		t.Errorf("message = %+v, want failed", m)
	}
	c, _ := db.GetChat("5511")
	if c.Last.Status != store.StatusFailed {
		t.Errorf("chat status = %q, want failed", c.Last.Status)
	}

	select {
	case evt := <-ch:
		ack, _ := evt.Payload.(Ack)
		if evt.Kind != bus.KindOutboxFailed || ack.Error == "" {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbox.failed")
	}
}

func TestDrainRetriesTransientErrors(t *testing.T) {
	mock := &mockSender{err: errors.New("connection reset")}
	s, db, _ := newTestSender(t, mock)

	msg, err := s.Send(t.Context(), "5511", "hello")
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < DefaultMaxAttempts; i++ {
		s.Drain(t.Context())
		pending, _ := db.PendingOutbox()
		if len(pending) != 1 || pending[0].Status != "queued" || pending[0].Attempts != i {
			t.Fatalf("after attempt %d outbox = %+v", i, pending)
		}
		m, _ := db.FindMessageByMessageID(msg.MessageID)
		if m.Status != store.StatusPending {
			t.Fatalf("status = %q while retrying, want pending", m.Status)
		}
	}

	s.Drain(t.Context())
	if mock.callCount() != DefaultMaxAttempts {
		t.Errorf("got %d send calls, want %d", mock.callCount(), DefaultMaxAttempts)
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after final attempt", len(pending))
	}
	m, _ := db.FindMessageByMessageID(msg.MessageID)
	if m.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", m.Status)
	}
}

func TestDrainLeavesEntryOnShutdown(t *testing.T) {
	mock := &mockSender{err: context.Canceled}
	s, db, _ := newTestSender(t, mock)
	if _, err := s.Send(t.Context(), "5511", "hello"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	pending, _ := db.PendingOutbox()
	s.deliver(ctx, pending[0])

	pending, _ = db.PendingOutbox()
	if len(pending) != 1 || pending[0].Status != "sending" {
		t.Errorf("outbox = %+v, want entry left in sending", pending)
	}
}

func TestSenderLoop(t *testing.T) {
	mock := &mockSender{}
	s, db, _ := newTestSender(t, mock)
	s.Interval = 20 * time.Millisecond

	if _, err := s.Send(t.Context(), "5511", "hello"); err != nil {
		t.Fatal(err)
	}
	s.Start(t.Context())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, err := db.PendingOutbox()
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("outbox not drained")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if mock.callCount() != 1 {
		t.Errorf("got %d send calls, want 1", mock.callCount())
	}
}
