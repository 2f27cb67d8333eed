package api_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/livechat/internal/api"
	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/cache"
	"github.com/matheus3301/livechat/internal/client"
	"github.com/matheus3301/livechat/internal/ingest"
	"github.com/matheus3301/livechat/internal/outbox"
	"github.com/matheus3301/livechat/internal/project"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/status"
	"github.com/matheus3301/livechat/internal/store"
	intsync "github.com/matheus3301/livechat/internal/sync"
	"github.com/matheus3301/livechat/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type stubSender struct{}

func (stubSender) SendMessage(_ context.Context, _ remote.Tokens, req remote.SendRequest) (store.Message, error) {
	return store.Message{MessageID: "srv-1", Type: store.DirectionOut, Message: req.Text, Status: store.StatusSent}, nil
}

type stubFetcher struct{}

func (stubFetcher) FetchChats(context.Context, remote.Tokens, string, int64) (*wire.SyncPage, error) {
	return &wire.SyncPage{Chats: []store.ChatUpsert{{Number: "5522", Name: "Bia"}}}, nil
}

type fakePush struct{ up bool }

func (p fakePush) Connected() bool { return p.up }

type harness struct {
	client *client.Client
	db     *store.DB
	bus    *bus.Bus
	view   *cache.ViewState
}

// serve starts the chat service on a short-path Unix socket.
func serve(t *testing.T, d api.Deps, opts ...grpc.ServerOption) *client.Client {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "livechat-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "d.sock")

	srv := grpc.NewServer(opts...)
	api.RegisterChatServiceServer(srv, api.NewChatService(d))
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newHarness(t *testing.T, opts ...grpc.ServerOption) *harness {
	t.Helper()
	t.Setenv(project.HomeEnv, t.TempDir())
	c := cache.New(nil)
	if err := c.Init("p1"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	db, err := c.DB()
	if err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	db.OnChange(bus.NewNotifier(b))
	ing := ingest.NewIngestor(db, nil)
	view := cache.NewViewState(b)
	d := api.Deps{
		ProjectID: "p1",
		Cache:     c,
		View:      view,
		Ingestor:  ing,
		Sender:    outbox.NewSender(db, stubSender{}, ing, b, "p1", nil, nil),
		Syncer:    intsync.NewOrchestrator(db, stubFetcher{}, b, "p1", nil),
		Machine:   status.NewMachine(b),
		Push:      fakePush{up: true},
		Bus:       b,
	}
	return &harness{client: serve(t, d, opts...), db: db, bus: b, view: view}
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %v (%v), want %v", got, err, code)
	}
}

func TestListAndOpenChat(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	three := 3
	if _, err := h.db.UpsertChats([]store.ChatUpsert{{
		Number:      "5511",
		Name:        "Ana",
		UnreadCount: &three,
		Last:        &store.LastMessage{UniqueID: "m1", Type: store.DirectionIn, Message: "hi", At: 1000},
	}}); err != nil {
		t.Fatal(err)
	}

	chats, err := h.client.ListChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].Number != "5511" || chats[0].UnreadCount != 3 || !chats[0].Unread {
		t.Fatalf("chats = %+v", chats)
	}
	if chats[0].Last.Message != "hi" || chats[0].Last.At != 1000 {
		t.Errorf("last = %+v", chats[0].Last)
	}

	opened, err := h.client.OpenChat(ctx, "5511")
	if err != nil {
		t.Fatal(err)
	}
	if opened.UnreadCount != 0 || opened.Unread {
		t.Errorf("opened = %+v, want unread reset", opened)
	}
	if h.view.OpenChat() != "5511" {
		t.Errorf("open chat = %q", h.view.OpenChat())
	}

	if _, err := h.client.OpenChat(ctx, ""); err == nil {
		t.Error("OpenChat with empty number should fail")
	} else {
		wantCode(t, err, codes.InvalidArgument)
	}

	if err := h.client.CloseChat(ctx); err != nil {
		t.Fatal(err)
	}
	if h.view.OpenChat() != "" {
		t.Errorf("open chat = %q after close", h.view.OpenChat())
	}
}

func TestUpdateChat(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	if _, err := h.db.UpsertChats([]store.ChatUpsert{{Number: "5511", Name: "Ana"}}); err != nil {
		t.Fatal(err)
	}

	fav := true
	c, err := h.client.UpdateChat(ctx, "5511", client.ChatUpdate{IsFavorite: &fav})
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsFavorite || c.Name != "Ana" {
		t.Errorf("chat = %+v, want favorite with name kept", c)
	}

	_, err = h.client.UpdateChat(ctx, "9999", client.ChatUpdate{IsFavorite: &fav})
	wantCode(t, err, codes.NotFound)

	neg := -1
	_, err = h.client.UpdateChat(ctx, "5511", client.ChatUpdate{UnreadCount: &neg})
	wantCode(t, err, codes.InvalidArgument)
}

func TestSendTextAndListMessages(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	msg, err := h.client.SendText(ctx, "5511", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !store.IsTempID(msg.MessageID) || msg.Status != store.StatusPending || msg.Message != "hello" {
		t.Errorf("message = %+v", msg)
	}

	msgs, err := h.client.ListMessages(ctx, "5511")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MessageID != msg.MessageID {
		t.Errorf("messages = %+v", msgs)
	}

	_, err = h.client.SendText(ctx, "5511", "   ")
	wantCode(t, err, codes.InvalidArgument)
}

func TestSyncNowAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	sum, err := h.client.SyncNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Pages != 1 || sum.Chats != 1 {
		t.Errorf("summary = %+v", sum)
	}

	st, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Project != "p1" || st.State != string(status.Booting) || !st.CacheAvailable || !st.PushConnected {
		t.Errorf("status = %+v", st)
	}
	if st.ChatCount != 1 {
		t.Errorf("chat count = %d, want 1", st.ChatCount)
	}
}

func TestSearchMessages(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	if err := h.db.UpsertMessages([]store.Message{
		{MessageID: "m1", ChatNumber: "5511", Type: store.DirectionIn, MessageType: "text", Message: "the invoice is attached", Timestamp: 1},
		{MessageID: "m2", ChatNumber: "5511", Type: store.DirectionIn, MessageType: "text", Message: "good morning", Timestamp: 2},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := h.client.SearchMessages(ctx, "invoice", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.MessageID != "m1" || results[0].Snippet == "" {
		t.Errorf("results = %+v", results)
	}

	_, err = h.client.SearchMessages(ctx, " ", "", 10)
	wantCode(t, err, codes.InvalidArgument)
}

func TestCacheUnavailable(t *testing.T) {
	c := serve(t, api.Deps{ProjectID: "p1", Cache: cache.New(nil)})
	ctx := t.Context()

	_, err := c.ListChats(ctx)
	wantCode(t, err, codes.Unavailable)
	_, err = c.SendText(ctx, "5511", "hi")
	wantCode(t, err, codes.Unavailable)
	_, err = c.SyncNow(ctx)
	wantCode(t, err, codes.Unavailable)

	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.CacheAvailable || st.PushConnected {
		t.Errorf("status = %+v", st)
	}
}

func TestWatchChanges(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	events := make(chan api.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- h.client.Watch(ctx, "store.chats.", func(e api.Event) error {
			events <- e
			return nil
		})
	}()

	// Wait until the subscription is live.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
ready:
	for {
		select {
		case <-ticker.C:
			h.bus.Publish(bus.NewEvent("store.chats.ping", "x"))
		case e := <-events:
			if e.Kind == "store.chats.ping" {
				break ready
			}
		case <-ctx.Done():
			t.Fatal("watch never became ready")
		}
	}

	if _, err := h.db.UpsertChats([]store.ChatUpsert{{Number: "5511", Name: "Ana"}}); err != nil {
		t.Fatal(err)
	}
	for {
		select {
		case e := <-events:
			if e.Kind != "store.chats.insert" {
				continue
			}
			if e.Project != "p1" || e.ID == "" {
				t.Errorf("envelope = %+v", e)
			}
			row := e.Payload.GetStructValue().GetFields()["row"].GetStructValue()
			if api.ChatFromStruct(row).Number != "5511" {
				t.Errorf("payload = %v", e.Payload)
			}
			cancel()
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("watch returned %v", err)
			}
			return
		case <-ctx.Done():
			t.Fatal("timeout waiting for store.chats.insert")
		}
	}
}

func TestUnaryInterceptorSeesMethods(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	h := newHarness(t, grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		mu.Lock()
		seen = append(seen, info.FullMethod)
		mu.Unlock()
		return handler(ctx, req)
	}))

	if _, err := h.client.ListChats(t.Context()); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "/livechat.v1.ChatService/ListChats" {
		t.Errorf("intercepted = %v", seen)
	}
}
