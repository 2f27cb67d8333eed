package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/cache"
	"github.com/matheus3301/livechat/internal/ingest"
	"github.com/matheus3301/livechat/internal/outbox"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/status"
	"github.com/matheus3301/livechat/internal/store"
	intsync "github.com/matheus3301/livechat/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// watchBuffer is the per-stream bus buffer. A slow watcher misses events
// rather than stalling the daemon.
const watchBuffer = 256

// PushState reports whether the live channel is connected.
type PushState interface {
	Connected() bool
}

// Deps are the components behind ChatService. Ingestor, Sender and Syncer
// are nil when the local cache could not be opened.
type Deps struct {
	ProjectID string
	Cache     *cache.Cache
	View      *cache.ViewState
	Ingestor  *ingest.Ingestor
	Sender    *outbox.Sender
	Syncer    *intsync.Orchestrator
	Tokens    func() remote.Tokens
	Machine   *status.Machine
	Push      PushState
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// ChatService implements ChatServiceServer on top of the local cache.
type ChatService struct {
	d         Deps
	startedAt time.Time
}

// NewChatService creates a chat service.
func NewChatService(d Deps) *ChatService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tokens == nil {
		d.Tokens = func() remote.Tokens { return remote.Tokens{} }
	}
	return &ChatService{d: d, startedAt: time.Now()}
}

func (s *ChatService) db() (*store.DB, error) {
	if s.d.Cache == nil {
		return nil, grpcstatus.Error(codes.Unavailable, cache.ErrUnavailable.Error())
	}
	db, err := s.d.Cache.DB()
	if err != nil {
		return nil, toStatus(err)
	}
	return db, nil
}

func (s *ChatService) ListChats(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if _, err := s.db(); err != nil {
		return nil, err
	}
	chats := s.d.Cache.Chats()
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(chats))}
	for _, c := range chats {
		out.Values = append(out.Values, structpb.NewStructValue(ChatToStruct(c)))
	}
	return out, nil
}

func (s *ChatService) ListMessages(_ context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	number := strings.TrimSpace(req.GetValue())
	if number == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat number is required")
	}
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	msgs, err := db.GetMessages(number)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "get messages: %v", err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(msgs))}
	for _, m := range msgs {
		out.Values = append(out.Values, structpb.NewStructValue(MessageToStruct(m)))
	}
	return out, nil
}

// UpdateChat applies the fields present in req: name, is_favorite and
// unread_count. Absent fields are left unchanged.
func (s *ChatService) UpdateChat(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	number := strings.TrimSpace(getString(req, "number"))
	if number == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat number is required")
	}
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	var patch store.ChatPatch
	if has(req, "name") {
		name := getString(req, "name")
		patch.Name = &name
	}
	if has(req, "is_favorite") {
		fav := getBool(req, "is_favorite")
		patch.IsFavorite = &fav
	}
	if has(req, "unread_count") {
		n := int(getInt64(req, "unread_count"))
		if n < 0 {
			return nil, grpcstatus.Error(codes.InvalidArgument, "unread_count must not be negative")
		}
		patch.UnreadCount = &n
	}

	c, err := db.UpdateChat(number, patch)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "update chat: %v", err)
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %q not found", number)
	}
	return ChatToStruct(*c), nil
}

// OpenChat marks number as the chat on screen and clears its unread count.
// Opening a chat that is not cached yet still records it as open.
func (s *ChatService) OpenChat(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	number := strings.TrimSpace(req.GetValue())
	if number == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat number is required")
	}
	if s.d.View != nil {
		s.d.View.SetOpenChat(number)
	}
	if s.d.Ingestor == nil {
		return nil, grpcstatus.Error(codes.Unavailable, cache.ErrUnavailable.Error())
	}
	c, err := s.d.Ingestor.OpenChat(number)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "open chat: %v", err)
	}
	if c == nil {
		return ChatToStruct(store.Chat{Number: number}), nil
	}
	return ChatToStruct(*c), nil
}

func (s *ChatService) CloseChat(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.d.View != nil {
		s.d.View.SetOpenChat("")
	}
	return &emptypb.Empty{}, nil
}

// SendText stores an optimistic pending message and returns it. Delivery
// results arrive later as outbox.* and store.* events.
func (s *ChatService) SendText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Sender == nil {
		return nil, grpcstatus.Error(codes.Unavailable, cache.ErrUnavailable.Error())
	}
	msg, err := s.d.Sender.Send(ctx, getString(req, "chat_number"), getString(req, "text"))
	if err != nil {
		return nil, toStatus(err)
	}
	return MessageToStruct(msg), nil
}

func (s *ChatService) SyncNow(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.d.Syncer == nil {
		return nil, grpcstatus.Error(codes.Unavailable, cache.ErrUnavailable.Error())
	}
	sum, err := s.d.Syncer.SyncChats(ctx, s.d.Tokens())
	if err != nil {
		return nil, toStatus(err)
	}
	return summaryToStruct(sum), nil
}

func (s *ChatService) SearchMessages(_ context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	query := strings.TrimSpace(getString(req, "query"))
	if query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	results, err := db.SearchMessages(query, getString(req, "chat_number"), int(getInt64(req, "limit")))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "search: %v", err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(results))}
	for _, r := range results {
		out.Values = append(out.Values, structpb.NewStructValue(searchResultToStruct(r)))
	}
	return out, nil
}

func (s *ChatService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	f := fields{
		"project":         str(s.d.ProjectID),
		"uptime_ms":       num(time.Since(s.startedAt).Milliseconds()),
		"push_connected":  boolean(s.d.Push != nil && s.d.Push.Connected()),
		"syncing":         boolean(s.d.Syncer != nil && s.d.Syncer.Running()),
		"cache_available": boolean(s.d.Cache != nil && s.d.Cache.Available()),
	}
	if s.d.Machine != nil {
		f["state"] = str(string(s.d.Machine.Current()))
		f["reason"] = str(s.d.Machine.Reason())
	}
	if s.d.View != nil {
		f["open_chat"] = str(s.d.View.OpenChat())
	}
	if db, err := s.db(); err == nil {
		if n, err := db.ChatCount(); err == nil {
			f["chat_count"] = num(n)
		}
		if n, err := db.MessageCount(); err == nil {
			f["message_count"] = num(n)
		}
	}
	return f.toStruct(), nil
}

// WatchChanges streams bus events whose kind starts with req.prefix (all
// events when empty) until the client goes away.
func (s *ChatService) WatchChanges(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.d.Bus == nil {
		return grpcstatus.Error(codes.Unavailable, "event bus not configured")
	}
	ch, unsub := s.d.Bus.Subscribe(getString(req, "prefix"), watchBuffer)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if err := stream.Send(envelope(uuid.NewString(), s.d.ProjectID, evt)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, cache.ErrUnavailable):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, outbox.ErrInvalidMessage):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, intsync.ErrInProgress):
		return grpcstatus.Error(codes.Aborted, err.Error())
	case errors.Is(err, remote.ErrTokenExpired):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, remote.ErrServer):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}
