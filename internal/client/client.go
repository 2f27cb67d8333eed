// Package client is the typed gRPC client for a project daemon.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/livechat/internal/api"
	"github.com/matheus3301/livechat/internal/store"
	intsync "github.com/matheus3301/livechat/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, api.FullMethod(method), in, out)
}

// ChatUpdate carries the fields UpdateChat should change. Nil fields are
// left alone.
type ChatUpdate struct {
	Name        *string
	IsFavorite  *bool
	UnreadCount *int
}

// Status is the daemon status snapshot.
type Status struct {
	Project        string
	State          string
	Reason         string
	PushConnected  bool
	Syncing        bool
	CacheAvailable bool
	OpenChat       string
	ChatCount      int64
	MessageCount   int64
	Uptime         time.Duration
}

func (c *Client) ListChats(ctx context.Context) ([]store.Chat, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListChats", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	chats := make([]store.Chat, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		chats = append(chats, api.ChatFromStruct(v.GetStructValue()))
	}
	return chats, nil
}

func (c *Client) ListMessages(ctx context.Context, chatNumber string) ([]store.Message, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListMessages", wrapperspb.String(chatNumber), out); err != nil {
		return nil, err
	}
	msgs := make([]store.Message, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		msgs = append(msgs, api.MessageFromStruct(v.GetStructValue()))
	}
	return msgs, nil
}

func (c *Client) UpdateChat(ctx context.Context, number string, u ChatUpdate) (store.Chat, error) {
	req := map[string]any{"number": number}
	if u.Name != nil {
		req["name"] = *u.Name
	}
	if u.IsFavorite != nil {
		req["is_favorite"] = *u.IsFavorite
	}
	if u.UnreadCount != nil {
		req["unread_count"] = *u.UnreadCount
	}
	in, err := structpb.NewStruct(req)
	if err != nil {
		return store.Chat{}, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "UpdateChat", in, out); err != nil {
		return store.Chat{}, err
	}
	return api.ChatFromStruct(out), nil
}

// OpenChat tells the daemon which chat is on screen.
func (c *Client) OpenChat(ctx context.Context, number string) (store.Chat, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "OpenChat", wrapperspb.String(number), out); err != nil {
		return store.Chat{}, err
	}
	return api.ChatFromStruct(out), nil
}

func (c *Client) CloseChat(ctx context.Context) error {
	return c.invoke(ctx, "CloseChat", &emptypb.Empty{}, new(emptypb.Empty))
}

// SendText queues a text message and returns the pending temp_* record.
func (c *Client) SendText(ctx context.Context, chatNumber, text string) (store.Message, error) {
	in, err := structpb.NewStruct(map[string]any{"chat_number": chatNumber, "text": text})
	if err != nil {
		return store.Message{}, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "SendText", in, out); err != nil {
		return store.Message{}, err
	}
	return api.MessageFromStruct(out), nil
}

func (c *Client) SyncNow(ctx context.Context) (intsync.Summary, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "SyncNow", &emptypb.Empty{}, out); err != nil {
		return intsync.Summary{}, err
	}
	return api.SummaryFromStruct(out), nil
}

func (c *Client) SearchMessages(ctx context.Context, query, chatNumber string, limit int) ([]api.SearchResult, error) {
	in, err := structpb.NewStruct(map[string]any{"query": query, "chat_number": chatNumber, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "SearchMessages", in, out); err != nil {
		return nil, err
	}
	results := make([]api.SearchResult, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		results = append(results, api.SearchResultFromStruct(v.GetStructValue()))
	}
	return results, nil
}

func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetStatus", &emptypb.Empty{}, out); err != nil {
		return Status{}, err
	}
	f := out.GetFields()
	return Status{
		Project:        f["project"].GetStringValue(),
		State:          f["state"].GetStringValue(),
		Reason:         f["reason"].GetStringValue(),
		PushConnected:  f["push_connected"].GetBoolValue(),
		Syncing:        f["syncing"].GetBoolValue(),
		CacheAvailable: f["cache_available"].GetBoolValue(),
		OpenChat:       f["open_chat"].GetStringValue(),
		ChatCount:      int64(f["chat_count"].GetNumberValue()),
		MessageCount:   int64(f["message_count"].GetNumberValue()),
		Uptime:         time.Duration(f["uptime_ms"].GetNumberValue()) * time.Millisecond,
	}, nil
}

var watchDesc = grpc.StreamDesc{StreamName: "WatchChanges", ServerStreams: true}

// Watch streams daemon events whose kind starts with prefix until ctx is
// cancelled or the stream fails. fn is called for each event; a non-nil
// return stops the stream and is returned.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(api.Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := c.conn.NewStream(ctx, &watchDesc, api.FullMethod("WatchChanges"))
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	in, err := structpb.NewStruct(map[string]any{"prefix": prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		env, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := fn(api.EventFromStruct(env)); err != nil {
			return err
		}
	}
}
