package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/reconcile"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/store"
	"github.com/matheus3301/livechat/internal/wire"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds retries of transient send failures.
const DefaultMaxAttempts = 3

// ErrInvalidMessage is returned by Send for an empty chat number or text.
var ErrInvalidMessage = errors.New("invalid message")

// TextSender posts an outgoing text message and returns the server record.
type TextSender interface {
	SendMessage(ctx context.Context, tokens remote.Tokens, req remote.SendRequest) (store.Message, error)
}

// Reconciler is the subset of the ingest path the sender feeds results into.
type Reconciler interface {
	MergeServerEcho(chatNumber string, server store.Message) (reconcile.MergeResult, error)
	ApplyStatus(messageID string, status store.Status, failedReason string) (reconcile.Result, error)
}

// Ack is the payload of outbox.ack and outbox.failed events.
type Ack struct {
	ClientMsgID string
	ServerMsgID string
	ChatNumber  string
	Error       string
}

// Sender writes optimistic temp_* messages and drains the outbox in the
// background.
type Sender struct {
	db         *store.DB
	sender     TextSender
	reconciler Reconciler
	bus        *bus.Bus
	projectID  string
	tokens     func() remote.Tokens
	logger     *zap.Logger
	cancel     context.CancelFunc
	now        func() time.Time

	MaxAttempts int
	Interval    time.Duration
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender TextSender, rec Reconciler, b *bus.Bus, projectID string, tokens func() remote.Tokens, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = func() remote.Tokens { return remote.Tokens{} }
	}
	return &Sender{
		db:          db,
		sender:      sender,
		reconciler:  rec,
		bus:         b,
		projectID:   projectID,
		tokens:      tokens,
		logger:      logger,
		now:         time.Now,
		MaxAttempts: DefaultMaxAttempts,
		Interval:    500 * time.Millisecond,
	}
}

// Send stores a pending temp_* message and its chat mirror, queues it for
// delivery and returns it. The network call happens later in the drain loop.
func (s *Sender) Send(ctx context.Context, chatNumber, text string) (store.Message, error) {
	if err := ctx.Err(); err != nil {
		return store.Message{}, err
	}
	chatNumber = strings.TrimSpace(chatNumber)
	if chatNumber == "" {
		return store.Message{}, fmt.Errorf("%w: chat number is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(text) == "" {
		return store.Message{}, fmt.Errorf("%w: message text is required", ErrInvalidMessage)
	}

	msg := store.Message{
		MessageID:   store.TempPrefix + uuid.NewString(),
		ChatNumber:  chatNumber,
		Type:        store.DirectionOut,
		MessageType: "text",
		Message:     text,
		Status:      store.StatusPending,
		Timestamp:   s.now().UnixMilli(),
	}
	if err := s.db.UpsertMessages([]store.Message{msg}); err != nil {
		return store.Message{}, fmt.Errorf("store pending message: %w", err)
	}
	mirror := msg.Mirror()
	if _, err := s.db.UpsertChatsWith([]store.ChatUpsert{{Number: chatNumber, Last: &mirror}}, reconcile.KeepNewestMirror); err != nil {
		return store.Message{}, fmt.Errorf("update chat mirror: %w", err)
	}
	if err := s.db.QueueOutbox(msg.MessageID, chatNumber, text); err != nil {
		s.fail(store.OutboxEntry{ClientMsgID: msg.MessageID, ChatNumber: chatNumber}, err)
		return store.Message{}, fmt.Errorf("queue message: %w", err)
	}
	return msg, nil
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain makes one delivery attempt for every pending entry.
func (s *Sender) Drain(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, entry)
	}
}

func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}
	attempt := entry.Attempts + 1

	server, err := s.sender.SendMessage(ctx, s.tokens(), remote.SendRequest{
		ProjectID:   s.projectID,
		ChatNumber:  entry.ChatNumber,
		Text:        entry.Body,
		ClientMsgID: entry.ClientMsgID,
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; the entry stays 'sending' and is retried on restart.
			return
		}
		if retryable(err) && attempt < s.MaxAttempts {
			s.logger.Warn("send failed, will retry",
				zap.Error(err),
				zap.String("client_msg_id", entry.ClientMsgID),
				zap.Int("attempt", attempt))
			if rerr := s.db.RequeueOutbox(entry.ClientMsgID, err.Error()); rerr != nil {
				s.logger.Error("failed to requeue", zap.Error(rerr), zap.String("client_msg_id", entry.ClientMsgID))
			}
			return
		}
		s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		s.fail(entry, err)
		return
	}

	if server.ChatNumber == "" {
		server.ChatNumber = entry.ChatNumber
	}
	if err := s.db.MarkOutboxSent(entry.ClientMsgID, server.MessageID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	res, err := s.reconciler.MergeServerEcho(entry.ChatNumber, server)
	if err != nil {
		s.logger.Error("failed to merge send response", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}

	s.logger.Info("message sent",
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("server_msg_id", server.MessageID),
		zap.Bool("merged", res.Merged))
	s.publish(bus.KindOutboxAck, Ack{
		ClientMsgID: entry.ClientMsgID,
		ServerMsgID: server.MessageID,
		ChatNumber:  entry.ChatNumber,
	})
}

func (s *Sender) fail(entry store.OutboxEntry, cause error) {
	if err := s.db.MarkOutboxFailed(entry.ClientMsgID, cause.Error()); err != nil {
		s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	if _, err := s.reconciler.ApplyStatus(entry.ClientMsgID, store.StatusFailed, cause.Error()); err != nil {
		s.logger.Error("failed to mark message failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	s.publish(bus.KindOutboxFailed, Ack{
		ClientMsgID: entry.ClientMsgID,
		ChatNumber:  entry.ChatNumber,
		Error:       cause.Error(),
	})
}

// retryable reports whether err is a transport failure rather than a
// rejection by the server. An unreadable response may mean the message was
// accepted, so it is not retried.
func retryable(err error) bool {
	return !errors.Is(err, remote.ErrServer) &&
		!errors.Is(err, remote.ErrTokenExpired) &&
		!errors.Is(err, wire.ErrMalformed)
}

func (s *Sender) publish(kind string, payload any) {
	if s.bus != nil {
		s.bus.Publish(bus.NewEvent(kind, payload))
	}
}
