package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/livechat/internal/reconcile"
	"github.com/matheus3301/livechat/internal/store"
	"github.com/matheus3301/livechat/internal/wire"
	"go.uber.org/zap"
)

// Result reports what one Ingest call changed.
type Result struct {
	Kind        wire.Kind
	Chat        *store.Chat
	Decision    Decision
	Status      reconcile.Result
	Merge       reconcile.MergeResult
	Duplicate   bool
	UnreadDelta int
}

// Ingestor applies decoded push events. Calls are serialized so that the
// cached chat read by Decide is the one the patch is applied to.
type Ingestor struct {
	mu         sync.Mutex
	db         *store.DB
	reconciler *reconcile.Reconciler
	merger     *reconcile.Merger
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestor creates an ingestor backed by db.
func NewIngestor(db *store.DB, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		db:         db,
		reconciler: reconcile.NewReconciler(db, logger),
		merger:     reconcile.NewMerger(db, logger),
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest applies evt. openChat is the chat currently open in the UI, or "".
func (i *Ingestor) Ingest(evt wire.PushEvent, openChat string) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch evt.Kind {
	case wire.KindStatus:
		res, err := i.reconciler.ApplyStatus(evt.MessageID, evt.Status, evt.FailedReason)
		if err != nil {
			return Result{Kind: evt.Kind}, fmt.Errorf("apply status: %w", err)
		}
		return Result{Kind: evt.Kind, Status: res}, nil
	case wire.KindMessage:
		return i.ingestMessage(evt, openChat)
	}
	return Result{}, fmt.Errorf("event kind %s: %w", evt.Kind, wire.ErrMalformed)
}

func (i *Ingestor) ingestMessage(evt wire.PushEvent, openChat string) (Result, error) {
	msg := evt.Message
	msg.ChatNumber = evt.ChatNumber
	if msg.Timestamp == 0 {
		msg.Timestamp = i.now().UnixMilli()
	}
	evt.Message = msg

	cached, err := i.db.GetChat(evt.ChatNumber)
	if err != nil {
		return Result{}, fmt.Errorf("load chat: %w", err)
	}
	existing, err := i.findExisting(msg)
	if err != nil {
		return Result{}, err
	}

	// A message already stored is a re-delivery even when it is not the
	// chat's latest, so compare against its own mirror.
	view := cached
	if existing != nil {
		v := store.Chat{Number: evt.ChatNumber}
		if cached != nil {
			v = *cached
		}
		v.Last = existing.Mirror()
		view = &v
	}
	d := Decide(view, evt, openChat)
	res := Result{Kind: evt.Kind, Decision: d, Duplicate: existing != nil, UnreadDelta: d.UnreadDelta}

	patch := d.Patch
	if msg.Type == store.DirectionOut {
		if existing != nil {
			msg.MessageID = existing.MessageID
		}
		mres, err := i.merger.MergeServerEcho(evt.ChatNumber, msg)
		if err != nil {
			return res, fmt.Errorf("merge echo: %w", err)
		}
		res.Merge = mres
		patch.Last = nil
	} else {
		if existing != nil {
			msg = mergeIncoming(*existing, msg)
			mirror := msg.Mirror()
			patch.Last = &mirror
		}
		if err := i.db.UpsertMessages([]store.Message{msg}); err != nil {
			return res, fmt.Errorf("store message: %w", err)
		}
	}

	merged, err := i.db.UpsertChatsWith([]store.ChatUpsert{patch}, reconcile.KeepNewestMirror)
	if err != nil {
		return res, fmt.Errorf("update chat: %w", err)
	}
	if len(merged) == 1 {
		res.Chat = &merged[0]
	}

	i.logger.Debug("ingested message",
		zap.String("chat", evt.ChatNumber),
		zap.String("message_id", msg.MessageID),
		zap.Bool("duplicate", res.Duplicate),
		zap.Int("unread_delta", d.UnreadDelta),
		zap.Bool("reset_unread", d.ResetUnread))
	return res, nil
}

func (i *Ingestor) findExisting(msg store.Message) (*store.Message, error) {
	existing, err := i.db.FindMessageByMessageID(msg.MessageID)
	if err != nil {
		return nil, fmt.Errorf("lookup message: %w", err)
	}
	if existing == nil && msg.WAMID != "" {
		if existing, err = i.db.FindMessageByWAMID(msg.WAMID); err != nil {
			return nil, fmt.Errorf("lookup wamid: %w", err)
		}
	}
	return existing, nil
}

// mergeIncoming keeps the stored key and position and never regresses status.
func mergeIncoming(stored, next store.Message) store.Message {
	next.MessageID = stored.MessageID
	if !reconcile.ShouldApply(stored.Status, next.Status) {
		next.Status = stored.Status
		next.FailedReason = stored.FailedReason
	}
	if stored.Timestamp != 0 {
		next.Timestamp = stored.Timestamp
	}
	if next.ServerID == 0 {
		next.ServerID = stored.ServerID
	}
	if next.WAMID == "" {
		next.WAMID = stored.WAMID
	}
	return next
}

// OpenChat records that the user is viewing number: its unread count drops to
// zero and is persisted. It returns nil when the chat is unknown.
func (i *Ingestor) OpenChat(number string) (*store.Chat, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	zero := 0
	c, err := i.db.UpdateChat(number, store.ChatPatch{UnreadCount: &zero})
	if err != nil {
		return nil, fmt.Errorf("reset unread for %q: %w", number, err)
	}
	return c, nil
}

// ApplyStatus exposes the status path for callers outside the push channel.
func (i *Ingestor) ApplyStatus(messageID string, status store.Status, failedReason string) (reconcile.Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reconciler.ApplyStatus(messageID, status, failedReason)
}

// MergeServerEcho exposes the merge path for the outgoing send path.
func (i *Ingestor) MergeServerEcho(chatNumber string, server store.Message) (reconcile.MergeResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.merger.MergeServerEcho(chatNumber, server)
}
