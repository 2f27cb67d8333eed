// Package sync pulls the remote chat-list snapshot and merges it into the
// local store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/reconcile"
	"github.com/matheus3301/livechat/internal/remote"
	"github.com/matheus3301/livechat/internal/store"
	"github.com/matheus3301/livechat/internal/wire"
	"go.uber.org/zap"
)

// ErrInProgress is returned when SyncChats is called while a run is active.
var ErrInProgress = errors.New("sync already in progress")

// DefaultMaxPages bounds one run against a server that never clears has_more.
const DefaultMaxPages = 200

// CheckpointLastID is the sync_state key holding the last cursor seen.
const CheckpointLastID = "chats.last_id"

// Fetcher returns one page of the remote chat-list snapshot.
type Fetcher interface {
	FetchChats(ctx context.Context, tokens remote.Tokens, projectID string, lastID int64) (*wire.SyncPage, error)
}

// Summary describes a completed sync run.
type Summary struct {
	Pages   int
	Chats   int
	Skipped int
	LastID  int64
}

// Orchestrator reconciles the local chat list against the remote snapshot.
type Orchestrator struct {
	db        *store.DB
	fetcher   Fetcher
	bus       *bus.Bus
	projectID string
	logger    *zap.Logger
	running   atomic.Bool
	cancel    context.CancelFunc

	// pending marks a reconnect that arrived during a run.
	pending atomic.Bool
	rerun   chan struct{}

	MaxPages int
}

// NewOrchestrator creates an orchestrator for projectID.
func NewOrchestrator(db *store.DB, fetcher Fetcher, b *bus.Bus, projectID string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		db:        db,
		fetcher:   fetcher,
		bus:       b,
		projectID: projectID,
		logger:    logger,
		rerun:     make(chan struct{}, 1),
		MaxPages:  DefaultMaxPages,
	}
}

// SyncChats fetches every page of the snapshot and upserts the result in a
// single store transaction. Only identity and last-message fields are
// written: unread_count is owned locally and is_favorite changes only when
// the server sent a real boolean. On any error nothing is written.
func (o *Orchestrator) SyncChats(ctx context.Context, tokens remote.Tokens) (Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Summary{}, ErrInProgress
	}
	defer o.finish()

	o.publish(bus.KindSyncStarted, nil)

	sum, err := o.run(ctx, tokens)
	if err != nil {
		o.logger.Warn("chat sync failed, keeping local state",
			zap.Error(err),
			zap.Int("pages", sum.Pages))
		o.publish(bus.KindSyncFailed, err.Error())
		return sum, err
	}

	o.logger.Info("chat sync completed",
		zap.Int("pages", sum.Pages),
		zap.Int("chats", sum.Chats),
		zap.Int("skipped", sum.Skipped),
		zap.Int64("last_id", sum.LastID))
	o.publish(bus.KindSyncCompleted, sum)
	return sum, nil
}

func (o *Orchestrator) run(ctx context.Context, tokens remote.Tokens) (Summary, error) {
	var (
		sum     Summary
		upserts []store.ChatUpsert
		cursor  int64
	)

	maxPages := o.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	for sum.Pages < maxPages {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		page, err := o.fetcher.FetchChats(ctx, tokens, o.projectID, cursor)
		if err != nil {
			return sum, fmt.Errorf("fetch page after %d: %w", cursor, err)
		}
		sum.Pages++
		sum.Skipped += page.Skipped
		for _, u := range page.Chats {
			u.UnreadCount = nil
			upserts = append(upserts, u)
		}
		o.publish(bus.KindSyncPage, sum)

		if !page.HasMore {
			break
		}
		if page.LastID == cursor {
			o.logger.Warn("sync cursor did not advance, stopping", zap.Int64("last_id", cursor))
			break
		}
		cursor = page.LastID
	}
	sum.LastID = cursor

	merged, err := o.db.UpsertChatsWith(upserts, reconcile.KeepNewestMirror)
	if err != nil {
		return sum, fmt.Errorf("upsert chats: %w", err)
	}
	sum.Chats = len(merged)

	if err := o.db.SetCheckpoint(CheckpointLastID, strconv.FormatInt(cursor, 10)); err != nil {
		o.logger.Warn("failed to store sync checkpoint", zap.Error(err))
	}
	return sum, nil
}

// Running reports whether a sync run is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

func (o *Orchestrator) finish() {
	o.running.Store(false)
	if o.pending.Swap(false) {
		select {
		case o.rerun <- struct{}{}:
		default:
		}
	}
}

// Start resyncs whenever the push channel (re)connects, covering events
// missed while it was down. A reconnect during a run schedules one more run
// after it.
func (o *Orchestrator) Start(ctx context.Context, tokens func() remote.Tokens) {
	if o.bus == nil {
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	ch, unsub := o.bus.Subscribe(bus.KindPushConnected, 4)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				o.resync(ctx, tokens)
			case <-o.rerun:
				o.resync(ctx, tokens)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (o *Orchestrator) resync(ctx context.Context, tokens func() remote.Tokens) {
	for {
		_, err := o.SyncChats(ctx, tokens())
		if !errors.Is(err, ErrInProgress) {
			if err != nil {
				o.logger.Debug("resync after reconnect failed", zap.Error(err))
			}
			return
		}
		o.pending.Store(true)
		// The active run may have finished before it saw the flag.
		if o.running.Load() || !o.pending.CompareAndSwap(true, false) {
			return
		}
	}
}

// Stop stops the reconnect listener.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) publish(kind string, payload any) {
	if o.bus != nil {
		o.bus.Publish(bus.NewEvent(kind, payload))
	}
}
