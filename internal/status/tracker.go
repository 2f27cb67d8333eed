package status

import (
	"context"
	"sync"

	"github.com/matheus3301/livechat/internal/bus"
	"go.uber.org/zap"
)

// Tracker derives the daemon state from sync and push channel events.
type Tracker struct {
	machine *Machine
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc

	mu         sync.Mutex
	connected  bool
	syncing    bool
	syncFailed bool
	storeDown  bool
}

// NewTracker creates a tracker driving m.
func NewTracker(m *Machine, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{machine: m, bus: b, logger: logger}
}

// Start subscribes to the bus.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	syncCh, unsubSync := t.bus.Subscribe("sync.", 64)
	// Lossless so a burst of messages cannot push out a connection change.
	pushCh, unsubPush := t.bus.SubscribeLossless("push.", 256)

	go func() {
		defer unsubSync()
		defer unsubPush()
		for {
			select {
			case evt := <-syncCh:
				t.Handle(evt)
			case evt := <-pushCh:
				t.Handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// StoreUnavailable marks the local store as unusable. The daemon stays
// DEGRADED until restarted.
func (t *Tracker) StoreUnavailable(reason string) {
	t.mu.Lock()
	t.storeDown = true
	t.mu.Unlock()
	t.settle(reason)
}

// Handle applies one bus event.
func (t *Tracker) Handle(evt bus.Event) {
	reason := ""
	t.mu.Lock()
	switch evt.Kind {
	case bus.KindPushConnected:
		t.connected = true
	case bus.KindPushDisconnected:
		t.connected = false
		reason = "push channel disconnected"
	case bus.KindSyncStarted:
		t.syncing = true
	case bus.KindSyncCompleted:
		t.syncing = false
		t.syncFailed = false
	case bus.KindSyncFailed:
		t.syncing = false
		t.syncFailed = true
		reason = "sync failed"
		if msg, ok := evt.Payload.(string); ok && msg != "" {
			reason = "sync failed: " + msg
		}
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.settle(reason)
}

func (t *Tracker) settle(reason string) {
	t.mu.Lock()
	var to State
	switch {
	case t.storeDown:
		to = Degraded
	case t.syncing:
		to = Syncing
	case !t.connected:
		to = Offline
	case t.syncFailed:
		to = Degraded
	default:
		to = Ready
	}
	t.mu.Unlock()

	if err := t.machine.Transition(to, reason); err != nil {
		t.logger.Warn("status transition rejected", zap.Error(err))
	}
}
