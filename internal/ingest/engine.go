package ingest

import (
	"context"

	"github.com/matheus3301/livechat/internal/bus"
	"github.com/matheus3301/livechat/internal/wire"
	"go.uber.org/zap"
)

// ViewState reports the chat currently open in the UI.
type ViewState interface {
	OpenChat() string
}

// Engine feeds push events from the bus into an Ingestor. The open chat is
// read when each event is handled, not when it was received.
type Engine struct {
	ingestor *Ingestor
	bus      *bus.Bus
	view     ViewState
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewEngine creates a new ingest engine.
func NewEngine(ingestor *Ingestor, b *bus.Bus, view ViewState, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		ingestor: ingestor,
		bus:      b,
		view:     view,
		logger:   logger,
	}
}

// Start subscribes to push events on the bus. The subscription is lossless:
// when ingest falls behind, the push read loop waits instead of dropping.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.SubscribeLossless("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushMessage, bus.KindPushStatus:
	default:
		return
	}
	pe, ok := evt.Payload.(wire.PushEvent)
	if !ok {
		e.logger.Warn("unexpected push payload", zap.String("kind", evt.Kind))
		return
	}

	open := ""
	if e.view != nil {
		open = e.view.OpenChat()
	}
	res, err := e.ingestor.Ingest(pe, open)
	if err != nil {
		e.logger.Error("failed to ingest push event",
			zap.Error(err),
			zap.Stringer("kind", pe.Kind),
			zap.String("chat", pe.ChatNumber))
		return
	}
	if pe.Kind == wire.KindStatus && !res.Status.Applied {
		e.logger.Debug("status not applied",
			zap.String("message_id", pe.MessageID),
			zap.String("status", string(pe.Status)))
	}
}
