// Package reconcile holds the message status lattice rules and the merge of
// optimistic outgoing messages with their server echoes.
package reconcile

import (
	"fmt"

	"github.com/matheus3301/livechat/internal/store"
	"go.uber.org/zap"
)

// ShouldApply reports whether next may replace current. Statuses only move
// forward along pending < sent < delivered < read; failed overrides any
// status and, once stored, absorbs every later status except another failed.
func ShouldApply(current, next store.Status) bool {
	if next == store.StatusFailed {
		return true
	}
	if current == store.StatusFailed {
		return false
	}
	return next.Level() > current.Level()
}

// Result reports what ApplyStatus changed.
type Result struct {
	Applied     bool
	ChatUpdated bool
	Message     *store.Message
}

// Reconciler applies status changes to stored messages and propagates the
// winning status to the owning chat's last-message mirror.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a reconciler backed by db.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

// Lookup finds a message by message_id, then by provider id.
func (r *Reconciler) Lookup(id string) (*store.Message, error) {
	m, err := r.db.FindMessageByMessageID(id)
	if err != nil || m != nil {
		return m, err
	}
	return r.db.FindMessageByWAMID(id)
}

// ApplyStatus moves the message identified by id to status when the lattice
// allows it. A missing message or a rejected downgrade is a no-op.
func (r *Reconciler) ApplyStatus(id string, status store.Status, failedReason string) (Result, error) {
	msg, err := r.Lookup(id)
	if err != nil {
		return Result{}, fmt.Errorf("lookup message %q: %w", id, err)
	}
	if msg == nil {
		r.logger.Debug("status for unknown message", zap.String("message_id", id), zap.String("status", string(status)))
		return Result{}, nil
	}
	if !ShouldApply(msg.Status, status) {
		r.logger.Debug("status downgrade rejected",
			zap.String("message_id", msg.MessageID),
			zap.String("current", string(msg.Status)),
			zap.String("incoming", string(status)))
		return Result{Message: msg}, nil
	}

	if _, err := r.db.UpdateMessageStatus(msg.MessageID, status, failedReason); err != nil {
		return Result{}, fmt.Errorf("update status: %w", err)
	}
	msg.Status = status
	if status == store.StatusFailed {
		msg.FailedReason = failedReason
	}

	res := Result{Applied: true, Message: msg}
	res.ChatUpdated, err = r.propagate(msg)
	if err != nil {
		return res, fmt.Errorf("propagate status: %w", err)
	}
	return res, nil
}

// propagate copies the status to the chat row when msg is the chat's latest
// message: either the mirror already points at it, or it is the newest
// stored message by timestamp.
func (r *Reconciler) propagate(msg *store.Message) (bool, error) {
	chat, err := r.db.GetChat(msg.ChatNumber)
	if err != nil {
		return false, err
	}
	if chat == nil {
		return false, nil
	}

	latest := mirrorsMessage(chat.Last, msg)
	if !latest {
		newest, err := r.db.LatestMessage(msg.ChatNumber)
		if err != nil {
			return false, err
		}
		latest = newest != nil && newest.MessageID == msg.MessageID
	}
	if !latest {
		return false, nil
	}

	status := msg.Status
	if _, err := r.db.UpdateChat(chat.Number, store.ChatPatch{Status: &status}); err != nil {
		return false, err
	}
	return true, nil
}

func mirrorsMessage(last store.LastMessage, msg *store.Message) bool {
	switch {
	case last.UniqueID != "" && last.UniqueID == msg.MessageID:
		return true
	case last.WAMID != "" && last.WAMID == msg.WAMID:
		return true
	case last.ID != 0 && last.ID == msg.ServerID:
		return true
	}
	return false
}
