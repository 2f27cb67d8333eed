package cache

import (
	"sync"

	"github.com/matheus3301/livechat/internal/bus"
)

// ViewState tracks the chat the UI currently has open.
type ViewState struct {
	mu   sync.RWMutex
	open string
	bus  *bus.Bus
}

// NewViewState creates a view with no chat open.
func NewViewState(b *bus.Bus) *ViewState {
	return &ViewState{bus: b}
}

// OpenChat returns the open chat number, or "".
func (v *ViewState) OpenChat() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.open
}

// SetOpenChat records number as open; "" closes the current chat.
func (v *ViewState) SetOpenChat(number string) {
	v.mu.Lock()
	changed := v.open != number
	v.open = number
	v.mu.Unlock()

	if changed && v.bus != nil {
		v.bus.Publish(bus.NewEvent(bus.KindViewChanged, number))
	}
}
