package bus

import "github.com/matheus3301/livechat/internal/store"

// Notifier republishes committed store writes as "store.<table>.<op>" events
// carrying the store.Change as payload.
type Notifier struct {
	bus *Bus
}

// NewNotifier creates a notifier publishing on b.
func NewNotifier(b *Bus) *Notifier {
	return &Notifier{bus: b}
}

// Changed implements store.ChangeListener.
func (n *Notifier) Changed(c store.Change) {
	n.bus.Publish(NewEvent("store."+c.Table+"."+string(c.Op), c))
}
