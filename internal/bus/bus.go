package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped map[string]int
}

type subscription struct {
	namespace string
	ch        chan Event
	// lossless subscribers make Publish wait for buffer space.
	lossless bool
	done     chan struct{}
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs:    make(map[int]*subscription),
		dropped: make(map[string]int),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of
// evt.Kind. A full lossy subscriber misses the event. A full lossless
// subscriber makes Publish wait until it has room or unsubscribes.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	var targets []*subscription
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var full []string
	for _, sub := range targets {
		if sub.lossless {
			select {
			case sub.ch <- evt:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			full = append(full, sub.namespace)
		}
	}

	if len(full) > 0 {
		b.mu.Lock()
		for _, ns := range full {
			b.dropped[ns]++
		}
		b.mu.Unlock()
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, false)
}

// SubscribeLossless is Subscribe for consumers that must see every event.
// Publishers block while its buffer is full, so the consumer has to keep
// reading until it unsubscribes.
func (b *Bus) SubscribeLossless(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, true)
}

func (b *Bus) subscribe(namespace string, bufSize int, lossless bool) (<-chan Event, func()) {
	sub := &subscription{
		namespace: namespace,
		ch:        make(chan Event, bufSize),
		lossless:  lossless,
		done:      make(chan struct{}),
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dropped returns how many events subscribers of namespace have missed
// because their buffer was full.
func (b *Bus) Dropped(namespace string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[namespace]
}
