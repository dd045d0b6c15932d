package playback

import (
	"sync"

	"github.com/charmbracelet/log"
)

// EventKind identifies a playback lifecycle notification.
type EventKind string

const (
	EventChunkReady      EventKind = "chunk_ready"
	EventChunkQueued     EventKind = "chunk_queued"
	EventChunkStarted    EventKind = "chunk_started"
	EventChunkFinished   EventKind = "chunk_finished"
	EventGenerationError EventKind = "generation_error"
	EventError           EventKind = "error"
)

// Event is a playback lifecycle notification delivered to the host UI.
type Event struct {
	Session    string    `json:"session_id"`
	ChunkIndex int       `json:"chunk_index"`
	Kind       EventKind `json:"event"`
	Message    string    `json:"message,omitempty"`
}

// Bus fans playback events out to subscribers. Delivery is best effort:
// publishing never blocks, and a subscriber whose channel is full misses the
// event. Events are observability, not a control channel.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			for i, sub := range b.subs {
				if sub == ch {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(ch)
					break
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Publish delivers e to all subscribers without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.Debug("Dropping playback event for slow subscriber",
				"session", e.Session, "index", e.ChunkIndex, "kind", e.Kind)
		}
	}
}

// Close shuts the bus down; subsequent publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
